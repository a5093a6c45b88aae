package service

import (
	"context"
	"fmt"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/repository"
)

// ChainLevel is one resolved position in an approval chain.
type ChainLevel struct {
	Ordinal    int // 1-based
	ApproverID string
}

// ChainResolver computes the ordered approver chain for an entity at
// submission time. The business policy behind it (amount thresholds,
// department hierarchy) lives outside this service; implementations must
// return a non-empty, level-ordered, duplicate-free list. The result is
// snapshotted into the instance so later policy changes never retroactively
// alter an in-flight approval.
type ChainResolver interface {
	Resolve(ctx context.Context, entityType repository.EntityType, entityID string) ([]ChainLevel, error)
}

// validateChain enforces the resolver contract before a chain is snapshotted.
func validateChain(chain []ChainLevel) error {
	if len(chain) == 0 {
		return apperr.Validation("entity_type", "chain resolution yielded zero levels")
	}
	seen := make(map[string]struct{}, len(chain))
	for i, level := range chain {
		if level.Ordinal != i+1 {
			return apperr.Validation("entity_type",
				fmt.Sprintf("chain levels must be ordered 1..n, got ordinal %d at position %d", level.Ordinal, i+1))
		}
		if level.ApproverID == "" {
			return apperr.Validation("entity_type",
				fmt.Sprintf("chain level %d has no approver", level.Ordinal))
		}
		if _, dup := seen[level.ApproverID]; dup {
			return apperr.Validation("entity_type",
				fmt.Sprintf("approver %q appears more than once in the chain", level.ApproverID))
		}
		seen[level.ApproverID] = struct{}{}
	}
	return nil
}

// ChainRuleFinder is the slice of the chain-rules repository the resolver needs.
type ChainRuleFinder interface {
	FindForEntityType(ctx context.Context, entityType repository.EntityType) (*repository.ChainRule, error)
}

// RuleChainResolver resolves chains from the configurable per-entity-type
// rules table. The default resolver in production deployments.
type RuleChainResolver struct {
	rules ChainRuleFinder
}

// NewRuleChainResolver creates a resolver backed by the chain-rules store.
func NewRuleChainResolver(rules ChainRuleFinder) *RuleChainResolver {
	return &RuleChainResolver{rules: rules}
}

// Resolve returns the chain from the highest-priority active rule for the
// entity type. The entity ID is accepted for interface compatibility; rule
// matching here is per type only.
func (r *RuleChainResolver) Resolve(ctx context.Context, entityType repository.EntityType, entityID string) ([]ChainLevel, error) {
	rule, err := r.rules.FindForEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperr.Validation("entity_type",
			fmt.Sprintf("no approval chain configured for entity type %q", entityType))
	}

	chain := make([]ChainLevel, 0, len(rule.Approvers))
	for i, approverID := range rule.Approvers {
		chain = append(chain, ChainLevel{Ordinal: i + 1, ApproverID: approverID})
	}
	return chain, nil
}

// StaticChainResolver returns a fixed chain per entity type, for tests and
// single-tenant deployments with hardcoded routing.
type StaticChainResolver struct {
	chains map[repository.EntityType][]string
}

// NewStaticChainResolver creates a resolver from entity type to ordered
// approver IDs.
func NewStaticChainResolver(chains map[repository.EntityType][]string) *StaticChainResolver {
	return &StaticChainResolver{chains: chains}
}

// Resolve returns the configured chain for the entity type.
func (r *StaticChainResolver) Resolve(ctx context.Context, entityType repository.EntityType, entityID string) ([]ChainLevel, error) {
	approvers := r.chains[entityType]
	chain := make([]ChainLevel, 0, len(approvers))
	for i, approverID := range approvers {
		chain = append(chain, ChainLevel{Ordinal: i + 1, ApproverID: approverID})
	}
	return chain, nil
}
