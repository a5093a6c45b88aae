package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/database"
)

// ChainRule is a configurable routing rule: the ordered approver chain used
// for instances of one entity type. Rules only influence submissions made
// after they change; in-flight instances keep their snapshotted chain.
type ChainRule struct {
	ID         string
	EntityType EntityType
	RuleName   string
	IsActive   bool
	Approvers  []string // ordered approver IDs, level 1..n (JSONB)
	Priority   int      // lower = evaluated first
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChainRulesRepository handles CRUD for approval_chain_rules.
type ChainRulesRepository struct {
	db *database.DB
}

// NewChainRulesRepository creates a new ChainRulesRepository.
func NewChainRulesRepository(db *database.DB) *ChainRulesRepository {
	return &ChainRulesRepository{db: db}
}

// Create inserts a new chain rule.
func (r *ChainRulesRepository) Create(ctx context.Context, rule *ChainRule) error {
	approversJSON, err := json.Marshal(rule.Approvers)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to marshal approver chain")
	}

	query := `
		INSERT INTO approval_chain_rules
		    (entity_type, rule_name, is_active, approvers, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.EntityType,
		rule.RuleName,
		rule.IsActive,
		approversJSON,
		rule.Priority,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create chain rule")
	}
	return nil
}

// List returns all rules for an entity type, optionally active only.
func (r *ChainRulesRepository) List(ctx context.Context, entityType EntityType, activeOnly bool) ([]*ChainRule, error) {
	query := `
		SELECT id, entity_type, rule_name, is_active, approvers, priority,
		       created_at, updated_at
		FROM approval_chain_rules
		WHERE entity_type = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority ASC, rule_name ASC"

	rows, err := r.db.Query(ctx, query, entityType)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list chain rules")
	}
	defer rows.Close()

	var rules []*ChainRule
	for rows.Next() {
		rule, err := scanChainRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// FindForEntityType returns the highest-priority active rule for an entity
// type, or nil (no error) when none is configured.
func (r *ChainRulesRepository) FindForEntityType(ctx context.Context, entityType EntityType) (*ChainRule, error) {
	query := `
		SELECT id, entity_type, rule_name, is_active, approvers, priority,
		       created_at, updated_at
		FROM approval_chain_rules
		WHERE entity_type = $1
		  AND is_active = TRUE
		ORDER BY priority ASC
		LIMIT 1
	`

	rule, err := scanChainRule(r.db.QueryRow(ctx, query, entityType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}

// Update persists changes to an existing rule.
func (r *ChainRulesRepository) Update(ctx context.Context, rule *ChainRule) error {
	approversJSON, err := json.Marshal(rule.Approvers)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to marshal approver chain")
	}

	query := `
		UPDATE approval_chain_rules
		SET rule_name  = $2,
		    is_active  = $3,
		    approvers  = $4,
		    priority   = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.ID,
		rule.RuleName,
		rule.IsActive,
		approversJSON,
		rule.Priority,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("chain_rule", rule.ID)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to update chain rule")
	}
	return nil
}

// Delete removes a chain rule. In-flight instances are unaffected because
// their chain is snapshotted at submission.
func (r *ChainRulesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_chain_rules WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to delete chain rule")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("chain_rule", id)
	}
	return nil
}

// ── scan helper ──────────────────────────────────────────────────────────────

type chainRuleScanner interface {
	Scan(dest ...any) error
}

func scanChainRule(row chainRuleScanner) (*ChainRule, error) {
	rule := &ChainRule{}
	var approversJSON []byte

	err := row.Scan(
		&rule.ID,
		&rule.EntityType,
		&rule.RuleName,
		&rule.IsActive,
		&approversJSON,
		&rule.Priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(approversJSON, &rule.Approvers); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to unmarshal approver chain")
	}
	return rule, nil
}
