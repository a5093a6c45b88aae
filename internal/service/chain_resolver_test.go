package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/repository"
)

func TestValidateChain(t *testing.T) {
	tests := []struct {
		name    string
		chain   []ChainLevel
		wantErr bool
	}{
		{"valid single level", []ChainLevel{{1, "alice"}}, false},
		{"valid three levels", []ChainLevel{{1, "alice"}, {2, "bob"}, {3, "carol"}}, false},
		{"empty", nil, true},
		{"gap in ordinals", []ChainLevel{{1, "alice"}, {3, "bob"}}, true},
		{"not starting at one", []ChainLevel{{2, "alice"}}, true},
		{"duplicate approver", []ChainLevel{{1, "alice"}, {2, "alice"}}, true},
		{"empty approver", []ChainLevel{{1, ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateChain(tt.chain)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fakeRuleFinder struct {
	rules map[repository.EntityType]*repository.ChainRule
}

func (f *fakeRuleFinder) FindForEntityType(ctx context.Context, entityType repository.EntityType) (*repository.ChainRule, error) {
	return f.rules[entityType], nil
}

func TestRuleChainResolver(t *testing.T) {
	resolver := NewRuleChainResolver(&fakeRuleFinder{rules: map[repository.EntityType]*repository.ChainRule{
		repository.EntityInvoice: {
			EntityType: repository.EntityInvoice,
			RuleName:   "finance default",
			IsActive:   true,
			Approvers:  []string{"fin-1", "fin-2"},
		},
	}})

	chain, err := resolver.Resolve(context.Background(), repository.EntityInvoice, "INV-9")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, ChainLevel{Ordinal: 1, ApproverID: "fin-1"}, chain[0])
	assert.Equal(t, ChainLevel{Ordinal: 2, ApproverID: "fin-2"}, chain[1])

	_, err = resolver.Resolve(context.Background(), repository.EntityECN, "ECN-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}
