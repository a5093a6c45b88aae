package service

import (
	"context"

	"github.com/bizcore/be-approvals/internal/repository"
)

// Entity adapters: per-type convenience wrappers around the generic Submit.
// Each fixes the entity type and supplies a default title when the caller
// omits one; they hold no state and introduce no extra transitions.

// entityDefaults maps an entity type to its submission defaults.
var entityDefaults = map[repository.EntityType]struct {
	Title string
}{
	repository.EntityECN:      {Title: "ECN审批"},
	repository.EntityQuote:    {Title: "报价审批"},
	repository.EntityContract: {Title: "合同审批"},
	repository.EntityInvoice:  {Title: "发票审批"},
}

// defaultTitle returns the configured default title for an entity type, or
// the type name itself for types without a registered adapter.
func defaultTitle(entityType repository.EntityType) string {
	if d, ok := entityDefaults[entityType]; ok {
		return d.Title
	}
	return string(entityType)
}

// SubmitECN submits an engineering change notice for approval.
func (s *ApprovalService) SubmitECN(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	return s.submitAs(ctx, repository.EntityECN, req)
}

// SubmitQuote submits a sales quote for approval.
func (s *ApprovalService) SubmitQuote(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	return s.submitAs(ctx, repository.EntityQuote, req)
}

// SubmitContract submits a contract for approval.
func (s *ApprovalService) SubmitContract(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	return s.submitAs(ctx, repository.EntityContract, req)
}

// SubmitInvoice submits an invoice for approval.
func (s *ApprovalService) SubmitInvoice(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	return s.submitAs(ctx, repository.EntityInvoice, req)
}

func (s *ApprovalService) submitAs(ctx context.Context, entityType repository.EntityType, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	req.EntityType = entityType
	if req.Title == "" {
		req.Title = defaultTitle(entityType)
	}
	return s.Submit(ctx, req)
}
