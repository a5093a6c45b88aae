package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/repository"
)

// InstanceStore persists approval instances, their chain snapshots and the
// audit entries written alongside each transition. Implemented by
// repository.InstanceRepository (PostgreSQL) and repository.MemoryStore.
type InstanceStore interface {
	Create(ctx context.Context, inst *repository.ApprovalInstance, levels []*repository.ApprovalLevel, submitted *repository.AuditEntry) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalInstance, error)
	GetLevels(ctx context.Context, instanceID string) ([]*repository.ApprovalLevel, error)
	ApplyDecision(ctx context.Context, d *repository.Decision) error
	ListPendingForApprover(ctx context.Context, actorID string) ([]*repository.ApprovalInstance, error)
}

// AuditStore reads the append-only audit trail.
type AuditStore interface {
	ListByInstance(ctx context.Context, instanceID string) ([]*repository.AuditEntry, error)
}

// UserDirectory resolves whether a user ID is known to the identity service.
// Used to validate delegate targets before a delegation is recorded.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Notifier publishes fire-and-forget notification events on each transition.
// Failures never interrupt approval operations.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, recipients []string)
}

// ApprovalService owns the lifecycle of approval instances: submission, level
// advancement, terminal resolution, delegation and withdrawal. It is the only
// writer of instance state; every mutation commits through the store's
// version-guarded compare-and-swap together with exactly one audit entry, so
// concurrent actors get at-most-one successful transition per decision.
type ApprovalService struct {
	store    InstanceStore
	audit    AuditStore
	resolver ChainResolver
	users    UserDirectory
	notifier Notifier
	log      zerolog.Logger
}

// NewApprovalService creates a new ApprovalService. users and notifier may be
// nil: a nil directory accepts every delegate target, a nil notifier disables
// event publishing.
func NewApprovalService(
	store InstanceStore,
	audit AuditStore,
	resolver ChainResolver,
	users UserDirectory,
	notifier Notifier,
	log zerolog.Logger,
) *ApprovalService {
	return &ApprovalService{
		store:    store,
		audit:    audit,
		resolver: resolver,
		users:    users,
		notifier: notifier,
		log:      log,
	}
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitRequest carries one submission. The actor is always explicit; there
// is no ambient "current user".
type SubmitRequest struct {
	EntityType  repository.EntityType
	EntityID    string
	Title       string
	Summary     string
	Urgency     repository.Urgency
	CCUserIDs   []string
	SubmitterID string
}

// Submit creates a new approval instance in PENDING, resolves and snapshots
// the approver chain, and writes the SUBMITTED audit entry.
func (s *ApprovalService) Submit(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	if req.EntityType == "" {
		return nil, apperr.Validation("entity_type", "entity type is required")
	}
	if req.EntityID == "" {
		return nil, apperr.Validation("entity_id", "entity id is required")
	}
	if req.SubmitterID == "" {
		return nil, apperr.Validation("submitter_id", "submitter id is required")
	}
	if req.Urgency == "" {
		req.Urgency = repository.UrgencyNormal
	}
	if !req.Urgency.IsValid() {
		return nil, apperr.Validation("urgency", fmt.Sprintf("unknown urgency %q", req.Urgency))
	}
	if req.Title == "" {
		req.Title = defaultTitle(req.EntityType)
	}

	chain, err := s.resolver.Resolve(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}
	if err := validateChain(chain); err != nil {
		return nil, err
	}

	inst := &repository.ApprovalInstance{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Title:        req.Title,
		Summary:      req.Summary,
		Urgency:      req.Urgency,
		Status:       repository.StatusPending,
		CurrentLevel: 0,
		TotalLevels:  len(chain),
		SubmitterID:  req.SubmitterID,
		CCUserIDs:    req.CCUserIDs,
		Version:      1,
	}

	levels := make([]*repository.ApprovalLevel, 0, len(chain))
	for _, cl := range chain {
		levels = append(levels, &repository.ApprovalLevel{
			Ordinal:    cl.Ordinal,
			ApproverID: cl.ApproverID,
		})
	}

	submitted := &repository.AuditEntry{
		Level:   0,
		Action:  repository.ActionSubmitted,
		ActorID: req.SubmitterID,
	}

	if err := s.store.Create(ctx, inst, levels, submitted); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("entity_type", string(inst.EntityType)).
		Str("entity_id", inst.EntityID).
		Int("total_levels", inst.TotalLevels).
		Msg("approval instance submitted")

	s.notify(ctx, "approval_submitted", inst, req.SubmitterID,
		append([]string{chain[0].ApproverID}, req.CCUserIDs...))

	return inst, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// Approve records approval of the current level by its eligible approver (or
// delegate). Advancing past the last level resolves the instance APPROVED.
func (s *ApprovalService) Approve(ctx context.Context, instanceID, actorID, comment string) (*repository.ApprovalInstance, error) {
	inst, level, err := s.loadForDecision(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}

	newLevel := inst.CurrentLevel + 1
	newStatus := repository.StatusInProgress
	if newLevel == inst.TotalLevels {
		newStatus = repository.StatusApproved
	}

	if err := s.commit(ctx, inst, &repository.Decision{
		InstanceID:      inst.ID,
		ExpectedVersion: inst.Version,
		NewStatus:       newStatus,
		NewCurrentLevel: newLevel,
		Audit: repository.AuditEntry{
			Level:   level.Ordinal,
			Action:  repository.ActionApproved,
			ActorID: actorID,
			Comment: comment,
		},
	}); err != nil {
		return nil, err
	}

	eventType := "approval_advanced"
	recipients := []string{inst.SubmitterID}
	if newStatus == repository.StatusApproved {
		eventType = "approval_approved"
		recipients = append(recipients, inst.CCUserIDs...)
	} else if next, err := s.nextApprover(ctx, inst.ID, newLevel+1); err == nil && next != "" {
		recipients = append(recipients, next)
	}
	s.notify(ctx, eventType, inst, actorID, recipients)

	return inst, nil
}

// Reject resolves the instance REJECTED regardless of remaining levels.
func (s *ApprovalService) Reject(ctx context.Context, instanceID, actorID, comment string) (*repository.ApprovalInstance, error) {
	inst, level, err := s.loadForDecision(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, inst, &repository.Decision{
		InstanceID:      inst.ID,
		ExpectedVersion: inst.Version,
		NewStatus:       repository.StatusRejected,
		NewCurrentLevel: inst.CurrentLevel,
		Audit: repository.AuditEntry{
			Level:   level.Ordinal,
			Action:  repository.ActionRejected,
			ActorID: actorID,
			Comment: comment,
		},
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, "approval_rejected", inst, actorID,
		append([]string{inst.SubmitterID}, inst.CCUserIDs...))

	return inst, nil
}

// Delegate reassigns the current level's authority to another user. The level
// ordinal does not change; the next decision at this level belongs to the
// delegate.
func (s *ApprovalService) Delegate(ctx context.Context, instanceID, actorID, delegateToID, comment string) (*repository.ApprovalInstance, error) {
	if delegateToID == "" {
		return nil, apperr.Validation("delegate_to_id", "delegate target is required")
	}

	inst, level, err := s.loadForDecision(ctx, instanceID, actorID)
	if err != nil {
		return nil, err
	}

	if s.users != nil {
		known, err := s.users.Exists(ctx, delegateToID)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to validate delegate target")
		}
		if !known {
			return nil, apperr.Validation("delegate_to_id", fmt.Sprintf("unknown user %q", delegateToID))
		}
	}

	if err := s.commit(ctx, inst, &repository.Decision{
		InstanceID:      inst.ID,
		ExpectedVersion: inst.Version,
		NewStatus:       repository.StatusDelegated,
		NewCurrentLevel: inst.CurrentLevel,
		Delegate: &repository.LevelDelegate{
			Ordinal:    level.Ordinal,
			DelegateID: delegateToID,
		},
		Audit: repository.AuditEntry{
			Level:   level.Ordinal,
			Action:  repository.ActionDelegated,
			ActorID: actorID,
			Comment: comment,
		},
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, "approval_delegated", inst, actorID, []string{delegateToID})

	return inst, nil
}

// Withdraw lets the original submitter retire a non-terminal instance.
func (s *ApprovalService) Withdraw(ctx context.Context, instanceID, actorID, comment string) (*repository.ApprovalInstance, error) {
	inst, err := s.store.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.SubmitterID != actorID {
		return nil, apperr.Unauthorized("only the submitter can withdraw an approval")
	}
	if inst.Status.IsTerminal() {
		return nil, apperr.Conflict("cannot withdraw completed approval")
	}

	if err := s.commit(ctx, inst, &repository.Decision{
		InstanceID:      inst.ID,
		ExpectedVersion: inst.Version,
		NewStatus:       repository.StatusWithdrawn,
		NewCurrentLevel: inst.CurrentLevel,
		Audit: repository.AuditEntry{
			Level:   inst.CurrentLevel,
			Action:  repository.ActionWithdrawn,
			ActorID: actorID,
			Comment: comment,
		},
	}); err != nil {
		return nil, err
	}

	s.notify(ctx, "approval_withdrawn", inst, actorID, inst.CCUserIDs)

	return inst, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// loadForDecision loads the instance, rejects terminal states, and checks that
// the actor is the eligible approver (or delegate) of the active level.
func (s *ApprovalService) loadForDecision(ctx context.Context, instanceID, actorID string) (*repository.ApprovalInstance, *repository.ApprovalLevel, error) {
	if actorID == "" {
		return nil, nil, apperr.Unauthorized("actor id is required")
	}

	inst, err := s.store.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	if inst.Status.IsTerminal() {
		return nil, nil, apperr.Conflict("approval already processed")
	}

	levels, err := s.store.GetLevels(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	active := inst.CurrentLevel + 1
	for _, level := range levels {
		if level.Ordinal != active {
			continue
		}
		if !level.Eligible(actorID) {
			return nil, nil, apperr.Unauthorized(
				fmt.Sprintf("user is not the approver for level %d", active))
		}
		return inst, level, nil
	}
	return nil, nil, apperr.Conflict("no level left to act on")
}

// commit applies the decision and mirrors the new state onto inst on success.
func (s *ApprovalService) commit(ctx context.Context, inst *repository.ApprovalInstance, d *repository.Decision) error {
	if err := s.store.ApplyDecision(ctx, d); err != nil {
		return err
	}

	inst.Status = d.NewStatus
	inst.CurrentLevel = d.NewCurrentLevel
	inst.Version++

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("action", string(d.Audit.Action)).
		Str("actor_id", d.Audit.ActorID).
		Str("status", string(inst.Status)).
		Int("current_level", inst.CurrentLevel).
		Msg("approval decision applied")
	return nil
}

// nextApprover returns who acts at the given ordinal, or "" past the chain.
func (s *ApprovalService) nextApprover(ctx context.Context, instanceID string, ordinal int) (string, error) {
	levels, err := s.store.GetLevels(ctx, instanceID)
	if err != nil {
		return "", err
	}
	for _, level := range levels {
		if level.Ordinal == ordinal {
			if level.DelegateID != nil {
				return *level.DelegateID, nil
			}
			return level.ApproverID, nil
		}
	}
	return "", nil
}

// notify publishes an event when a notifier is configured. Never fails the
// operation.
func (s *ApprovalService) notify(ctx context.Context, eventType string, inst *repository.ApprovalInstance, actorID string, recipients []string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, eventType, inst, actorID, recipients)
}
