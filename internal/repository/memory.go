package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bizcore/be-approvals/internal/apperr"
)

// MemoryStore is an in-memory implementation of the instance and audit
// stores with the same compare-and-swap semantics as the PostgreSQL
// repositories. It backs unit tests and DB-less local runs.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]*ApprovalInstance
	levels    map[string][]*ApprovalLevel
	audit     map[string][]*AuditEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*ApprovalInstance),
		levels:    make(map[string][]*ApprovalLevel),
		audit:     make(map[string][]*AuditEntry),
	}
}

// Create stores an instance, its chain snapshot and the SUBMITTED entry.
func (s *MemoryStore) Create(ctx context.Context, inst *ApprovalInstance, levels []*ApprovalLevel, submitted *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	inst.ID = uuid.NewString()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.instances[inst.ID] = copyInstance(inst)

	snapshot := make([]*ApprovalLevel, 0, len(levels))
	for _, level := range levels {
		level.InstanceID = inst.ID
		snapshot = append(snapshot, copyLevel(level))
	}
	s.levels[inst.ID] = snapshot

	submitted.InstanceID = inst.ID
	s.appendLocked(submitted)
	return nil
}

// GetByID returns a copy of the stored instance.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, apperr.NotFound("approval_instance", id)
	}
	return copyInstance(inst), nil
}

// GetLevels returns a copy of the chain snapshot ordered by ordinal.
func (s *MemoryStore) GetLevels(ctx context.Context, instanceID string) ([]*ApprovalLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := make([]*ApprovalLevel, 0, len(s.levels[instanceID]))
	for _, level := range s.levels[instanceID] {
		levels = append(levels, copyLevel(level))
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Ordinal < levels[j].Ordinal })
	return levels, nil
}

// ApplyDecision commits a transition iff the stored version still matches.
func (s *MemoryStore) ApplyDecision(ctx context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[d.InstanceID]
	if !ok {
		return apperr.NotFound("approval_instance", d.InstanceID)
	}
	if inst.Version != d.ExpectedVersion {
		return apperr.Conflict("approval already processed")
	}

	var target *ApprovalLevel
	if d.Delegate != nil {
		for _, level := range s.levels[d.InstanceID] {
			if level.Ordinal == d.Delegate.Ordinal {
				target = level
				break
			}
		}
		if target == nil {
			return apperr.NotFound("approval_level", d.InstanceID)
		}
	}

	inst.Status = d.NewStatus
	inst.CurrentLevel = d.NewCurrentLevel
	inst.Version++
	inst.UpdatedAt = time.Now()

	if target != nil {
		delegateID := d.Delegate.DelegateID
		target.DelegateID = &delegateID
	}

	d.Audit.InstanceID = d.InstanceID
	s.appendLocked(&d.Audit)
	return nil
}

// ListPendingForApprover mirrors the SQL ordering: urgent first, oldest first.
func (s *MemoryStore) ListPendingForApprover(ctx context.Context, actorID string) ([]*ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*ApprovalInstance
	for id, inst := range s.instances {
		if inst.Status.IsTerminal() {
			continue
		}
		for _, level := range s.levels[id] {
			if level.Ordinal != inst.CurrentLevel+1 {
				continue
			}
			if level.Eligible(actorID) {
				pending = append(pending, copyInstance(inst))
			}
			break
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if (pending[i].Urgency == UrgencyUrgent) != (pending[j].Urgency == UrgencyUrgent) {
			return pending[i].Urgency == UrgencyUrgent
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// Append records an audit entry outside of a decision.
func (s *MemoryStore) Append(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(entry)
	return nil
}

// ListByInstance returns the audit trail oldest first.
func (s *MemoryStore) ListByInstance(ctx context.Context, instanceID string) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*AuditEntry, 0, len(s.audit[instanceID]))
	for _, entry := range s.audit[instanceID] {
		cp := *entry
		entries = append(entries, &cp)
	}
	return entries, nil
}

func (s *MemoryStore) appendLocked(entry *AuditEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	cp := *entry
	s.audit[entry.InstanceID] = append(s.audit[entry.InstanceID], &cp)
}

func copyInstance(inst *ApprovalInstance) *ApprovalInstance {
	cp := *inst
	cp.CCUserIDs = append([]string(nil), inst.CCUserIDs...)
	return &cp
}

func copyLevel(level *ApprovalLevel) *ApprovalLevel {
	cp := *level
	if level.DelegateID != nil {
		delegateID := *level.DelegateID
		cp.DelegateID = &delegateID
	}
	return &cp
}
