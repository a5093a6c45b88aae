package service

import (
	"context"
	"math"

	"github.com/bizcore/be-approvals/internal/repository"
)

// InstanceDetail is the full read-side view of one approval instance.
type InstanceDetail struct {
	Instance *repository.ApprovalInstance
	Chain    []*repository.ApprovalLevel // snapshot resolved at submission
	Progress int                         // 0-100
}

// Task is one entry in an approver's pending queue.
type Task struct {
	Instance *repository.ApprovalInstance
	Progress int
}

// GetDetail returns the instance, its chain snapshot and progress.
func (s *ApprovalService) GetDetail(ctx context.Context, instanceID string) (*InstanceDetail, error) {
	inst, err := s.store.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	levels, err := s.store.GetLevels(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return &InstanceDetail{
		Instance: inst,
		Chain:    levels,
		Progress: Progress(inst.CurrentLevel, inst.TotalLevels),
	}, nil
}

// GetHistory returns the instance's audit trail, oldest first. The instance
// is looked up first so unknown IDs surface as NOT_FOUND rather than an
// empty list.
func (s *ApprovalService) GetHistory(ctx context.Context, instanceID string) ([]*repository.AuditEntry, error) {
	if _, err := s.store.GetByID(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.audit.ListByInstance(ctx, instanceID)
}

// GetMyTasks returns all non-terminal instances awaiting a decision from the
// actor, urgent first, then oldest first. After a delegation only the
// delegate sees the task; the original approver does not.
func (s *ApprovalService) GetMyTasks(ctx context.Context, actorID string) ([]*Task, error) {
	instances, err := s.store.ListPendingForApprover(ctx, actorID)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(instances))
	for _, inst := range instances {
		tasks = append(tasks, &Task{
			Instance: inst,
			Progress: Progress(inst.CurrentLevel, inst.TotalLevels),
		})
	}
	return tasks, nil
}

// Progress converts level position into a 0-100 percentage, rounding half up.
// A zero or negative total yields 0 rather than a divide-by-zero.
func Progress(currentLevel, totalLevels int) int {
	if totalLevels <= 0 {
		return 0
	}
	return int(math.Round(float64(currentLevel) / float64(totalLevels) * 100))
}
