package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/database"
)

// InstanceRepository manages approval instances and their level snapshots.
// Instance + level creation is always done together in a single transaction,
// and every decision commits through a version-guarded compare-and-swap.
type InstanceRepository struct {
	db *database.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *database.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// LevelDelegate reassigns one level's authority as part of a decision.
type LevelDelegate struct {
	Ordinal    int
	DelegateID string
}

// Decision is one atomic state transition: the new instance state, the level
// reassignment (delegations only) and the audit entry, committed together iff
// the persisted version still equals ExpectedVersion.
type Decision struct {
	InstanceID      string
	ExpectedVersion int64
	NewStatus       Status
	NewCurrentLevel int
	Delegate        *LevelDelegate
	Audit           AuditEntry
}

// Create inserts an instance, its resolved chain snapshot and the SUBMITTED
// audit entry in one transaction.
func (r *InstanceRepository) Create(ctx context.Context, inst *ApprovalInstance, levels []*ApprovalLevel, submitted *AuditEntry) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		instQuery := `
			INSERT INTO approval_instances
			    (entity_type, entity_id, title, summary, urgency,
			     status, current_level, total_levels,
			     submitter_id, cc_user_ids, version)
			VALUES ($1, $2, $3, $4, $5::approval_urgency,
			        $6::approval_status, $7, $8,
			        $9, $10, $11)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, instQuery,
			inst.EntityType,
			inst.EntityID,
			inst.Title,
			inst.Summary,
			inst.Urgency,
			inst.Status,
			inst.CurrentLevel,
			inst.TotalLevels,
			inst.SubmitterID,
			inst.CCUserIDs,
			inst.Version,
		).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval instance")
		}

		levelQuery := `
			INSERT INTO approval_levels (instance_id, ordinal, approver_id)
			VALUES ($1, $2, $3)
		`
		for _, level := range levels {
			level.InstanceID = inst.ID
			if _, err := tx.Exec(ctx, levelQuery, level.InstanceID, level.Ordinal, level.ApproverID); err != nil {
				return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval level")
			}
		}

		submitted.InstanceID = inst.ID
		return appendAuditTx(ctx, tx, submitted)
	})
}

// GetByID retrieves an instance by its primary key.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*ApprovalInstance, error) {
	query := `
		SELECT id, entity_type, entity_id, title, summary, urgency,
		       status, current_level, total_levels,
		       submitter_id, cc_user_ids, version,
		       created_at, updated_at
		FROM approval_instances
		WHERE id = $1
	`

	inst, err := scanInstance(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("approval_instance", id)
	}
	return inst, err
}

// GetLevels returns the chain snapshot for an instance ordered by ordinal.
func (r *InstanceRepository) GetLevels(ctx context.Context, instanceID string) ([]*ApprovalLevel, error) {
	query := `
		SELECT instance_id, ordinal, approver_id, delegate_id
		FROM approval_levels
		WHERE instance_id = $1
		ORDER BY ordinal ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get approval levels")
	}
	defer rows.Close()

	var levels []*ApprovalLevel
	for rows.Next() {
		l := &ApprovalLevel{}
		if err := rows.Scan(&l.InstanceID, &l.Ordinal, &l.ApproverID, &l.DelegateID); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval level")
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// ApplyDecision commits a transition atomically under the version guard.
// The caller has already read the instance, so zero updated rows means the
// version moved underneath us: the decision race was lost.
func (r *InstanceRepository) ApplyDecision(ctx context.Context, d *Decision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		casQuery := `
			UPDATE approval_instances
			SET status        = $3::approval_status,
			    current_level = $4,
			    version       = version + 1,
			    updated_at    = NOW()
			WHERE id = $1
			  AND version = $2
			RETURNING id
		`

		var returnedID string
		err := tx.QueryRow(ctx, casQuery,
			d.InstanceID, d.ExpectedVersion, d.NewStatus, d.NewCurrentLevel,
		).Scan(&returnedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Conflict("approval already processed")
		}
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to update approval instance")
		}

		if d.Delegate != nil {
			delegateQuery := `
				UPDATE approval_levels
				SET delegate_id = $3
				WHERE instance_id = $1 AND ordinal = $2
				RETURNING instance_id
			`
			var id string
			err := tx.QueryRow(ctx, delegateQuery,
				d.InstanceID, d.Delegate.Ordinal, d.Delegate.DelegateID,
			).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("approval_level", d.InstanceID)
			}
			if err != nil {
				return apperr.Wrap(err, apperr.CodeInternal, "failed to delegate approval level")
			}
		}

		d.Audit.InstanceID = d.InstanceID
		return appendAuditTx(ctx, tx, &d.Audit)
	})
}

// ListPendingForApprover returns all non-terminal instances whose next level
// is assigned (or delegated) to the actor, urgent first, oldest first.
func (r *InstanceRepository) ListPendingForApprover(ctx context.Context, actorID string) ([]*ApprovalInstance, error) {
	query := `
		SELECT i.id, i.entity_type, i.entity_id, i.title, i.summary, i.urgency,
		       i.status, i.current_level, i.total_levels,
		       i.submitter_id, i.cc_user_ids, i.version,
		       i.created_at, i.updated_at
		FROM approval_instances i
		JOIN approval_levels l
		  ON l.instance_id = i.id
		 AND l.ordinal = i.current_level + 1
		WHERE i.status IN ('PENDING', 'IN_PROGRESS', 'DELEGATED')
		  AND (
		        (l.delegate_id IS NOT NULL AND l.delegate_id = $1)
		     OR (l.delegate_id IS NULL AND l.approver_id = $1)
		  )
		ORDER BY (i.urgency = 'URGENT') DESC, i.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, actorID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var instances []*ApprovalInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval instance")
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type instanceScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row instanceScanner) (*ApprovalInstance, error) {
	inst := &ApprovalInstance{}
	err := row.Scan(
		&inst.ID,
		&inst.EntityType,
		&inst.EntityID,
		&inst.Title,
		&inst.Summary,
		&inst.Urgency,
		&inst.Status,
		&inst.CurrentLevel,
		&inst.TotalLevels,
		&inst.SubmitterID,
		&inst.CCUserIDs,
		&inst.Version,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}
