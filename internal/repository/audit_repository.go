package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/database"
)

// AuditRepository appends and reads immutable audit trail entries.
// The table carries a delete-prevention trigger, so append and read are the
// only operations exposed. Entries written as part of a decision go through
// appendAuditTx inside the decision's transaction instead.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry outside of any decision transaction.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO approval_audit_log (instance_id, level, action, actor_id, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.InstanceID,
		entry.Level,
		entry.Action,
		entry.ActorID,
		entry.Comment,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByInstance returns the full audit trail for an instance, oldest first.
func (r *AuditRepository) ListByInstance(ctx context.Context, instanceID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, instance_id, level, action, actor_id, comment, created_at
		FROM approval_audit_log
		WHERE instance_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.InstanceID,
			&entry.Level,
			&entry.Action,
			&entry.ActorID,
			&entry.Comment,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// appendAuditTx inserts an audit entry inside an open transaction, so the
// entry commits or rolls back together with the state change it records.
func appendAuditTx(ctx context.Context, tx pgx.Tx, entry *AuditEntry) error {
	query := `
		INSERT INTO approval_audit_log (instance_id, level, action, actor_id, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		entry.InstanceID,
		entry.Level,
		entry.Action,
		entry.ActorID,
		entry.Comment,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append audit entry")
	}
	return nil
}
