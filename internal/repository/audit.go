package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
)

// AuditRepository handles the admin audit trail.
type AuditRepository struct {
	q db.Querier
}

// NewAuditRepository creates a new AuditRepository instance.
func NewAuditRepository(q db.Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{q: tx}
}

// Append records an audit entry.
func (r *AuditRepository) Append(ctx context.Context, e model.AuditEntry) (*model.AuditEntry, error) {
	const query = `
		INSERT INTO audit_entries (actor, action, target_user_id, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, actor, action, target_user_id, outcome, detail, created_at
	`

	var out model.AuditEntry
	err := r.q.QueryRow(ctx, query, e.Actor, e.Action, e.TargetUserID, e.Outcome, e.Detail).Scan(
		&out.ID,
		&out.Actor,
		&out.Action,
		&out.TargetUserID,
		&out.Outcome,
		&out.Detail,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return &out, nil
}

// ListByTarget returns the audit entries about a user, newest first.
func (r *AuditRepository) ListByTarget(ctx context.Context, userID int64, limit int) ([]*model.AuditEntry, error) {
	const query = `
		SELECT id, actor, action, target_user_id, outcome, detail, created_at
		FROM audit_entries
		WHERE target_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.TargetUserID, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
