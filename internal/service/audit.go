package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
)

// Auditor writes the admin audit trail. Entries are written outside the
// audited transaction so failed overrides are recorded too.
type Auditor struct {
	repo *repository.AuditRepository
}

// NewAuditor creates a new Auditor instance.
func NewAuditor(repo *repository.AuditRepository) *Auditor {
	return &Auditor{repo: repo}
}

// Record appends one audit entry. opErr is the outcome of the audited
// operation. A failure to write the entry is logged, never returned.
func (a *Auditor) Record(ctx context.Context, actor, action string, target *int64, opErr error, detail string) {
	outcome := model.OutcomeSuccess
	if opErr != nil {
		outcome = model.OutcomeFailure
		if detail != "" {
			detail += ": "
		}
		detail += opErr.Error()
	}

	entry := model.AuditEntry{
		Actor:        actor,
		Action:       action,
		TargetUserID: target,
		Outcome:      outcome,
		Detail:       detail,
	}

	logger := log.Info()
	if opErr != nil {
		logger = log.Warn()
	}
	logger.
		Str("operation", action).
		Str("actor", actor).
		Str("outcome", outcome).
		Str("detail", detail).
		Msg("Admin operation")

	if _, err := a.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("operation", action).Str("actor", actor).Msg("Failed to write audit entry")
	}
}

// History returns the audit entries about a user, newest first.
func (a *Auditor) History(ctx context.Context, userID int64, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return a.repo.ListByTarget(ctx, userID, limit)
}
