package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/metrics"
	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
)

// LedgerService is the commission ledger: every balance change is an
// appended entry plus the matching update of the cached balance, in one
// transaction.
type LedgerService struct {
	store *Store
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(store *Store) *LedgerService {
	return &LedgerService{store: store}
}

// PostEntry appends e and applies it to the cached balance of its account
// inside tx. It returns the account balance after the posting.
func (l *LedgerService) PostEntry(ctx context.Context, tx pgx.Tx, e model.LedgerEntry) (decimal.Decimal, error) {
	if e.Account == "" {
		e.Account = model.AccountMain
	}
	if _, err := l.store.Ledger.WithTx(tx).Append(ctx, e); err != nil {
		return decimal.Zero, err
	}
	balance, err := l.store.Users.WithTx(tx).AddBalance(ctx, e.UserID, e.Account, e.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, err
	}

	metrics.LedgerPostings.WithLabelValues(e.Source, string(e.Account)).Inc()
	return balance, nil
}

// History returns a user's entries, newest first.
func (l *LedgerService) History(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := l.store.Ledger.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return entries, nil
}

// Reconcile compares every cached balance with the sum of its entries and
// returns the disagreements.
func (l *LedgerService) Reconcile(ctx context.Context) ([]repository.Mismatch, error) {
	mismatches, err := l.store.Ledger.FindMismatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	metrics.LedgerMismatches.Set(float64(len(mismatches)))
	for _, m := range mismatches {
		log.Error().
			Int64("user_id", m.UserID).
			Str("account", string(m.Account)).
			Str("cached", m.Cached.StringFixed(2)).
			Str("ledger_sum", m.LedgerSum.StringFixed(2)).
			Msg("Ledger mismatch")
	}
	return mismatches, nil
}
