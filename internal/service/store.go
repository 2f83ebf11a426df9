package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"drive-ledger/internal/metrics"
	"drive-ledger/internal/pkg/db"
	"drive-ledger/internal/repository"
)

// errRetry asks runTx to run the transaction again, as after a lost insert
// race the fresh attempt re-reads the committed state.
var errRetry = errors.New("retry transaction")

// Store bundles the repositories and the transaction source shared by the
// services.
type Store struct {
	db       db.TxBeginner
	Users    *repository.UserRepository
	Products *repository.ProductRepository
	Drives   *repository.DriveRepository
	Ledger   *repository.LedgerRepository
	Wallet   *repository.WalletRepository
	Audit    *repository.AuditRepository
}

// NewStore creates a Store over a pool.
func NewStore(pool interface {
	db.Querier
	db.TxBeginner
}) *Store {
	return &Store{
		db:       pool,
		Users:    repository.NewUserRepository(pool),
		Products: repository.NewProductRepository(pool),
		Drives:   repository.NewDriveRepository(pool),
		Ledger:   repository.NewLedgerRepository(pool),
		Wallet:   repository.NewWalletRepository(pool),
		Audit:    repository.NewAuditRepository(pool),
	}
}

// txRepos is the set of repositories bound to one transaction.
type txRepos struct {
	tx       pgx.Tx
	users    *repository.UserRepository
	products *repository.ProductRepository
	drives   *repository.DriveRepository
	ledger   *repository.LedgerRepository
	wallet   *repository.WalletRepository
}

func (s *Store) bind(tx pgx.Tx) *txRepos {
	return &txRepos{
		tx:       tx,
		users:    s.Users.WithTx(tx),
		products: s.Products.WithTx(tx),
		drives:   s.Drives.WithTx(tx),
		ledger:   s.Ledger.WithTx(tx),
		wallet:   s.Wallet.WithTx(tx),
	}
}

// runTx runs fn in a transaction. Conflicts are retried once and then
// reported as ErrConcurrencyConflict; other database errors become
// ErrPersistenceFailure. Domain errors pass through unchanged.
func (s *Store) runTx(ctx context.Context, op string, fn func(r *txRepos) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = db.RunInTx(ctx, s.db, func(tx pgx.Tx) error {
			return fn(s.bind(tx))
		})
		if err == nil {
			return nil
		}
		if !db.IsConflict(err) && !errors.Is(err, errRetry) {
			break
		}
		if attempt == 0 {
			metrics.ConflictRetries.Inc()
			log.Warn().Err(err).Str("operation", op).Msg("Transaction conflict, retrying")
		}
	}

	switch {
	case db.IsConflict(err) || errors.Is(err, errRetry):
		return fmt.Errorf("%w: %s", ErrConcurrencyConflict, op)
	case isDomainError(err):
		return err
	case db.IsCheckViolation(err, repository.ConstraintNonNegativeBalances):
		return ErrInsufficientBalance
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		log.Error().Err(err).Str("operation", op).Msg("Transaction failed")
		return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, op, err)
	}
}
