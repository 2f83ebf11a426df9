package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
)

// WalletRepository handles deposit and withdrawal requests.
type WalletRepository struct {
	q db.Querier
}

// NewWalletRepository creates a new WalletRepository instance.
func NewWalletRepository(q db.Querier) *WalletRepository {
	return &WalletRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *WalletRepository) WithTx(tx pgx.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

const depositColumns = `id, user_id, amount, status, decided_by, created_at, decided_at`

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var d model.Deposit
	err := row.Scan(&d.ID, &d.UserID, &d.Amount, &d.Status, &d.DecidedBy, &d.CreatedAt, &d.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &d, nil
}

// CreateDeposit inserts a pending deposit.
func (r *WalletRepository) CreateDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Deposit, error) {
	query := `
		INSERT INTO deposits (user_id, amount, status, created_at)
		VALUES ($1, $2, 'pending', NOW())
		RETURNING ` + depositColumns
	return scanDeposit(r.q.QueryRow(ctx, query, userID, amount))
}

// GetDepositForUpdate retrieves a deposit and locks its row.
func (r *WalletRepository) GetDepositForUpdate(ctx context.Context, id int64) (*model.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1 FOR UPDATE`
	return scanDeposit(r.q.QueryRow(ctx, query, id))
}

// DecideDeposit records the admin decision on a deposit.
func (r *WalletRepository) DecideDeposit(ctx context.Context, id int64, status model.RequestStatus, decidedBy string) (*model.Deposit, error) {
	query := `
		UPDATE deposits SET status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1
		RETURNING ` + depositColumns
	return scanDeposit(r.q.QueryRow(ctx, query, id, status, decidedBy))
}

const withdrawalColumns = `id, user_id, amount, address, status, decided_by, created_at, decided_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Address, &w.Status, &w.DecidedBy, &w.CreatedAt, &w.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &w, nil
}

// CreateWithdrawal inserts a pending withdrawal.
func (r *WalletRepository) CreateWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, address string) (*model.Withdrawal, error) {
	query := `
		INSERT INTO withdrawals (user_id, amount, address, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		RETURNING ` + withdrawalColumns
	return scanWithdrawal(r.q.QueryRow(ctx, query, userID, amount, address))
}

// GetWithdrawalForUpdate retrieves a withdrawal and locks its row.
func (r *WalletRepository) GetWithdrawalForUpdate(ctx context.Context, id int64) (*model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`
	return scanWithdrawal(r.q.QueryRow(ctx, query, id))
}

// DecideWithdrawal records the admin decision on a withdrawal.
func (r *WalletRepository) DecideWithdrawal(ctx context.Context, id int64, status model.RequestStatus, decidedBy string) (*model.Withdrawal, error) {
	query := `
		UPDATE withdrawals SET status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1
		RETURNING ` + withdrawalColumns
	return scanWithdrawal(r.q.QueryRow(ctx, query, id, status, decidedBy))
}
