// Package repository provides data access layer implementations.
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

// Common errors for repository operations.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrConfigurationNotFound = errors.New("drive configuration not found")
	ErrSessionNotFound       = errors.New("drive session not found")
	ErrOrderNotFound         = errors.New("drive order not found")
	ErrDepositNotFound       = errors.New("deposit not found")
	ErrWithdrawalNotFound    = errors.New("withdrawal not found")
)

// Constraints the services map to domain errors.
const (
	ConstraintActiveSession       = "uq_drive_sessions_active_user"
	ConstraintOrderSlot           = "uq_drive_orders_slot"
	ConstraintUsername            = "users_username_key"
	ConstraintReferralCode        = "users_referral_code_key"
	ConstraintNonNegativeBalances = "ck_users_balances_non_negative"
)

const userColumns = `id, username, tier, upliner_id, referral_code, main_balance, training_balance,
	frozen_balance, is_frozen, withdraw_password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Tier,
		&user.UplinerID,
		&user.ReferralCode,
		&user.MainBalance,
		&user.TrainingBalance,
		&user.FrozenBalance,
		&user.IsFrozen,
		&user.WithdrawPasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// NewUser holds the fields set at registration.
type NewUser struct {
	Username     string
	Tier         model.Tier
	UplinerID    *int64
	ReferralCode string
}

// UserRepository handles user data persistence.
type UserRepository struct {
	q db.Querier
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(q db.Querier) *UserRepository {
	return &UserRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// Create inserts a user with zero balances. Opening balances go through the
// ledger so the cached balances stay equal to the entry sums.
func (r *UserRepository) Create(ctx context.Context, nu NewUser) (*model.User, error) {
	query := `
		INSERT INTO users (username, tier, upliner_id, referral_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query, nu.Username, nu.Tier, nu.UplinerID, nu.ReferralCode))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a user and locks the row until the transaction
// ends. Only meaningful on a repository bound to a transaction.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetByReferralCode retrieves the owner of a referral code.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	return r.getOne(ctx, query, code)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// AddBalance adds amount to the cached balance of one account and returns the
// new balance. The amount can be negative.
func (r *UserRepository) AddBalance(ctx context.Context, id int64, account model.Account, amount decimal.Decimal) (decimal.Decimal, error) {
	var column string
	switch account {
	case model.AccountMain:
		column = "main_balance"
	case model.AccountTraining:
		column = "training_balance"
	case model.AccountFrozen:
		column = "frozen_balance"
	default:
		return decimal.Zero, fmt.Errorf("unknown account %q", account)
	}

	query := `UPDATE users SET ` + column + ` = ` + column + ` + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + column

	var balance decimal.Decimal
	if err := r.q.QueryRow(ctx, query, id, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	return balance, nil
}

// SetFrozen sets the freeze flag.
func (r *UserRepository) SetFrozen(ctx context.Context, id int64, frozen bool) error {
	const query = `UPDATE users SET is_frozen = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.q.Exec(ctx, query, id, frozen)
	if err != nil {
		return fmt.Errorf("failed to set frozen flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTier moves a user to another tier and returns the updated row.
func (r *UserRepository) SetTier(ctx context.Context, id int64, tier model.Tier) (*model.User, error) {
	query := `UPDATE users SET tier = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query, id, tier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to set tier: %w", err)
	}
	return user, nil
}

// SetWithdrawPasswordHash stores the bcrypt hash of the withdrawal password.
func (r *UserRepository) SetWithdrawPasswordHash(ctx context.Context, id int64, hash string) error {
	const query = `UPDATE users SET withdraw_password_hash = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.q.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("failed to set withdraw password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUplines returns the referrer chain of a user, nearest first, at most
// depth levels deep.
func (r *UserRepository) GetUplines(ctx context.Context, id int64, depth int) ([]int64, error) {
	const query = `
		WITH RECURSIVE chain (id, upliner_id, level) AS (
			SELECT id, upliner_id, 0 FROM users WHERE id = $1
			UNION ALL
			SELECT u.id, u.upliner_id, c.level + 1
			FROM users u
			JOIN chain c ON u.id = c.upliner_id
			WHERE c.level < $2
		)
		SELECT id FROM chain WHERE level > 0 ORDER BY level
	`

	rows, err := r.q.Query(ctx, query, id, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to get uplines: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var uplineID int64
		if err := rows.Scan(&uplineID); err != nil {
			return nil, fmt.Errorf("failed to scan upline: %w", err)
		}
		ids = append(ids, uplineID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uplines: %w", err)
	}
	return ids, nil
}

// ListAfter pages through users by id.
func (r *UserRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id > $1 ORDER BY id LIMIT $2`

	rows, err := r.q.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
