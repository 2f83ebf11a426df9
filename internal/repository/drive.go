package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
)

// DriveRepository handles drive configurations, sessions and orders.
type DriveRepository struct {
	q db.Querier
}

// NewDriveRepository creates a new DriveRepository instance.
func NewDriveRepository(q db.Querier) *DriveRepository {
	return &DriveRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *DriveRepository) WithTx(tx pgx.Tx) *DriveRepository {
	return &DriveRepository{q: tx}
}

const configurationColumns = `id, tier, tasks_required, min_price, max_price, min_quantity, max_quantity, updated_at`

func scanConfiguration(row pgx.Row) (*model.DriveConfiguration, error) {
	var c model.DriveConfiguration
	err := row.Scan(&c.ID, &c.Tier, &c.TasksRequired, &c.MinPrice, &c.MaxPrice, &c.MinQuantity, &c.MaxQuantity, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("failed to get drive configuration: %w", err)
	}
	return &c, nil
}

// SeedConfiguration inserts the configuration for a tier unless one exists.
// Admin edits made after the first boot are kept.
func (r *DriveRepository) SeedConfiguration(ctx context.Context, c model.DriveConfiguration) error {
	const query = `
		INSERT INTO drive_configurations (tier, tasks_required, min_price, max_price, min_quantity, max_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tier) DO NOTHING
	`

	_, err := r.q.Exec(ctx, query, c.Tier, c.TasksRequired, c.MinPrice, c.MaxPrice, c.MinQuantity, c.MaxQuantity)
	if err != nil {
		return fmt.Errorf("failed to seed drive configuration: %w", err)
	}
	return nil
}

// UpsertConfiguration creates or replaces the configuration of a tier.
func (r *DriveRepository) UpsertConfiguration(ctx context.Context, c model.DriveConfiguration) (*model.DriveConfiguration, error) {
	query := `
		INSERT INTO drive_configurations (tier, tasks_required, min_price, max_price, min_quantity, max_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tier) DO UPDATE SET
			tasks_required = EXCLUDED.tasks_required,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			min_quantity = EXCLUDED.min_quantity,
			max_quantity = EXCLUDED.max_quantity,
			updated_at = NOW()
		RETURNING ` + configurationColumns

	return scanConfiguration(r.q.QueryRow(ctx, query, c.Tier, c.TasksRequired, c.MinPrice, c.MaxPrice, c.MinQuantity, c.MaxQuantity))
}

// GetConfigurationByTier retrieves the configuration of a tier.
func (r *DriveRepository) GetConfigurationByTier(ctx context.Context, tier model.Tier) (*model.DriveConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM drive_configurations WHERE tier = $1`
	return scanConfiguration(r.q.QueryRow(ctx, query, tier))
}

// GetConfigurationByID retrieves a configuration by id.
func (r *DriveRepository) GetConfigurationByID(ctx context.Context, id int64) (*model.DriveConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM drive_configurations WHERE id = $1`
	return scanConfiguration(r.q.QueryRow(ctx, query, id))
}

const sessionColumns = `id, uuid, user_id, configuration_id, status, tasks_completed, tasks_required,
	commission_total, created_at, updated_at, completed_at`

func scanSession(row pgx.Row) (*model.DriveSession, error) {
	var s model.DriveSession
	err := row.Scan(
		&s.ID,
		&s.UUID,
		&s.UserID,
		&s.ConfigurationID,
		&s.Status,
		&s.TasksCompleted,
		&s.TasksRequired,
		&s.CommissionTotal,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get drive session: %w", err)
	}
	return &s, nil
}

// CreateSession inserts an active session. A second active session for the
// same user violates ConstraintActiveSession.
func (r *DriveRepository) CreateSession(ctx context.Context, userID int64, cfg *model.DriveConfiguration) (*model.DriveSession, error) {
	query := `
		INSERT INTO drive_sessions (uuid, user_id, configuration_id, status, tasks_completed, tasks_required,
			commission_total, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', 0, $4, 0, NOW(), NOW())
		RETURNING ` + sessionColumns

	s, err := scanSession(r.q.QueryRow(ctx, query, uuid.New(), userID, cfg.ID, cfg.TasksRequired))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive session: %w", err)
	}
	return s, nil
}

// GetSessionForUpdate retrieves a session and locks its row.
func (r *DriveRepository) GetSessionForUpdate(ctx context.Context, id int64) (*model.DriveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM drive_sessions WHERE id = $1 FOR UPDATE`
	return scanSession(r.q.QueryRow(ctx, query, id))
}

// GetSession retrieves a session by id.
func (r *DriveRepository) GetSession(ctx context.Context, id int64) (*model.DriveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM drive_sessions WHERE id = $1`
	return scanSession(r.q.QueryRow(ctx, query, id))
}

// GetActiveSession retrieves the user's active session.
func (r *DriveRepository) GetActiveSession(ctx context.Context, userID int64) (*model.DriveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM drive_sessions WHERE user_id = $1 AND status = 'active'`
	return scanSession(r.q.QueryRow(ctx, query, userID))
}

// GetLatestSession retrieves the user's most recent session of any status.
func (r *DriveRepository) GetLatestSession(ctx context.Context, userID int64) (*model.DriveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM drive_sessions WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanSession(r.q.QueryRow(ctx, query, userID))
}

// AdvanceSession records one more completed slot and its commission. The
// session completes when the last slot is recorded.
func (r *DriveRepository) AdvanceSession(ctx context.Context, id int64, commission decimal.Decimal) (*model.DriveSession, error) {
	query := `
		UPDATE drive_sessions SET
			tasks_completed = tasks_completed + 1,
			commission_total = commission_total + $2,
			status = CASE WHEN tasks_completed + 1 >= tasks_required THEN 'completed' ELSE status END,
			completed_at = CASE WHEN tasks_completed + 1 >= tasks_required THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND tasks_completed < tasks_required
		RETURNING ` + sessionColumns

	s, err := scanSession(r.q.QueryRow(ctx, query, id, commission))
	if err != nil {
		return nil, fmt.Errorf("failed to advance drive session: %w", err)
	}
	return s, nil
}

// AbandonActiveSession marks the user's active session abandoned.
// Returns ErrSessionNotFound when there is none.
func (r *DriveRepository) AbandonActiveSession(ctx context.Context, userID int64) (*model.DriveSession, error) {
	query := `
		UPDATE drive_sessions SET status = 'abandoned', updated_at = NOW()
		WHERE user_id = $1 AND status = 'active'
		RETURNING ` + sessionColumns
	return scanSession(r.q.QueryRow(ctx, query, userID))
}

// AbandonStaleSessions abandons active sessions untouched since before and
// returns their ids.
func (r *DriveRepository) AbandonStaleSessions(ctx context.Context, before time.Time) ([]int64, error) {
	const query = `
		UPDATE drive_sessions SET status = 'abandoned', updated_at = NOW()
		WHERE status = 'active' AND updated_at < $1
		RETURNING id
	`

	rows, err := r.q.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return ids, nil
}

const orderColumns = `id, session_id, slot_index, product_id, quantity, purchase_price, commission_amount,
	status, reference, created_at`

func scanOrder(row pgx.Row) (*model.DriveOrder, error) {
	var o model.DriveOrder
	err := row.Scan(
		&o.ID,
		&o.SessionID,
		&o.SlotIndex,
		&o.ProductID,
		&o.Quantity,
		&o.PurchasePrice,
		&o.CommissionAmount,
		&o.Status,
		&o.Reference,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder inserts a completed order. A second order on the same slot
// violates ConstraintOrderSlot.
func (r *DriveRepository) CreateOrder(ctx context.Context, o model.DriveOrder) (*model.DriveOrder, error) {
	query := `
		INSERT INTO drive_orders (session_id, slot_index, product_id, quantity, purchase_price,
			commission_amount, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'completed', $7, NOW())
		RETURNING ` + orderColumns

	created, err := scanOrder(r.q.QueryRow(ctx, query,
		o.SessionID, o.SlotIndex, o.ProductID, o.Quantity, o.PurchasePrice, o.CommissionAmount, uuid.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive order: %w", err)
	}
	return created, nil
}

// GetOrderBySlot retrieves the order recorded for a slot.
func (r *DriveRepository) GetOrderBySlot(ctx context.Context, sessionID int64, slot int) (*model.DriveOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM drive_orders WHERE session_id = $1 AND slot_index = $2`

	o, err := scanOrder(r.q.QueryRow(ctx, query, sessionID, slot))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get drive order: %w", err)
	}
	return o, nil
}

// ListOrders returns a session's orders by slot.
func (r *DriveRepository) ListOrders(ctx context.Context, sessionID int64) ([]*model.DriveOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM drive_orders WHERE session_id = $1 ORDER BY slot_index`

	rows, err := r.q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drive orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.DriveOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drive order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drive orders: %w", err)
	}
	return orders, nil
}
