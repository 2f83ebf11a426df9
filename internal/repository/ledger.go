package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
)

// LedgerRepository handles the append-only ledger.
type LedgerRepository struct {
	q db.Querier
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(q db.Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *LedgerRepository) WithTx(tx pgx.Tx) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

const ledgerColumns = `id, user_id, account, source, amount, session_id, slot_index, source_user_id, description, created_at`

func scanLedgerEntry(row pgx.Row) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Account,
		&e.Source,
		&e.Amount,
		&e.SessionID,
		&e.SlotIndex,
		&e.SourceUserID,
		&e.Description,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append inserts a ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, e model.LedgerEntry) (*model.LedgerEntry, error) {
	query := `
		INSERT INTO ledger_entries (user_id, account, source, amount, session_id, slot_index,
			source_user_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + ledgerColumns

	created, err := scanLedgerEntry(r.q.QueryRow(ctx, query,
		e.UserID, e.Account, e.Source, e.Amount, e.SessionID, e.SlotIndex, e.SourceUserID, e.Description))
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return created, nil
}

// ListByUser retrieves a user's entries, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`

	return r.list(ctx, query, userID, limit)
}

// ListBySession retrieves the entries posted for a session's slots.
func (r *LedgerRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE session_id = $1 ORDER BY id`

	return r.list(ctx, query, sessionID)
}

func (r *LedgerRepository) list(ctx context.Context, query string, args ...any) ([]*model.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// Sum returns the total of a user's entries for one account.
func (r *LedgerRepository) Sum(ctx context.Context, userID int64, account model.Account) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1 AND account = $2`

	var total decimal.Decimal
	if err := r.q.QueryRow(ctx, query, userID, account).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return total, nil
}

// Mismatch is a cached balance that disagrees with its ledger.
type Mismatch struct {
	UserID    int64           `json:"user_id"`
	Account   model.Account   `json:"account"`
	Cached    decimal.Decimal `json:"cached"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
}

// FindMismatches compares every cached balance with the sum of its entries.
func (r *LedgerRepository) FindMismatches(ctx context.Context) ([]Mismatch, error) {
	const query = `
		WITH sums AS (
			SELECT user_id,
				COALESCE(SUM(amount) FILTER (WHERE account = 'main'), 0) AS main_sum,
				COALESCE(SUM(amount) FILTER (WHERE account = 'training'), 0) AS training_sum,
				COALESCE(SUM(amount) FILTER (WHERE account = 'frozen'), 0) AS frozen_sum
			FROM ledger_entries
			GROUP BY user_id
		)
		SELECT u.id, a.account, a.cached, a.ledger_sum
		FROM users u
		LEFT JOIN sums s ON s.user_id = u.id
		CROSS JOIN LATERAL (VALUES
			('main', u.main_balance, COALESCE(s.main_sum, 0)),
			('training', u.training_balance, COALESCE(s.training_sum, 0)),
			('frozen', u.frozen_balance, COALESCE(s.frozen_sum, 0))
		) AS a(account, cached, ledger_sum)
		WHERE a.cached <> a.ledger_sum
		ORDER BY u.id, a.account
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.UserID, &m.Account, &m.Cached, &m.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan mismatch: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mismatches: %w", err)
	}
	return out, nil
}

// GetDailyEarners ranks users by drive and referral income for the day
// containing date, in date's location.
func (r *LedgerRepository) GetDailyEarners(ctx context.Context, date time.Time, limit int) ([]*model.DailyEarner, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	const query = `
		SELECT e.user_id, u.username, COALESCE(SUM(e.amount), 0) AS earned
		FROM ledger_entries e
		JOIN users u ON e.user_id = u.id
		WHERE e.source = ANY($1)
		  AND e.created_at >= $2
		  AND e.created_at < $3
		GROUP BY e.user_id, u.username
		HAVING SUM(e.amount) > 0
		ORDER BY earned DESC, e.user_id
		LIMIT $4
	`

	rows, err := r.q.Query(ctx, query, model.EarningSources(), startOfDay, endOfDay, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily earners: %w", err)
	}
	defer rows.Close()

	var earners []*model.DailyEarner
	for rows.Next() {
		var e model.DailyEarner
		if err := rows.Scan(&e.UserID, &e.Username, &e.Earned); err != nil {
			return nil, fmt.Errorf("failed to scan earner: %w", err)
		}
		earners = append(earners, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earners: %w", err)
	}
	return earners, nil
}
