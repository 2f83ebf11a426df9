package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Migration is one versioned schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations is the ordered schema history. Append only; never edit a
// released step.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "users table",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				username VARCHAR(255) NOT NULL UNIQUE,
				tier VARCHAR(16) NOT NULL DEFAULT 'bronze',
				upliner_id BIGINT REFERENCES users(id),
				referral_code VARCHAR(32) NOT NULL UNIQUE,
				main_balance NUMERIC(18,2) NOT NULL DEFAULT 0,
				training_balance NUMERIC(18,2) NOT NULL DEFAULT 0,
				frozen_balance NUMERIC(18,2) NOT NULL DEFAULT 0,
				is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
				withdraw_password_hash TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_upliner ON users(upliner_id);
		`,
	},
	{
		Version: 2,
		Name:    "products and drive configurations",
		SQL: `
			CREATE TABLE IF NOT EXISTS products (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				unit_price NUMERIC(18,2) NOT NULL CHECK (unit_price > 0),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active, unit_price);

			CREATE TABLE IF NOT EXISTS drive_configurations (
				id BIGSERIAL PRIMARY KEY,
				tier VARCHAR(16) NOT NULL UNIQUE,
				tasks_required INT NOT NULL CHECK (tasks_required > 0),
				min_price NUMERIC(18,2) NOT NULL,
				max_price NUMERIC(18,2) NOT NULL,
				min_quantity INT NOT NULL CHECK (min_quantity > 0),
				max_quantity INT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CHECK (max_price >= min_price),
				CHECK (max_quantity >= min_quantity)
			);
		`,
	},
	{
		Version: 3,
		Name:    "drive sessions and orders",
		SQL: `
			CREATE TABLE IF NOT EXISTS drive_sessions (
				id BIGSERIAL PRIMARY KEY,
				uuid UUID NOT NULL UNIQUE,
				user_id BIGINT NOT NULL REFERENCES users(id),
				configuration_id BIGINT NOT NULL REFERENCES drive_configurations(id),
				status VARCHAR(16) NOT NULL DEFAULT 'active',
				tasks_completed INT NOT NULL DEFAULT 0,
				tasks_required INT NOT NULL,
				commission_total NUMERIC(18,2) NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMPTZ,
				CHECK (tasks_completed >= 0 AND tasks_completed <= tasks_required)
			);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_drive_sessions_active_user
				ON drive_sessions(user_id) WHERE status = 'active';
			CREATE INDEX IF NOT EXISTS idx_drive_sessions_user_time
				ON drive_sessions(user_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS drive_orders (
				id BIGSERIAL PRIMARY KEY,
				session_id BIGINT NOT NULL REFERENCES drive_sessions(id),
				slot_index INT NOT NULL CHECK (slot_index >= 0),
				product_id BIGINT NOT NULL REFERENCES products(id),
				quantity INT NOT NULL,
				purchase_price NUMERIC(18,2) NOT NULL,
				commission_amount NUMERIC(18,2) NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'completed',
				reference UUID NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_drive_orders_slot UNIQUE (session_id, slot_index)
			);
		`,
	},
	{
		Version: 4,
		Name:    "ledger entries",
		SQL: `
			CREATE TABLE IF NOT EXISTS ledger_entries (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				account VARCHAR(16) NOT NULL,
				source VARCHAR(32) NOT NULL,
				amount NUMERIC(18,2) NOT NULL,
				session_id BIGINT REFERENCES drive_sessions(id),
				slot_index INT,
				source_user_id BIGINT REFERENCES users(id),
				description TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ledger_user_time ON ledger_entries(user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_ledger_source_time ON ledger_entries(source, created_at);
			CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_drive_slot
				ON ledger_entries(user_id, session_id, slot_index, source)
				WHERE session_id IS NOT NULL;
		`,
	},
	{
		Version: 5,
		Name:    "deposits and withdrawals",
		SQL: `
			CREATE TABLE IF NOT EXISTS deposits (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				decided_by VARCHAR(64),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				decided_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status, created_at);

			CREATE TABLE IF NOT EXISTS withdrawals (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id),
				amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
				address TEXT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				decided_by VARCHAR(64),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				decided_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status, created_at);
		`,
	},
	{
		Version: 6,
		Name:    "audit entries",
		SQL: `
			CREATE TABLE IF NOT EXISTS audit_entries (
				id BIGSERIAL PRIMARY KEY,
				actor VARCHAR(64) NOT NULL,
				action VARCHAR(32) NOT NULL,
				target_user_id BIGINT,
				outcome VARCHAR(16) NOT NULL,
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_audit_target_time ON audit_entries(target_user_id, created_at DESC);
		`,
	},
	{
		Version: 7,
		Name:    "non-negative balances",
		SQL: `
			ALTER TABLE users ADD CONSTRAINT ck_users_balances_non_negative
				CHECK (main_balance >= 0 AND training_balance >= 0 AND frozen_balance >= 0);
		`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
// Each step runs in its own transaction together with its version row.
func Migrate(ctx context.Context, db TxBeginner) error {
	log.Info().Msg("Running database migrations...")

	var current int
	err := RunInTx(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INT PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`); err != nil {
			return fmt.Errorf("failed to create schema_migrations: %w", err)
		}
		return tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	})
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := RunInTx(ctx, db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		applied++
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Migration applied")
	}

	log.Info().Int("applied", applied).Int("previous_version", current).Msg("All migrations completed successfully")
	return nil
}
