package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
	"drive-ledger/internal/pkg/lock"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

// DriveService runs drive sessions: starting them, assigning products to
// slots and recording orders.
type DriveService struct {
	store    *Store
	policies *policy.Table
	ledger   *LedgerService
	guard    *BalanceGuard
	audit    *Auditor
	locks    *lock.UserLock
	random   func() float64
}

// NewDriveService creates a new DriveService instance.
func NewDriveService(
	store *Store,
	policies *policy.Table,
	ledger *LedgerService,
	guard *BalanceGuard,
	audit *Auditor,
	locks *lock.UserLock,
) *DriveService {
	return &DriveService{
		store:    store,
		policies: policies,
		ledger:   ledger,
		guard:    guard,
		audit:    audit,
		locks:    locks,
		random:   rand.Float64,
	}
}

// SetRandom replaces the random source used by product assignment. fn must
// return values in [0, 1).
func (s *DriveService) SetRandom(fn func() float64) {
	s.random = fn
}

// StartResult is a newly started session and its first advisory assignment.
// Assignment is nil when no product currently fits the tier bounds.
type StartResult struct {
	Session    *model.DriveSession `json:"session"`
	FirstSlot  int                 `json:"first_slot"`
	Assignment *Assignment         `json:"assignment"`
}

// StartDrive creates an active session for the user's tier.
func (s *DriveService) StartDrive(ctx context.Context, userID int64) (*StartResult, error) {
	var session *model.DriveSession

	err := s.locks.WithLock(ctx, userID, func() error {
		return s.store.runTx(ctx, "start_drive", func(r *txRepos) error {
			user, err := r.users.GetByIDForUpdate(ctx, userID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			if user.IsFrozen {
				return ErrAccountFrozen
			}

			if _, err := r.drives.GetActiveSession(ctx, userID); err == nil {
				return ErrAlreadyActive
			} else if !errors.Is(err, repository.ErrSessionNotFound) {
				return err
			}

			cfg, err := r.drives.GetConfigurationByTier(ctx, user.Tier)
			if err != nil {
				if errors.Is(err, repository.ErrConfigurationNotFound) {
					return fmt.Errorf("%w: %s", ErrNoConfiguration, user.Tier)
				}
				return err
			}

			session, err = r.drives.CreateSession(ctx, userID, cfg)
			if err != nil {
				if db.IsUniqueViolation(err, repository.ConstraintActiveSession) {
					return ErrAlreadyActive
				}
				return err
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("session_id", session.ID).
		Int("tasks_required", session.TasksRequired).
		Msg("Drive started")

	// The session is committed at this point, so a failed assignment is
	// reported as a missing one; getorder retries it.
	result := &StartResult{Session: session, FirstSlot: 0}
	assignment, err := s.AssignNextProduct(ctx, session.ID)
	switch {
	case err == nil:
		result.Assignment = assignment
	case errors.Is(err, ErrNoEligibleProduct):
		log.Warn().Int64("session_id", session.ID).Msg("No eligible product for first slot")
	default:
		log.Error().Err(err).Int64("session_id", session.ID).Msg("Failed to assign first slot")
	}
	return result, nil
}

// Progress is the state of a user's latest drive.
type Progress struct {
	SessionID       int64               `json:"session_id"`
	SessionUUID     uuid.UUID           `json:"session_uuid"`
	Status          model.SessionStatus `json:"status"`
	TasksCompleted  int                 `json:"tasks_completed"`
	TasksRequired   int                 `json:"tasks_required"`
	CommissionTotal decimal.Decimal     `json:"commission_total"`
	IsFrozen        bool                `json:"is_frozen"`
	MainBalance     decimal.Decimal     `json:"main_balance"`
}

// GetProgress reports the user's latest session. A completed drive keeps
// being reported until a new one starts.
func (s *DriveService) GetProgress(ctx context.Context, userID int64) (*Progress, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	session, err := s.store.Drives.GetLatestSession(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	return &Progress{
		SessionID:       session.ID,
		SessionUUID:     session.UUID,
		Status:          session.Status,
		TasksCompleted:  session.TasksCompleted,
		TasksRequired:   session.TasksRequired,
		CommissionTotal: session.CommissionTotal,
		IsFrozen:        user.IsFrozen,
		MainBalance:     user.MainBalance,
	}, nil
}

// ListOrders returns the orders of the user's latest session by slot.
func (s *DriveService) ListOrders(ctx context.Context, userID int64) ([]*model.DriveOrder, error) {
	session, err := s.store.Drives.GetLatestSession(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	orders, err := s.store.Drives.ListOrders(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return orders, nil
}

// ResetDrive abandons the user's active session so a new drive can start.
// The override is audited whatever its outcome.
func (s *DriveService) ResetDrive(ctx context.Context, actor string, userID int64) (session *model.DriveSession, err error) {
	defer func() {
		detail := ""
		if session != nil {
			detail = fmt.Sprintf("session %d abandoned at %d/%d", session.ID, session.TasksCompleted, session.TasksRequired)
		}
		s.audit.Record(ctx, actor, model.AuditResetDrive, &userID, err, detail)
	}()

	err = s.locks.WithLock(ctx, userID, func() error {
		return s.store.runTx(ctx, "reset_drive", func(r *txRepos) error {
			if _, err := r.users.GetByIDForUpdate(ctx, userID); err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			var err error
			session, err = r.drives.AbandonActiveSession(ctx, userID)
			if errors.Is(err, repository.ErrSessionNotFound) {
				return ErrNoActiveSession
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AbandonStale abandons active sessions untouched since before and returns
// their ids.
func (s *DriveService) AbandonStale(ctx context.Context, before time.Time) ([]int64, error) {
	ids, err := s.store.Drives.AbandonStaleSessions(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Time("before", before).Msg("Abandoned stale drive sessions")
	}
	return ids, nil
}

// SeedConfigurations inserts the drive configuration of each tier unless it
// already exists.
func (s *DriveService) SeedConfigurations(ctx context.Context, configs []model.DriveConfiguration) error {
	for _, c := range configs {
		if err := s.store.Drives.SeedConfiguration(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// UpdateConfiguration replaces the drive configuration of a tier. Running
// sessions keep the task count they started with.
func (s *DriveService) UpdateConfiguration(ctx context.Context, actor string, c model.DriveConfiguration) (out *model.DriveConfiguration, err error) {
	defer func() {
		s.audit.Record(ctx, actor, model.AuditUpdateConfiguration, nil, err, string(c.Tier))
	}()

	if c.TasksRequired <= 0 || c.MinQuantity <= 0 || c.MaxQuantity < c.MinQuantity ||
		!c.MinPrice.IsPositive() || c.MaxPrice.LessThan(c.MinPrice) {
		return nil, fmt.Errorf("%w: invalid drive configuration", ErrOutOfPolicy)
	}
	if _, perr := s.policies.For(c.Tier); perr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConfiguration, perr)
	}

	out, err = s.store.Drives.UpsertConfiguration(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return out, nil
}

// CreateProduct adds an active product to the assignment pool.
func (s *DriveService) CreateProduct(ctx context.Context, actor, name string, unitPrice decimal.Decimal) (p *model.Product, err error) {
	defer func() {
		s.audit.Record(ctx, actor, model.AuditCreateProduct, nil, err, name)
	}()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrOutOfPolicy)
	}
	if !unitPrice.IsPositive() {
		return nil, ErrInvalidAmount
	}
	p, err = s.store.Products.Create(ctx, name, unitPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return p, nil
}

// SetProductActive enables or retires a product in the assignment pool.
func (s *DriveService) SetProductActive(ctx context.Context, actor string, productID int64, active bool) (p *model.Product, err error) {
	defer func() {
		s.audit.Record(ctx, actor, model.AuditUpdateProduct, nil, err,
			fmt.Sprintf("product %d active=%t", productID, active))
	}()

	p, err = s.store.Products.SetActive(ctx, productID, active)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	log.Info().Int64("product_id", productID).Bool("active", active).Msg("Product updated")
	return p, nil
}
