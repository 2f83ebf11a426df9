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
	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

// FreezeEvent describes a freeze state change of one account.
type FreezeEvent struct {
	UserID     int64
	Username   string
	Transition policy.Transition
	Balance    decimal.Decimal
	MinBalance decimal.Decimal
	Actor      string // set for admin overrides
}

// Notifier receives freeze events after their transaction committed.
type Notifier interface {
	FreezeChanged(ctx context.Context, ev FreezeEvent)
}

// NopNotifier discards events.
type NopNotifier struct{}

// FreezeChanged implements Notifier.
func (NopNotifier) FreezeChanged(context.Context, FreezeEvent) {}

// BalanceGuard keeps the freeze flag consistent with the tier minimum.
type BalanceGuard struct {
	store    *Store
	policies *policy.Table
	audit    *Auditor
	notifier Notifier
}

// NewBalanceGuard creates a new BalanceGuard instance.
func NewBalanceGuard(store *Store, policies *policy.Table, audit *Auditor, notifier Notifier) *BalanceGuard {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &BalanceGuard{
		store:    store,
		policies: policies,
		audit:    audit,
		notifier: notifier,
	}
}

// SetNotifier replaces the notifier. Call before serving requests.
func (g *BalanceGuard) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	g.notifier = n
}

// Evaluate applies the freeze state machine to a user after a balance change
// in direction dir. It runs inside tx and returns the event when the state
// changed, nil otherwise.
func (g *BalanceGuard) Evaluate(ctx context.Context, tx pgx.Tx, userID int64, dir policy.Direction) (*FreezeEvent, error) {
	if dir == policy.DirectionNone {
		return nil, nil
	}

	users := g.store.Users.WithTx(tx)
	user, err := users.GetByIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	tp, err := g.policies.For(user.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConfiguration, err)
	}

	frozen, transition := policy.EvaluateFreeze(user.IsFrozen, user.MainBalance, tp.MinBalance, dir)
	if transition == policy.TransitionNone {
		return nil, nil
	}
	if err := users.SetFrozen(ctx, userID, frozen); err != nil {
		return nil, err
	}

	return &FreezeEvent{
		UserID:     user.ID,
		Username:   user.Username,
		Transition: transition,
		Balance:    user.MainBalance,
		MinBalance: tp.MinBalance,
	}, nil
}

// Publish reports committed freeze events. Nil entries are skipped.
func (g *BalanceGuard) Publish(ctx context.Context, events ...*FreezeEvent) {
	for _, ev := range events {
		if ev == nil {
			continue
		}
		metrics.FreezeTransitions.WithLabelValues(string(ev.Transition)).Inc()
		log.Info().
			Int64("user_id", ev.UserID).
			Str("transition", string(ev.Transition)).
			Str("balance", ev.Balance.StringFixed(2)).
			Str("min_balance", ev.MinBalance.StringFixed(2)).
			Str("actor", ev.Actor).
			Msg("Account freeze state changed")
		g.notifier.FreezeChanged(ctx, *ev)
	}
}

// ForceUnfreeze clears the freeze flag regardless of balance. The override is
// audited whatever its outcome.
func (g *BalanceGuard) ForceUnfreeze(ctx context.Context, actor string, userID int64, reason string) (err error) {
	defer func() {
		g.audit.Record(ctx, actor, model.AuditForceUnfreeze, &userID, err, reason)
	}()

	var ev *FreezeEvent
	err = g.store.runTx(ctx, "force_unfreeze", func(r *txRepos) error {
		user, err := r.users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if !user.IsFrozen {
			return nil
		}
		if err := r.users.SetFrozen(ctx, userID, false); err != nil {
			return err
		}
		ev = &FreezeEvent{
			UserID:     user.ID,
			Username:   user.Username,
			Transition: policy.TransitionUnfrozen,
			Balance:    user.MainBalance,
			Actor:      actor,
		}
		if tp, perr := g.policies.For(user.Tier); perr == nil {
			ev.MinBalance = tp.MinBalance
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.Publish(ctx, ev)
	return nil
}

// FreezeReport lists accounts whose freeze flag disagrees with the current
// tier minimums. The flag only moves on balance events or admin override, so
// the report is informational.
type FreezeReport struct {
	FrozenAboveMinimum []int64 `json:"frozen_above_minimum"`
	ActiveBelowMinimum []int64 `json:"active_below_minimum"`
}

// Inspect scans all users and reports freeze flags that no longer match the
// policy, as after a tier minimum change.
func (g *BalanceGuard) Inspect(ctx context.Context) (*FreezeReport, error) {
	const pageSize = 500

	report := &FreezeReport{}
	var after int64
	for {
		users, err := g.store.Users.ListAfter(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}
		for _, u := range users {
			tp, err := g.policies.For(u.Tier)
			if err != nil {
				continue
			}
			below := u.MainBalance.LessThan(tp.MinBalance)
			switch {
			case u.IsFrozen && !below:
				report.FrozenAboveMinimum = append(report.FrozenAboveMinimum, u.ID)
			case !u.IsFrozen && below:
				report.ActiveBelowMinimum = append(report.ActiveBelowMinimum, u.ID)
			}
		}
		if len(users) < pageSize {
			break
		}
		after = users[len(users)-1].ID
	}
	return report, nil
}
