package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/metrics"
	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

// SaveOrderInput is a client's submission for one slot.
type SaveOrderInput struct {
	UserID        int64
	SessionID     int64
	SlotIndex     int
	ProductID     int64
	PurchasePrice decimal.Decimal
}

// SaveOrderResult is the recorded order and the state it left behind.
// Replayed is set when the same submission had already been recorded; in
// that case nothing new was posted.
type SaveOrderResult struct {
	Order       *model.DriveOrder   `json:"order"`
	Session     *model.DriveSession `json:"session"`
	MainBalance decimal.Decimal     `json:"main_balance"`
	IsFrozen    bool                `json:"is_frozen"`
	Replayed    bool                `json:"replayed"`
}

// SaveOrder records a purchase against the session's current slot, posts its
// commission and referral bonuses, and re-evaluates the freeze state, all in
// one transaction.
func (s *DriveService) SaveOrder(ctx context.Context, in SaveOrderInput) (*SaveOrderResult, error) {
	var (
		result   *SaveOrderResult
		events   []*FreezeEvent
		rejected bool
	)

	err := s.locks.WithLock(ctx, in.UserID, func() error {
		return s.store.runTx(ctx, "save_order", func(r *txRepos) error {
			result, events, rejected = nil, nil, false

			session, err := r.drives.GetSessionForUpdate(ctx, in.SessionID)
			if err != nil {
				if errors.Is(err, repository.ErrSessionNotFound) {
					return ErrNoActiveSession
				}
				return err
			}
			if session.UserID != in.UserID {
				return ErrNoActiveSession
			}

			existing, err := r.drives.GetOrderBySlot(ctx, session.ID, in.SlotIndex)
			switch {
			case err == nil:
				if existing.ProductID != in.ProductID || !existing.PurchasePrice.Equal(in.PurchasePrice) {
					return fmt.Errorf("%w: slot %d already recorded", ErrInvalidSlot, in.SlotIndex)
				}
				user, err := r.users.GetByID(ctx, in.UserID)
				if err != nil {
					return err
				}
				result = &SaveOrderResult{
					Order:       existing,
					Session:     session,
					MainBalance: user.MainBalance,
					IsFrozen:    user.IsFrozen,
					Replayed:    true,
				}
				return nil
			case !errors.Is(err, repository.ErrOrderNotFound):
				return err
			}

			if err := checkSlot(session, in.SlotIndex); err != nil {
				return err
			}

			user, err := r.users.GetByIDForUpdate(ctx, in.UserID)
			if err != nil {
				return err
			}
			if user.IsFrozen {
				return ErrAccountFrozen
			}

			qty, err := s.checkOrder(ctx, r, session, in)
			if err != nil {
				return err
			}

			tp, err := s.policies.For(user.Tier)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrNoConfiguration, err)
			}
			commission := policy.Commission(in.PurchasePrice, tp.CommissionRate)

			// A debit larger than the balance records nothing and freezes
			// the account.
			if user.MainBalance.Add(commission).IsNegative() {
				if err := r.users.SetFrozen(ctx, user.ID, true); err != nil {
					return err
				}
				rejected = true
				events = append(events, &FreezeEvent{
					UserID:     user.ID,
					Username:   user.Username,
					Transition: policy.TransitionFrozen,
					Balance:    user.MainBalance,
					MinBalance: tp.MinBalance,
				})
				return nil
			}

			order, err := r.drives.CreateOrder(ctx, model.DriveOrder{
				SessionID:        session.ID,
				SlotIndex:        in.SlotIndex,
				ProductID:        in.ProductID,
				Quantity:         qty,
				PurchasePrice:    in.PurchasePrice,
				CommissionAmount: commission,
			})
			if err != nil {
				if db.IsUniqueViolation(err, repository.ConstraintOrderSlot) {
					return errRetry
				}
				return err
			}

			session, err = r.drives.AdvanceSession(ctx, session.ID, commission)
			if err != nil {
				return err
			}

			slot := in.SlotIndex
			balance, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
				UserID:    user.ID,
				Account:   model.AccountMain,
				Source:    model.SourceDrive,
				Amount:    commission,
				SessionID: &session.ID,
				SlotIndex: &slot,
			})
			if err != nil {
				return err
			}

			ev, err := s.guard.Evaluate(ctx, r.tx, user.ID, policy.DirectionOf(commission))
			if err != nil {
				return err
			}
			events = append(events, ev)

			uplineEvents, err := s.payUplines(ctx, r, user.ID, session.ID, slot, commission)
			if err != nil {
				return err
			}
			events = append(events, uplineEvents...)

			result = &SaveOrderResult{
				Order:       order,
				Session:     session,
				MainBalance: balance,
				IsFrozen:    user.IsFrozen || (ev != nil && ev.Transition == policy.TransitionFrozen),
			}
			return nil
		})
	})
	if err != nil {
		metrics.OrdersSaved.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	if rejected {
		metrics.OrdersSaved.WithLabelValues(outcomeLabel(ErrInsufficientBalance)).Inc()
		log.Warn().
			Int64("user_id", in.UserID).
			Int64("session_id", in.SessionID).
			Int("slot_index", in.SlotIndex).
			Msg("Drive order rejected, commission exceeds balance")
		s.guard.Publish(ctx, events...)
		return nil, ErrInsufficientBalance
	}

	if result.Replayed {
		metrics.OrdersSaved.WithLabelValues("replayed").Inc()
		log.Info().
			Int64("user_id", in.UserID).
			Int64("session_id", in.SessionID).
			Int("slot_index", in.SlotIndex).
			Msg("Drive order replayed")
		return result, nil
	}

	metrics.OrdersSaved.WithLabelValues("recorded").Inc()
	log.Info().
		Int64("user_id", in.UserID).
		Int64("session_id", in.SessionID).
		Int("slot_index", in.SlotIndex).
		Str("commission", result.Order.CommissionAmount.StringFixed(2)).
		Str("status", string(result.Session.Status)).
		Msg("Drive order recorded")

	s.guard.Publish(ctx, events...)
	return result, nil
}

// checkSlot accepts only the next unrecorded slot of an active session.
func checkSlot(session *model.DriveSession, slot int) error {
	if session.Status != model.SessionActive {
		return fmt.Errorf("%w: session is %s", ErrInvalidSlot, session.Status)
	}
	if slot != session.TasksCompleted || !session.AcceptsOrders() {
		return fmt.Errorf("%w: expected slot %d, got %d", ErrInvalidSlot, session.TasksCompleted, slot)
	}
	return nil
}

// checkOrder validates the product and price of a submission against the
// session's configuration and returns the implied quantity.
func (s *DriveService) checkOrder(ctx context.Context, r *txRepos, session *model.DriveSession, in SaveOrderInput) (int, error) {
	product, err := r.products.GetByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return 0, fmt.Errorf("%w: unknown product %d", ErrOutOfPolicy, in.ProductID)
		}
		return 0, err
	}
	if !product.IsActive {
		return 0, fmt.Errorf("%w: product %d is inactive", ErrOutOfPolicy, in.ProductID)
	}

	used, err := r.products.UsedInSession(ctx, session.ID, product.ID)
	if err != nil {
		return 0, err
	}
	if used {
		return 0, fmt.Errorf("%w: product %d already used in this session", ErrOutOfPolicy, in.ProductID)
	}

	cfg, err := r.drives.GetConfigurationByID(ctx, session.ConfigurationID)
	if err != nil {
		if errors.Is(err, repository.ErrConfigurationNotFound) {
			return 0, ErrNoConfiguration
		}
		return 0, err
	}

	qty, err := policy.BoundsOf(cfg).CheckPurchase(product.UnitPrice, in.PurchasePrice)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOutOfPolicy, err)
	}
	return qty, nil
}

// payUplines credits the referral bonus of a positive commission to the
// user's referrer chain and evaluates each credited upline.
func (s *DriveService) payUplines(ctx context.Context, r *txRepos, userID, sessionID int64, slot int, commission decimal.Decimal) ([]*FreezeEvent, error) {
	rates := s.policies.ReferralRates()
	bonuses := policy.ReferralBonuses(commission, rates)
	if len(bonuses) == 0 {
		return nil, nil
	}

	uplines, err := r.users.GetUplines(ctx, userID, len(rates))
	if err != nil {
		return nil, err
	}

	var events []*FreezeEvent
	for i, uplineID := range uplines {
		if i >= len(bonuses) || !bonuses[i].IsPositive() {
			continue
		}
		desc := fmt.Sprintf("level %d referral bonus", i+1)
		if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
			UserID:       uplineID,
			Account:      model.AccountMain,
			Source:       model.SourceReferral,
			Amount:       bonuses[i],
			SessionID:    &sessionID,
			SlotIndex:    &slot,
			SourceUserID: &userID,
			Description:  &desc,
		}); err != nil {
			return nil, err
		}
		ev, err := s.guard.Evaluate(ctx, r.tx, uplineID, policy.DirectionIncrease)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// outcomeLabel maps an error to a short metrics label.
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrOutOfPolicy):
		return "out_of_policy"
	case errors.Is(err, ErrAccountFrozen):
		return "account_frozen"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}
