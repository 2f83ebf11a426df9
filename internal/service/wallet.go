package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/lock"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

const minWithdrawPasswordLen = 6

// WalletService handles deposits, withdrawals and admin balance adjustments.
type WalletService struct {
	store      *Store
	ledger     *LedgerService
	guard      *BalanceGuard
	audit      *Auditor
	locks      *lock.UserLock
	bcryptCost int
}

// NewWalletService creates a new WalletService instance.
func NewWalletService(
	store *Store,
	ledger *LedgerService,
	guard *BalanceGuard,
	audit *Auditor,
	locks *lock.UserLock,
) *WalletService {
	return &WalletService{
		store:      store,
		ledger:     ledger,
		guard:      guard,
		audit:      audit,
		locks:      locks,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// RequestDeposit records a pending deposit for admin approval.
func (s *WalletService) RequestDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Deposit, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	d, err := s.store.Wallet.CreateDeposit(ctx, userID, amount.Round(2))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	log.Info().Int64("user_id", userID).Int64("deposit_id", d.ID).Str("amount", d.Amount.StringFixed(2)).Msg("Deposit requested")
	return d, nil
}

// ApproveDeposit credits a pending deposit to the main balance. A frozen
// account whose balance reaches the tier minimum is unfrozen.
func (s *WalletService) ApproveDeposit(ctx context.Context, actor string, depositID int64) (d *model.Deposit, err error) {
	var target *int64
	defer func() {
		s.audit.Record(ctx, actor, model.AuditApproveDeposit, target, err, fmt.Sprintf("deposit %d", depositID))
	}()

	var ev *FreezeEvent
	err = s.store.runTx(ctx, "approve_deposit", func(r *txRepos) error {
		pending, err := r.wallet.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			if errors.Is(err, repository.ErrDepositNotFound) {
				return fmt.Errorf("%w: deposit %d", ErrNotFound, depositID)
			}
			return err
		}
		target = &pending.UserID
		if pending.Status != model.RequestPending {
			return ErrDepositNotPending
		}

		if d, err = r.wallet.DecideDeposit(ctx, depositID, model.RequestApproved, actor); err != nil {
			return err
		}
		if _, err := r.users.GetByIDForUpdate(ctx, pending.UserID); err != nil {
			return err
		}
		if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
			UserID:  pending.UserID,
			Account: model.AccountMain,
			Source:  model.SourceDeposit,
			Amount:  pending.Amount,
		}); err != nil {
			return err
		}
		ev, err = s.guard.Evaluate(ctx, r.tx, pending.UserID, policy.DirectionIncrease)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.guard.Publish(ctx, ev)
	return d, nil
}

// RejectDeposit closes a pending deposit without crediting it.
func (s *WalletService) RejectDeposit(ctx context.Context, actor string, depositID int64) (d *model.Deposit, err error) {
	var target *int64
	defer func() {
		s.audit.Record(ctx, actor, model.AuditRejectDeposit, target, err, fmt.Sprintf("deposit %d", depositID))
	}()

	err = s.store.runTx(ctx, "reject_deposit", func(r *txRepos) error {
		pending, err := r.wallet.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			if errors.Is(err, repository.ErrDepositNotFound) {
				return fmt.Errorf("%w: deposit %d", ErrNotFound, depositID)
			}
			return err
		}
		target = &pending.UserID
		if pending.Status != model.RequestPending {
			return ErrDepositNotPending
		}
		d, err = r.wallet.DecideDeposit(ctx, depositID, model.RequestRejected, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SetWithdrawPassword stores a new withdrawal password.
func (s *WalletService) SetWithdrawPassword(ctx context.Context, userID int64, password string) error {
	if len(strings.TrimSpace(password)) < minWithdrawPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.Users.SetWithdrawPasswordHash(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	log.Info().Int64("user_id", userID).Msg("Withdraw password updated")
	return nil
}

// WithdrawalInput is a user's payout request.
type WithdrawalInput struct {
	UserID   int64
	Amount   decimal.Decimal
	Address  string
	Password string
}

// RequestWithdrawal holds the amount in the frozen balance until an admin
// decides the request.
func (s *WalletService) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (*model.Withdrawal, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount := in.Amount.Round(2)

	user, err := s.store.Users.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if user.WithdrawPasswordHash == nil {
		return nil, ErrPasswordNotSet
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.WithdrawPasswordHash), []byte(in.Password)) != nil {
		return nil, ErrInvalidPassword
	}

	var (
		w  *model.Withdrawal
		ev *FreezeEvent
	)
	err = s.locks.WithLock(ctx, in.UserID, func() error {
		return s.store.runTx(ctx, "request_withdrawal", func(r *txRepos) error {
			locked, err := r.users.GetByIDForUpdate(ctx, in.UserID)
			if err != nil {
				return err
			}
			if locked.IsFrozen {
				return ErrAccountFrozen
			}
			if locked.MainBalance.LessThan(amount) {
				return ErrInsufficientBalance
			}

			if w, err = r.wallet.CreateWithdrawal(ctx, in.UserID, amount, strings.TrimSpace(in.Address)); err != nil {
				return err
			}
			desc := fmt.Sprintf("withdrawal %d hold", w.ID)
			if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
				UserID: in.UserID, Account: model.AccountMain, Source: model.SourceWithdrawal,
				Amount: amount.Neg(), Description: &desc,
			}); err != nil {
				return err
			}
			if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
				UserID: in.UserID, Account: model.AccountFrozen, Source: model.SourceWithdrawal,
				Amount: amount, Description: &desc,
			}); err != nil {
				return err
			}
			ev, err = s.guard.Evaluate(ctx, r.tx, in.UserID, policy.DirectionDecrease)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", in.UserID).Int64("withdrawal_id", w.ID).Str("amount", amount.StringFixed(2)).Msg("Withdrawal requested")
	s.guard.Publish(ctx, ev)
	return w, nil
}

// ApproveWithdrawal pays out a pending withdrawal from the frozen balance.
func (s *WalletService) ApproveWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error) {
	return s.decideWithdrawal(ctx, actor, withdrawalID, model.RequestApproved)
}

// RejectWithdrawal returns a pending withdrawal's hold to the main balance.
func (s *WalletService) RejectWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error) {
	return s.decideWithdrawal(ctx, actor, withdrawalID, model.RequestRejected)
}

func (s *WalletService) decideWithdrawal(ctx context.Context, actor string, withdrawalID int64, status model.RequestStatus) (w *model.Withdrawal, err error) {
	action := model.AuditApproveWithdrawal
	if status == model.RequestRejected {
		action = model.AuditRejectWithdrawal
	}
	var target *int64
	defer func() {
		s.audit.Record(ctx, actor, action, target, err, fmt.Sprintf("withdrawal %d", withdrawalID))
	}()

	var ev *FreezeEvent
	err = s.store.runTx(ctx, action, func(r *txRepos) error {
		pending, err := r.wallet.GetWithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			if errors.Is(err, repository.ErrWithdrawalNotFound) {
				return fmt.Errorf("%w: withdrawal %d", ErrNotFound, withdrawalID)
			}
			return err
		}
		target = &pending.UserID
		if pending.Status != model.RequestPending {
			return ErrWithdrawalNotPending
		}
		if w, err = r.wallet.DecideWithdrawal(ctx, withdrawalID, status, actor); err != nil {
			return err
		}
		if _, err := r.users.GetByIDForUpdate(ctx, pending.UserID); err != nil {
			return err
		}

		desc := fmt.Sprintf("withdrawal %d %s", withdrawalID, status)
		if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
			UserID: pending.UserID, Account: model.AccountFrozen, Source: model.SourceWithdrawal,
			Amount: pending.Amount.Neg(), Description: &desc,
		}); err != nil {
			return err
		}
		if status == model.RequestApproved {
			return nil
		}

		if _, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
			UserID: pending.UserID, Account: model.AccountMain, Source: model.SourceWithdrawal,
			Amount: pending.Amount, Description: &desc,
		}); err != nil {
			return err
		}
		ev, err = s.guard.Evaluate(ctx, r.tx, pending.UserID, policy.DirectionIncrease)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.guard.Publish(ctx, ev)
	return w, nil
}

// AdjustInput is an admin credit or debit.
type AdjustInput struct {
	UserID  int64
	Account model.Account
	Amount  decimal.Decimal
	Note    string
}

// AdjustBalance posts an admin credit or debit. Main-account adjustments run
// the freeze state machine in the matching direction.
func (s *WalletService) AdjustBalance(ctx context.Context, actor string, in AdjustInput) (balance decimal.Decimal, err error) {
	defer func() {
		s.audit.Record(ctx, actor, model.AuditAdjustBalance, &in.UserID, err,
			fmt.Sprintf("%s %s %s", in.Account, in.Amount.StringFixed(2), in.Note))
	}()

	amount := in.Amount.Round(2)
	if amount.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	if in.Account == "" {
		in.Account = model.AccountMain
	}

	var ev *FreezeEvent
	err = s.locks.WithLock(ctx, in.UserID, func() error {
		return s.store.runTx(ctx, "adjust_balance", func(r *txRepos) error {
			user, err := r.users.GetByIDForUpdate(ctx, in.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			if user.Balance(in.Account).Add(amount).IsNegative() {
				return ErrInsufficientBalance
			}

			var note *string
			if in.Note != "" {
				note = &in.Note
			}
			balance, err = s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
				UserID:      in.UserID,
				Account:     in.Account,
				Source:      model.SourceAdmin,
				Amount:      amount,
				Description: note,
			})
			if err != nil {
				return err
			}
			if in.Account != model.AccountMain {
				return nil
			}
			ev, err = s.guard.Evaluate(ctx, r.tx, in.UserID, policy.DirectionOf(amount))
			return err
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.guard.Publish(ctx, ev)
	return balance, nil
}
