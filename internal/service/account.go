// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Username       string
	Tier           model.Tier
	ReferralCode   string // upliner's code, optional
	InitialBalance decimal.Decimal
}

// AccountService handles user account operations.
type AccountService struct {
	store    *Store
	policies *policy.Table
	ledger   *LedgerService
	audit    *Auditor
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(store *Store, policies *policy.Table, ledger *LedgerService, audit *Auditor) *AccountService {
	return &AccountService{
		store:    store,
		policies: policies,
		ledger:   ledger,
		audit:    audit,
	}
}

// Register creates a user, links it to the owner of the referral code and
// posts the opening balance through the ledger.
func (s *AccountService) Register(ctx context.Context, actor string, in RegisterInput) (user *model.User, err error) {
	defer func() {
		var target *int64
		if user != nil {
			target = &user.ID
		}
		s.audit.Record(ctx, actor, model.AuditCreateUser, target, err, in.Username)
	}()

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrOutOfPolicy)
	}
	if in.Tier == "" {
		in.Tier = model.TierBronze
	}
	if in.InitialBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}

	err = s.store.runTx(ctx, "register", func(r *txRepos) error {
		var uplinerID *int64
		if code := strings.TrimSpace(in.ReferralCode); code != "" {
			upliner, err := r.users.GetByReferralCode(ctx, code)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return ErrInvalidReferral
				}
				return err
			}
			uplinerID = &upliner.ID
		}

		created, err := r.users.Create(ctx, repository.NewUser{
			Username:     in.Username,
			Tier:         in.Tier,
			UplinerID:    uplinerID,
			ReferralCode: newReferralCode(),
		})
		switch {
		case db.IsUniqueViolation(err, repository.ConstraintUsername):
			return ErrUsernameTaken
		case db.IsUniqueViolation(err, repository.ConstraintReferralCode):
			return errRetry
		case err != nil:
			return err
		}

		if in.InitialBalance.IsPositive() {
			balance, err := s.ledger.PostEntry(ctx, r.tx, model.LedgerEntry{
				UserID:  created.ID,
				Account: model.AccountMain,
				Source:  model.SourceInitial,
				Amount:  in.InitialBalance.Round(2),
			})
			if err != nil {
				return err
			}
			created.MainBalance = balance
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Str("tier", string(user.Tier)).
		Msg("User registered")
	return user, nil
}

// GetUser retrieves a user by id.
func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return user, nil
}

// ChangeTier moves a user to another configured tier. The freeze flag is left
// as it is; the freeze report shows accounts the new minimum puts out of line.
func (s *AccountService) ChangeTier(ctx context.Context, actor string, userID int64, tier model.Tier) (user *model.User, err error) {
	defer func() {
		s.audit.Record(ctx, actor, model.AuditChangeTier, &userID, err, string(tier))
	}()

	if _, perr := s.policies.For(tier); perr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConfiguration, perr)
	}

	user, err = s.store.Users.SetTier(ctx, userID, tier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	log.Info().
		Int64("user_id", userID).
		Str("tier", string(tier)).
		Str("actor", actor).
		Msg("User tier changed")
	return user, nil
}

// newReferralCode returns an 8 character uppercase code.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
