// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

const commandTimeout = 15 * time.Second

// AccountAdmin loads accounts for display and moves them between tiers.
type AccountAdmin interface {
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	ChangeTier(ctx context.Context, actor string, userID int64, tier model.Tier) (*model.User, error)
}

// FreezeOverride lifts a freeze regardless of balance.
type FreezeOverride interface {
	ForceUnfreeze(ctx context.Context, actor string, userID int64, reason string) error
}

// DriveResetter closes a user's active drive session.
type DriveResetter interface {
	ResetDrive(ctx context.Context, actor string, userID int64) (*model.DriveSession, error)
}

// WalletAdmin decides wallet requests and adjusts balances.
type WalletAdmin interface {
	ApproveDeposit(ctx context.Context, actor string, depositID int64) (*model.Deposit, error)
	RejectDeposit(ctx context.Context, actor string, depositID int64) (*model.Deposit, error)
	ApproveWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error)
	AdjustBalance(ctx context.Context, actor string, in service.AdjustInput) (decimal.Decimal, error)
}

// Reconciler compares cached balances with the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]repository.Mismatch, error)
}

// AdminHandler handles admin-related commands.
type AdminHandler struct {
	accounts AccountAdmin
	guard    FreezeOverride
	drives   DriveResetter
	wallet   WalletAdmin
	ledger   Reconciler
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts AccountAdmin, guard FreezeOverride, drives DriveResetter, wallet WalletAdmin, ledger Reconciler) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		guard:    guard,
		drives:   drives,
		wallet:   wallet,
		ledger:   ledger,
	}
}

// command adapts a reply-producing function to a telebot handler.
func (h *AdminHandler) command(name string, fn func(ctx context.Context, actor string, args []string) string) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		actor := Actor(sender.ID)
		log.Info().
			Int64("admin_id", sender.ID).
			Str("operation", name).
			Strs("args", c.Args()).
			Msg("Admin command received")
		return c.Reply(fn(ctx, actor, c.Args()))
	}
}

// Actor is the audit actor recorded for a Telegram admin.
func Actor(telegramID int64) string {
	return "telegram:" + strconv.FormatInt(telegramID, 10)
}

// HandleUser handles /user <user_id>.
func (h *AdminHandler) HandleUser(c tele.Context) error {
	return h.command("user", h.user)(c)
}

// HandleSetTier handles /set_tier <user_id> <tier>.
func (h *AdminHandler) HandleSetTier(c tele.Context) error {
	return h.command("set_tier", h.setTier)(c)
}

// HandleUnfreeze handles /unfreeze <user_id> [reason].
func (h *AdminHandler) HandleUnfreeze(c tele.Context) error {
	return h.command("unfreeze", h.unfreeze)(c)
}

// HandleResetDrive handles /reset_drive <user_id>.
func (h *AdminHandler) HandleResetDrive(c tele.Context) error {
	return h.command("reset_drive", h.resetDrive)(c)
}

// HandleApproveDeposit handles /approve_deposit <deposit_id>.
func (h *AdminHandler) HandleApproveDeposit(c tele.Context) error {
	return h.command("approve_deposit", h.depositDecision(true))(c)
}

// HandleRejectDeposit handles /reject_deposit <deposit_id>.
func (h *AdminHandler) HandleRejectDeposit(c tele.Context) error {
	return h.command("reject_deposit", h.depositDecision(false))(c)
}

// HandleApproveWithdrawal handles /approve_withdrawal <withdrawal_id>.
func (h *AdminHandler) HandleApproveWithdrawal(c tele.Context) error {
	return h.command("approve_withdrawal", h.withdrawalDecision(true))(c)
}

// HandleRejectWithdrawal handles /reject_withdrawal <withdrawal_id>.
func (h *AdminHandler) HandleRejectWithdrawal(c tele.Context) error {
	return h.command("reject_withdrawal", h.withdrawalDecision(false))(c)
}

// HandleAdjust handles /adjust <user_id> <amount> [account] [note].
func (h *AdminHandler) HandleAdjust(c tele.Context) error {
	return h.command("adjust", h.adjust)(c)
}

// HandleReconcile handles /reconcile.
func (h *AdminHandler) HandleReconcile(c tele.Context) error {
	return h.command("reconcile", h.reconcile)(c)
}

func (h *AdminHandler) user(ctx context.Context, _ string, args []string) string {
	userID, errMsg := parseID(args, "/user <user_id>")
	if errMsg != "" {
		return errMsg
	}
	user, err := h.accounts.GetUser(ctx, userID)
	if err != nil {
		return failure(err)
	}

	state := "active"
	if user.IsFrozen {
		state = "FROZEN"
	}
	return fmt.Sprintf(
		"👤 %s (ID: %d)\n"+
			"🏷 Tier: %s\n"+
			"💰 Main: %s\n"+
			"🎓 Training: %s\n"+
			"🔒 Frozen funds: %s\n"+
			"📌 State: %s",
		user.Username, user.ID, user.Tier,
		user.MainBalance.StringFixed(2), user.TrainingBalance.StringFixed(2),
		user.FrozenBalance.StringFixed(2), state,
	)
}

func (h *AdminHandler) setTier(ctx context.Context, actor string, args []string) string {
	const usage = "/set_tier <user_id> <tier>"
	userID, errMsg := parseID(args, usage)
	if errMsg != "" {
		return errMsg
	}
	if len(args) < 2 {
		return "❌ Usage: " + usage
	}
	tier, err := model.ParseTier(args[1])
	if err != nil {
		return "❌ Unknown tier " + args[1]
	}
	user, err := h.accounts.ChangeTier(ctx, actor, userID, tier)
	if err != nil {
		return failure(err)
	}
	return fmt.Sprintf("✅ User %d moved to tier %s", user.ID, user.Tier)
}

func (h *AdminHandler) unfreeze(ctx context.Context, actor string, args []string) string {
	userID, errMsg := parseID(args, "/unfreeze <user_id> [reason]")
	if errMsg != "" {
		return errMsg
	}
	reason := strings.Join(args[1:], " ")
	if err := h.guard.ForceUnfreeze(ctx, actor, userID, reason); err != nil {
		return failure(err)
	}
	return fmt.Sprintf("✅ User %d unfrozen", userID)
}

func (h *AdminHandler) resetDrive(ctx context.Context, actor string, args []string) string {
	userID, errMsg := parseID(args, "/reset_drive <user_id>")
	if errMsg != "" {
		return errMsg
	}
	session, err := h.drives.ResetDrive(ctx, actor, userID)
	if err != nil {
		return failure(err)
	}
	return fmt.Sprintf("✅ Drive session %d of user %d reset after %d/%d tasks",
		session.ID, userID, session.TasksCompleted, session.TasksRequired)
}

func (h *AdminHandler) depositDecision(approve bool) func(ctx context.Context, actor string, args []string) string {
	decide, verb, usage := h.wallet.RejectDeposit, "rejected", "/reject_deposit <deposit_id>"
	if approve {
		decide, verb, usage = h.wallet.ApproveDeposit, "approved", "/approve_deposit <deposit_id>"
	}
	return func(ctx context.Context, actor string, args []string) string {
		id, errMsg := parseID(args, usage)
		if errMsg != "" {
			return errMsg
		}
		deposit, err := decide(ctx, actor, id)
		if err != nil {
			return failure(err)
		}
		return fmt.Sprintf("✅ Deposit %d of user %d %s: %s",
			deposit.ID, deposit.UserID, verb, deposit.Amount.StringFixed(2))
	}
}

func (h *AdminHandler) withdrawalDecision(approve bool) func(ctx context.Context, actor string, args []string) string {
	decide, verb, usage := h.wallet.RejectWithdrawal, "rejected", "/reject_withdrawal <withdrawal_id>"
	if approve {
		decide, verb, usage = h.wallet.ApproveWithdrawal, "approved", "/approve_withdrawal <withdrawal_id>"
	}
	return func(ctx context.Context, actor string, args []string) string {
		id, errMsg := parseID(args, usage)
		if errMsg != "" {
			return errMsg
		}
		withdrawal, err := decide(ctx, actor, id)
		if err != nil {
			return failure(err)
		}
		return fmt.Sprintf("✅ Withdrawal %d of user %d %s: %s to %s",
			withdrawal.ID, withdrawal.UserID, verb, withdrawal.Amount.StringFixed(2), withdrawal.Address)
	}
}

func (h *AdminHandler) adjust(ctx context.Context, actor string, args []string) string {
	const usage = "❌ Usage: /adjust <user_id> <amount> [main|training|frozen] [note]\nExample: /adjust 42 -12.50 main correction"
	if len(args) < 2 {
		return usage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return "❌ User ID must be a positive number"
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return "❌ Amount must be a decimal number"
	}

	account := model.AccountMain
	rest := args[2:]
	if len(rest) > 0 {
		if parsed, err := model.ParseAccount(rest[0]); err == nil {
			account = parsed
			rest = rest[1:]
		}
	}

	balance, err := h.wallet.AdjustBalance(ctx, actor, service.AdjustInput{
		UserID:  userID,
		Account: account,
		Amount:  amount,
		Note:    strings.Join(rest, " "),
	})
	if err != nil {
		return failure(err)
	}
	return fmt.Sprintf("✅ User %d %s adjusted by %s\n💰 Balance: %s",
		userID, account, amount.StringFixed(2), balance.StringFixed(2))
}

func (h *AdminHandler) reconcile(ctx context.Context, _ string, _ []string) string {
	mismatches, err := h.ledger.Reconcile(ctx)
	if err != nil {
		return failure(err)
	}
	if len(mismatches) == 0 {
		return "✅ All balances match the ledger"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ %d mismatches", len(mismatches))
	for _, m := range mismatches {
		fmt.Fprintf(&b, "\nuser %d %s: cached %s, ledger %s",
			m.UserID, m.Account, m.Cached.StringFixed(2), m.LedgerSum.StringFixed(2))
	}
	return b.String()
}

// parseID reads a positive ID from the first argument.
func parseID(args []string, usage string) (int64, string) {
	if len(args) < 1 {
		return 0, "❌ Usage: " + usage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "❌ ID must be a positive number"
	}
	return id, ""
}

// failure turns a service error into a reply. Infrastructure errors are logged
// and not shown.
func failure(err error) string {
	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrNotFound):
		return "❌ Not found"
	case errors.Is(err, service.ErrNoActiveSession):
		return "❌ No active drive session"
	case errors.Is(err, service.ErrDepositNotPending), errors.Is(err, service.ErrWithdrawalNotPending):
		return "❌ Request already decided"
	case errors.Is(err, service.ErrInsufficientBalance):
		return "❌ Balance would become negative"
	case errors.Is(err, service.ErrInvalidAmount):
		return "❌ Amount must not be zero"
	case errors.Is(err, service.ErrConcurrencyConflict):
		return "❌ Concurrent update, please retry"
	case errors.Is(err, service.ErrNoConfiguration):
		return "❌ Tier has no policy configured"
	}
	log.Error().Err(err).Msg("Admin command failed")
	return "❌ Operation failed, please retry later"
}
