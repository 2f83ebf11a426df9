package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

type fakeAdmin struct {
	err error

	actor    string
	userID   int64
	reason   string
	decided  int64
	adjusted service.AdjustInput
	tier     model.Tier
	mismatch []repository.Mismatch
}

func (f *fakeAdmin) GetUser(_ context.Context, userID int64) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{
		ID:              userID,
		Username:        "alice",
		Tier:            model.TierSilver,
		MainBalance:     decimal.RequireFromString("12.5"),
		TrainingBalance: decimal.Zero,
		FrozenBalance:   decimal.RequireFromString("100"),
		IsFrozen:        true,
	}, nil
}

func (f *fakeAdmin) ChangeTier(_ context.Context, actor string, userID int64, tier model.Tier) (*model.User, error) {
	f.actor, f.userID, f.tier = actor, userID, tier
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: userID, Username: "alice", Tier: tier}, nil
}

func (f *fakeAdmin) ForceUnfreeze(_ context.Context, actor string, userID int64, reason string) error {
	f.actor, f.userID, f.reason = actor, userID, reason
	return f.err
}

func (f *fakeAdmin) ResetDrive(_ context.Context, actor string, userID int64) (*model.DriveSession, error) {
	f.actor, f.userID = actor, userID
	if f.err != nil {
		return nil, f.err
	}
	return &model.DriveSession{ID: 5, UserID: userID, TasksCompleted: 2, TasksRequired: 40}, nil
}

func (f *fakeAdmin) deposit(actor string, id int64, status model.RequestStatus) (*model.Deposit, error) {
	f.actor, f.decided = actor, id
	if f.err != nil {
		return nil, f.err
	}
	return &model.Deposit{ID: id, UserID: 3, Amount: decimal.RequireFromString("20"), Status: status}, nil
}

func (f *fakeAdmin) ApproveDeposit(_ context.Context, actor string, id int64) (*model.Deposit, error) {
	return f.deposit(actor, id, model.RequestApproved)
}

func (f *fakeAdmin) RejectDeposit(_ context.Context, actor string, id int64) (*model.Deposit, error) {
	return f.deposit(actor, id, model.RequestRejected)
}

func (f *fakeAdmin) withdrawal(actor string, id int64, status model.RequestStatus) (*model.Withdrawal, error) {
	f.actor, f.decided = actor, id
	if f.err != nil {
		return nil, f.err
	}
	return &model.Withdrawal{ID: id, UserID: 3, Amount: decimal.RequireFromString("15"), Address: "TXaddr", Status: status}, nil
}

func (f *fakeAdmin) ApproveWithdrawal(_ context.Context, actor string, id int64) (*model.Withdrawal, error) {
	return f.withdrawal(actor, id, model.RequestApproved)
}

func (f *fakeAdmin) RejectWithdrawal(_ context.Context, actor string, id int64) (*model.Withdrawal, error) {
	return f.withdrawal(actor, id, model.RequestRejected)
}

func (f *fakeAdmin) AdjustBalance(_ context.Context, actor string, in service.AdjustInput) (decimal.Decimal, error) {
	f.actor, f.adjusted = actor, in
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return decimal.RequireFromString("7.5"), nil
}

func (f *fakeAdmin) Reconcile(context.Context) ([]repository.Mismatch, error) {
	return f.mismatch, f.err
}

func newTestHandler(f *fakeAdmin) *AdminHandler {
	return NewAdminHandler(f, f, f, f, f)
}

func TestActor(t *testing.T) {
	assert.Equal(t, "telegram:42", Actor(42))
}

func TestUser(t *testing.T) {
	h := newTestHandler(&fakeAdmin{})
	reply := h.user(context.Background(), "telegram:1", []string{"9"})
	assert.Contains(t, reply, "alice (ID: 9)")
	assert.Contains(t, reply, "Main: 12.50")
	assert.Contains(t, reply, "State: FROZEN")
}

func TestUnfreeze_JoinsReason(t *testing.T) {
	f := &fakeAdmin{}
	h := newTestHandler(f)

	reply := h.unfreeze(context.Background(), "telegram:1", []string{"9", "manual", "review"})
	assert.Equal(t, "✅ User 9 unfrozen", reply)
	assert.Equal(t, "telegram:1", f.actor)
	assert.Equal(t, int64(9), f.userID)
	assert.Equal(t, "manual review", f.reason)
}

func TestSetTier(t *testing.T) {
	f := &fakeAdmin{}
	h := newTestHandler(f)
	ctx := context.Background()

	assert.Equal(t, "✅ User 9 moved to tier gold", h.setTier(ctx, "telegram:1", []string{"9", "Gold"}))
	assert.Equal(t, "telegram:1", f.actor)
	assert.Equal(t, model.TierGold, f.tier)

	f.tier = ""
	assert.Equal(t, "❌ Unknown tier diamond", h.setTier(ctx, "telegram:1", []string{"9", "diamond"}))
	assert.Empty(t, f.tier)

	f.err = service.ErrNoConfiguration
	assert.Equal(t, "❌ Tier has no policy configured", h.setTier(ctx, "telegram:1", []string{"9", "platinum"}))
}

func TestResetDrive(t *testing.T) {
	h := newTestHandler(&fakeAdmin{})
	reply := h.resetDrive(context.Background(), "telegram:1", []string{"9"})
	assert.Equal(t, "✅ Drive session 5 of user 9 reset after 2/40 tasks", reply)

	h = newTestHandler(&fakeAdmin{err: service.ErrNoActiveSession})
	assert.Equal(t, "❌ No active drive session", h.resetDrive(context.Background(), "telegram:1", []string{"9"}))
}

func TestDecisions(t *testing.T) {
	f := &fakeAdmin{}
	h := newTestHandler(f)
	ctx := context.Background()

	assert.Equal(t, "✅ Deposit 11 of user 3 approved: 20.00", h.depositDecision(true)(ctx, "a", []string{"11"}))
	assert.Equal(t, int64(11), f.decided)
	assert.Equal(t, "✅ Deposit 12 of user 3 rejected: 20.00", h.depositDecision(false)(ctx, "a", []string{"12"}))
	assert.Equal(t, "✅ Withdrawal 13 of user 3 approved: 15.00 to TXaddr", h.withdrawalDecision(true)(ctx, "a", []string{"13"}))
	assert.Equal(t, "✅ Withdrawal 14 of user 3 rejected: 15.00 to TXaddr", h.withdrawalDecision(false)(ctx, "a", []string{"14"}))

	f.err = service.ErrDepositNotPending
	assert.Equal(t, "❌ Request already decided", h.depositDecision(true)(ctx, "a", []string{"11"}))
}

func TestAdjust(t *testing.T) {
	f := &fakeAdmin{}
	h := newTestHandler(f)
	ctx := context.Background()

	reply := h.adjust(ctx, "telegram:1", []string{"9", "-2.5", "training", "bonus", "fix"})
	assert.Equal(t, "✅ User 9 training adjusted by -2.50\n💰 Balance: 7.50", reply)
	assert.Equal(t, model.AccountTraining, f.adjusted.Account)
	assert.Equal(t, "bonus fix", f.adjusted.Note)
	assert.True(t, f.adjusted.Amount.Equal(decimal.RequireFromString("-2.5")))

	// an unknown account word starts the note
	h.adjust(ctx, "telegram:1", []string{"9", "3", "refund", "order"})
	assert.Equal(t, model.AccountMain, f.adjusted.Account)
	assert.Equal(t, "refund order", f.adjusted.Note)
}

func TestArgumentErrors(t *testing.T) {
	h := newTestHandler(&fakeAdmin{})
	ctx := context.Background()

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"user no args", h.user(ctx, "a", nil), "❌ Usage: /user <user_id>"},
		{"set_tier no tier", h.setTier(ctx, "a", []string{"9"}), "❌ Usage: /set_tier <user_id> <tier>"},
		{"unfreeze bad id", h.unfreeze(ctx, "a", []string{"abc"}), "❌ ID must be a positive number"},
		{"reset zero id", h.resetDrive(ctx, "a", []string{"0"}), "❌ ID must be a positive number"},
		{"adjust bad amount", h.adjust(ctx, "a", []string{"9", "ten"}), "❌ Amount must be a decimal number"},
		{"adjust bad user", h.adjust(ctx, "a", []string{"x", "10"}), "❌ User ID must be a positive number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reply)
		})
	}
}

func TestFailureHidesInfrastructureErrors(t *testing.T) {
	reply := failure(errors.Join(service.ErrPersistenceFailure, errors.New("dial tcp: refused")))
	assert.Equal(t, "❌ Operation failed, please retry later", reply)
	assert.NotContains(t, reply, "dial")
	assert.Equal(t, "❌ Not found", failure(service.ErrUserNotFound))
	assert.Equal(t, "❌ Balance would become negative", failure(service.ErrInsufficientBalance))
}

func TestReconcile(t *testing.T) {
	f := &fakeAdmin{}
	h := newTestHandler(f)
	assert.Equal(t, "✅ All balances match the ledger", h.reconcile(context.Background(), "a", nil))

	f.mismatch = []repository.Mismatch{{
		UserID: 4, Account: model.AccountFrozen,
		Cached: decimal.RequireFromString("1"), LedgerSum: decimal.Zero,
	}}
	reply := h.reconcile(context.Background(), "a", nil)
	require.Contains(t, reply, "1 mismatches")
	assert.Contains(t, reply, "user 4 frozen: cached 1.00, ledger 0.00")
}
