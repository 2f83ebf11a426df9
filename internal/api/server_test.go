package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-ledger/internal/auth"
	"drive-ledger/internal/config"
	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

// fakeDrive records calls and returns canned results.
type fakeDrive struct {
	saveIn    service.SaveOrderInput
	saveErr   error
	startErr  error
	resetBy   string
	replayed  bool
	configIn  model.DriveConfiguration
	productIn string
	activeIn  *bool
}

func (f *fakeDrive) StartDrive(_ context.Context, userID int64) (*service.StartResult, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &service.StartResult{Session: &model.DriveSession{ID: 7, UserID: userID, Status: model.SessionActive, TasksRequired: 3}}, nil
}

func (f *fakeDrive) NextAssignment(context.Context, int64) (*service.Assignment, error) {
	return nil, service.ErrNoEligibleProduct
}

func (f *fakeDrive) SaveOrder(_ context.Context, in service.SaveOrderInput) (*service.SaveOrderResult, error) {
	f.saveIn = in
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &service.SaveOrderResult{
		Order:    &model.DriveOrder{SessionID: in.SessionID, SlotIndex: in.SlotIndex},
		Session:  &model.DriveSession{ID: in.SessionID},
		Replayed: f.replayed,
	}, nil
}

func (f *fakeDrive) GetProgress(context.Context, int64) (*service.Progress, error) {
	return nil, service.ErrNoActiveSession
}

func (f *fakeDrive) ListOrders(context.Context, int64) ([]*model.DriveOrder, error) {
	return []*model.DriveOrder{}, nil
}

func (f *fakeDrive) ResetDrive(_ context.Context, actor string, userID int64) (*model.DriveSession, error) {
	f.resetBy = actor
	return &model.DriveSession{ID: 1, UserID: userID, Status: model.SessionAbandoned}, nil
}

func (f *fakeDrive) CreateProduct(_ context.Context, _ string, name string, price decimal.Decimal) (*model.Product, error) {
	f.productIn = name
	return &model.Product{ID: 3, Name: name, UnitPrice: price, IsActive: true}, nil
}

func (f *fakeDrive) SetProductActive(_ context.Context, _ string, id int64, active bool) (*model.Product, error) {
	if id != 3 {
		return nil, service.ErrProductNotFound
	}
	f.activeIn = &active
	return &model.Product{ID: 3, Name: "Lamp", IsActive: active}, nil
}

func (f *fakeDrive) UpdateConfiguration(_ context.Context, _ string, c model.DriveConfiguration) (*model.DriveConfiguration, error) {
	f.configIn = c
	return &c, nil
}

type fakeWallet struct {
	adjustIn service.AdjustInput
	approved int64
}

func (f *fakeWallet) RequestDeposit(_ context.Context, userID int64, amount decimal.Decimal) (*model.Deposit, error) {
	return &model.Deposit{ID: 1, UserID: userID, Amount: amount, Status: model.RequestPending}, nil
}

func (f *fakeWallet) ApproveDeposit(_ context.Context, _ string, id int64) (*model.Deposit, error) {
	f.approved = id
	return &model.Deposit{ID: id, Status: model.RequestApproved}, nil
}

func (f *fakeWallet) RejectDeposit(_ context.Context, _ string, id int64) (*model.Deposit, error) {
	return nil, service.ErrDepositNotPending
}

func (f *fakeWallet) SetWithdrawPassword(_ context.Context, _ int64, password string) error {
	if len(password) < 6 {
		return service.ErrWeakPassword
	}
	return nil
}

func (f *fakeWallet) RequestWithdrawal(context.Context, service.WithdrawalInput) (*model.Withdrawal, error) {
	return nil, service.ErrInsufficientBalance
}

func (f *fakeWallet) ApproveWithdrawal(_ context.Context, _ string, id int64) (*model.Withdrawal, error) {
	return &model.Withdrawal{ID: id, Status: model.RequestApproved}, nil
}

func (f *fakeWallet) RejectWithdrawal(_ context.Context, _ string, id int64) (*model.Withdrawal, error) {
	return &model.Withdrawal{ID: id, Status: model.RequestRejected}, nil
}

func (f *fakeWallet) AdjustBalance(_ context.Context, _ string, in service.AdjustInput) (decimal.Decimal, error) {
	f.adjustIn = in
	return in.Amount, nil
}

type fakeAccounts struct{}

func (fakeAccounts) Register(_ context.Context, _ string, in service.RegisterInput) (*model.User, error) {
	return &model.User{ID: 9, Username: in.Username, Tier: in.Tier}, nil
}

func (fakeAccounts) GetUser(_ context.Context, id int64) (*model.User, error) {
	if id != 42 {
		return nil, service.ErrUserNotFound
	}
	return &model.User{ID: 42, Username: "alice", MainBalance: decimal.RequireFromString("12.50")}, nil
}

func (fakeAccounts) ChangeTier(_ context.Context, _ string, id int64, tier model.Tier) (*model.User, error) {
	switch {
	case id != 42:
		return nil, service.ErrUserNotFound
	case tier == model.TierPlatinum:
		return nil, service.ErrNoConfiguration
	}
	return &model.User{ID: 42, Username: "alice", Tier: tier}, nil
}

type fakeLedger struct{}

func (fakeLedger) History(context.Context, int64, int) ([]*model.LedgerEntry, error) {
	return nil, fmt.Errorf("%w: boom", service.ErrPersistenceFailure)
}

func (fakeLedger) Reconcile(context.Context) ([]repository.Mismatch, error) {
	return nil, nil
}

type fakeGuard struct{ unfrozen []int64 }

func (f *fakeGuard) ForceUnfreeze(_ context.Context, _ string, userID int64, _ string) error {
	f.unfrozen = append(f.unfrozen, userID)
	return nil
}

func (f *fakeGuard) Inspect(context.Context) (*service.FreezeReport, error) {
	return &service.FreezeReport{}, nil
}

type fakeStats struct{ date time.Time }

func (f *fakeStats) DailyTopEarners(_ context.Context, date time.Time, _ int) ([]*model.DailyEarner, error) {
	f.date = date
	return []*model.DailyEarner{}, nil
}

type fakeAudit struct{}

func (fakeAudit) History(context.Context, int64, int) ([]*model.AuditEntry, error) {
	return []*model.AuditEntry{}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

type testServer struct {
	handler http.Handler
	tokens  *auth.Tokens
	drive   *fakeDrive
	wallet  *fakeWallet
	guard   *fakeGuard
	stats   *fakeStats
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		tokens: auth.NewTokens("test-secret", "driveledger"),
		drive:  &fakeDrive{},
		wallet: &fakeWallet{},
		guard:  &fakeGuard{},
		stats:  &fakeStats{},
	}
	srv := New(config.ServerConfig{RequestTimeout: 5 * time.Second}, ts.tokens, Services{
		Drive:    ts.drive,
		Wallet:   ts.wallet,
		Accounts: fakeAccounts{},
		Ledger:   fakeLedger{},
		Guard:    ts.guard,
		Stats:    ts.stats,
		Audit:    fakeAudit{},
		Health:   fakeHealth{},
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) userToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := ts.tokens.Issue(userID, auth.RoleUser, "", time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := ts.tokens.Issue(0, auth.RoleAdmin, "ops-root", time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/healthz", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "driveledger_http_requests_total")
}

func TestAuth_Required(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/drive/start", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, env.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/drive/start", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, env.Code)
}

func TestAuth_AdminRoutesRejectUsers(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodPost, "/api/admin/users/5/unfreeze", ts.userToken(t, 5), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, env.Code)
	assert.Empty(t, ts.guard.unfrozen)
}

func TestAuth_AdminTokenCannotUseUserRoutes(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodPost, "/api/drive/start", ts.adminToken(t), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, env.Code)
}

func TestStartDrive(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/drive/start", ts.userToken(t, 42), "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, CodeOK, env.Code)

	ts.drive.startErr = service.ErrAlreadyActive
	rec, env = ts.do(t, http.MethodPost, "/api/drive/start", ts.userToken(t, 42), "{}")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, CodeAlreadyActive, env.Code)
}

func TestSaveOrder(t *testing.T) {
	ts := newTestServer(t)
	token := ts.userToken(t, 42)

	rec, env := ts.do(t, http.MethodPost, "/api/drive/saveorder", token,
		`{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": "200.00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, int64(42), ts.drive.saveIn.UserID)
	assert.Equal(t, 0, ts.drive.saveIn.SlotIndex)
	assert.True(t, ts.drive.saveIn.PurchasePrice.Equal(decimal.NewFromInt(200)))

	ts.drive.replayed = true
	rec, _ = ts.do(t, http.MethodPost, "/api/drive/saveorder", token,
		`{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": 200}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaveOrder_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	token := ts.userToken(t, 42)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"unknown field", `{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": 200, "extra": 1}`},
		{"missing slot", `{"session_id": 7, "product_id": 3, "purchase_price": 200}`},
		{"negative slot", `{"session_id": 7, "slot_index": -1, "product_id": 3, "purchase_price": 200}`},
		{"zero price", `{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": 0}`},
		{"sub-cent price", `{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": "10.001"}`},
		{"not json", `slot=0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/drive/saveorder", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeBadRequest, env.Code)
		})
	}
}

func TestSaveOrder_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: expected slot 0, got 2", service.ErrInvalidSlot), http.StatusConflict, CodeInvalidSlot},
		{fmt.Errorf("%w: price", service.ErrOutOfPolicy), http.StatusUnprocessableEntity, CodeOutOfPolicy},
		{service.ErrAccountFrozen, http.StatusForbidden, CodeAccountFrozen},
		{service.ErrNoActiveSession, http.StatusConflict, CodeNoActiveSession},
		{fmt.Errorf("%w: save_order", service.ErrConcurrencyConflict), http.StatusConflict, CodeConcurrencyConflict},
		{fmt.Errorf("%w: save_order: %w", service.ErrPersistenceFailure, errors.New("conn reset")), http.StatusInternalServerError, CodePersistenceFailure},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ts := newTestServer(t)
			ts.drive.saveErr = tt.err
			rec, env := ts.do(t, http.MethodPost, "/api/drive/saveorder", ts.userToken(t, 42),
				`{"session_id": 7, "slot_index": 0, "product_id": 3, "purchase_price": 200}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, env.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestPersistenceFailureHidesDetail(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/api/user/ledger?limit=5", ts.userToken(t, 42), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodePersistenceFailure, env.Code)
	assert.NotContains(t, env.Info, "boom")
}

func TestUserRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.userToken(t, 42)

	rec, env := ts.do(t, http.MethodGet, "/api/user/me", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, "12.5", data["main_balance"])
	assert.NotContains(t, data, "withdraw_password_hash")

	rec, _ = ts.do(t, http.MethodPost, "/api/user/deposit/request", token, `{"amount": "20"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/user/withdraw/request", token,
		`{"amount": "500", "address": "TRX1", "password": "secret1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeInsufficientBalance, env.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/user/password/withdraw", token, `{"password": "123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, env.Code)

	rec, env = ts.do(t, http.MethodGet, "/api/drive/progress", token, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeNoActiveSession, env.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/drive/getorder", token, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeNoEligibleProduct, env.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/admin/users/5/unfreeze", token, `{"reason": "manual review"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5}, ts.guard.unfrozen)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/users/5/reset-drive", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-root", ts.drive.resetBy)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/users/5/adjust", token, `{"account": "training", "amount": "-2.50", "note": "fix"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.AccountTraining, ts.wallet.adjustIn.Account)
	assert.True(t, ts.wallet.adjustIn.Amount.Equal(decimal.RequireFromString("-2.5")))

	rec, env := ts.do(t, http.MethodPost, "/api/admin/users/5/adjust", token, `{"account": "savings", "amount": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, env.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/deposits/11/approve", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(11), ts.wallet.approved)

	rec, env = ts.do(t, http.MethodPost, "/api/admin/deposits/11/reject", token, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, env.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/withdrawals/4/reject", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(t, http.MethodPost, "/api/admin/users/abc/unfreeze", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, env.Code)

	rec, env = ts.do(t, http.MethodGet, "/api/admin/users/7", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, env.Code)
}

func TestAdminRegister(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, env := ts.do(t, http.MethodPost, "/api/admin/users", token, `{"username": "bob", "tier": "Gold"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gold", data["tier"])

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/users", token, `{"username": "bob", "tier": "diamond"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminProductsAndConfigurations(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/admin/products", token, `{"name": "Lamp", "unit_price": "49.90"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Lamp", ts.drive.productIn)

	rec, _ = ts.do(t, http.MethodPut, "/api/admin/configurations/silver", token,
		`{"tasks_required": 40, "min_price": "20", "max_price": "1500", "min_quantity": 1, "max_quantity": 5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TierSilver, ts.drive.configIn.Tier)
	assert.Equal(t, 40, ts.drive.configIn.TasksRequired)

	rec, _ = ts.do(t, http.MethodPut, "/api/admin/configurations/silver", token,
		`{"tasks_required": 40, "min_price": "20", "max_price": "10", "min_quantity": 1, "max_quantity": 5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateProduct(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, env := ts.do(t, http.MethodPatch, "/api/admin/products/3", token, `{"is_active": false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.drive.activeIn)
	assert.False(t, *ts.drive.activeIn)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["is_active"])

	rec, _ = ts.do(t, http.MethodPatch, "/api/admin/products/3", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = ts.do(t, http.MethodPatch, "/api/admin/products/9999", token, `{"is_active": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, env.Code)

	rec, _ = ts.do(t, http.MethodPatch, "/api/admin/products/3", ts.userToken(t, 42), `{"is_active": false}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminChangeTier(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, env := ts.do(t, http.MethodPut, "/api/admin/users/42/tier", token, `{"tier": "Silver"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "silver", data["tier"])

	rec, _ = ts.do(t, http.MethodPut, "/api/admin/users/42/tier", token, `{"tier": "diamond"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/admin/users/42/tier", token, `{"tier": "platinum"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeNoConfiguration, env.Code)

	rec, env = ts.do(t, http.MethodPut, "/api/admin/users/7/tier", token, `{"tier": "gold"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, env.Code)
}

func TestAdminDailyStats(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/admin/stats/daily?date=2026-03-14&limit=5", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-14", ts.stats.date.Format(dateLayout))

	rec, _ = ts.do(t, http.MethodGet, "/api/admin/stats/daily?date=14/03/2026", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReconcile(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/api/admin/reconcile", ts.adminToken(t), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["consistent"])
}

func TestStatusOf_Unknown(t *testing.T) {
	status, code := statusOf(errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodePersistenceFailure, code)

	status, code = statusOf(fmt.Errorf("%w: %w", service.ErrPersistenceFailure, context.DeadlineExceeded))
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, CodeTimeout, code)
}
