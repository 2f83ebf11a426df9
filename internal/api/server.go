// Package api serves the drive ledger over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/config"
	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

// DriveService is the drive side of the API.
type DriveService interface {
	StartDrive(ctx context.Context, userID int64) (*service.StartResult, error)
	NextAssignment(ctx context.Context, userID int64) (*service.Assignment, error)
	SaveOrder(ctx context.Context, in service.SaveOrderInput) (*service.SaveOrderResult, error)
	GetProgress(ctx context.Context, userID int64) (*service.Progress, error)
	ListOrders(ctx context.Context, userID int64) ([]*model.DriveOrder, error)
	ResetDrive(ctx context.Context, actor string, userID int64) (*model.DriveSession, error)
	CreateProduct(ctx context.Context, actor, name string, unitPrice decimal.Decimal) (*model.Product, error)
	SetProductActive(ctx context.Context, actor string, productID int64, active bool) (*model.Product, error)
	UpdateConfiguration(ctx context.Context, actor string, c model.DriveConfiguration) (*model.DriveConfiguration, error)
}

// WalletService moves money in and out of user accounts.
type WalletService interface {
	RequestDeposit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Deposit, error)
	ApproveDeposit(ctx context.Context, actor string, depositID int64) (*model.Deposit, error)
	RejectDeposit(ctx context.Context, actor string, depositID int64) (*model.Deposit, error)
	SetWithdrawPassword(ctx context.Context, userID int64, password string) error
	RequestWithdrawal(ctx context.Context, in service.WithdrawalInput) (*model.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, actor string, withdrawalID int64) (*model.Withdrawal, error)
	AdjustBalance(ctx context.Context, actor string, in service.AdjustInput) (decimal.Decimal, error)
}

// AccountService manages users.
type AccountService interface {
	Register(ctx context.Context, actor string, in service.RegisterInput) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	ChangeTier(ctx context.Context, actor string, userID int64, tier model.Tier) (*model.User, error)
}

// LedgerService exposes ledger history and reconciliation.
type LedgerService interface {
	History(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error)
	Reconcile(ctx context.Context) ([]repository.Mismatch, error)
}

// GuardService holds the freeze overrides.
type GuardService interface {
	ForceUnfreeze(ctx context.Context, actor string, userID int64, reason string) error
	Inspect(ctx context.Context) (*service.FreezeReport, error)
}

// StatsService ranks daily earnings.
type StatsService interface {
	DailyTopEarners(ctx context.Context, date time.Time, limit int) ([]*model.DailyEarner, error)
}

// AuditService reads the admin audit trail.
type AuditService interface {
	History(ctx context.Context, userID int64, limit int) ([]*model.AuditEntry, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services bundles the dependencies of the handlers.
type Services struct {
	Drive    DriveService
	Wallet   WalletService
	Accounts AccountService
	Ledger   LedgerService
	Guard    GuardService
	Stats    StatsService
	Audit    AuditService
	Health   HealthChecker
}

// Server is the HTTP front of the drive ledger.
type Server struct {
	cfg    config.ServerConfig
	tokens TokenVerifier
	svc    Services
	mux    *chi.Mux
}

// New creates a Server and registers its routes.
func New(cfg config.ServerConfig, tokens TokenVerifier, svc Services) *Server {
	s := &Server{
		cfg:    cfg,
		tokens: tokens,
		svc:    svc,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(s.tokens))

		r.Route("/drive", func(r chi.Router) {
			r.Post("/start", s.handleStartDrive)
			r.Post("/getorder", s.handleGetOrder)
			r.Post("/saveorder", s.handleSaveOrder)
			r.Get("/progress", s.handleProgress)
			r.Get("/orders", s.handleOrders)
		})

		r.Route("/user", func(r chi.Router) {
			r.Get("/me", s.handleMe)
			r.Get("/ledger", s.handleLedger)
			r.Post("/deposit/request", s.handleDepositRequest)
			r.Post("/withdraw/request", s.handleWithdrawRequest)
			r.Put("/password/withdraw", s.handleWithdrawPassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Post("/users", s.handleRegister)
			r.Get("/users/{id}", s.handleAdminUser)
			r.Get("/users/{id}/audit", s.handleAdminAudit)
			r.Post("/users/{id}/reset-drive", s.handleResetDrive)
			r.Post("/users/{id}/unfreeze", s.handleUnfreeze)
			r.Post("/users/{id}/adjust", s.handleAdjust)
			r.Put("/users/{id}/tier", s.handleChangeTier)

			r.Post("/deposits/{id}/approve", s.handleDepositDecision(true))
			r.Post("/deposits/{id}/reject", s.handleDepositDecision(false))
			r.Post("/withdrawals/{id}/approve", s.handleWithdrawalDecision(true))
			r.Post("/withdrawals/{id}/reject", s.handleWithdrawalDecision(false))

			r.Post("/products", s.handleCreateProduct)
			r.Patch("/products/{id}", s.handleUpdateProduct)
			r.Put("/configurations/{tier}", s.handleUpdateConfiguration)

			r.Get("/stats/daily", s.handleDailyStats)
			r.Get("/reconcile", s.handleReconcile)
			r.Get("/freeze-report", s.handleFreezeReport)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health.HealthCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, CodePersistenceFailure, "database unreachable")
			return
		}
	}
	writeOK(w, http.StatusOK, map[string]any{"ok": true})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
