package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"drive-ledger/internal/api"
	"drive-ledger/internal/auth"
	"drive-ledger/internal/bot"
	"drive-ledger/internal/config"
	"drive-ledger/internal/pkg/db"
	"drive-ledger/internal/pkg/lock"
	"drive-ledger/internal/policy"
	"drive-ledger/internal/scheduler"
	"drive-ledger/internal/service"
)

// app holds the wired services shared by the commands.
type app struct {
	pool   *db.Pool
	drive  *service.DriveService
	wallet *service.WalletService
	users  *service.AccountService
	ledger *service.LedgerService
	guard  *service.BalanceGuard
	stats  *service.StatsService
	audit  *service.Auditor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	policies, drives, err := policy.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid drive policy: %w", err)
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := service.NewStore(pool)
	audit := service.NewAuditor(store.Audit)
	ledger := service.NewLedgerService(store)
	guard := service.NewBalanceGuard(store, policies, audit, nil)
	locks := lock.NewUserLock()

	a := &app{
		pool:   pool,
		drive:  service.NewDriveService(store, policies, ledger, guard, audit, locks),
		wallet: service.NewWalletService(store, ledger, guard, audit, locks),
		users:  service.NewAccountService(store, policies, ledger, audit),
		ledger: ledger,
		guard:  guard,
		stats:  service.NewStatsService(store.Ledger, cfg.Server.Location()),
		audit:  audit,
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	if err := a.drive.SeedConfigurations(ctx, drives); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to seed drive configurations: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, maintenance jobs and the admin bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var alerter scheduler.Alerter
			if cfg.Bot.Enabled() {
				telegramBot, err := bot.New(&bot.Dependencies{
					Config:   cfg,
					Accounts: a.users,
					Guard:    a.guard,
					Drives:   a.drive,
					Wallet:   a.wallet,
					Ledger:   a.ledger,
					Stats:    a.stats,
				})
				if err != nil {
					return err
				}
				a.guard.SetNotifier(telegramBot.Notifier())
				alerter = telegramBot.Notifier()

				go telegramBot.Start()
				defer telegramBot.Stop()
			} else {
				log.Info().Msg("Telegram bot disabled")
			}

			if cfg.Scheduler.Enabled {
				jobs := scheduler.NewScheduler(cfg.Scheduler, a.ledger, a.drive, a.guard, alerter)
				if err := jobs.Start(); err != nil {
					return err
				}
				defer jobs.Stop()
			}

			server := api.New(cfg.Server, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer), api.Services{
				Drive:    a.drive,
				Wallet:   a.wallet,
				Accounts: a.users,
				Ledger:   a.ledger,
				Guard:    a.guard,
				Stats:    a.stats,
				Audit:    a.audit,
				Health:   a.pool,
			})
			if err := server.Run(ctx); err != nil {
				return err
			}
			log.Info().Msg("Service stopped gracefully")
			return nil
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed drive configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			a.Close()
			log.Info().Msg("Database is up to date")
			return nil
		},
	}
}

func newReconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached balances with the ledger and print mismatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			mismatches, err := a.ledger.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"consistent": len(mismatches) == 0, "mismatches": mismatches}); err != nil {
				return err
			}
			if len(mismatches) > 0 {
				return fmt.Errorf("%d balances differ from the ledger", len(mismatches))
			}
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID  int64
		admin   bool
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a user or an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			role := auth.RoleUser
			if admin {
				role = auth.RoleAdmin
				if subject == "" {
					return errors.New("--subject is required for admin tokens")
				}
			} else if userID <= 0 {
				return errors.New("--user must be a positive user id")
			}

			token, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(userID, role, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id the token acts for")
	cmd.Flags().BoolVar(&admin, "admin", false, "issue an admin token")
	cmd.Flags().StringVar(&subject, "subject", "", "admin identity recorded in the audit trail")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
