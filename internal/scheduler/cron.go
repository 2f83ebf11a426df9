// Package scheduler runs the periodic maintenance jobs of the ledger.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"drive-ledger/internal/config"
	"drive-ledger/internal/metrics"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

// Job names, also used as metric labels.
const (
	JobReconcile     = "reconcile"
	JobAbandonStale  = "abandon_stale"
	JobFreezeInspect = "freeze_inspect"
)

// Reconciler compares cached balances with the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]repository.Mismatch, error)
}

// StaleAbandoner closes drive sessions nobody touched for a while.
type StaleAbandoner interface {
	AbandonStale(ctx context.Context, before time.Time) ([]int64, error)
}

// FreezeInspector reports freeze flags that disagree with the policy.
type FreezeInspector interface {
	Inspect(ctx context.Context) (*service.FreezeReport, error)
}

// Alerter receives findings that need an operator.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.SchedulerConfig
	ledger    Reconciler
	drives    StaleAbandoner
	inspector FreezeInspector
	alerter   Alerter
	now       func() time.Time
}

// NewScheduler creates a new Scheduler instance. alerter may be nil.
func NewScheduler(cfg config.SchedulerConfig, ledger Reconciler, drives StaleAbandoner, inspector FreezeInspector, alerter Alerter) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		cfg:       cfg,
		ledger:    ledger,
		drives:    drives,
		inspector: inspector,
		alerter:   alerter,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{JobReconcile, s.cfg.ReconcileSpec, s.reconcile},
		{JobAbandonStale, s.cfg.StaleSpec, s.abandonStale},
		{JobFreezeInspect, s.cfg.FreezeSpec, s.inspectFreeze},
	}

	for _, job := range jobs {
		if strings.TrimSpace(job.spec) == "" {
			log.Info().Str("job", job.name).Msg("Scheduler job disabled")
			continue
		}
		name, fn := job.name, job.fn
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(name, fn) }); err != nil {
			return fmt.Errorf("failed to add %s job: %w", name, err)
		}
	}

	s.cron.Start()
	log.Info().Msg("Cron scheduler started")
	return nil
}

// Stop stops the runner and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Cron scheduler stopped")
}

// run executes one job with the configured timeout and records its result.
func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	start := s.now()
	err := fn(ctx)
	if err != nil {
		metrics.SchedulerRuns.WithLabelValues(name, "error").Inc()
		log.Error().Err(err).Str("job", name).Msg("Scheduler job failed")
		return
	}
	metrics.SchedulerRuns.WithLabelValues(name, "ok").Inc()
	log.Debug().Str("job", name).Dur("duration", s.now().Sub(start)).Msg("Scheduler job finished")
}

func (s *Scheduler) reconcile(ctx context.Context) error {
	mismatches, err := s.ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ledger reconciliation found %d mismatches:", len(mismatches))
	for i, m := range mismatches {
		if i == 10 {
			fmt.Fprintf(&b, "\n... and %d more", len(mismatches)-i)
			break
		}
		fmt.Fprintf(&b, "\nuser %d %s: cached %s, ledger %s",
			m.UserID, m.Account, m.Cached.StringFixed(2), m.LedgerSum.StringFixed(2))
	}
	s.alert(ctx, b.String())
	return nil
}

func (s *Scheduler) abandonStale(ctx context.Context) error {
	if s.cfg.StaleAfter <= 0 {
		return nil
	}
	_, err := s.drives.AbandonStale(ctx, s.now().Add(-s.cfg.StaleAfter))
	return err
}

func (s *Scheduler) inspectFreeze(ctx context.Context) error {
	report, err := s.inspector.Inspect(ctx)
	if err != nil {
		return err
	}
	if len(report.FrozenAboveMinimum) == 0 && len(report.ActiveBelowMinimum) == 0 {
		return nil
	}
	s.alert(ctx, fmt.Sprintf("Freeze flags out of policy: %d frozen above minimum %v, %d active below minimum %v",
		len(report.FrozenAboveMinimum), report.FrozenAboveMinimum,
		len(report.ActiveBelowMinimum), report.ActiveBelowMinimum))
	return nil
}

func (s *Scheduler) alert(ctx context.Context, text string) {
	log.Warn().Msg(text)
	if s.alerter != nil {
		s.alerter.Alert(ctx, text)
	}
}

// cronLogger routes cron's own logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
