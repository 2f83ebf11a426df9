package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-ledger/internal/config"
	"drive-ledger/internal/metrics"
	"drive-ledger/internal/model"
	"drive-ledger/internal/repository"
	"drive-ledger/internal/service"
)

type fakeLedger struct {
	mismatches []repository.Mismatch
	err        error
}

func (f *fakeLedger) Reconcile(context.Context) ([]repository.Mismatch, error) {
	return f.mismatches, f.err
}

type fakeDrives struct {
	before time.Time
	calls  int
}

func (f *fakeDrives) AbandonStale(_ context.Context, before time.Time) ([]int64, error) {
	f.before = before
	f.calls++
	return []int64{1}, nil
}

type fakeInspector struct {
	report *service.FreezeReport
}

func (f *fakeInspector) Inspect(context.Context) (*service.FreezeReport, error) {
	return f.report, nil
}

type recordingAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (a *recordingAlerter) Alert(_ context.Context, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
}

func newTestScheduler(ledger *fakeLedger, drives *fakeDrives, inspector *fakeInspector, alerter *recordingAlerter) *Scheduler {
	s := NewScheduler(config.SchedulerConfig{
		ReconcileSpec: "*/15 * * * *",
		StaleSpec:     "5 * * * *",
		FreezeSpec:    "*/30 * * * *",
		StaleAfter:    72 * time.Hour,
		JobTimeout:    time.Minute,
	}, ledger, drives, inspector, alerter)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestReconcile_AlertsOnMismatch(t *testing.T) {
	alerter := &recordingAlerter{}
	ledger := &fakeLedger{mismatches: []repository.Mismatch{{
		UserID:    7,
		Account:   model.AccountMain,
		Cached:    decimal.RequireFromString("999"),
		LedgerSum: decimal.RequireFromString("10"),
	}}}
	s := newTestScheduler(ledger, &fakeDrives{}, &fakeInspector{report: &service.FreezeReport{}}, alerter)

	require.NoError(t, s.reconcile(context.Background()))
	require.Len(t, alerter.texts, 1)
	assert.Contains(t, alerter.texts[0], "user 7 main: cached 999.00, ledger 10.00")
}

func TestReconcile_TruncatesLongReports(t *testing.T) {
	alerter := &recordingAlerter{}
	ledger := &fakeLedger{}
	for i := 0; i < 25; i++ {
		ledger.mismatches = append(ledger.mismatches, repository.Mismatch{UserID: int64(i), Account: model.AccountMain})
	}
	s := newTestScheduler(ledger, &fakeDrives{}, &fakeInspector{}, alerter)

	require.NoError(t, s.reconcile(context.Background()))
	require.Len(t, alerter.texts, 1)
	assert.Equal(t, 11, strings.Count(alerter.texts[0], "\n"))
	assert.Contains(t, alerter.texts[0], "and 15 more")
}

func TestReconcile_QuietWhenConsistent(t *testing.T) {
	alerter := &recordingAlerter{}
	s := newTestScheduler(&fakeLedger{}, &fakeDrives{}, &fakeInspector{}, alerter)

	require.NoError(t, s.reconcile(context.Background()))
	assert.Empty(t, alerter.texts)
}

func TestAbandonStale_UsesCutoff(t *testing.T) {
	drives := &fakeDrives{}
	s := newTestScheduler(&fakeLedger{}, drives, &fakeInspector{}, nil)

	require.NoError(t, s.abandonStale(context.Background()))
	assert.Equal(t, 1, drives.calls)
	assert.Equal(t, time.Date(2026, 4, 28, 12, 0, 0, 0, time.UTC), drives.before)

	s.cfg.StaleAfter = 0
	require.NoError(t, s.abandonStale(context.Background()))
	assert.Equal(t, 1, drives.calls)
}

func TestInspectFreeze_Alerts(t *testing.T) {
	alerter := &recordingAlerter{}
	inspector := &fakeInspector{report: &service.FreezeReport{ActiveBelowMinimum: []int64{3, 4}}}
	s := newTestScheduler(&fakeLedger{}, &fakeDrives{}, inspector, alerter)

	require.NoError(t, s.inspectFreeze(context.Background()))
	require.Len(t, alerter.texts, 1)
	assert.Contains(t, alerter.texts[0], "2 active below minimum [3 4]")
}

func TestRun_RecordsResult(t *testing.T) {
	s := newTestScheduler(&fakeLedger{}, &fakeDrives{}, &fakeInspector{}, nil)

	okBefore := testutil.ToFloat64(metrics.SchedulerRuns.WithLabelValues("test_job", "ok"))
	errBefore := testutil.ToFloat64(metrics.SchedulerRuns.WithLabelValues("test_job", "error"))

	s.run("test_job", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	s.run("test_job", func(context.Context) error { return errors.New("boom") })

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.SchedulerRuns.WithLabelValues("test_job", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.SchedulerRuns.WithLabelValues("test_job", "error")))
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := newTestScheduler(&fakeLedger{}, &fakeDrives{}, &fakeInspector{}, nil)
	s.cfg.ReconcileSpec = "not a cron spec"
	assert.Error(t, s.Start())
}

func TestStart_SkipsEmptySpecs(t *testing.T) {
	s := newTestScheduler(&fakeLedger{}, &fakeDrives{}, &fakeInspector{}, nil)
	s.cfg.ReconcileSpec = ""
	s.cfg.StaleSpec = ""
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}
