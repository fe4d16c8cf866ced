package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rainbow979/sticky-mitten-avatar/internal/build"
	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
	"github.com/rainbow979/sticky-mitten-avatar/internal/config"
	"github.com/rainbow979/sticky-mitten-avatar/internal/logging"
	"github.com/rainbow979/sticky-mitten-avatar/internal/metrics"
	"github.com/rainbow979/sticky-mitten-avatar/internal/monitor"
	"github.com/rainbow979/sticky-mitten-avatar/internal/store"
	"github.com/rainbow979/sticky-mitten-avatar/internal/tasklog"
	"github.com/rainbow979/sticky-mitten-avatar/internal/ui"
	"github.com/rainbow979/sticky-mitten-avatar/sma"
)

// session wires one controller run: the build connection, the observer
// sinks, and the background goroutines that drain them.
type session struct {
	settings  config.Settings
	runID     string
	scenario  string
	startedAt string

	ctrl   *sma.Controller
	client *build.Client
	store  *store.Store
	logs   *tasklog.Registry
	runLog *tasklog.RunLog

	cancel   context.CancelFunc
	group    *errgroup.Group
	closeLog func()
}

// openSession connects to the build and starts the observability stack for
// one run. scenario names the run in the store and the run log ("repl" for
// interactive sessions).
func openSession(ctx context.Context, settings config.Settings, scenario string) (*session, error) {
	closeLog, err := logging.Setup(settings.LogLevel, settings.LogPath())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(settings.StoreDir())
	if err != nil {
		closeLog()
		return nil, err
	}

	runID := uuid.New().String()
	b := bus.New()
	logs := tasklog.NewRegistry(settings.RunLogDir())
	runLog := logs.Open(runID, scenario)
	mon := monitor.New(b.Tap(), settings.MonitorPath())
	disp := ui.New(b.Tap())

	// Background goroutines outlive individual tasks and stop at close().
	bgCtx, cancel := context.WithCancel(context.Background())
	g := new(errgroup.Group)
	g.Go(func() error { st.Run(bgCtx); return nil })
	g.Go(func() error { mon.Run(bgCtx); return nil })
	g.Go(func() error { disp.Run(bgCtx); return nil })
	if settings.MetricsAddr != "" {
		serveMetrics(bgCtx, g, settings.MetricsAddr)
	}

	fail := func(err error) (*session, error) {
		cancel()
		_ = g.Wait()
		logs.Close(runID, "aborted")
		closeLog()
		return nil, err
	}

	client, err := build.Dial(ctx, build.Config{
		Addr:        settings.BuildAddr,
		AvatarID:    settings.AvatarID,
		StepTimeout: settings.StepTimeout,
	})
	if err != nil {
		return fail(err)
	}

	ctrl, err := sma.New(ctx, client, sma.Config{
		MassCutoff: settings.MassCutoff,
		MaxSteps:   settings.MaxSteps,
		Observer: sma.Observer{
			Bus:     b,
			Log:     runLog,
			Store:   st,
			RunID:   runID,
			Metrics: metrics.Default(),
		},
	})
	if err != nil {
		client.Close()
		return fail(err)
	}

	s := &session{
		settings:  settings,
		runID:     runID,
		scenario:  scenario,
		startedAt: time.Now().UTC().Format(time.RFC3339),
		ctrl:      ctrl,
		client:    client,
		store:     st,
		logs:      logs,
		runLog:    runLog,
		cancel:    cancel,
		group:     g,
		closeLog:  closeLog,
	}
	if err := st.PutRun(s.meta("running")); err != nil {
		slog.Warn("[SMA] run metadata write failed", "error", err)
	}
	slog.Info("[SMA] session open",
		"run", runID, "scenario", scenario, "build", settings.BuildAddr, "avatar", settings.AvatarID)
	return s, nil
}

// close finalizes the run records, stops the background goroutines, and
// closes the build connection. The final metadata write happens before the
// cancel so the store is still accepting writes.
func (s *session) close(status string) {
	if err := s.store.PutRun(s.meta(status)); err != nil {
		slog.Warn("[SMA] run metadata write failed", "error", err)
	}
	s.logs.Close(s.runID, status)
	s.cancel()
	if err := s.group.Wait(); err != nil {
		slog.Warn("[SMA] background goroutine error", "error", err)
	}
	_ = s.client.Close()
	slog.Info("[SMA] session closed", "run", s.runID, "status", status)
	s.closeLog()
}

// meta builds the run's metadata record with the totals logged so far.
func (s *session) meta(status string) store.RunMeta {
	meta := store.RunMeta{
		ID:        s.runID,
		StartedAt: s.startedAt,
		Scenario:  s.scenario,
		Status:    status,
	}
	if stats := s.runLog.Stats(); stats != nil {
		meta.TotalSteps = stats.TotalSteps
		for _, n := range stats.TaskCounts {
			meta.Tasks += n
		}
	}
	return meta
}

// serveMetrics exposes /metrics on addr until ctx ends.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		slog.Info("[SMA] metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		return srv.Shutdown(shutCtx)
	})
}
