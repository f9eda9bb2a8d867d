package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nregatrack/nrega-sync/internal/metrics"
	"github.com/nregatrack/nrega-sync/internal/monitoring"
	"github.com/nregatrack/nrega-sync/internal/server"
	"github.com/nregatrack/nrega-sync/internal/syncer"
)

const shutdownTimeout = 15 * time.Second

var (
	schedulePort       int
	scheduleRunOnStart bool
	scheduleMigrate    bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run syncs on a cron schedule with an ops HTTP server",
	Long: `Runs a scheduled sync on sync.schedule (default daily at 02:00) and serves
/health, /sync/runs and /metrics until interrupted. A sync still running
when the next slot fires is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		spec := cfg.Sync.Schedule
		if _, err := cron.ParseStandard(spec); err != nil {
			return eris.Wrapf(err, "schedule: parse %q", spec)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mc := metrics.NewCollector(reg)

		env, err := initSyncEnv(ctx, scheduleMigrate, mc)
		if err != nil {
			return err
		}
		defer env.Close()

		sched := newScheduler(ctx, env.Engine)
		log := zap.L().With(zap.String("component", "scheduler"))
		cl := cronLogger{log: log.Sugar()}
		c := cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		)
		if _, err := c.AddFunc(spec, func() { sched.run(syncer.SyncTypeScheduled) }); err != nil {
			return eris.Wrap(err, "schedule: add job")
		}

		port := schedulePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := server.New(fmt.Sprintf(":%d", port), server.Options{
			Runs:     env.Store,
			Trigger:  sched,
			Gatherer: reg,
		})

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		c.Start()
		log.Info("scheduler started", zap.String("schedule", spec), zap.Int("port", port))
		if scheduleRunOnStart {
			sched.TriggerSync()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			err := srv.Stop(shutdownCtx)
			<-c.Stop().Done()
			sched.wait()
			return err
		})
		return g.Wait()
	},
}

func init() {
	scheduleCmd.Flags().IntVar(&schedulePort, "port", 0, "ops server port (default from config)")
	scheduleCmd.Flags().BoolVar(&scheduleRunOnStart, "run-now", false, "start a sync immediately")
	scheduleCmd.Flags().BoolVar(&scheduleMigrate, "migrate", false, "apply schema migrations before starting")
	rootCmd.AddCommand(scheduleCmd)
}

// runner is the part of the engine the scheduler drives.
type runner interface {
	Run(ctx context.Context, opts syncer.RunOpts) (*syncer.Summary, error)
}

// scheduler runs at most one sync at a time for both cron slots and manual
// triggers.
type scheduler struct {
	ctx     context.Context
	engine  runner
	running atomic.Bool
	wg      sync.WaitGroup
	log     *zap.Logger
}

func newScheduler(ctx context.Context, engine runner) *scheduler {
	return &scheduler{
		ctx:    ctx,
		engine: engine,
		log:    zap.L().With(zap.String("component", "scheduler")),
	}
}

// TriggerSync starts a scheduled-type run in the background. It returns
// false when a run is already in progress.
func (s *scheduler) TriggerSync() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.execute(syncer.SyncTypeScheduled)
	}()
	return true
}

// run executes one sync in the caller's goroutine unless one is active.
func (s *scheduler) run(syncType string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Info("sync already running, skipping slot")
		return false
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.running.Store(false)
	s.execute(syncType)
	return true
}

func (s *scheduler) execute(syncType string) {
	summary, err := s.engine.Run(s.ctx, syncer.RunOpts{SyncType: syncType})
	var logErr *syncer.RunLogError
	switch {
	case errors.As(err, &logErr):
		s.log.Warn("scheduled sync finished but the sync log could not be updated",
			zap.Int64("run_id", logErr.RunID),
			zap.String("status", string(logErr.Status)),
			zap.Error(logErr.Err),
		)
		return
	case err != nil:
		s.log.Error("scheduled sync failed", zap.Error(err))
		return
	}
	s.log.Info("scheduled sync complete",
		zap.Int64("run_id", summary.RunID),
		zap.Int64("added", summary.Added),
		zap.Int64("updated", summary.Updated),
		zap.Int("failed_pairs", len(summary.FailedPairs)),
	)
}

func (s *scheduler) wait() {
	s.wg.Wait()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
