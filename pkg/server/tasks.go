package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/rcookie777/pizza-api/pkg/config"
)

// Job tags
const (
	jobRollup    = "rollup"
	jobRetention = "retention"
	jobBadgerGC  = "badger-gc"
	jobBroadcast = "broadcast"
)

const (
	// gcDiscardRatio reclaims a value log file once half of it is garbage
	gcDiscardRatio = 0.5

	// monitorAlertThreshold escalates the log level after this many failures
	monitorAlertThreshold = 3
)

// gcRunner is implemented by stores with a value log to collect
type gcRunner interface {
	RunGC(discardRatio float64) error
}

// Tasks runs the background jobs on a gocron scheduler.
type Tasks struct {
	server    *Server
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	maxRetries int
	backoff    time.Duration

	broadcastErrors int
}

// NewTasks creates the scheduler and registers every job without starting it.
func (s *Server) NewTasks(ctx context.Context) (*Tasks, error) {
	ctx, cancel := context.WithCancel(ctx)

	t := &Tasks{
		server:     s,
		scheduler:  gocron.NewScheduler(time.UTC),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: config.RollupMaxRetries,
		backoff:    config.RollupInitialBackoff,
	}
	// A slow run is never overlapped by the next tick
	t.scheduler.SingletonModeAll()

	if err := t.register(); err != nil {
		cancel()
		return nil, err
	}
	return t, nil
}

func (t *Tasks) register() error {
	cfg := t.server.cfg

	// Runs once immediately, then on schedule
	if _, err := t.scheduler.Every(cfg.RollupInterval).Tag(jobRollup).Do(func() {
		_ = t.RunRollup(t.ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule rollup: %w", err)
	}

	if cfg.Retention > 0 {
		if _, err := t.scheduler.Every(config.RetentionInterval).Tag(jobRetention).Do(func() {
			_ = t.RunRetention(t.ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule retention: %w", err)
		}
	}

	if gc, ok := t.server.backend.Store.(gcRunner); ok {
		if _, err := t.scheduler.Every(config.BadgerGCInterval).WaitForSchedule().Tag(jobBadgerGC).Do(func() {
			runGC(gc)
		}); err != nil {
			return fmt.Errorf("failed to schedule badger GC: %w", err)
		}
	}

	if _, err := t.scheduler.Every(config.BroadcastInterval).WaitForSchedule().Tag(jobBroadcast).Do(func() {
		t.RunBroadcast(t.ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule broadcast: %w", err)
	}

	return nil
}

// Start runs the scheduler in the background.
func (t *Tasks) Start() {
	t.scheduler.StartAsync()
	log.WithField("jobs", len(t.scheduler.Jobs())).Info("background tasks started")
}

// Stop cancels running jobs and stops the scheduler.
func (t *Tasks) Stop() {
	t.cancel()
	t.scheduler.Stop()
	log.Info("background tasks stopped")
}

// RunRollup recomputes recent rollups, retrying with exponential backoff.
func (t *Tasks) RunRollup(ctx context.Context) error {
	s := t.server
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoff * time.Duration(1<<(attempt-1))
			log.WithField("delay", delay).WithField("attempt", attempt+1).Info("retrying rollup")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, config.RollupTimeout)
		start := time.Now()
		result, err := s.roller.RollupRecent(runCtx, s.clock(), s.cfg.RollupLookback)
		cancel()

		if err == nil {
			s.rollupMonitor.RecordSuccess(time.Since(start))
			fields := logrus.Fields{
				"rows":     result.Rows,
				"duration": time.Since(start).Round(time.Millisecond).String(),
			}
			for unit, n := range result.Points {
				fields[string(unit)] = n
			}
			log.WithFields(fields).Info("rollup completed")
			return nil
		}

		lastErr = err
		s.rollupMonitor.RecordFailure(err)
		log.WithError(err).WithField("attempt", attempt+1).Warn("rollup failed")

		if n := s.rollupMonitor.ConsecutiveErrors(); n > monitorAlertThreshold {
			log.WithField("consecutive_errors", n).Error("rollup keeps failing")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	log.WithField("attempts", t.maxRetries+1).Error("rollup failed, will retry on next schedule")
	return lastErr
}

// RunRetention deletes raw measurements older than the retention period.
func (t *Tasks) RunRetention(ctx context.Context) error {
	s := t.server
	cutoff := s.clock().Add(-s.cfg.Retention)

	ctx, cancel := context.WithTimeout(ctx, config.RollupTimeout)
	defer cancel()

	start := time.Now()
	if err := s.backend.Store.Delete(ctx, cutoff); err != nil {
		log.WithError(err).Error("retention cleanup failed")
		return err
	}
	log.WithField("cutoff", cutoff.Format(time.RFC3339)).
		WithField("duration", time.Since(start).Round(time.Millisecond).String()).
		Info("retention cleanup completed")
	return nil
}

// RunBroadcast pushes the live index to WebSocket clients. Repeated
// failures are logged at increasing intervals.
func (t *Tasks) RunBroadcast(ctx context.Context) {
	err := t.server.broadcaster.Push(ctx)
	if err == nil {
		if t.broadcastErrors > 0 {
			log.WithField("errors", t.broadcastErrors).Info("live broadcast recovered")
			t.broadcastErrors = 0
		}
		return
	}

	t.broadcastErrors++
	// Log on 1, 2, 4, 8, ... consecutive errors
	if t.broadcastErrors&(t.broadcastErrors-1) == 0 {
		log.WithError(err).WithField("consecutive_errors", t.broadcastErrors).Warn("live broadcast failed")
	}
}

// runGC reclaims value log space.
func runGC(gc gcRunner) {
	start := time.Now()
	if err := gc.RunGC(gcDiscardRatio); err != nil {
		log.WithError(err).Warn("badger GC failed")
		return
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond).String()).Debug("badger GC completed")
}
