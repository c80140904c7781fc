package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
)

// Cycle is one unit of work of a background service.
type Cycle func(ctx context.Context) error

// Guard decides whether this process may run a cycle. It is used to keep
// a single active instance per service.
type Guard interface {
	AcquireLock(ctx context.Context, service string, ttl time.Duration) (bool, error)
}

// Config controls a loop.
type Config struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // per-cycle deadline; 0 = Interval
}

// Loop runs a cycle on a fixed interval. Cycles never overlap: a tick that
// fires while a cycle is running is dropped.
type Loop struct {
	cfg   Config
	cycle Cycle
	guard Guard
	log   *slog.Logger
}

// NewLoop creates a loop. guard may be nil.
func NewLoop(cfg Config, cycle Cycle, guard Guard, log *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{cfg: cfg, cycle: cycle, guard: guard, log: log.With("service", cfg.Name)}
}

func (l *Loop) Name() string { return l.cfg.Name }

// Start runs the loop until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.log.Info("Worker started", "interval", l.cfg.Interval, "timeout", l.cfg.Timeout)

	// Initial cycle
	_ = l.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Worker stopped")
			return
		case <-ticker.C:
			_ = l.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single guarded, time-bounded cycle and reports its error.
// Errors are logged and counted here; callers may ignore them.
func (l *Loop) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if l.guard != nil {
		ok, err := l.guard.AcquireLock(ctx, l.cfg.Name, 2*l.cfg.Interval+l.cfg.Timeout)
		if err != nil {
			l.log.Warn("Instance lock unavailable, skipping cycle", "error", err)
			metrics.CyclesTotal.WithLabelValues(l.cfg.Name, "skipped").Inc()
			return err
		}
		if !ok {
			l.log.Debug("Another instance holds the lock, skipping cycle")
			metrics.CyclesTotal.WithLabelValues(l.cfg.Name, "skipped").Inc()
			return nil
		}
	}

	cycleCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := l.cycle(cycleCtx)
	metrics.CycleDuration.WithLabelValues(l.cfg.Name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.CyclesTotal.WithLabelValues(l.cfg.Name, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		metrics.CyclesTotal.WithLabelValues(l.cfg.Name, "timeout").Inc()
		l.log.Warn("Cycle timed out", "error", err, "elapsed", time.Since(start))
	default:
		metrics.CyclesTotal.WithLabelValues(l.cfg.Name, "error").Inc()
		l.log.Error("Cycle failed", "error", err, "elapsed", time.Since(start))
	}
	return err
}
