// Package scheduler runs the fixed-step simulation loop. Wall time is fed
// into an accumulator and the step callback fires once per fixed interval,
// so a slow frame catches up with extra steps instead of stretching dt.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/udisondev/towerwars/internal/metrics"
)

// maxCatchUp caps how much backlog one frame may replay. Anything beyond it
// is dropped so a long stall does not spiral into an ever-growing debt.
const maxCatchUp = 10

// Config wires the loop.
type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	TickRate int // simulation steps per second
}

// Loop drives one callback at a fixed rate on a single goroutine.
type Loop struct {
	log   *slog.Logger
	clock clockwork.Clock
	dt    time.Duration
	step  func(dt float64)
}

// New builds a loop around step. The callback receives the fixed dt in
// seconds and always runs on the Run goroutine.
func New(cfg Config, step func(dt float64)) (*Loop, error) {
	if step == nil {
		return nil, fmt.Errorf("scheduler: step callback required")
	}
	if cfg.TickRate <= 0 {
		return nil, fmt.Errorf("scheduler: tick rate must be positive, got %d", cfg.TickRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Loop{
		log:   cfg.Logger,
		clock: cfg.Clock,
		dt:    time.Second / time.Duration(cfg.TickRate),
		step:  step,
	}, nil
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.dt)
	defer ticker.Stop()

	last := l.clock.Now()
	var acc time.Duration
	dtSeconds := l.dt.Seconds()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.Chan():
			acc += now.Sub(last)
			last = now
			if limit := time.Duration(maxCatchUp) * l.dt; acc > limit {
				l.log.Warn("simulation running behind, dropping backlog",
					"backlog", acc, "kept", limit)
				acc = limit
			}
			for acc >= l.dt {
				start := l.clock.Now()
				l.step(dtSeconds)
				elapsed := l.clock.Now().Sub(start)
				acc -= l.dt

				metrics.TicksTotal.Inc()
				metrics.TickDuration.Observe(elapsed.Seconds())
				if elapsed > l.dt {
					metrics.TickBudgetOverruns.Inc()
					l.log.Warn("tick exceeded budget", "elapsed", elapsed, "budget", l.dt)
				}
			}
		}
	}
}
