package restreamer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"restreamer/internal/platform/logger"
	"restreamer/internal/platform/metrics"
	"restreamer/internal/schedule"
)

// RestartError is returned by Loop.Run when the supervisor gave up and the
// process must exit so that an external manager restarts it.
type RestartError struct {
	Err error
}

func (e *RestartError) Error() string {
	return fmt.Sprintf("restart required: %v", e.Err)
}

func (e *RestartError) Unwrap() error { return e.Err }

// Loop drives a Supervisor from a Schedule at a fixed poll interval.
type Loop struct {
	schedule schedule.Schedule
	sup      *Supervisor
	interval time.Duration
	log      *slog.Logger

	clock     schedule.Clock
	metrics   *metrics.Metrics
	status    *StatusStore
	heartbeat func()
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock replaces the system clock.
func WithClock(c schedule.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// WithMetrics records loop metrics. m may be nil.
func WithMetrics(m *metrics.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// WithStatusStore publishes a snapshot after every tick.
func WithStatusStore(s *StatusStore) LoopOption {
	return func(l *Loop) { l.status = s }
}

// WithHeartbeat calls fn after every completed tick.
func WithHeartbeat(fn func()) LoopOption {
	return func(l *Loop) { l.heartbeat = fn }
}

// NewLoop returns a Loop that ticks sup every interval.
func NewLoop(sched schedule.Schedule, sup *Supervisor, interval time.Duration, log *slog.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		schedule: sched,
		sup:      sup,
		interval: interval,
		log:      log.With(slog.String("component", "loop")),
		clock:    schedule.SystemClock{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run ticks until ctx is cancelled or the supervisor requests a restart.
// On cancellation a running pipeline is stopped and Run returns nil. A
// forced restart returns a *RestartError after killing the pipeline group.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("monitoring for active windows",
		slog.Int("windows", l.schedule.Len()),
		slog.Duration("interval", l.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-timer.C:
		}

		if err := l.Step(); err != nil {
			return err
		}
		timer.Reset(l.interval)
	}
}

// Step runs a single tick.
func (l *Loop) Step() error {
	now := l.clock.Now()
	active := l.schedule.Active(now)
	desired := len(active) > 0

	l.metrics.IncTicks()
	l.metrics.SetScheduleActive(desired)

	action := l.sup.Tick(now, desired)
	l.publish(active)
	if l.heartbeat != nil {
		l.heartbeat()
	}

	if action.ForcedRestart {
		return l.abort(action.Err)
	}
	return nil
}

// shutdown stops a running pipeline when the process is asked to exit.
func (l *Loop) shutdown() error {
	if l.sup.State() != StateStreaming {
		l.log.Info("event loop stopped")
		return nil
	}

	l.log.Info("shutting down, stopping pipeline")
	action := l.sup.Tick(l.clock.Now(), false)
	l.publish(nil)
	if action.ForcedRestart {
		return l.abort(action.Err)
	}
	l.log.Info("event loop stopped")
	return nil
}

func (l *Loop) abort(err error) error {
	l.log.Log(context.Background(), logger.LevelCritical,
		"exiting so the service manager restarts the pipeline",
		slog.String("error", err.Error()))
	l.sup.Abort()
	return &RestartError{Err: err}
}

func (l *Loop) publish(active []schedule.Window) {
	if l.status == nil {
		return
	}
	snap := l.sup.Snapshot()
	for _, w := range active {
		snap.ActiveWindows = append(snap.ActiveWindows, w.String())
	}
	l.status.Publish(snap)
}
