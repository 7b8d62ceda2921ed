package restreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"restreamer/internal/platform/logger"
	"restreamer/internal/platform/metrics"

	"github.com/google/uuid"
)

const (
	// TotalSizeKey is the monotonic output size counter in ffmpeg -progress output.
	TotalSizeKey = "total_size"

	// Recoverable: streamlink retries the segment on its own.
	segmentOpenFailurePrefix = "[stream.dash][error] Failed to open segment"
	// Fatal: streamlink's pipe into ffmpeg is gone and will not come back.
	pipeAbortedPrefix = "[stream.ffmpegmux][error] Pipe copy aborted:"

	DefaultShutdownGrace  = 2 * time.Second
	DefaultJoinTimeout    = 5 * time.Second
	DefaultStallThreshold = 3
)

// Supervisor owns the idle/streaming state machine and the health counters
// of the current pipeline. It is driven from a single goroutine; only the
// output reader runs concurrently, and it touches nothing but the queue.
type Supervisor struct {
	launcher Launcher
	log      *slog.Logger
	metrics  *metrics.Metrics

	grace          time.Duration
	joinTimeout    time.Duration
	stallThreshold int
	sleep          func(time.Duration)

	state      State
	proc       Process
	queue      *lineQueue
	readerDone chan struct{}
	sessionID  string
	since      time.Time
	health     healthCounters
	lastTick   time.Time
	lastAction ActionKind
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithShutdownGrace sets how long Stop waits after signalling the process group.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithJoinTimeout bounds the wait for the output reader and process exit after the grace period.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.joinTimeout = d }
}

// WithStallThreshold sets how many consecutive unhealthy ticks force a restart.
func WithStallThreshold(n int) Option {
	return func(s *Supervisor) { s.stallThreshold = n }
}

func withSleep(fn func(time.Duration)) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// NewSupervisor returns an idle Supervisor. m may be nil.
func NewSupervisor(launcher Launcher, log *slog.Logger, m *metrics.Metrics, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher:       launcher,
		log:            log.With(slog.String("component", "supervisor")),
		metrics:        m,
		grace:          DefaultShutdownGrace,
		joinTimeout:    DefaultJoinTimeout,
		stallThreshold: DefaultStallThreshold,
		sleep:          time.Sleep,
	}
	for _, o := range opts {
		o(s)
	}
	if s.stallThreshold <= 0 {
		s.stallThreshold = DefaultStallThreshold
	}
	s.metrics.SetStreaming(false)
	return s
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// Tick compares the desired state against the current one and either
// transitions, runs one monitoring pass, or does nothing. A transition
// returns immediately without monitoring in the same tick.
func (s *Supervisor) Tick(now time.Time, desired bool) Action {
	s.lastTick = now

	var a Action
	switch {
	case desired && s.state == StateIdle:
		a = s.start(now)
	case !desired && s.state == StateStreaming:
		a = s.stop()
	case s.state == StateStreaming:
		a = s.monitor()
	default:
		a = Action{Kind: ActionNoOp}
	}
	s.lastAction = a.Kind
	return a
}

func (s *Supervisor) start(now time.Time) Action {
	s.log.Info("schedule active, starting pipeline",
		slog.String("from", StateIdle.String()),
		slog.String("to", StateStreaming.String()))

	proc, err := s.launcher.Launch()
	if err != nil {
		s.log.Log(context.Background(), logger.LevelCritical, "pipeline launch failed", slog.String("error", err.Error()))
		return s.fail(ActionStartPipeline, fmt.Errorf("%w: %v", ErrLaunchFailed, err))
	}

	s.proc = proc
	s.queue = &lineQueue{}
	s.readerDone = make(chan struct{})
	go readLines(proc.Output(), s.queue, s.readerDone)

	s.health = healthCounters{}
	s.sessionID = uuid.NewString()
	s.since = now
	s.state = StateStreaming

	s.metrics.IncTransition(StateStreaming.String())
	s.metrics.SetStreaming(true)
	s.metrics.SetTotalSize(0)
	s.log.Info("pipeline started",
		slog.String("session_id", s.sessionID),
		slog.Int("pid", proc.Pid()))
	return Action{Kind: ActionStartPipeline}
}

// stop terminates the process group, waits the grace period, then verifies
// that both the output reader and the process are gone. Killing must come
// before joining: the reader only returns once the pipe's writers exit.
func (s *Supervisor) stop() Action {
	log := s.log.With(slog.String("session_id", s.sessionID), slog.Int("pid", s.proc.Pid()))
	log.Info("schedule inactive, stopping pipeline",
		slog.String("from", StateStreaming.String()),
		slog.String("to", StateIdle.String()))

	if err := s.proc.Terminate(); err != nil {
		log.Error("signal process group", slog.String("error", err.Error()))
	}
	s.sleep(s.grace)

	if !s.awaitShutdown() {
		log.Log(context.Background(), logger.LevelCritical,
			"pipeline did not exit after termination, forcing restart",
			slog.Duration("grace", s.grace),
			slog.Bool("reader_done", isClosed(s.readerDone)),
			slog.Bool("process_exited", s.proc.Exited()))
		return s.fail(ActionStopPipeline, ErrShutdownVerification)
	}

	_ = s.proc.Output().Close()
	s.reset()

	s.metrics.IncTransition(StateIdle.String())
	s.metrics.SetStreaming(false)
	log.Info("pipeline stopped")
	return Action{Kind: ActionStopPipeline}
}

// awaitShutdown waits, at most joinTimeout in total, for the reader to
// finish and the process to be reaped.
func (s *Supervisor) awaitShutdown() bool {
	deadline := time.NewTimer(s.joinTimeout)
	defer deadline.Stop()

	if !waitClosed(s.readerDone, deadline.C) {
		return false
	}
	for !s.proc.Exited() {
		select {
		case <-deadline.C:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
	return true
}

func (s *Supervisor) monitor() Action {
	log := s.log.With(slog.String("session_id", s.sessionID))

	if s.proc.Exited() {
		code := exitCode(s.proc.ExitErr())
		log.Log(context.Background(), logger.LevelCritical,
			"pipeline exited unexpectedly, forcing restart", slog.Int("exit_code", code))
		return s.fail(ActionContinueMonitoring, fmt.Errorf("%w (exit code %d)", ErrUnexpectedExit, code))
	}

	lines := s.queue.drain()
	freeText, status := Classify(lines)
	s.metrics.AddOutputLines("status", len(lines)-len(freeText))

	output := freeText
	if s.health.hadStatusOutput && len(freeText) > 0 {
		var transient, unexpected []string
		aborted := false
		for _, line := range freeText {
			switch {
			case strings.HasPrefix(line, segmentOpenFailurePrefix):
				transient = append(transient, line)
			case strings.HasPrefix(line, pipeAbortedPrefix):
				aborted = true
			default:
				unexpected = append(unexpected, line)
			}
		}

		if len(transient) > 0 {
			s.metrics.AddOutputLines("transient", len(transient))
			log.Info("segment timeouts", slog.String("lines", strings.Join(transient, "##")))
		}
		if aborted {
			log.Log(context.Background(), logger.LevelCritical,
				"pipe died, forcing restart", slog.String("lines", strings.Join(freeText, "##")))
			return s.fail(ActionContinueMonitoring, ErrPipeAborted)
		}
		if len(unexpected) > 0 {
			s.metrics.AddOutputLines("unexpected", len(unexpected))
			log.Warn("unexpected pipeline output", slog.String("lines", strings.Join(unexpected, "##")))
		}
		output = unexpected
	} else if len(freeText) > 0 {
		s.metrics.AddOutputLines("startup", len(freeText))
		log.Info("pipeline output", slog.String("lines", strings.Join(freeText, "##")))
	}

	if raw, ok := status[TotalSizeKey]; ok {
		s.health.hadStatusOutput = true
		s.observeTotalSize(log, raw)
	}

	if s.health.lastTotalSize == 0 && !s.health.hadStatusOutput {
		s.health.noStatusIntervals++
	}

	if s.health.unchangedCount >= s.stallThreshold || s.health.noStatusIntervals >= s.stallThreshold {
		log.Log(context.Background(), logger.LevelCritical,
			"pipeline seems stuck, output size not increasing or no status output; forcing restart",
			slog.Int64("last_total_size", s.health.lastTotalSize),
			slog.Int("unchanged_count", s.health.unchangedCount),
			slog.Int("no_status_intervals", s.health.noStatusIntervals))
		return s.fail(ActionContinueMonitoring, ErrStalled)
	}

	return Action{Kind: ActionContinueMonitoring, Output: output}
}

// observeTotalSize updates the stall counters. A value that fails to parse
// counts as no progress.
func (s *Supervisor) observeTotalSize(log *slog.Logger, raw string) {
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn("unparsable total_size", slog.String("value", raw))
		s.health.unchangedCount++
		return
	}

	log.Debug("total output size", slog.Int64("total_size", size))
	if size > s.health.lastTotalSize {
		s.health.lastTotalSize = size
		s.health.unchangedCount = 0
		s.metrics.SetTotalSize(size)
		return
	}
	s.health.unchangedCount++
}

// Abort force-kills the pipeline's process group, if any, without waiting.
// Used right before the process exits on a forced restart.
func (s *Supervisor) Abort() {
	if s.proc == nil {
		return
	}
	if err := s.proc.Kill(); err != nil {
		s.log.Error("kill process group", slog.Int("pid", s.proc.Pid()), slog.String("error", err.Error()))
	}
	_ = s.proc.Output().Close()
}

// Snapshot returns the supervisor's current state and health counters.
func (s *Supervisor) Snapshot() Snapshot {
	snap := Snapshot{
		State:    s.state.String(),
		LastTick: s.lastTick,
	}
	if s.lastTick.IsZero() {
		return snap
	}
	snap.LastAction = s.lastAction.String()
	if s.state != StateStreaming {
		return snap
	}
	snap.SessionID = s.sessionID
	snap.PID = s.proc.Pid()
	snap.StreamingSince = s.since
	snap.HadStatusOutput = s.health.hadStatusOutput
	snap.LastTotalSize = s.health.lastTotalSize
	snap.UnchangedCount = s.health.unchangedCount
	snap.NoStatusIntervals = s.health.noStatusIntervals
	return snap
}

func (s *Supervisor) fail(kind ActionKind, err error) Action {
	s.metrics.IncForcedRestart(restartReason(err))
	return Action{Kind: kind, ForcedRestart: true, Err: err}
}

func (s *Supervisor) reset() {
	s.proc = nil
	s.queue = nil
	s.readerDone = nil
	s.sessionID = ""
	s.since = time.Time{}
	s.health = healthCounters{}
	s.state = StateIdle
}

func restartReason(err error) string {
	for _, r := range []struct {
		err    error
		reason string
	}{
		{ErrLaunchFailed, "launch_failed"},
		{ErrUnexpectedExit, "unexpected_exit"},
		{ErrPipeAborted, "pipe_aborted"},
		{ErrStalled, "stalled"},
		{ErrShutdownVerification, "shutdown_verification"},
	} {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}

func waitClosed(ch <-chan struct{}, deadline <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	case <-deadline:
		return false
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
