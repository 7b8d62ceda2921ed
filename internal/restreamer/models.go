package restreamer

import (
	"errors"
	"fmt"
	"time"
)

// State is the supervisor's run/stop state.
type State int

const (
	// StateIdle means no pipeline process exists.
	StateIdle State = iota
	// StateStreaming means exactly one pipeline process is running and monitored.
	StateStreaming
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ActionKind says what a Tick did.
type ActionKind int

const (
	ActionNoOp ActionKind = iota
	ActionStartPipeline
	ActionStopPipeline
	ActionContinueMonitoring
)

func (k ActionKind) String() string {
	switch k {
	case ActionNoOp:
		return "noop"
	case ActionStartPipeline:
		return "start_pipeline"
	case ActionStopPipeline:
		return "stop_pipeline"
	case ActionContinueMonitoring:
		return "continue_monitoring"
	default:
		return "unknown"
	}
}

// Action is the outcome of one supervisor tick.
type Action struct {
	Kind ActionKind

	// Output holds this tick's free-text lines that matched no known pattern.
	Output []string

	// ForcedRestart is set when the supervisor gave up on in-process recovery.
	// Err then describes why and wraps ErrForcedRestart.
	ForcedRestart bool
	Err           error
}

var (
	// ErrForcedRestart is wrapped by every condition that requires the whole
	// process to exit so an external manager restarts it.
	ErrForcedRestart = errors.New("forced restart")

	ErrLaunchFailed         = fmt.Errorf("%w: pipeline launch failed", ErrForcedRestart)
	ErrUnexpectedExit       = fmt.Errorf("%w: pipeline exited unexpectedly", ErrForcedRestart)
	ErrPipeAborted          = fmt.Errorf("%w: pipe copy aborted", ErrForcedRestart)
	ErrStalled              = fmt.Errorf("%w: pipeline stalled", ErrForcedRestart)
	ErrShutdownVerification = fmt.Errorf("%w: pipeline still running after stop", ErrForcedRestart)
)

// healthCounters live only while streaming and reset on every start.
type healthCounters struct {
	hadStatusOutput   bool
	lastTotalSize     int64
	unchangedCount    int
	noStatusIntervals int
}

// Snapshot is a point-in-time view of the supervisor, safe to share.
type Snapshot struct {
	State             string    `json:"state"`
	SessionID         string    `json:"session_id,omitempty"`
	PID               int       `json:"pid,omitempty"`
	StreamingSince    time.Time `json:"streaming_since,omitempty"`
	HadStatusOutput   bool      `json:"had_status_output"`
	LastTotalSize     int64     `json:"last_total_size"`
	UnchangedCount    int       `json:"unchanged_count"`
	NoStatusIntervals int       `json:"no_status_intervals"`
	LastTick          time.Time `json:"last_tick,omitempty"`
	LastAction        string    `json:"last_action,omitempty"`
	ActiveWindows     []string  `json:"active_windows,omitempty"`
}
