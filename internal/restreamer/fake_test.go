package restreamer

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errKilled = errors.New("signal: killed")

// fakeProcess is an in-memory pipeline. Writes through emit appear on Output
// and closing it ends the reader goroutine like a real exit would.
type fakeProcess struct {
	pid        int
	ignoreTerm bool

	pr *io.PipeReader
	pw *io.PipeWriter

	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	exitErr error

	terminated atomic.Int32
	killed     atomic.Int32
}

func newFakeProcess(pid int) *fakeProcess {
	pr, pw := io.Pipe()
	return &fakeProcess{pid: pid, pr: pr, pw: pw, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Output() io.ReadCloser { return p.pr }

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	if !p.ignoreTerm {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Add(1)
	p.exit(errKilled)
	return nil
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		_ = p.pw.Close()
		close(p.done)
	})
}

type fakeLauncher struct {
	mu    sync.Mutex
	err   error
	procs []*fakeProcess
	// prepare, if set, adjusts each process before it is returned.
	prepare func(*fakeProcess)
}

func (l *fakeLauncher) Launch() (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.procs))
	if l.prepare != nil {
		l.prepare(p)
	}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[len(l.procs)-1]
}

// emit writes lines to the current pipeline and waits until the reader has
// queued them, so the next Tick is guaranteed to see them.
func emit(t *testing.T, s *Supervisor, p *fakeProcess, lines ...string) {
	t.Helper()
	before := s.queue.len()
	for _, line := range lines {
		_, err := io.WriteString(p.pw, line+"\n")
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return s.queue.len() >= before+len(lines) },
		2*time.Second, time.Millisecond, "reader did not queue %d lines", len(lines))
}
