package restreamer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/template"

	"restreamer/internal/procgroup"
)

// DefaultCommandTemplate captures the source with streamlink and feeds it to
// ffmpeg, which reports progress as key=value lines on stdout.
const DefaultCommandTemplate = `streamlink {{.InputURL}} best -O | ffmpeg -progress - -nostats -hide_banner -re -i - {{.Params}}`

// Process is a running pipeline as seen by the supervisor.
type Process interface {
	Pid() int
	// Output is the combined stdout/stderr stream. It reaches EOF once every
	// process holding the write end has exited.
	Output() io.ReadCloser
	// Exited reports, without blocking, whether the pipeline leader has exited.
	Exited() bool
	// ExitErr is the leader's wait error once Exited is true.
	ExitErr() error
	// Terminate asks every process in the pipeline's group to stop.
	Terminate() error
	// Kill forcibly stops every process in the pipeline's group.
	Kill() error
}

// Launcher starts a new pipeline process.
type Launcher interface {
	Launch() (Process, error)
}

// PipelineParams are the values substituted into the command template.
type PipelineParams struct {
	InputURL string
	Params   string
}

// ShellLauncher runs a templated shell command in its own process group.
type ShellLauncher struct {
	shell  string
	tmpl   *template.Template
	params PipelineParams
}

// NewShellLauncher parses commandTemplate (DefaultCommandTemplate if empty).
func NewShellLauncher(commandTemplate string, params PipelineParams) (*ShellLauncher, error) {
	if strings.TrimSpace(commandTemplate) == "" {
		commandTemplate = DefaultCommandTemplate
	}
	tmpl, err := template.New("pipeline").Option("missingkey=error").Parse(commandTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline command: %w", err)
	}
	l := &ShellLauncher{shell: "sh", tmpl: tmpl, params: params}
	if _, err := l.Command(); err != nil {
		return nil, err
	}
	return l, nil
}

// Command renders the shell command line.
func (l *ShellLauncher) Command() (string, error) {
	var b strings.Builder
	if err := l.tmpl.Execute(&b, l.params); err != nil {
		return "", fmt.Errorf("render pipeline command: %w", err)
	}
	return b.String(), nil
}

// Launch implements Launcher.
func (l *ShellLauncher) Launch() (Process, error) {
	command, err := l.Command()
	if err != nil {
		return nil, err
	}

	// One OS pipe shared by stdout and stderr keeps the two streams in the
	// order the pipeline wrote them. exec.Cmd does not own it, so Wait can
	// run concurrently with reads.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(l.shell, "-c", command) // #nosec G204 -- operator supplied pipeline
	cmd.Stdout = pw
	cmd.Stderr = pw
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	_ = pw.Close()

	p := &shellProcess{cmd: cmd, out: pr, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type shellProcess struct {
	cmd  *exec.Cmd
	out  *os.File
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *shellProcess) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)
}

func (p *shellProcess) Pid() int { return p.cmd.Process.Pid }

func (p *shellProcess) Output() io.ReadCloser { return p.out }

func (p *shellProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *shellProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *shellProcess) Terminate() error {
	return procgroup.Terminate(p.Pid())
}

func (p *shellProcess) Kill() error {
	return procgroup.Kill(p.Pid())
}

// exitCode extracts the exit status from a wait error, -1 if unknown.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
