//go:build linux

package procgroup

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGroup(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	Set(cmd)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) })

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	require.NoError(t, err)
	require.Equal(t, cmd.Process.Pid, pgid, "PID should be PGID leader")
	return cmd
}

func waitGone(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		assert.Error(t, err, "leader should exit because of the signal")
	case <-time.After(5 * time.Second):
		t.Fatal("process leader did not exit")
	}

	// Background children are reparented; give them a moment to die.
	require.Eventually(t, func() bool {
		return liveMembers(t, cmd.Process.Pid) == 0
	}, 2*time.Second, 20*time.Millisecond, "process group should be gone")
}

// liveMembers counts non-zombie processes in the group. Zombies are ignored
// because an init without reaping would otherwise keep the group visible.
func liveMembers(t *testing.T, pgid int) int {
	t.Helper()
	entries, err := os.ReadDir("/proc")
	require.NoError(t, err)

	n := 0
	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		raw, err := os.ReadFile("/proc/" + e.Name() + "/stat")
		if err != nil {
			continue
		}
		// Fields after the parenthesised command: state ppid pgrp ...
		stat := string(raw)
		rest := strings.Fields(stat[strings.LastIndexByte(stat, ')')+1:])
		if len(rest) < 3 || rest[0] == "Z" {
			continue
		}
		if rest[2] == strconv.Itoa(pgid) {
			n++
		}
	}
	return n
}

func TestTerminate_stops_whole_group(t *testing.T) {
	cmd := startGroup(t, "sleep 100 & sleep 100")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, Terminate(cmd.Process.Pid))
	waitGone(t, cmd)
}

func TestKill_stops_group_ignoring_sigterm(t *testing.T) {
	cmd := startGroup(t, "trap '' TERM; sleep 100 & sleep 100")
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, Kill(cmd.Process.Pid))
	waitGone(t, cmd)
}

func TestSignal_missing_group_is_not_an_error(t *testing.T) {
	assert.NoError(t, Terminate(0))
	assert.NoError(t, Kill(-5))

	cmd := startGroup(t, "exit 0")
	require.NoError(t, cmd.Wait())
	assert.NoError(t, Terminate(cmd.Process.Pid))
}
