// Package procgroup starts commands in their own process group and signals
// the whole group, so every stage of a shell pipeline is stopped together.
package procgroup

import "os/exec"

// Set configures cmd to start as the leader of a new process group.
// Mandatory for Terminate and Kill to reach the leader's descendants.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate sends SIGTERM to the process group led by pid.
// A group that no longer exists is not an error.
func Terminate(pid int) error {
	return signalGroup(pid, sigTerm)
}

// Kill sends SIGKILL to the process group led by pid.
// A group that no longer exists is not an error.
func Kill(pid int) error {
	return signalGroup(pid, sigKill)
}
