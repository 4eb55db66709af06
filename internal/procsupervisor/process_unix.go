//go:build !windows

package procsupervisor

import (
	"os/exec"
	"strings"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so a kill signal
// sent to -pgid reaches every descendant the agent CLI may fork.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateGraceful sends SIGTERM to the whole process group.
func terminateGraceful(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

// killHard force-kills the group, tolerating a process that already exited.
func killHard(cmd *exec.Cmd) error {
	if err := signalGroup(cmd, syscall.SIGKILL); err != nil && !strings.Contains(err.Error(), "process already finished") {
		if cmd.Process != nil {
			if procErr := cmd.Process.Kill(); procErr != nil && !strings.Contains(procErr.Error(), "process already finished") {
				return procErr
			}
		}
	}
	return nil
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Signal(sig)
	}
	return syscall.Kill(-pgid, sig)
}
