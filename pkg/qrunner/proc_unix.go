//go:build !windows

package qrunner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// prepare puts the child in its own process group so the whole tree can be
// signalled at once.
func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killTree(cmd)
	}
}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// reap kills whatever is left of the process group after Wait returned, so
// background children of the script never outlive the execution.
func reap(cmd *exec.Cmd) {
	_ = killTree(cmd)
}

// passRaw is a no-op: argv already carries the split words unchanged.
func passRaw(cmd *exec.Cmd, fixed int, params string) {}
