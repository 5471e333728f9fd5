//go:build windows

package qrunner

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
	cmd.Cancel = func() error {
		return killTree(cmd)
	}
}

// killTree uses taskkill since Windows has no process group signal.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
}

// reap is a no-op: once the root has exited taskkill can no longer walk its
// tree.
func reap(cmd *exec.Cmd) {}

// passRaw puts params on the child's command line exactly as received, after
// the first fixed arguments. Windows programs parse their own command line,
// so re-quoting the split words would change what they see.
func passRaw(cmd *exec.Cmd, fixed int, params string) {
	if strings.TrimSpace(params) == "" {
		return
	}
	parts := make([]string, 0, fixed)
	for _, a := range cmd.Args[:fixed] {
		parts = append(parts, syscall.EscapeArg(a))
	}
	cmd.SysProcAttr.CmdLine = strings.Join(parts, " ") + " " + params
}
