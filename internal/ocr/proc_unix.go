//go:build unix

package ocr

import (
	"os/exec"
	"syscall"
)

// detachFromTerminalSignals puts the child in its own process group so a
// terminal interrupt reaches only the orchestrator, which turns it into a
// stop request. Cancellation kills the whole group, engine helpers included.
func detachFromTerminalSignals(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
