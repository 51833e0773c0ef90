//go:build !windows

package supervisor

import (
	"errors"
	"log/slog"
	"syscall"
)

// sysProcAttr puts the child in its own process group so the whole tree can
// be signalled at once.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// isProcessAlive probes with signal 0, which checks existence without
// delivering anything. EPERM still means the process exists.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// terminateTree kills the child's process group, falling back to a single
// SIGKILL when the group signal fails. An already-gone process is success.
func terminateTree(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	} else if !errors.Is(err, syscall.ESRCH) {
		slog.Warn("process group kill failed, falling back to single kill",
			slog.Int("pid", pid),
			slog.String("error", err.Error()))
	}

	err := syscall.Kill(pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
