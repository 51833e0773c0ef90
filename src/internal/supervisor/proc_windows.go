//go:build windows

package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// isProcessAlive queries the process exit code without touching the process.
// STILL_ACTIVE means it has not exited.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	const stillActive = 259

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

// terminateTree uses taskkill to take down the whole process tree, since
// wireproxy may fan out children. Falls back to killing the single process.
func terminateTree(pid int) error {
	// #nosec G204 -- pid is a validated integer
	cmd := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	err := cmd.Run()
	if err == nil {
		return nil
	}
	slog.Warn("taskkill failed, falling back to direct kill",
		slog.Int("pid", pid),
		slog.String("error", err.Error()))

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
