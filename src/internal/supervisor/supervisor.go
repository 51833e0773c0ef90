// Package supervisor owns the wireproxy process lifecycle: deriving launch
// configurations, spawning, liveness probing, and termination.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hoangvu/wireproxyman/src/internal/config"
	"github.com/hoangvu/wireproxyman/src/internal/logs"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

// LaunchGrace is how long a freshly spawned process gets before an exit is
// treated as a launch failure rather than a normal shutdown. Malformed
// configs make wireproxy exit almost immediately, which this catches.
const LaunchGrace = 250 * time.Millisecond

// Backoff settings for waiting on the OS to release a port after a stop.
const (
	portReleaseInitialInterval = 50 * time.Millisecond
	portReleaseMaxInterval     = 500 * time.Millisecond
)

// ErrExecutableNotFound means no wireproxy binary could be resolved. This is
// a blocking precondition for any connect, not a per-attempt failure.
var ErrExecutableNotFound = errors.New("wireproxy executable not found")

// LaunchError reports a process that exited within the launch grace period.
type LaunchError struct {
	ExitCode int
	LogPath  string
}

func (e *LaunchError) Error() string {
	if e.LogPath != "" {
		return fmt.Sprintf("wireproxy exited immediately with code %d (see %s)", e.ExitCode, e.LogPath)
	}
	return fmt.Sprintf("wireproxy exited immediately with code %d", e.ExitCode)
}

// Supervisor starts and stops wireproxy processes for profiles.
type Supervisor struct {
	profileDir string
	logDir     string
	grace      time.Duration
}

// New creates a supervisor writing launch configs into profileDir and process
// output into logDir.
func New(profileDir, logDir string) *Supervisor {
	return &Supervisor{
		profileDir: profileDir,
		logDir:     logDir,
		grace:      LaunchGrace,
	}
}

// ResolveExecutable returns a usable wireproxy binary path: the configured
// one if it exists, otherwise a PATH lookup.
func ResolveExecutable(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		slog.Warn("configured wireproxy path does not exist, falling back to PATH",
			slog.String("path", configured))
	}
	if path, err := exec.LookPath("wireproxy"); err == nil {
		return path, nil
	}
	return "", ErrExecutableNotFound
}

// GenerateLaunchConfig renders the derived wireproxy configuration: a
// reference to the profile's WireGuard config, the proxy mode section, and
// the local bind address. The key and section names are wireproxy's own
// format and must stay byte-exact.
func GenerateLaunchConfig(wgConfPath string, port int, proxyType config.ProxyType) string {
	section := "Socks5"
	if proxyType == config.ProxyHTTP {
		section = "http"
	}
	return fmt.Sprintf("WGConfig = %q\n\n[%s]\nBindAddress = 127.0.0.1:%d\n", wgConfPath, section, port)
}

// WriteLaunchConfig regenerates the disposable launch config for a profile.
// It is rewritten on every connect and never reused across ports.
func (s *Supervisor) WriteLaunchConfig(p profile.Profile, port int, proxyType config.ProxyType) (string, error) {
	path := profile.GeneratedConfPath(s.profileDir, p.Name)
	content := GenerateLaunchConfig(p.ConfPath, port, proxyType)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write launch config: %w", err)
	}
	return path, nil
}

// CleanupLaunchConfig removes a profile's generated launch config if present.
func (s *Supervisor) CleanupLaunchConfig(name string) {
	path := profile.GeneratedConfPath(s.profileDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove launch config",
			slog.String("profile", name),
			slog.String("error", err.Error()))
	}
}

// Start launches wireproxy for a profile on the given port and returns the
// PID. A process that exits within the grace period is a launch failure and
// surfaces its exit code instead of a handle.
func (s *Supervisor) Start(p profile.Profile, port int, settings config.Settings) (int, error) {
	exe, err := ResolveExecutable(settings.WireproxyPath)
	if err != nil {
		return 0, err
	}

	confPath, err := s.WriteLaunchConfig(p, port, settings.ProxyType)
	if err != nil {
		return 0, err
	}

	// #nosec G204 -- exe is the resolved wireproxy binary, confPath is generated by us
	cmd := exec.Command(exe, "-c", confPath)
	cmd.SysProcAttr = sysProcAttr()

	var logFile *os.File
	logPath := ""
	if settings.LoggingEnabled {
		logFile, err = logs.OpenProfileLog(s.logDir, p.Name, fmt.Sprintf("%s -c %s", exe, confPath))
		if err != nil {
			return 0, err
		}
		logPath = logs.ProfileLogPath(s.logDir, p.Name)
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return 0, fmt.Errorf("failed to start wireproxy for %q: %w", p.Name, err)
	}

	pid := cmd.Process.Pid

	// Reap the process whenever it exits so it never lingers as a zombie,
	// and close the capture file once output can no longer arrive.
	exited := make(chan int, 1)
	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		exited <- cmd.ProcessState.ExitCode()
	}()

	select {
	case code := <-exited:
		slog.Error("wireproxy exited during launch grace period",
			slog.String("profile", p.Name),
			slog.Int("port", port),
			slog.Int("exitCode", code))
		return 0, &LaunchError{ExitCode: code, LogPath: logPath}
	case <-time.After(s.grace):
	}

	slog.Info("wireproxy started",
		slog.String("profile", p.Name),
		slog.Int("pid", pid),
		slog.Int("port", port))
	return pid, nil
}

// IsRunning reports whether the process behind a handle is alive, using a
// probe that cannot itself terminate the process. A zero handle is not
// running.
func (s *Supervisor) IsRunning(pid int) bool {
	return isProcessAlive(pid)
}

// Stop terminates a process and, where the platform supports it, its whole
// descendant tree. A process that already exited counts as stopped.
func (s *Supervisor) Stop(pid int) error {
	if pid <= 0 || !isProcessAlive(pid) {
		return nil
	}
	if err := terminateTree(pid); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", pid, err)
	}
	slog.Info("wireproxy stopped", slog.Int("pid", pid))
	return nil
}

// WaitForPortRelease blocks until the host probe reports the port free,
// retrying with exponential backoff up to the timeout. Needed so an
// immediate reconnect after a stop doesn't race the OS closing the socket.
func (s *Supervisor) WaitForPortRelease(isFree func(port int) bool, port int, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = portReleaseInitialInterval
	b.MaxInterval = portReleaseMaxInterval
	b.MaxElapsedTime = timeout

	operation := func() error {
		if isFree(port) {
			return nil
		}
		return fmt.Errorf("port %d still bound", port)
	}
	return backoff.Retry(operation, b)
}

// CleanupGeneratedConfigs removes launch configs that belong to profiles no
// longer running, typically at startup after an unclean exit.
func (s *Supervisor) CleanupGeneratedConfigs(running map[string]bool) {
	entries, err := os.ReadDir(s.profileDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, profile.GeneratedConfSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, profile.GeneratedConfSuffix)
		if base == "" || running[base] {
			continue
		}
		s.CleanupLaunchConfig(base)
	}
}
