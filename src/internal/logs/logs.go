// Package logs manages the per-profile capture files that collect wireproxy
// process output.
package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Rotation policy for per-profile logs. Checked before each launch so a
// chatty process can't grow a log without bound.
const (
	MaxLogSize = 2_000_000
	MaxBackups = 2
)

// ProfileLogPath returns the capture file location for a profile inside the
// given logs directory. The profile name is sanitized the same way profile
// artifact names are.
func ProfileLogPath(dir, profileName string) string {
	safe := make([]byte, 0, len(profileName))
	for _, c := range []byte(profileName) {
		if c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			safe = append(safe, c)
		}
	}
	return filepath.Join(dir, fmt.Sprintf("wireproxy_%s.log", safe))
}

// Rotate shifts path to path.1, path.1 to path.2 and so on, once the file
// exceeds MaxLogSize. Files under the cap are left alone.
func Rotate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() <= MaxLogSize {
		return nil
	}

	for i := MaxBackups - 1; i > 0; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("failed to rotate %s: %w", src, err)
			}
		}
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("failed to rotate %s: %w", path, err)
	}
	return nil
}

// OpenProfileLog rotates and opens a profile's capture file for appending,
// writing a launch header so runs are easy to tell apart.
func OpenProfileLog(dir, profileName, command string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := ProfileLogPath(dir, profileName)
	if err := Rotate(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fmt.Fprintf(f, "\n=== Launching WireProxy at %s ===\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "Cmd: %s\n", command)
	return f, nil
}
