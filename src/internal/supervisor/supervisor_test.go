package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoangvu/wireproxyman/src/internal/config"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

// waitUntil polls a condition for up to two seconds.
func waitUntil(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestGenerateLaunchConfig_Socks(t *testing.T) {
	got := GenerateLaunchConfig("/data/profiles/office.conf", 60000, config.ProxySOCKS)
	want := "WGConfig = \"/data/profiles/office.conf\"\n\n[Socks5]\nBindAddress = 127.0.0.1:60000\n"
	if got != want {
		t.Errorf("Unexpected launch config:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateLaunchConfig_HTTP(t *testing.T) {
	got := GenerateLaunchConfig("/data/profiles/office.conf", 60001, config.ProxyHTTP)
	want := "WGConfig = \"/data/profiles/office.conf\"\n\n[http]\nBindAddress = 127.0.0.1:60001\n"
	if got != want {
		t.Errorf("Unexpected launch config:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteAndCleanupLaunchConfig(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, t.TempDir())

	p := profile.Profile{Name: "office", ConfPath: filepath.Join(dir, "office.conf")}
	path, err := s.WriteLaunchConfig(p, 60000, config.ProxySOCKS)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if path != profile.GeneratedConfPath(dir, "office") {
		t.Errorf("Unexpected launch config path: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected launch config on disk: %v", err)
	}

	s.CleanupLaunchConfig("office")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected launch config removed")
	}

	// Cleaning up again is harmless.
	s.CleanupLaunchConfig("office")
}

func TestCleanupGeneratedConfigs(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, t.TempDir())

	stale := profile.GeneratedConfPath(dir, "stale")
	live := profile.GeneratedConfPath(dir, "live")
	regular := filepath.Join(dir, "regular.conf")
	for _, path := range []string{stale, live, regular} {
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	s.CleanupGeneratedConfigs(map[string]bool{"live": true})

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale launch config removed")
	}
	if _, err := os.Stat(live); err != nil {
		t.Error("Expected running profile's launch config kept")
	}
	if _, err := os.Stat(regular); err != nil {
		t.Error("Expected regular profile config kept")
	}
}

func TestResolveExecutable_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "wireproxy")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0700); err != nil {
		t.Fatal(err)
	}

	path, err := ResolveExecutable(fake)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if path != fake {
		t.Errorf("Expected configured path %s, got %s", fake, path)
	}
}

func TestResolveExecutable_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := ResolveExecutable("")
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("Expected ErrExecutableNotFound, got: %v", err)
	}
}

func TestStop_ZeroAndDeadPIDs(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())

	if err := s.Stop(0); err != nil {
		t.Errorf("Expected nil for zero PID, got: %v", err)
	}
	// PID well above any live process in a test environment.
	if err := s.Stop(99999999); err != nil {
		t.Errorf("Expected nil for dead PID, got: %v", err)
	}
}

func TestWaitForPortRelease(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())

	calls := 0
	isFree := func(port int) bool {
		calls++
		return calls >= 3
	}

	if err := s.WaitForPortRelease(isFree, 60000, 5*time.Second); err != nil {
		t.Fatalf("Expected release within timeout, got: %v", err)
	}
	if calls < 3 {
		t.Errorf("Expected at least 3 probes, got %d", calls)
	}
}

func TestWaitForPortRelease_Timeout(t *testing.T) {
	s := New(t.TempDir(), t.TempDir())

	neverFree := func(port int) bool { return false }
	if err := s.WaitForPortRelease(neverFree, 60000, 200*time.Millisecond); err == nil {
		t.Error("Expected error when port never frees")
	}
}
