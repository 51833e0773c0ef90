//go:build !windows

package commands

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hoangvu/wireproxyman/src/internal/config"
	"github.com/hoangvu/wireproxyman/src/internal/portmanager"
	"github.com/hoangvu/wireproxyman/src/internal/state"
)

// setupApp points the package at a scratch data directory with a stub
// wireproxy binary and one importable profile on disk.
func setupApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()

	stub := filepath.Join(dir, "wireproxy")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nsleep 30\n"), 0700); err != nil {
		t.Fatal(err)
	}

	settings := config.Default()
	settings.WireproxyPath = stub
	settings.LoggingEnabled = false
	if err := settings.Save(filepath.Join(dir, "wireproxyman.yaml")); err != nil {
		t.Fatal(err)
	}

	profilesDir := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profilesDir, 0750); err != nil {
		t.Fatal(err)
	}
	conf := "[Interface]\nAddress = 10.0.0.2/32\n\n[Peer]\nEndpoint = vpn.example.com:51820\n"
	if err := os.WriteFile(filepath.Join(profilesDir, "office.conf"), []byte(conf), 0600); err != nil {
		t.Fatal(err)
	}

	SetDataDir(dir)
	t.Cleanup(func() { SetDataDir(".") })

	app, err := newApp()
	if err != nil {
		t.Fatalf("Expected app to initialize, got: %v", err)
	}
	return app
}

func TestConnectDisconnect(t *testing.T) {
	app := setupApp(t)

	port, err := app.Connect("office", 0, nil)
	if err != nil {
		t.Fatalf("Expected connect to succeed, got: %v", err)
	}
	if port < portmanager.BasePortLo || port > portmanager.BasePortHi {
		t.Errorf("Port %d outside base range", port)
	}

	p, _ := app.Store.FindByName("office")
	if !p.Running || p.PID == 0 {
		t.Fatalf("Expected running profile, got: %+v", p)
	}
	defer app.Supervisor.Stop(p.PID)

	// State was persisted with the live connection.
	st, err := state.Load(app.StatePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Profiles) != 1 || !st.Profiles[0].Running {
		t.Errorf("Expected persisted running profile, got: %+v", st.Profiles)
	}

	// Launch config exists while connected.
	genPath := filepath.Join(app.Store.Dir(), "office_wireproxy.conf")
	if _, err := os.Stat(genPath); err != nil {
		t.Errorf("Expected launch config while running: %v", err)
	}

	if _, err := app.Connect("office", 0, nil); err == nil {
		t.Error("Expected error connecting an already-connected profile")
	}

	if err := app.Disconnect("office"); err != nil {
		t.Fatalf("Expected disconnect to succeed, got: %v", err)
	}

	p, _ = app.Store.FindByName("office")
	if p.Running || p.PID != 0 {
		t.Errorf("Expected stopped profile, got: %+v", p)
	}
	if p.LastPort != port {
		t.Errorf("Expected LastPort %d remembered, got %d", port, p.LastPort)
	}
	if _, err := os.Stat(genPath); !os.IsNotExist(err) {
		t.Error("Expected launch config removed after disconnect")
	}
}

func TestConnect_UnknownProfile(t *testing.T) {
	app := setupApp(t)

	if _, err := app.Connect("ghost", 0, nil); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestConnect_ExplicitPortOutOfRange(t *testing.T) {
	app := setupApp(t)

	_, err := app.Connect("office", 59000, nil)
	if !errors.Is(err, portmanager.ErrPortOutOfRange) {
		t.Errorf("Expected ErrPortOutOfRange, got: %v", err)
	}
}

func TestConnect_OverrideContendedPort(t *testing.T) {
	app := setupApp(t)

	conf := "[Interface]\nAddress = 10.0.0.3/32\n"
	if _, err := app.Store.ImportText("backup", conf); err != nil {
		t.Fatal(err)
	}

	port, err := app.Connect("office", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	holder, _ := app.Store.FindByName("office")
	defer app.Supervisor.Stop(holder.PID)

	// Declined override keeps the holder and fails the connect.
	_, err = app.Connect("backup", port, func(h string) bool { return false })
	var contended *portmanager.ContendedError
	if !errors.As(err, &contended) {
		t.Fatalf("Expected ContendedError, got: %v", err)
	}
	if contended.Holder != "office" {
		t.Errorf("Expected holder office, got %q", contended.Holder)
	}

	// Accepted override stops the holder and hands the port over.
	got, err := app.Connect("backup", port, func(h string) bool { return h == "office" })
	if err != nil {
		t.Fatalf("Expected override connect to succeed, got: %v", err)
	}
	if got != port {
		t.Errorf("Expected port %d taken over, got %d", port, got)
	}

	p, _ := app.Store.FindByName("backup")
	defer app.Supervisor.Stop(p.PID)
	old, _ := app.Store.FindByName("office")
	if old.Running {
		t.Error("Expected previous holder stopped")
	}
}

func TestDisconnect_AlreadyStopped(t *testing.T) {
	app := setupApp(t)

	if err := app.Disconnect("office"); err != nil {
		t.Errorf("Expected disconnecting a stopped profile to be fine, got: %v", err)
	}
}

func TestRemove(t *testing.T) {
	app := setupApp(t)

	if err := app.Remove("office"); err != nil {
		t.Fatalf("Expected remove to succeed, got: %v", err)
	}
	if _, ok := app.Store.FindByName("office"); ok {
		t.Error("Expected profile gone from store")
	}
	if _, err := os.Stat(filepath.Join(app.Store.Dir(), "office.conf")); !os.IsNotExist(err) {
		t.Error("Expected config file deleted")
	}
}
