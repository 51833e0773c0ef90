// Package commands provides the command-line interface for wireproxyman.
package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hoangvu/wireproxyman/src/internal/autoconnect"
	"github.com/hoangvu/wireproxyman/src/internal/config"
	"github.com/hoangvu/wireproxyman/src/internal/events"
	"github.com/hoangvu/wireproxyman/src/internal/portmanager"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
	"github.com/hoangvu/wireproxyman/src/internal/state"
	"github.com/hoangvu/wireproxyman/src/internal/supervisor"
)

// portReleaseTimeout bounds how long a connect-with-override waits for the
// stopped holder's port to be released by the OS.
const portReleaseTimeout = 3 * time.Second

var dataDir = "."

// SetDataDir sets the directory holding profiles, logs, settings and state.
func SetDataDir(dir string) {
	if dir != "" {
		dataDir = dir
	}
}

// App wires the core components together for command execution.
type App struct {
	Settings     config.Settings
	SettingsPath string
	StatePath    string

	Store      *profile.Store
	Ports      *portmanager.Registry
	Supervisor *supervisor.Supervisor
	Bus        *events.Bus
	Auto       *autoconnect.Orchestrator
}

// newApp loads settings and state, hydrates the store, revalidates liveness,
// and sweeps stale generated configs.
func newApp() (*App, error) {
	profilesDir := filepath.Join(dataDir, "profiles")
	logsDir := filepath.Join(dataDir, "logs")
	for _, dir := range []string{profilesDir, logsDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	settingsPath := filepath.Join(dataDir, "wireproxyman.yaml")
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(profilesDir, logsDir)
	store := profile.NewStore(profilesDir, sup.IsRunning)

	statePath := filepath.Join(dataDir, "state.json")
	st, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}
	store.Replace(st.Profiles)

	if _, err := store.DiscoverDir(); err != nil {
		return nil, err
	}
	store.RefreshLiveness()

	app := &App{
		Settings:     settings,
		SettingsPath: settingsPath,
		StatePath:    statePath,
		Store:        store,
		Ports:        portmanager.NewRegistry(sup.IsRunning),
		Supervisor:   sup,
		Bus:          events.NewBus(),
	}
	app.Auto = autoconnect.New(store, app.Ports, app.Bus,
		func() int { return app.Settings.PortLimit },
		app.SaveState,
		func(p profile.Profile, port int) (int, error) {
			return sup.Start(p, port, app.Settings)
		})

	// Launch configs from a previous unclean exit are garbage once their
	// profile is no longer running.
	running := make(map[string]bool)
	for _, p := range store.Snapshot() {
		if p.Running {
			running[p.Name] = true
		}
	}
	sup.CleanupGeneratedConfigs(running)

	if err := app.SaveState(); err != nil {
		return nil, err
	}
	return app, nil
}

// SaveState persists the current profile collection.
func (a *App) SaveState() error {
	return state.Save(a.StatePath, a.Store.Snapshot())
}

// Connect starts a profile, allocating a port when none is requested.
//
// For an explicit port held by another managed profile, confirm is consulted;
// on approval the holder is stopped and its port awaited before reuse. Ports
// held by unmanaged processes are never overridden.
func (a *App) Connect(name string, explicitPort int, confirm func(holder string) bool) (int, error) {
	a.Store.RefreshLiveness()

	prof, ok := a.Store.FindByName(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", profile.ErrNotFound, name)
	}
	if prof.Running {
		return 0, fmt.Errorf("profile %q is already connected on port %d", name, prof.ProxyPort)
	}
	if _, err := os.Stat(prof.ConfPath); err != nil {
		return 0, fmt.Errorf("config file for %q is missing: %w", name, err)
	}

	// The executable is a blocking precondition, checked before any port
	// work so a missing binary can't half-allocate anything.
	if _, err := supervisor.ResolveExecutable(a.Settings.WireproxyPath); err != nil {
		return 0, err
	}

	snapshot := a.Store.Snapshot()
	limit := a.Settings.PortLimit

	var port int
	if explicitPort > 0 {
		err := a.Ports.ValidateExplicitPort(explicitPort, limit, snapshot)
		var contended *portmanager.ContendedError
		switch {
		case err == nil:
		case errors.As(err, &contended):
			if confirm == nil || !confirm(contended.Holder) {
				return 0, err
			}
			if err := a.Disconnect(contended.Holder); err != nil {
				return 0, fmt.Errorf("failed to stop %q: %w", contended.Holder, err)
			}
			if err := a.Supervisor.WaitForPortRelease(a.Ports.IsPortFreeOnHost, explicitPort, portReleaseTimeout); err != nil {
				return 0, fmt.Errorf("%w: %d", portmanager.ErrPortBusy, explicitPort)
			}
		default:
			return 0, err
		}
		port = explicitPort
	} else {
		var err error
		port, err = a.Ports.PickPortForProfile(prof, snapshot, limit)
		if err != nil {
			return 0, err
		}
	}

	pid, err := a.Supervisor.Start(prof, port, a.Settings)
	if err != nil {
		return 0, err
	}

	a.Store.MarkStarted(name, pid, port)
	if err := a.SaveState(); err != nil {
		return port, err
	}
	a.Bus.Publish(events.Event{Type: events.ProfileStarted, Profile: name, Port: port})
	return port, nil
}

// Disconnect stops a profile's process and records the port it held.
// Stopping an already-stopped profile is not an error.
func (a *App) Disconnect(name string) error {
	a.Store.RefreshLiveness()

	prof, ok := a.Store.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", profile.ErrNotFound, name)
	}

	port := prof.ProxyPort
	if prof.PID != 0 {
		if err := a.Supervisor.Stop(prof.PID); err != nil {
			return err
		}
	}

	a.Store.MarkStopped(name)
	a.Supervisor.CleanupLaunchConfig(name)
	if err := a.SaveState(); err != nil {
		return err
	}
	a.Bus.Publish(events.Event{Type: events.ProfileStopped, Profile: name, Port: port})
	return nil
}

// Remove deletes a profile, stopping its process first and cleaning up its
// files.
func (a *App) Remove(name string) error {
	if err := a.Disconnect(name); err != nil {
		return err
	}

	prof, ok := a.Store.Remove(name)
	if !ok {
		return fmt.Errorf("%w: %s", profile.ErrNotFound, name)
	}
	a.Store.DeleteFiles(prof)

	if err := a.SaveState(); err != nil {
		return err
	}
	a.Bus.Publish(events.Event{Type: events.ProfileRemoved, Profile: name})
	return nil
}
