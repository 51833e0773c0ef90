// Package state persists profile runtime state to disk as versioned JSON.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

// Version is the current schema version of the state file. Older files are
// migrated in place after a timestamped backup.
const Version = 3

// File is the on-disk shape of the state file.
type File struct {
	Version  int               `json:"version"`
	Profiles []profile.Profile `json:"profiles"`
}

// Load reads the state file. A missing file yields an empty state; a corrupt
// one is logged and replaced with empty state rather than blocking startup.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{Version: Version}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Error("state file is corrupt, starting with empty state",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &File{Version: Version}, nil
	}

	version := 0
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &version)
	}

	if version < Version {
		migrated, err := migrate(path, raw, version)
		if err != nil {
			return nil, err
		}
		return migrated, nil
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Error("state file is corrupt, starting with empty state",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &File{Version: Version}, nil
	}
	return &f, nil
}

// Save writes the state file atomically: temp file in the same directory,
// then rename over the target.
func Save(path string, profiles []profile.Profile) error {
	f := File{Version: Version, Profiles: profiles}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// migrate upgrades an old state file step by step, backing up the original
// first so a botched migration never loses data.
func migrate(path string, raw map[string]json.RawMessage, version int) (*File, error) {
	backup := fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))
	if data, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(backup, data, 0600); err != nil {
			slog.Warn("failed to back up state before migration",
				slog.String("error", err.Error()))
		}
	}
	slog.Info("migrating state file",
		slog.Int("from", version),
		slog.Int("to", Version))

	var recs []map[string]json.RawMessage
	if v, ok := raw["profiles"]; ok {
		if err := json.Unmarshal(v, &recs); err != nil {
			return nil, fmt.Errorf("failed to parse profiles during migration: %w", err)
		}
	}

	for version < Version {
		switch {
		case version < 2:
			// v1 stored the bound port under "port".
			for _, rec := range recs {
				if v, ok := rec["port"]; ok {
					rec["proxy_port"] = v
					delete(rec, "port")
				}
			}
			version = 2
		case version < 3:
			// v2 had no last_port; seed it from the bound port so the
			// first reconnect after upgrading keeps its port.
			for _, rec := range recs {
				if _, ok := rec["last_port"]; !ok {
					if v, ok := rec["proxy_port"]; ok {
						rec["last_port"] = v
					}
				}
			}
			version = 3
		}
	}

	merged, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode migrated profiles: %w", err)
	}
	var profiles []profile.Profile
	if err := json.Unmarshal(merged, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode migrated profiles: %w", err)
	}

	f := &File{Version: Version, Profiles: profiles}
	if err := Save(path, profiles); err != nil {
		slog.Warn("failed to save migrated state", slog.String("error", err.Error()))
	}
	return f, nil
}
