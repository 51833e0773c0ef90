package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

func TestLoad_MissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, Version, f.Version)
	assert.Empty(t, f.Profiles)
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, f.Profiles)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	profiles := []profile.Profile{
		{Name: "vpn-a", ConfPath: "/data/profiles/vpn-a.conf", ProxyPort: 60000, LastPort: 60000, PID: 4242, Running: true},
		{Name: "vpn-b", ConfPath: "/data/profiles/vpn-b.conf", LastPort: 60001},
	}

	require.NoError(t, Save(path, profiles))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Version, f.Version)
	assert.Equal(t, profiles, f.Profiles)
}

func TestSave_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	require.NoError(t, Save(path, nil))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoad_MigratesV1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	v1 := `{
  "version": 1,
  "profiles": [
    {"name": "vpn-a", "conf_path": "/p/vpn-a.conf", "port": 60003, "pid": 4242, "running": true}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(v1), 0600))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Profiles, 1)

	p := f.Profiles[0]
	assert.Equal(t, 60003, p.ProxyPort, "v1 port field becomes proxy_port")
	assert.Equal(t, 60003, p.LastPort, "last_port seeded from the bound port")

	// Migration leaves a backup of the original behind.
	backups, err := filepath.Glob(path + ".bak-*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	// The migrated file is rewritten at the current version.
	f2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Version, f2.Version)
	assert.Equal(t, f.Profiles, f2.Profiles)
}

func TestLoad_MigratesV2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	v2 := `{
  "version": 2,
  "profiles": [
    {"name": "vpn-a", "conf_path": "/p/vpn-a.conf", "proxy_port": 60007, "running": true},
    {"name": "vpn-b", "conf_path": "/p/vpn-b.conf", "last_port": 60001, "running": false}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(v2), 0600))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Profiles, 2)

	assert.Equal(t, 60007, f.Profiles[0].LastPort, "missing last_port seeded")
	assert.Equal(t, 60001, f.Profiles[1].LastPort, "existing last_port preserved")
}
