package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "wireproxyman.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireproxyman.yaml")

	s := Settings{
		PortLimit:      25,
		ProxyType:      ProxyHTTP,
		WireproxyPath:  "/opt/bin/wireproxy",
		LoggingEnabled: false,
		DashboardPort:  8900,
	}
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireproxyman.yaml")
	require.NoError(t, os.WriteFile(path, []byte("portLimit: 3\n"), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.PortLimit)
	assert.Equal(t, ProxySOCKS, s.ProxyType)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative port limit", "portLimit: -1\n"},
		{"unknown proxy type", "proxyType: gopher\n"},
		{"malformed yaml", "portLimit: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wireproxyman.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestParseProxyType(t *testing.T) {
	for _, in := range []string{"socks", "socks5", "SOCKS5"} {
		pt, err := ParseProxyType(in)
		require.NoError(t, err)
		assert.Equal(t, ProxySOCKS, pt)
	}

	pt, err := ParseProxyType("HTTP")
	require.NoError(t, err)
	assert.Equal(t, ProxyHTTP, pt)

	_, err = ParseProxyType("ftp")
	assert.Error(t, err)
}
