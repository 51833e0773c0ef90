// Package config handles the persistent application settings for wireproxyman.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProxyType selects which proxy mode the generated wireproxy configuration uses.
type ProxyType string

const (
	ProxySOCKS ProxyType = "socks"
	ProxyHTTP  ProxyType = "http"
)

// ParseProxyType normalizes a user-supplied proxy type string.
func ParseProxyType(s string) (ProxyType, error) {
	switch s {
	case "socks", "socks5", "SOCKS", "SOCKS5":
		return ProxySOCKS, nil
	case "http", "HTTP":
		return ProxyHTTP, nil
	}
	return "", fmt.Errorf("unknown proxy type %q (expected socks or http)", s)
}

// Settings holds the global configuration shared by all commands.
//
// PortLimit caps how many profiles may be connected at once; 0 means
// unlimited. Because allocation is clamped to the first PortLimit ports of
// the base range, the limit is a port-space limit rather than a plain counter.
type Settings struct {
	PortLimit      int       `yaml:"portLimit"`
	ProxyType      ProxyType `yaml:"proxyType"`
	WireproxyPath  string    `yaml:"wireproxyPath,omitempty"`
	LoggingEnabled bool      `yaml:"loggingEnabled"`
	DashboardPort  int       `yaml:"dashboardPort,omitempty"`
}

// Default returns the settings used when no settings file exists yet.
func Default() Settings {
	return Settings{
		PortLimit:      10,
		ProxyType:      ProxySOCKS,
		LoggingEnabled: true,
	}
}

// Load reads settings from the given YAML file. A missing file is not an
// error; defaults are returned so a fresh working directory just works.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to read settings: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings: %w", err)
	}

	if s.ProxyType != "" {
		pt, err := ParseProxyType(string(s.ProxyType))
		if err != nil {
			return Default(), fmt.Errorf("invalid settings: %w", err)
		}
		s.ProxyType = pt
	} else {
		s.ProxyType = ProxySOCKS
	}
	if s.PortLimit < 0 {
		return Default(), fmt.Errorf("invalid settings: portLimit must be >= 0, got %d", s.PortLimit)
	}

	return s, nil
}

// Save writes settings to the given YAML file, creating parent directories
// as needed.
func (s Settings) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
