// Package profile defines the profile record and the in-memory store that is
// the single source of truth for connection state.
package profile

import (
	"path/filepath"
	"strings"
)

// GeneratedConfSuffix marks the disposable wireproxy launch configurations
// derived from a profile's WireGuard config. Files with this suffix are never
// imported as profiles and are regenerated on every connect.
const GeneratedConfSuffix = "_wireproxy.conf"

// Profile is one named WireGuard configuration plus its runtime connection
// state. ProxyPort and PID are only meaningful while a wireproxy process is
// believed to be running; Running is a cached flag that must be revalidated
// against the OS before being trusted (the process can die at any time).
type Profile struct {
	Name      string `json:"name"`
	ConfPath  string `json:"conf_path"`
	ProxyPort int    `json:"proxy_port,omitempty"`
	LastPort  int    `json:"last_port,omitempty"`
	PID       int    `json:"pid,omitempty"`
	Running   bool   `json:"running"`
}

// GeneratedConfPath returns the location of the derived wireproxy launch
// configuration for a profile inside the given profiles directory.
func GeneratedConfPath(dir, name string) string {
	return filepath.Join(dir, name+GeneratedConfSuffix)
}

// SanitizeName reduces a free-form name to the characters allowed in profile
// names (and therefore in on-disk artifact names).
func SanitizeName(name string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(name) {
		if c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}
