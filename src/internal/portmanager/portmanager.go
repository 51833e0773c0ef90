// Package portmanager decides which local ports profiles may bind and finds
// free ones. It has no side effects beyond a TCP liveness probe against
// localhost and a process-alive check through the injected callback.
package portmanager

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

// Base port range reserved for wireproxy listeners. When a port limit is
// configured the allowed range is clamped to the first limit ports of this
// span, which couples the connection capacity to a contiguous port block.
const (
	BasePortLo = 60000
	BasePortHi = 65535
)

// DefaultProbeTimeout bounds the TCP connect probe against localhost.
const DefaultProbeTimeout = 200 * time.Millisecond

// ErrNoFreePort is returned when no usable port exists, either because the
// capacity limit is saturated or every allowed port is taken.
var ErrNoFreePort = errors.New("no free port available")

// ErrPortOutOfRange is returned for explicitly requested ports outside the
// allowed range. Out-of-range requests are rejected, never clamped.
var ErrPortOutOfRange = errors.New("port outside allowed range")

// ErrPortBusy is returned when an unmanaged process already listens on a
// requested port. There is no override for external squatters.
var ErrPortBusy = errors.New("port is in use by another process")

// ContendedError reports that a requested port is held by another managed,
// running profile. Callers may resolve it by stopping the holder first.
type ContendedError struct {
	Port   int
	Holder string
}

func (e *ContendedError) Error() string {
	return fmt.Sprintf("port %d is in use by profile %q", e.Port, e.Holder)
}

// Registry makes port decisions against a snapshot of profiles.
//
// The host probe can be overridden in tests to avoid real network dials,
// mirroring how process liveness is injected.
type Registry struct {
	alive        func(pid int) bool
	probeTimeout time.Duration

	// portChecker reports whether a port is free on the host.
	// Overridable in tests.
	portChecker func(port int) bool
}

// NewRegistry creates a registry using the given process liveness check.
func NewRegistry(alive func(pid int) bool) *Registry {
	r := &Registry{
		alive:        alive,
		probeTimeout: DefaultProbeTimeout,
	}
	r.portChecker = r.defaultIsPortFree
	return r
}

// SetPortChecker replaces the host probe. Intended for tests.
func (r *Registry) SetPortChecker(fn func(port int) bool) {
	r.portChecker = fn
}

// AllowedRange returns the inclusive port range permitted under the given
// limit. limit == 0 means the full base range.
func AllowedRange(limit int) (lo, hi int) {
	lo, hi = BasePortLo, BasePortHi
	if limit > 0 {
		if clamped := lo + limit - 1; clamped < hi {
			hi = clamped
		}
	}
	return lo, hi
}

// InAllowedRange reports whether a port lies inside the allowed range for the
// given limit.
func InAllowedRange(port, limit int) bool {
	lo, hi := AllowedRange(limit)
	return port >= lo && port <= hi
}

// PortsInUse returns the ports held by profiles whose process is confirmed
// alive right now. It is recomputed on every call; external process state can
// change between any two calls, so caching would lie.
func (r *Registry) PortsInUse(profiles []profile.Profile) map[int]bool {
	used := make(map[int]bool)
	for _, p := range profiles {
		if p.ProxyPort != 0 && p.PID != 0 && r.alive(p.PID) {
			used[p.ProxyPort] = true
		}
	}
	return used
}

// IsPortFreeOnHost probes localhost with a bounded TCP connect. An accepted
// connection means something is listening, so the port is busy. This is a
// point-in-time answer; callers re-validate right before binding.
func (r *Registry) IsPortFreeOnHost(port int) bool {
	return r.portChecker(port)
}

func (r *Registry) defaultIsPortFree(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, r.probeTimeout)
	if err != nil {
		return true
	}
	_ = conn.Close()
	return false
}

// FindFreePort returns the lowest allowed port that is neither held by a
// running profile nor busy on the host. When the limit is already saturated
// it fails fast without probing the host at all.
func (r *Registry) FindFreePort(profiles []profile.Profile, limit int) (int, error) {
	used := r.PortsInUse(profiles)
	if limit > 0 && len(used) >= limit {
		return 0, ErrNoFreePort
	}

	lo, hi := AllowedRange(limit)
	for port := lo; port <= hi; port++ {
		if used[port] {
			continue
		}
		if r.IsPortFreeOnHost(port) {
			return port, nil
		}
	}
	return 0, ErrNoFreePort
}

// PickPortForProfile chooses a port for a profile, preferring its last used
// port when that is still in range, unclaimed, and free on the host. Keeping
// the same externally-facing port matters for clients pinned to it.
func (r *Registry) PickPortForProfile(p profile.Profile, profiles []profile.Profile, limit int) (int, error) {
	if lp := p.LastPort; lp != 0 && InAllowedRange(lp, limit) {
		used := r.PortsInUse(profiles)
		if limit == 0 || len(used) < limit {
			if !used[lp] && r.IsPortFreeOnHost(lp) {
				return lp, nil
			}
		}
	}
	return r.FindFreePort(profiles, limit)
}

// ValidateExplicitPort checks a caller-requested port. It distinguishes the
// three failure modes callers handle differently: out of range (rejected),
// contended by a managed profile (resolvable with confirmation), and busy on
// the host by an unmanaged process (rejected).
func (r *Registry) ValidateExplicitPort(port, limit int, profiles []profile.Profile) error {
	if !InAllowedRange(port, limit) {
		lo, hi := AllowedRange(limit)
		return fmt.Errorf("%w: %d not in %d-%d", ErrPortOutOfRange, port, lo, hi)
	}
	for _, p := range profiles {
		if p.ProxyPort == port && p.PID != 0 && r.alive(p.PID) {
			return &ContendedError{Port: port, Holder: p.Name}
		}
	}
	if !r.IsPortFreeOnHost(port) {
		return fmt.Errorf("%w: %d", ErrPortBusy, port)
	}
	return nil
}
