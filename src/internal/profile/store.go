package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when an operation references a profile name that is
// not in the store.
var ErrNotFound = fmt.Errorf("profile not found")

// DuplicateNameError is returned when an Add or Rename would violate name
// uniqueness.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("profile %q already exists", e.Name)
}

// Store is the authoritative, mutex-guarded collection of profiles.
//
// Reads return copies; callers never hold references into the store. The
// liveness probe is injected so tests can run without real processes.
type Store struct {
	mu        sync.RWMutex
	profiles  []*Profile
	dir       string
	alive     func(pid int) bool
	hostCache map[string]string
}

// NewStore creates a store over the given profiles directory. alive reports
// whether a PID refers to a live process.
func NewStore(dir string, alive func(pid int) bool) *Store {
	return &Store{
		dir:       dir,
		alive:     alive,
		hostCache: make(map[string]string),
	}
}

// Dir returns the profiles directory backing this store.
func (s *Store) Dir() string { return s.dir }

// Replace loads a snapshot of records into the store, discarding the current
// contents. Used when hydrating from persisted state.
func (s *Store) Replace(recs []Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = s.profiles[:0]
	for i := range recs {
		p := recs[i]
		s.profiles = append(s.profiles, &p)
	}
}

// Snapshot returns a copy of every profile in insertion order.
func (s *Store) Snapshot() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, *p)
	}
	return out
}

// Len returns the number of profiles in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// FindByName returns the profile with the given name.
func (s *Store) FindByName(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.findLocked(name); p != nil {
		return *p, true
	}
	return Profile{}, false
}

// FindByPort returns the running profile currently holding the given port.
// Stopped profiles are never matched, so a stale LastPort can't shadow a port.
func (s *Store) FindByPort(port int) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Running && p.ProxyPort == port {
			return *p, true
		}
	}
	return Profile{}, false
}

// Add appends a new profile, enforcing name uniqueness.
func (s *Store) Add(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(p.Name) != nil {
		return &DuplicateNameError{Name: p.Name}
	}
	cp := p
	s.profiles = append(s.profiles, &cp)
	return nil
}

// Remove deletes a profile and returns its final record.
func (s *Store) Remove(name string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.profiles {
		if p.Name == name {
			out := *p
			s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
			delete(s.hostCache, name)
			return out, true
		}
	}
	return Profile{}, false
}

// Rename changes a profile's name and moves its backing config file. It fails
// without side effects if the new name is taken or the target file exists.
func (s *Store) Rename(oldName, newName string) error {
	newName = SanitizeName(newName)
	if newName == "" {
		return fmt.Errorf("new profile name is empty after sanitization")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(oldName)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if s.findLocked(newName) != nil {
		return &DuplicateNameError{Name: newName}
	}

	newPath := filepath.Join(s.dir, newName+".conf")
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("a file named %q already exists", filepath.Base(newPath))
	}

	if err := os.Rename(p.ConfPath, newPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	p.Name = newName
	p.ConfPath = newPath
	delete(s.hostCache, oldName)
	return nil
}

// UpdateConfig rewrites a profile's WireGuard config contents and invalidates
// the cached endpoint host.
func (s *Store) UpdateConfig(name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := os.WriteFile(p.ConfPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	delete(s.hostCache, name)
	return nil
}

// MarkStarted records a successful process launch for a profile.
func (s *Store) MarkStarted(name string, pid, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findLocked(name); p != nil {
		p.PID = pid
		p.ProxyPort = port
		p.LastPort = port
		p.Running = true
	}
}

// MarkStopped records that a profile's process is gone, remembering the port
// it held so reconnects can prefer it.
func (s *Store) MarkStopped(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findLocked(name); p != nil {
		if p.ProxyPort != 0 {
			p.LastPort = p.ProxyPort
		}
		p.PID = 0
		p.ProxyPort = 0
		p.Running = false
	}
}

// RefreshLiveness revalidates every profile's running flag against the OS.
// Profiles whose process died out from under us are demoted to stopped.
func (s *Store) RefreshLiveness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.PID != 0 && s.alive(p.PID) {
			p.Running = true
			continue
		}
		if p.ProxyPort != 0 {
			p.LastPort = p.ProxyPort
		}
		p.PID = 0
		p.ProxyPort = 0
		p.Running = false
	}
}

func (s *Store) findLocked(name string) *Profile {
	for _, p := range s.profiles {
		if p.Name == name {
			return p
		}
	}
	return nil
}
