package profile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// EndpointHost extracts the remote endpoint host (IP or domain, without the
// port) from a profile's WireGuard config. Results are memoized per profile
// and invalidated when the config is edited or the profile renamed.
func (s *Store) EndpointHost(name string) (string, error) {
	s.mu.RLock()
	if host, ok := s.hostCache[name]; ok {
		s.mu.RUnlock()
		return host, nil
	}
	p := s.findLocked(name)
	if p == nil {
		s.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	confPath := p.ConfPath
	s.mu.RUnlock()

	host, err := parseEndpointHost(confPath)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.hostCache[name] = host
	s.mu.Unlock()
	return host, nil
}

func parseEndpointHost(confPath string) (string, error) {
	f, err := os.Open(confPath)
	if err != nil {
		return "", fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "endpoint") {
			continue
		}
		_, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		// Strip inline comments before taking the host apart.
		value = strings.TrimSpace(value)
		if i := strings.IndexAny(value, "#;"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
		return splitEndpointHost(value), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return "", fmt.Errorf("no Endpoint found in %s", confPath)
}

// splitEndpointHost drops the trailing port from an endpoint value,
// unwrapping bracketed IPv6 addresses.
func splitEndpointHost(endpoint string) string {
	if strings.HasPrefix(endpoint, "[") {
		if i := strings.Index(endpoint, "]"); i > 0 {
			return endpoint[1:i]
		}
		return endpoint
	}
	if i := strings.LastIndex(endpoint, ":"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
