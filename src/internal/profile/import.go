package profile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ImportFile copies a WireGuard .conf file into the profiles directory and
// adds a profile named after the file. The copy fails if a profile or file
// with that name already exists.
func (s *Store) ImportFile(srcPath string) (Profile, error) {
	base := filepath.Base(srcPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	if _, ok := s.FindByName(name); ok {
		return Profile{}, &DuplicateNameError{Name: name}
	}

	destPath := filepath.Join(s.dir, base)
	if _, err := os.Stat(destPath); err == nil {
		return Profile{}, fmt.Errorf("a file named %q already exists in %s", base, s.dir)
	}

	if err := copyFile(srcPath, destPath); err != nil {
		return Profile{}, fmt.Errorf("failed to copy config file: %w", err)
	}

	p := Profile{Name: name, ConfPath: destPath}
	if err := s.Add(p); err != nil {
		return Profile{}, err
	}
	slog.Info("profile imported", slog.String("profile", name), slog.String("path", destPath))
	return p, nil
}

// ImportText creates a profile from raw config text, e.g. pasted or decoded
// from elsewhere. The name hint is sanitized and de-duplicated with a numeric
// suffix so repeated imports never clash.
func (s *Store) ImportText(nameHint, confText string) (Profile, error) {
	if !strings.Contains(confText, "[Interface]") {
		return Profile{}, fmt.Errorf("text does not look like a WireGuard config")
	}

	name := SanitizeName(nameHint)
	if name == "" {
		name = "imported"
	}
	name = s.uniqueName(name)

	destPath := filepath.Join(s.dir, name+".conf")
	if err := os.WriteFile(destPath, []byte(confText), 0600); err != nil {
		return Profile{}, fmt.Errorf("failed to create profile file: %w", err)
	}

	p := Profile{Name: name, ConfPath: destPath}
	if err := s.Add(p); err != nil {
		return Profile{}, err
	}
	slog.Info("profile imported from text", slog.String("profile", name))
	return p, nil
}

// DiscoverDir scans the profiles directory and adds records for any .conf
// files that are not yet tracked, so configs dropped in by hand show up.
// Generated launch configs are skipped. Returns the names added.
func (s *Store) DiscoverDir() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan profiles directory: %w", err)
	}

	var added []string
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(file, ".conf") || strings.HasSuffix(file, GeneratedConfSuffix) {
			continue
		}
		name := strings.TrimSuffix(file, ".conf")
		if _, ok := s.FindByName(name); ok {
			continue
		}
		if err := s.Add(Profile{Name: name, ConfPath: filepath.Join(s.dir, file)}); err != nil {
			continue
		}
		slog.Info("discovered profile on disk", slog.String("profile", name))
		added = append(added, name)
	}
	return added, nil
}

// DeleteFiles removes a profile's config file and any generated launch
// config. Missing files are not errors; the goal is a clean directory.
func (s *Store) DeleteFiles(p Profile) {
	if p.ConfPath != "" {
		if err := os.Remove(p.ConfPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete config file",
				slog.String("profile", p.Name),
				slog.String("error", err.Error()))
		}
	}
	genPath := GeneratedConfPath(s.dir, p.Name)
	if err := os.Remove(genPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to delete generated config",
			slog.String("profile", p.Name),
			slog.String("error", err.Error()))
	}
}

func (s *Store) uniqueName(base string) string {
	name := base
	for i := 1; ; i++ {
		if _, ok := s.FindByName(name); !ok {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
