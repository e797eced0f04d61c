package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// Store looks templates up across directories; earlier directories win.
type Store struct {
	Dirs []string
}

// NewStore creates a Store over dirs.
func NewStore(dirs []string) *Store {
	return &Store{Dirs: dirs}
}

// Entry is one template file found by List.
type Entry struct {
	Name     string
	Path     string
	Shadowed bool // a directory earlier in the search order has the same name
}

// Find returns the file of a template. A name that points at an existing
// file is used as-is.
func (s *Store) Find(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || utils.IsYaml(name) {
		if utils.FileExists(name) {
			return name, nil
		}
	}
	for _, dir := range s.Dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if utils.FileExists(path) {
				return path, nil
			}
		}
	}
	return "", NewTemplateError(name, "", fmt.Errorf("%w in %s", ErrTemplateNotFound, strings.Join(s.Dirs, ", ")))
}

// Load finds and decodes a template.
func (s *Store) Load(name string) (*Template, error) {
	path, err := s.Find(name)
	if err != nil {
		return nil, err
	}
	utils.PrintDebug("Loading template %s from %s", name, path)
	return LoadFile(path)
}

// List returns every template file in search order, sorted by name within
// each directory. Missing directories are skipped.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)
	for _, dir := range s.Dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read template directory %s: %w", dir, err)
		}
		var names []string
		paths := make(map[string]string)
		for _, f := range files {
			if f.IsDir() || !utils.IsYaml(f.Name()) {
				continue
			}
			name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			if _, dup := paths[name]; dup {
				// .yaml sorts before .yml and wins, as in Find
				continue
			}
			paths[name] = filepath.Join(dir, f.Name())
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entries = append(entries, Entry{Name: name, Path: paths[name], Shadowed: seen[name]})
			seen[name] = true
		}
	}
	return entries, nil
}
