// Package fileops implements scoped file mutations against a repository
// working copy: create, modify, delete, read, and list, each confined to
// the working copy root so a reviewer-proposed change can never escape
// the repository it was generated for.
package fileops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/repoforge/transformer/domain"
)

// Scope confines every operation to files beneath root.
type Scope struct {
	root string
}

// NewScope creates a Scope rooted at the given working copy path.
func NewScope(root string) *Scope {
	return &Scope{root: root}
}

// Root returns the working copy root this scope is confined to.
func (s *Scope) Root() string {
	return s.root
}

// Resolve validates a repo-relative (or absolute) path and returns its
// absolute location, rejecting anything that escapes the scope's root.
func (s *Scope) Resolve(path string) (string, error) {
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Clean(filepath.Join(s.root, path))
	}

	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	absRoot, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("resolve scope root: %w", err)
	}

	if absFull != absRoot && !strings.HasPrefix(absFull, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes working copy root", path)
	}

	return absFull, nil
}

// Read returns a file's contents.
func (s *Scope) Read(path string) (string, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(content), nil
}

// List returns entries under path, optionally filtered by a doublestar
// glob pattern matched against each entry's path relative to the scope
// root (e.g. "**/*.go").
func (s *Scope) List(path, pattern string) ([]string, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if pattern != "" {
			rel := filepath.Join(path, name)
			matched, err := doublestar.Match(pattern, rel)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			if !matched {
				continue
			}
		}
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// Apply writes every change in a ChangeSet to disk, stopping and
// returning an error on the first failure. The ChangeSet's step name is
// preserved in the error so a caller can attribute the failure to the
// plan step being executed.
func (s *Scope) Apply(cs domain.ChangeSet) error {
	for _, fc := range cs.Created {
		if err := s.create(fc); err != nil {
			return fmt.Errorf("step %s: create %s: %w", cs.Step, fc.Path, err)
		}
	}
	for _, fc := range cs.Modified {
		if err := s.modify(fc); err != nil {
			return fmt.Errorf("step %s: modify %s: %w", cs.Step, fc.Path, err)
		}
	}
	for _, fc := range cs.Deleted {
		if err := s.delete(fc); err != nil {
			return fmt.Errorf("step %s: delete %s: %w", cs.Step, fc.Path, err)
		}
	}
	return nil
}

func (s *Scope) create(fc domain.FileChange) error {
	full, err := s.Resolve(fc.Path)
	if err != nil {
		return err
	}
	return s.write(full, fc.Content)
}

func (s *Scope) modify(fc domain.FileChange) error {
	full, err := s.Resolve(fc.Path)
	if err != nil {
		return err
	}
	return s.write(full, fc.Content)
}

func (s *Scope) delete(fc domain.FileChange) error {
	full, err := s.Resolve(fc.Path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Scope) write(full, content string) error {
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
