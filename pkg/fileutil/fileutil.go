// Package fileutil resolves task file names case-insensitively.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrNotFound is returned when no entry matches the requested name.
var ErrNotFound = errors.New("file not found")

// FindFile returns the path within fsys of the regular file in dir whose name
// matches filename ignoring case. An exact match wins over a folded one.
// Paths use forward slashes as fs.FS requires.
//
// Example:
//
//	p, err := FindFile(os.DirFS("/srv/tasks"), "fleet", "PATROL.TASK")
//	// finds "fleet/patrol.task", "fleet/Patrol.Task", etc.
func FindFile(fsys fs.FS, dir, filename string) (string, error) {
	if dir == "" {
		dir = "."
	}

	exact := path.Join(dir, filename)
	if info, err := fs.Stat(fsys, exact); err == nil && !info.IsDir() {
		return exact, nil
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return path.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// Resolve splits name into directory and file parts and finds it with FindFile.
func Resolve(fsys fs.FS, name string) (string, error) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	dir, file := path.Split(name)
	return FindFile(fsys, strings.TrimSuffix(dir, "/"), file)
}
