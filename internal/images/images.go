// Package images discovers disk images under the configured base
// directory and resolves operator-supplied name fragments to image files.
package images

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Entry is one discovered disk image.
type Entry struct {
	Name string // file name without extension, as shown to the operator
	Path string // absolute path to the image file
	Size int64  // size in bytes
}

// Library lists and resolves images in a base directory and its backups/
// subdirectory.
type Library struct {
	dir string
}

// New creates a Library rooted at baseDir. A leading ~ is expanded.
func New(baseDir string) (*Library, error) {
	expanded, err := homedir.Expand(baseDir)
	if err != nil {
		return nil, fmt.Errorf("expand images directory: %w", err)
	}
	return &Library{dir: expanded}, nil
}

// Dir returns the working images directory.
func (l *Library) Dir() string { return l.dir }

// BackupDir returns the backup images directory.
func (l *Library) BackupDir() string { return filepath.Join(l.dir, "backups") }

// List returns the working images, sorted by name.
func (l *Library) List() ([]Entry, error) {
	return listDir(l.dir)
}

// ListBackups returns the backup images, sorted by name.
func (l *Library) ListBackups() ([]Entry, error) {
	return listDir(l.BackupDir())
}

// Resolve finds the single working image whose name contains the given
// fragment. Zero or multiple matches are errors; an ambiguous fragment
// reports the candidates.
func (l *Library) Resolve(fragment string) (Entry, error) {
	var zero Entry
	if fragment == "" {
		return zero, fmt.Errorf("no image name given")
	}

	entries, err := l.List()
	if err != nil {
		return zero, err
	}

	var matches []Entry
	for _, e := range entries {
		if strings.Contains(e.Name, fragment) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("no image matching %q in %s", fragment, l.dir)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return zero, fmt.Errorf("image name %q is ambiguous: matches %s", fragment, strings.Join(names, ", "))
	}
}

func listDir(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images directory: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		// Daemonized VMs leave nohup droppings next to the images.
		if name == "nohup" {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name: name,
			Path: filepath.Join(dir, f.Name()),
			Size: info.Size(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
