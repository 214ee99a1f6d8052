package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// LocalSource serves files from a directory. All access goes through an
// os.Root, so symlinks and ".." cannot escape the directory.
type LocalSource struct {
	dir  string
	root *os.Root
}

// NewLocal opens dir as a file source, creating it if it does not exist.
func NewLocal(dir string) (*LocalSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open files dir: %w", err)
	}
	return &LocalSource{dir: dir, root: root}, nil
}

// Close releases the directory handle.
func (s *LocalSource) Close() error {
	return s.root.Close()
}

// List returns the sorted names of the regular files in the directory.
func (s *LocalSource) List(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens the named file for reading.
func (s *LocalSource) Open(ctx context.Context, name string) (*Object, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	f, err := s.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}

	return &Object{
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: contentType(name),
		Body:        f,
	}, nil
}
