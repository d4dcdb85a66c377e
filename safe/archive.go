package safe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Directory archive
// -----------------------------------------------------------------------------

// dirArchive implements Archive over an unpacked SAFE directory.
type dirArchive struct {
	root string
}

// NewDirArchive creates an Archive over an unpacked SAFE product directory.
// The directory must exist.
func NewDirArchive(root string) (Archive, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotSAFE
	}
	return &dirArchive{root: root}, nil
}

func (d *dirArchive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := d.safePath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (d *dirArchive) Exists(_ context.Context, path string) (bool, error) {
	fullPath, err := d.safePath(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (d *dirArchive) List(_ context.Context, prefix string) ([]string, error) {
	searchPath := d.root
	if prefix != "" {
		p, err := d.safePath(prefix)
		if err != nil {
			return nil, err
		}
		searchPath = p
	}
	var paths []string
	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			relPath, err := filepath.Rel(d.root, path)
			if err != nil {
				return err
			}
			paths = append(paths, filepath.ToSlash(relPath))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (d *dirArchive) RasterPath(path string) string {
	fullPath, err := d.safePath(path)
	if err != nil {
		return ""
	}
	return fullPath
}

func (d *dirArchive) safePath(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == "." || path == "" {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(d.root, cleaned), nil
}

// -----------------------------------------------------------------------------
// Memory archive
// -----------------------------------------------------------------------------

// MemArchive implements Archive over an in-memory map. It exists for tests
// and fixtures; Add populates it.
//
// MemArchive is safe for concurrent use.
type MemArchive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemArchive creates an empty in-memory Archive.
func NewMemArchive() *MemArchive {
	return &MemArchive{data: make(map[string][]byte)}
}

// Add stores content under a product-relative path, replacing any previous
// content at that path.
func (m *MemArchive) Add(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[strings.TrimPrefix(path, "/")] = append([]byte(nil), content...)
}

func (m *MemArchive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.data[path]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(content))), nil
}

func (m *MemArchive) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[path]
	return ok, nil
}

func (m *MemArchive) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for p := range m.data {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RasterPath returns the in-memory path unchanged. Memory archives are not
// raster-addressable; tests pair them with fake raster readers keyed by
// these paths.
func (m *MemArchive) RasterPath(path string) string {
	return path
}
