package safe

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// -----------------------------------------------------------------------------
// Zip archive
// -----------------------------------------------------------------------------

// zipArchive implements Archive over a zipped SAFE product.
//
// Zipped products carry their content below a single "<name>.SAFE/" root
// entry; that root is stripped so paths line up with unpacked directories.
// The underlying file stays open for the archive's lifetime; ZipArchive
// holds no other state and entry reads are independent, so concurrent reads
// are safe.
type zipArchive struct {
	file    *os.File
	zipPath string
	rootDir string // stripped "<name>.SAFE/" prefix, may be empty
	entries map[string]*zip.File
}

// NewZipArchive creates an Archive over a zipped SAFE product. The caller
// owns closing the returned archive (Product.Close does this when the
// archive was selected by OpenProduct).
func NewZipArchive(zipPath string) (Archive, error) {
	file, err := os.Open(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		_ = file.Close()
		return nil, ErrNotSAFE
	}

	root := commonSAFERoot(reader.File)
	entries := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		entries[strings.TrimPrefix(f.Name, root)] = f
	}

	return &zipArchive{
		file:    file,
		zipPath: zipPath,
		rootDir: root,
		entries: entries,
	}, nil
}

// commonSAFERoot returns the shared "<name>.SAFE/" top-level directory of
// the zip entries, or an empty string when entries sit at the zip root.
func commonSAFERoot(files []*zip.File) string {
	root := ""
	for _, f := range files {
		first, _, found := strings.Cut(f.Name, "/")
		if !found {
			return ""
		}
		if !strings.HasSuffix(strings.ToUpper(first), ".SAFE") {
			return ""
		}
		if root == "" {
			root = first + "/"
		} else if root != first+"/" {
			return ""
		}
	}
	return root
}

func (z *zipArchive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	entry, ok := z.entries[path]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Open()
}

func (z *zipArchive) Exists(_ context.Context, path string) (bool, error) {
	_, ok := z.entries[path]
	return ok, nil
}

func (z *zipArchive) List(_ context.Context, prefix string) ([]string, error) {
	var paths []string
	for p := range z.entries {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RasterPath returns a GDAL /vsizip/ path addressing the entry inside the
// zip file without unpacking it.
func (z *zipArchive) RasterPath(path string) string {
	return "/vsizip/" + z.zipPath + "/" + z.rootDir + path
}

// Close releases the underlying zip file.
func (z *zipArchive) Close() error {
	return z.file.Close()
}
