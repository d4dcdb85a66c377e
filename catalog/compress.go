package catalog

import (
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Compressors
// -----------------------------------------------------------------------------

// Index streams are small (one row per granule), so compressors carry no
// tuning knobs; each wraps its library's default level.

type gzipCompressor struct{}

// NewGzipCompressor creates a gzip compressor (".gz").
func NewGzipCompressor() Compressor {
	return gzipCompressor{}
}

func (gzipCompressor) Extension() string { return ".gz" }

func (gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type zstdCompressor struct{}

// NewZstdCompressor creates a Zstandard compressor (".zst").
func NewZstdCompressor() Compressor {
	return zstdCompressor{}
}

func (zstdCompressor) Extension() string { return ".zst" }

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

type noopCompressor struct{}

// NewNoOpCompressor creates a pass-through compressor with no file extension.
// It is the Builder default.
func NewNoOpCompressor() Compressor {
	return noopCompressor{}
}

func (noopCompressor) Extension() string { return "" }

func (noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// nopWriteCloser is the writer-side counterpart of io.NopCloser.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
