// Package safe reads band data from Sentinel-2 SAFE products as tile-shaped
// arrays with a validity mask.
//
// A SAFE product is a standardized directory tree (optionally packed into a
// zip archive, or hosted on an object store) containing per-band JPEG2000
// rasters and XML metadata. This package locates band files inside that
// structure, delegates windowed decode and resampling to an external raster
// access layer, and applies optional per-pixel masking (nodata, clouds,
// white areas).
//
// The package implements the read side of a tile-processing host's input
// driver contract: open a product once, then read arbitrarily many tiles
// from it. Reads are stateless and safe for concurrent use.
package safe

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Bands
// -----------------------------------------------------------------------------

// BandIndex is a 1-based Sentinel-2 spectral band number in [1, 13].
type BandIndex int

// BandCount is the number of spectral bands in a Sentinel-2 product.
const BandCount = 13

// bandIDs maps band indexes 1..13 to the band identifiers used in SAFE
// file names (B01..B08, B8A, B09..B12).
var bandIDs = [BandCount]string{
	"B01", "B02", "B03", "B04", "B05", "B06", "B07",
	"B08", "B8A", "B09", "B10", "B11", "B12",
}

// ID returns the SAFE band identifier (for example "B04" or "B8A").
// It returns an empty string for out-of-range indexes.
func (b BandIndex) ID() string {
	if !b.Valid() {
		return ""
	}
	return bandIDs[b-1]
}

// Valid reports whether the index is within [1, BandCount].
func (b BandIndex) Valid() bool {
	return b >= 1 && b <= BandCount
}

// AllBands returns band indexes 1..13 in order.
func AllBands() []BandIndex {
	indexes := make([]BandIndex, BandCount)
	for i := range indexes {
		indexes[i] = BandIndex(i + 1)
	}
	return indexes
}

// -----------------------------------------------------------------------------
// Resampling
// -----------------------------------------------------------------------------

// Resampling identifies the resampling method used when decoded raster data
// is rescaled onto a tile grid. The actual algorithm is owned by the raster
// access layer; this type only names it.
type Resampling int

// Resampling methods recognized by the raster access layer.
const (
	ResamplingNearest Resampling = iota
	ResamplingBilinear
	ResamplingCubic
	ResamplingCubicSpline
	ResamplingLanczos
	ResamplingAverage
	ResamplingMode
	resamplingMax // sentinel for validation
)

var resamplingNames = [resamplingMax]string{
	"nearest", "bilinear", "cubic", "cubic_spline", "lanczos", "average", "mode",
}

// String returns the lowercase method name (for example "nearest").
func (r Resampling) String() string {
	if r < 0 || r >= resamplingMax {
		return "unknown"
	}
	return resamplingNames[r]
}

// ParseResampling resolves a method name to a Resampling value.
func ParseResampling(name string) (Resampling, error) {
	for i, n := range resamplingNames {
		if n == name {
			return Resampling(i), nil
		}
	}
	return 0, ErrUnknownResampling
}

// -----------------------------------------------------------------------------
// Archive interface
// -----------------------------------------------------------------------------

// Archive abstracts the backing store of a SAFE product.
//
// Implementations cover plain directories, zip archives, in-memory fixtures,
// and S3-compatible object stores. Callers never know which backend serves a
// product. Archives are read-only; SAFE products are immutable inputs.
type Archive interface {
	// Open returns a reader for the file at the given product-relative path.
	// Returns ErrNotFound if the path does not exist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a product-relative path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns product-relative file paths under the given prefix,
	// using forward slashes regardless of platform.
	List(ctx context.Context, prefix string) ([]string, error)

	// RasterPath translates a product-relative band file path into a path
	// the raster access layer can open directly (a filesystem path, a
	// /vsizip/ path inside a zip, a /vsis3/ object path). Returns an empty
	// string when the backend is not raster-addressable.
	RasterPath(path string) string
}

// -----------------------------------------------------------------------------
// Raster access layer
// -----------------------------------------------------------------------------

// WindowRequest describes one windowed, resampled read of a single-band
// raster file: the georeferenced bounds of the wanted window and the pixel
// grid it must be decoded onto.
type WindowRequest struct {
	Bounds     Bounds
	Width      int
	Height     int
	Resampling Resampling
}

// Window is the result of a windowed read: row-major pixel values on the
// requested grid plus a per-pixel nodata mask (true = no valid data).
type Window struct {
	Data []uint16
	Mask []bool
}

// AllMasked reports whether no pixel of the window carries valid data.
func (w *Window) AllMasked() bool {
	for _, m := range w.Mask {
		if !m {
			return false
		}
	}
	return true
}

// RasterReader is the external raster access layer: windowed, resampled
// decode of single-band raster files addressed by Archive.RasterPath values.
//
// Implementations must be safe for concurrent use and must not hold file
// handles across calls. The gdal subpackage provides the production
// implementation.
type RasterReader interface {
	ReadWindow(ctx context.Context, path string, req WindowRequest) (*Window, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrEmptyTile signals that a requested tile holds no valid data.
	// Not fatal: hosts skip or substitute a blank tile.
	ErrEmptyTile = errEmptyTile{}

	// ErrInvalidBand indicates a band index outside [1, 13].
	ErrInvalidBand = errInvalidBand{}

	// ErrNotFound indicates a requested file or product does not exist.
	ErrNotFound = errNotFound{}

	// ErrNotSAFE indicates a path that exists but lacks SAFE structure.
	ErrNotSAFE = errNotSAFE{}

	// ErrInvalidPath indicates a path that would escape the archive root.
	ErrInvalidPath = errInvalidPath{}

	// ErrNoRasterReader indicates a read was attempted on a product opened
	// without a raster access layer.
	ErrNoRasterReader = errNoRasterReader{}

	// ErrUnknownResampling indicates an unrecognized resampling method name.
	ErrUnknownResampling = errUnknownResampling{}
)

type errEmptyTile struct{}

func (errEmptyTile) Error() string { return "empty input tile" }

type errInvalidBand struct{}

func (errInvalidBand) Error() string { return "invalid band index" }

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errNotSAFE struct{}

func (errNotSAFE) Error() string { return "not a SAFE product" }

type errInvalidPath struct{}

func (errInvalidPath) Error() string { return "invalid path: escapes archive root" }

type errNoRasterReader struct{}

func (errNoRasterReader) Error() string { return "no raster reader configured" }

type errUnknownResampling struct{}

func (errUnknownResampling) Error() string { return "unknown resampling method" }
