package safe

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Product options
// -----------------------------------------------------------------------------

// productConfig holds the resolved configuration for OpenProduct.
type productConfig struct {
	archive    Archive
	raster     RasterReader
	resampling Resampling
}

// Option configures OpenProduct or Read.
// Options implement methods for the call sites they support.
// Using an option at an unsupported call site returns an error.
type Option interface {
	applyProduct(*productConfig) error
	applyRead(*readConfig) error
}

// ErrOptionNotValidForProduct indicates a read-only option was passed to
// OpenProduct.
var ErrOptionNotValidForProduct = errors.New("option not valid for OpenProduct")

// ErrOptionNotValidForRead indicates a product-only option was passed to
// Read.
var ErrOptionNotValidForRead = errors.New("option not valid for Read")

// archiveOption implements Option for WithArchive (product-only).
type archiveOption struct {
	archive Archive
}

// WithArchive sets the archive backend explicitly instead of selecting one
// from the product path. Use it for in-memory fixtures and remote backends
// such as the s3 subpackage.
func WithArchive(a Archive) Option {
	return &archiveOption{archive: a}
}

func (o *archiveOption) applyProduct(cfg *productConfig) error {
	if o.archive == nil {
		return errors.New("archive must not be nil")
	}
	cfg.archive = o.archive
	return nil
}

func (o *archiveOption) applyRead(*readConfig) error {
	return fmt.Errorf("WithArchive: %w", ErrOptionNotValidForRead)
}

// rasterReaderOption implements Option for WithRasterReader (product-only).
type rasterReaderOption struct {
	raster RasterReader
}

// WithRasterReader sets the raster access layer used to decode band files.
// Default: none; reads fail with ErrNoRasterReader.
func WithRasterReader(r RasterReader) Option {
	return &rasterReaderOption{raster: r}
}

func (o *rasterReaderOption) applyProduct(cfg *productConfig) error {
	if o.raster == nil {
		return errors.New("raster reader must not be nil")
	}
	cfg.raster = o.raster
	return nil
}

func (o *rasterReaderOption) applyRead(*readConfig) error {
	return fmt.Errorf("WithRasterReader: %w", ErrOptionNotValidForRead)
}

// resamplingOption implements Option for WithResampling.
type resamplingOption struct {
	resampling Resampling
}

// WithResampling sets the resampling method. At OpenProduct it becomes the
// product-wide default; at Read it overrides the default for that call.
// Default: ResamplingNearest.
func WithResampling(r Resampling) Option {
	return &resamplingOption{resampling: r}
}

func (o *resamplingOption) applyProduct(cfg *productConfig) error {
	if o.resampling < 0 || o.resampling >= resamplingMax {
		return ErrUnknownResampling
	}
	cfg.resampling = o.resampling
	return nil
}

func (o *resamplingOption) applyRead(cfg *readConfig) error {
	if o.resampling < 0 || o.resampling >= resamplingMax {
		return ErrUnknownResampling
	}
	cfg.resampling = o.resampling
	return nil
}

// -----------------------------------------------------------------------------
// Read options
// -----------------------------------------------------------------------------

// readConfig holds the resolved configuration for one Read call.
type readConfig struct {
	indexes        []BandIndex
	resampling     Resampling
	maskNodata     bool
	maskClouds     bool
	maskWhiteAreas bool
	returnEmpty    bool
}

// indexesOption implements Option for WithIndexes (read-only).
type indexesOption struct {
	indexes []BandIndex
}

// WithIndexes selects the bands to read, in result order.
// Default: all 13 bands in order.
func WithIndexes(indexes ...BandIndex) Option {
	return &indexesOption{indexes: indexes}
}

func (o *indexesOption) applyProduct(*productConfig) error {
	return fmt.Errorf("WithIndexes: %w", ErrOptionNotValidForProduct)
}

func (o *indexesOption) applyRead(cfg *readConfig) error {
	for _, index := range o.indexes {
		if !index.Valid() {
			return fmt.Errorf("band %d: %w", index, ErrInvalidBand)
		}
	}
	cfg.indexes = o.indexes
	return nil
}

// boolReadOption implements the boolean read flags.
type boolReadOption struct {
	name  string
	value bool
	set   func(*readConfig, bool)
}

// MaskNodata toggles masking of pixels carrying no valid sensor data
// (all band values zero, or no granule coverage). Default: true.
func MaskNodata(enabled bool) Option {
	return &boolReadOption{
		name:  "MaskNodata",
		value: enabled,
		set:   func(cfg *readConfig, v bool) { cfg.maskNodata = v },
	}
}

// MaskClouds toggles masking of pixels under the product's cloud mask
// polygons. Products without a cloud mask are unaffected. Default: false.
func MaskClouds(enabled bool) Option {
	return &boolReadOption{
		name:  "MaskClouds",
		value: enabled,
		set:   func(cfg *readConfig, v bool) { cfg.maskClouds = v },
	}
}

// MaskWhiteAreas toggles masking of overbright pixels (any requested band at
// or above 4096). Mostly useful on RGB bands. Default: false.
func MaskWhiteAreas(enabled bool) Option {
	return &boolReadOption{
		name:  "MaskWhiteAreas",
		value: enabled,
		set:   func(cfg *readConfig, v bool) { cfg.maskWhiteAreas = v },
	}
}

// ReturnEmpty makes Read return a fully-masked stack for tiles without valid
// data instead of failing with ErrEmptyTile. Default: false.
func ReturnEmpty(enabled bool) Option {
	return &boolReadOption{
		name:  "ReturnEmpty",
		value: enabled,
		set:   func(cfg *readConfig, v bool) { cfg.returnEmpty = v },
	}
}

func (o *boolReadOption) applyProduct(*productConfig) error {
	return fmt.Errorf("%s: %w", o.name, ErrOptionNotValidForProduct)
}

func (o *boolReadOption) applyRead(cfg *readConfig) error {
	o.set(cfg, o.value)
	return nil
}
