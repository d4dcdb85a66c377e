// Package catalog builds searchable indexes over collections of SAFE
// products: one row per granule, carrying identity, sensing time, footprint,
// and band availability. Indexes serialize as JSONL or Parquet, optionally
// compressed, so downstream tooling can discover products without touching
// the archives again.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/terrastack/safe/safe"
)

// Row is one granule of one product in the index.
type Row struct {
	Product      string    `json:"product" parquet:"product"`
	GranuleID    string    `json:"granule_id" parquet:"granule_id"`
	SensingTime  time.Time `json:"sensing_time" parquet:"sensing_time,timestamp"`
	Footprint    string    `json:"footprint,omitempty" parquet:"footprint,optional"`
	Bands        int32     `json:"bands" parquet:"bands"`
	HasCloudMask bool      `json:"has_cloud_mask" parquet:"has_cloud_mask"`
}

// Codec handles serialization and deserialization of index rows.
type Codec interface {
	// Name returns the codec identifier ("jsonl" or "parquet").
	Name() string

	// Encode writes rows to the given writer.
	Encode(w io.Writer, rows []Row) error

	// Decode reads rows from the given reader.
	Decode(r io.Reader) ([]Row, error)
}

// Compressor handles compression and decompression of index streams.
//
// Compressors are orthogonal to codecs; any pairing works.
type Compressor interface {
	// Extension returns the file extension (".gz", ".zst", "").
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// builderConfig holds the resolved configuration for a Builder.
type builderConfig struct {
	codec      Codec
	compressor Compressor
}

// Option configures Builder construction.
type Option interface {
	applyBuilder(*builderConfig) error
}

// codecOption implements Option for WithCodec.
type codecOption struct {
	codec Codec
}

// WithCodec sets the index codec. Default: NewJSONLCodec().
func WithCodec(c Codec) Option {
	return &codecOption{codec: c}
}

func (o *codecOption) applyBuilder(cfg *builderConfig) error {
	if o.codec == nil {
		return errors.New("codec must not be nil")
	}
	cfg.codec = o.codec
	return nil
}

// compressorOption implements Option for WithCompressor.
type compressorOption struct {
	compressor Compressor
}

// WithCompressor sets the index stream compressor. Default: NewNoOpCompressor().
func WithCompressor(c Compressor) Option {
	return &compressorOption{compressor: c}
}

func (o *compressorOption) applyBuilder(cfg *builderConfig) error {
	if o.compressor == nil {
		return errors.New("compressor must not be nil")
	}
	cfg.compressor = o.compressor
	return nil
}

// Builder scans products into index rows and reads/writes index streams.
type Builder struct {
	codec      Codec
	compressor Compressor
}

// NewBuilder creates a Builder with documented defaults.
//
// Default behavior:
//   - Codec: NewJSONLCodec()
//   - Compressor: NewNoOpCompressor()
func NewBuilder(opts ...Option) (*Builder, error) {
	cfg := &builderConfig{
		codec:      NewJSONLCodec(),
		compressor: NewNoOpCompressor(),
	}
	for _, opt := range opts {
		if err := opt.applyBuilder(cfg); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return &Builder{codec: cfg.codec, compressor: cfg.compressor}, nil
}

// Filename returns the index file name for the configured codec and
// compressor (for example "index.jsonl.zst").
func (b *Builder) Filename() string {
	ext := ".jsonl"
	if b.codec.Name() == "parquet" {
		ext = ".parquet"
	}
	return "index" + ext + b.compressor.Extension()
}

// Scan produces one row per granule across the given products, in product
// then granule order.
func (b *Builder) Scan(ctx context.Context, products ...*safe.Product) ([]Row, error) {
	var rows []Row
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		footprint := ""
		if fp := product.Footprint(); fp != nil {
			s, err := wkt.Marshal(fp)
			if err != nil {
				return nil, fmt.Errorf("catalog: footprint of %s: %w", product.Path(), err)
			}
			footprint = s
		}
		for _, granule := range product.Granules() {
			rows = append(rows, Row{
				Product:      product.Path(),
				GranuleID:    granule.ID,
				SensingTime:  product.StartTime(),
				Footprint:    footprint,
				Bands:        int32(len(granule.Bands())),
				HasCloudMask: len(granule.CloudMask) > 0,
			})
		}
	}
	return rows, nil
}

// Write serializes rows through the codec and compressor.
func (b *Builder) Write(w io.Writer, rows []Row) error {
	cw, err := b.compressor.Compress(w)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := b.codec.Encode(cw, rows); err != nil {
		_ = cw.Close()
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// Read deserializes rows written by Write with the same configuration.
func (b *Builder) Read(r io.Reader) ([]Row, error) {
	cr, err := b.compressor.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer func() { _ = cr.Close() }()

	rows, err := b.codec.Decode(cr)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return rows, nil
}
