package safe

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Tile reader
// -----------------------------------------------------------------------------

// TileReader reads one requested tile from a product. It holds no mutable
// state; Read is a pure function of the product, the tile, and the options,
// and is safe to call concurrently from multiple goroutines.
type TileReader struct {
	product *Product
	tile    TileRequest
}

// Tile returns the tile request this reader serves.
func (r *TileReader) Tile() TileRequest { return r.tile }

// IsEmpty is a cheap check whether the tile lies entirely outside the
// product extent. Products without a footprint report false; only Read can
// tell then.
func (r *TileReader) IsEmpty() bool {
	if r.product.bbox.IsZero() {
		return false
	}
	return !r.tile.Bounds.Intersects(r.product.bbox)
}

// Read returns the tile's band data and validity mask.
//
// Band planes appear in the order requested via WithIndexes (default: all 13
// bands). Each intersecting granule's band file is decoded and resampled onto
// the tile grid by the raster access layer; granules whose footprint misses
// the tile are skipped, and overlapping granules are mosaicked with the first
// valid value per pixel winning. The result mask OR-combines the
// enabled rules: nodata (default on), white areas, and clouds. Masked pixels
// are zeroed in every plane.
//
// Tiles without any valid data fail with ErrEmptyTile, or yield a
// fully-masked stack when ReturnEmpty(true) is set. Any failed band read
// fails the whole call; there are no partial results and no retries.
func (r *TileReader) Read(ctx context.Context, opts ...Option) (*BandStack, error) {
	cfg := &readConfig{
		resampling: r.product.resampling,
		maskNodata: true,
	}
	for _, opt := range opts {
		if err := opt.applyRead(cfg); err != nil {
			return nil, fmt.Errorf("safe: %w", err)
		}
	}

	if !r.tile.valid() {
		return nil, fmt.Errorf("safe: degenerate tile request %+v", r.tile)
	}

	indexes := cfg.indexes
	if len(indexes) == 0 {
		indexes = AllBands()
	}

	// Tile entirely outside the product extent: no reads needed.
	if r.IsEmpty() {
		return r.empty(indexes, cfg)
	}

	if r.product.raster == nil {
		return nil, fmt.Errorf("safe: %w", ErrNoRasterReader)
	}

	width, height := r.tile.Width, r.tile.Height
	npix := width * height
	request := WindowRequest{
		Bounds:     r.tile.Bounds,
		Width:      width,
		Height:     height,
		Resampling: cfg.resampling,
	}

	// uncovered tracks pixels no granule window filled, across all bands.
	planes := make([][]uint16, len(indexes))
	uncovered := make([]bool, npix)

	for bi, index := range indexes {
		plane := make([]uint16, npix)
		missing := make([]bool, npix)
		for i := range missing {
			missing[i] = true
		}

		for _, granule := range r.product.granules {
			// Granules with a known footprint outside the tile contribute
			// nothing; skip them without touching their rasters.
			if !granule.Footprint.IsZero() && !granule.Footprint.Intersects(r.tile.Bounds) {
				continue
			}
			bandPath, ok := granule.BandPath(index)
			if !ok {
				return nil, fmt.Errorf(
					"safe: band %s missing in granule %s: %w", index.ID(), granule.ID, ErrNotFound)
			}
			window, err := r.product.raster.ReadWindow(ctx, r.product.archive.RasterPath(bandPath), request)
			if err != nil {
				return nil, fmt.Errorf("safe: read band %s of granule %s: %w", index.ID(), granule.ID, err)
			}
			if window.AllMasked() {
				continue
			}
			for i := range plane {
				if missing[i] && !window.Mask[i] {
					plane[i] = window.Data[i]
					missing[i] = false
				}
			}
		}

		planes[bi] = plane
		for i, m := range missing {
			if m {
				uncovered[i] = true
			}
		}
	}

	mask := make([]bool, npix)
	if cfg.maskNodata {
		nodataMask(planes, uncovered, mask)
	}
	if cfg.maskWhiteAreas {
		whiteAreaMask(planes, mask)
	}
	if cfg.maskClouds {
		cloudMask(r.product.CloudMask(), r.tile, mask)
	}

	allMasked := true
	for _, m := range mask {
		if !m {
			allMasked = false
			break
		}
	}
	if allMasked {
		return r.empty(indexes, cfg)
	}

	for _, plane := range planes {
		for i, m := range mask {
			if m {
				plane[i] = 0
			}
		}
	}

	return &BandStack{
		Indexes: append([]BandIndex(nil), indexes...),
		Width:   width,
		Height:  height,
		Data:    planes,
		Mask:    mask,
	}, nil
}

// empty applies the configured empty-tile policy.
func (r *TileReader) empty(indexes []BandIndex, cfg *readConfig) (*BandStack, error) {
	if cfg.returnEmpty {
		return newEmptyStack(indexes, r.tile.Width, r.tile.Height), nil
	}
	return nil, fmt.Errorf("safe: %w", ErrEmptyTile)
}
