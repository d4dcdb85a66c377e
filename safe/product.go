package safe

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// -----------------------------------------------------------------------------
// Product
// -----------------------------------------------------------------------------

// Product is one opened SAFE product. It is immutable after OpenProduct and
// safe for concurrent use; every tile read opens its own file handles.
type Product struct {
	path       string
	archive    Archive
	raster     RasterReader
	resampling Resampling
	meta       *productMetadata
	bbox       Bounds
	granules   []*Granule
}

// Granule is one granule (tile of the product's acquisition grid) with its
// band raster paths and cloud mask polygons.
type Granule struct {
	// ID is the granule identifier from the product metadata.
	ID string

	// Footprint is the granule's WGS84 extent, derived from the granule
	// metadata geocoding. Zero when the granule carries no usable geocoding;
	// reads then consider the granule for every tile.
	Footprint Bounds

	// CloudMask holds the granule's cloud polygons, empty when the product
	// carries no cloud mask. Per-read cloud masking is a no-op for granules
	// without one.
	CloudMask []*geom.Polygon

	bandPaths map[BandIndex]string
}

// BandPath returns the product-relative raster path for a band.
func (g *Granule) BandPath(index BandIndex) (string, bool) {
	p, ok := g.bandPaths[index]
	return p, ok
}

// Bands returns the band indexes the granule carries rasters for, ascending.
func (g *Granule) Bands() []BandIndex {
	var indexes []BandIndex
	for index := BandIndex(1); index <= BandCount; index++ {
		if _, ok := g.bandPaths[index]; ok {
			indexes = append(indexes, index)
		}
	}
	return indexes
}

// OpenProduct opens a SAFE product at the given path, parsing product and
// granule metadata. The backend is selected by inspecting the path: a
// directory is read in place, a .zip file is read without unpacking. Pass
// WithArchive to supply a different backend (for example an s3.Archive), in
// which case the path is informational only.
//
// Reading tiles additionally needs a raster access layer; pass
// WithRasterReader (the gdal subpackage provides the production one).
// Products opened without one can still report extent and cloud masks.
func OpenProduct(ctx context.Context, path string, opts ...Option) (*Product, error) {
	cfg := &productConfig{resampling: ResamplingNearest}
	for _, opt := range opts {
		if err := opt.applyProduct(cfg); err != nil {
			return nil, fmt.Errorf("safe: %w", err)
		}
	}

	archive := cfg.archive
	owned := false
	if archive == nil {
		var err error
		archive, err = openPathArchive(path)
		if err != nil {
			return nil, fmt.Errorf("safe: %w", err)
		}
		owned = true
	}
	// An archive selected here is ours to release on failure; one the
	// caller passed in stays the caller's to close.
	closeOwned := func() {
		if !owned {
			return
		}
		if c, ok := archive.(io.Closer); ok {
			_ = c.Close()
		}
	}

	meta, err := loadProductMetadata(ctx, archive)
	if err != nil {
		closeOwned()
		return nil, fmt.Errorf("safe: %w", err)
	}

	granules, err := loadGranules(ctx, archive, meta)
	if err != nil {
		closeOwned()
		return nil, fmt.Errorf("safe: %w", err)
	}

	p := &Product{
		path:       path,
		archive:    archive,
		raster:     cfg.raster,
		resampling: cfg.resampling,
		meta:       meta,
		granules:   granules,
	}
	if meta.Footprint != nil {
		p.bbox = boundsOf(meta.Footprint)
	}
	return p, nil
}

// openPathArchive selects the archive backend for a local path.
func openPathArchive(path string) (Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return NewDirArchive(path)
	}
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		return NewZipArchive(path)
	}
	return nil, ErrNotSAFE
}

// loadProductMetadata locates and parses the product metadata XML.
func loadProductMetadata(ctx context.Context, archive Archive) (*productMetadata, error) {
	paths, err := archive.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var metadataPath string
	for _, p := range paths {
		if (layout{}).isProductMetadata(p) {
			metadataPath = p
			break
		}
	}
	if metadataPath == "" {
		return nil, ErrNotSAFE
	}

	rc, err := archive.Open(ctx, metadataPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return parseProductMetadata(rc)
}

// loadGranules resolves granules and their band and cloud mask files.
// Products whose metadata lists no IMAGE_FILE entries fall back to scanning
// the GRANULE tree.
func loadGranules(ctx context.Context, archive Archive, meta *productMetadata) ([]*Granule, error) {
	lay := layout{}

	byID := make(map[string]*Granule)
	var granules []*Granule
	add := func(id string) *Granule {
		if g, ok := byID[id]; ok {
			return g
		}
		g := &Granule{ID: id, bandPaths: make(map[BandIndex]string, BandCount)}
		byID[id] = g
		granules = append(granules, g)
		return g
	}

	for _, gm := range meta.Granules {
		g := add(gm.ID)
		for index, p := range gm.BandPaths {
			g.bandPaths[index] = p
		}
	}

	needScan := len(granules) == 0
	for _, g := range granules {
		if len(g.bandPaths) == 0 {
			needScan = true
		}
	}
	if needScan {
		paths, err := archive.List(ctx, lay.granulesPrefix())
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			index, ok := lay.isBandFile(p)
			if !ok {
				continue
			}
			g := add(lay.granuleID(p))
			if _, taken := g.bandPaths[index]; !taken {
				g.bandPaths[index] = p
			}
		}
	}

	for _, g := range granules {
		paths, err := archive.List(ctx, lay.granulePrefix(g.ID))
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if !lay.isGranuleMetadata(p, g.ID) {
				continue
			}
			rc, err := archive.Open(ctx, p)
			if err != nil {
				return nil, err
			}
			footprint, err := parseGranuleFootprint(rc)
			_ = rc.Close()
			if err != nil {
				return nil, fmt.Errorf("granule %s: %w", g.ID, err)
			}
			g.Footprint = footprint
			break
		}
	}

	for _, g := range granules {
		maskPath := lay.cloudMaskPath(g.ID)
		ok, err := archive.Exists(ctx, maskPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rc, err := archive.Open(ctx, maskPath)
		if err != nil {
			return nil, err
		}
		polygons, err := parseGMLMask(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("granule %s: %w", g.ID, err)
		}
		g.CloudMask = polygons
	}

	return granules, nil
}

// Path returns the path the product was opened with.
func (p *Product) Path() string { return p.path }

// StartTime returns the product sensing start time in UTC, zero when the
// metadata omits it.
func (p *Product) StartTime() time.Time { return p.meta.StartTime }

// BBox returns the bounding box of the product footprint in WGS84. A zero
// value means the metadata carries no footprint; tile reads then skip the
// extent check rather than declaring every tile empty.
func (p *Product) BBox() Bounds { return p.bbox }

// Footprint returns the product footprint polygon, nil when absent.
func (p *Product) Footprint() *geom.Polygon { return p.meta.Footprint }

// Granules returns the product's granules in metadata order.
func (p *Product) Granules() []*Granule { return p.granules }

// CloudMask returns all cloud polygons across granules.
func (p *Product) CloudMask() []*geom.Polygon {
	var polygons []*geom.Polygon
	for _, g := range p.granules {
		polygons = append(polygons, g.CloudMask...)
	}
	return polygons
}

// OpenTile returns a TileReader for one requested tile. Opening is cheap
// and performs no I/O; all work happens in Read.
func (p *Product) OpenTile(tile TileRequest) *TileReader {
	return &TileReader{product: p, tile: tile}
}

// Close releases the archive backend where it holds resources (zip files).
func (p *Product) Close() error {
	if c, ok := p.archive.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// boundsOf returns the WGS84 bounds of a geometry.
func boundsOf(g geom.T) Bounds {
	b := g.Bounds()
	return Bounds{West: b.Min(0), South: b.Min(1), East: b.Max(0), North: b.Max(1)}
}
