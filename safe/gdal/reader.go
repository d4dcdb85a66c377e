// Package gdal implements the safe.RasterReader contract on top of the GDAL
// raster library, which owns JPEG2000 decoding, windowed access, and
// resampling.
//
// Paths come from safe.Archive.RasterPath, so plain filesystem paths,
// /vsizip/ paths into zipped products, and /vsis3/ object paths all work,
// provided the linked GDAL build carries the matching virtual filesystem
// handlers.
package gdal

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/lukeroth/gdal"

	"github.com/terrastack/safe/safe"
)

// rasterioResampling maps resampling methods to the names GDAL's RasterIO
// resampling configuration understands.
var rasterioResampling = map[safe.Resampling]string{
	safe.ResamplingNearest:     "NEAR",
	safe.ResamplingBilinear:    "BILINEAR",
	safe.ResamplingCubic:       "CUBIC",
	safe.ResamplingCubicSpline: "CUBICSPLINE",
	safe.ResamplingLanczos:     "LANCZOS",
	safe.ResamplingAverage:     "AVERAGE",
	safe.ResamplingMode:        "MODE",
}

// configMu serializes the GDAL_RASTERIO_RESAMPLING configuration around each
// IO call; GDAL configuration options are process-global.
var configMu sync.Mutex

// Reader implements safe.RasterReader. It holds no state; every call opens
// and closes its own dataset, so one Reader serves concurrent tile reads.
type Reader struct{}

// NewReader creates a GDAL-backed raster reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadWindow decodes the requested georeferenced window of a single-band
// raster onto the requested grid. Parts of the window outside the raster
// come back masked, as do pixels matching the band's nodata value. A window
// entirely outside the raster is returned fully masked, not as an error.
func (r *Reader) ReadWindow(ctx context.Context, path string, req safe.WindowRequest) (*safe.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	npix := req.Width * req.Height
	window := &safe.Window{
		Data: make([]uint16, npix),
		Mask: make([]bool, npix),
	}
	for i := range window.Mask {
		window.Mask[i] = true
	}

	dataset, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("gdal: open %s: %w", path, err)
	}
	defer dataset.Close()

	gt := dataset.GeoTransform()
	if gt[1] == 0 || gt[5] == 0 || gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("gdal: %s: unsupported rotated or degenerate geotransform", path)
	}

	// Requested window in source pixel coordinates. gt[5] is negative for
	// north-up rasters, so North maps to the smaller row.
	col0 := (req.Bounds.West - gt[0]) / gt[1]
	col1 := (req.Bounds.East - gt[0]) / gt[1]
	row0 := (req.Bounds.North - gt[3]) / gt[5]
	row1 := (req.Bounds.South - gt[3]) / gt[5]

	srcX0 := clampInt(int(math.Floor(col0)), 0, dataset.RasterXSize())
	srcX1 := clampInt(int(math.Ceil(col1)), 0, dataset.RasterXSize())
	srcY0 := clampInt(int(math.Floor(row0)), 0, dataset.RasterYSize())
	srcY1 := clampInt(int(math.Ceil(row1)), 0, dataset.RasterYSize())
	if srcX1 <= srcX0 || srcY1 <= srcY0 {
		return window, nil
	}

	// Destination subrectangle covered by the clipped source window,
	// proportional within the requested bounds.
	clipWest := gt[0] + float64(srcX0)*gt[1]
	clipEast := gt[0] + float64(srcX1)*gt[1]
	clipNorth := gt[3] + float64(srcY0)*gt[5]
	clipSouth := gt[3] + float64(srcY1)*gt[5]

	spanX := req.Bounds.East - req.Bounds.West
	spanY := req.Bounds.North - req.Bounds.South
	dstX0 := clampInt(int(math.Round((clipWest-req.Bounds.West)/spanX*float64(req.Width))), 0, req.Width)
	dstX1 := clampInt(int(math.Round((clipEast-req.Bounds.West)/spanX*float64(req.Width))), 0, req.Width)
	dstY0 := clampInt(int(math.Round((req.Bounds.North-clipNorth)/spanY*float64(req.Height))), 0, req.Height)
	dstY1 := clampInt(int(math.Round((req.Bounds.North-clipSouth)/spanY*float64(req.Height))), 0, req.Height)
	dstW := dstX1 - dstX0
	dstH := dstY1 - dstY0
	if dstW <= 0 || dstH <= 0 {
		return window, nil
	}

	band := dataset.RasterBand(1)
	buffer := make([]uint16, dstW*dstH)
	if err := rasterIO(band, req.Resampling, srcX0, srcY0, srcX1-srcX0, srcY1-srcY0, buffer, dstW, dstH); err != nil {
		return nil, fmt.Errorf("gdal: read %s: %w", path, err)
	}

	nodata, hasNodata := band.NoDataValue()
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			v := buffer[y*dstW+x]
			if hasNodata && float64(v) == nodata {
				continue
			}
			i := (dstY0+y)*req.Width + dstX0 + x
			window.Data[i] = v
			window.Mask[i] = false
		}
	}
	return window, nil
}

// rasterIO performs the windowed read with the wanted resampling method
// active. GDAL reads RasterIO resampling from process-global configuration,
// so the call is serialized and the option restored afterwards.
func rasterIO(band gdal.RasterBand, resampling safe.Resampling, xOff, yOff, xSize, ySize int, buffer []uint16, bufX, bufY int) error {
	name, ok := rasterioResampling[resampling]
	if !ok {
		return safe.ErrUnknownResampling
	}

	configMu.Lock()
	defer configMu.Unlock()

	gdal.CPLSetConfigOption("GDAL_RASTERIO_RESAMPLING", name)
	defer gdal.CPLSetConfigOption("GDAL_RASTERIO_RESAMPLING", "")

	return band.IO(gdal.Read, xOff, yOff, xSize, ySize, buffer, bufX, bufY, 0, 0)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
