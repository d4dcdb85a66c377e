package safe

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// whiteThreshold is the reflectance value at and above which a pixel counts
// as a white area. Sentinel-2 L1C values are scaled by 10000; 4096 cuts off
// saturated snow, sand, and sensor bloom.
const whiteThreshold = 4096

// Mask predicates are pure functions of the decoded planes; Read OR-combines
// the enabled ones into the result mask.

// nodataMask marks pixels carrying no valid sensor data: zero in every band,
// or not covered by any granule window.
func nodataMask(planes [][]uint16, uncovered []bool, out []bool) {
	for i := range out {
		if uncovered[i] {
			out[i] = true
			continue
		}
		allZero := true
		for _, plane := range planes {
			if plane[i] != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			out[i] = true
		}
	}
}

// whiteAreaMask marks overbright pixels: any band at or above the white
// threshold.
func whiteAreaMask(planes [][]uint16, out []bool) {
	for i := range out {
		for _, plane := range planes {
			if plane[i] >= whiteThreshold {
				out[i] = true
				break
			}
		}
	}
}

// cloudMask rasterizes cloud polygons onto the tile grid, marking pixels
// whose center falls inside any polygon.
func cloudMask(polygons []*geom.Polygon, tile TileRequest, out []bool) {
	for _, poly := range polygons {
		if poly.NumLinearRings() == 0 {
			continue
		}
		b := boundsOf(poly)
		if !b.Intersects(tile.Bounds) {
			continue
		}
		for row := 0; row < tile.Height; row++ {
			for col := 0; col < tile.Width; col++ {
				i := row*tile.Width + col
				if out[i] {
					continue
				}
				x, y := tile.PixelCenter(col, row)
				if x < b.West || x > b.East || y < b.South || y > b.North {
					continue
				}
				if pointInPolygon(poly, x, y) {
					out[i] = true
				}
			}
		}
	}
}

// pointInPolygon reports whether (x, y) lies inside a polygon's exterior
// ring and outside its interior rings.
func pointInPolygon(poly *geom.Polygon, x, y float64) bool {
	point := geom.Coord{x, y}
	if !xy.IsPointInRing(poly.Layout(), point, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(poly.Layout(), point, poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
