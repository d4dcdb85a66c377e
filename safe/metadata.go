package safe

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// -----------------------------------------------------------------------------
// Product metadata
// -----------------------------------------------------------------------------

// productMetadata is the subset of the product-level metadata XML the reader
// needs: sensing time, the global footprint, and per-granule band files.
type productMetadata struct {
	StartTime time.Time
	Footprint *geom.Polygon
	Granules  []granuleMetadata
}

type granuleMetadata struct {
	ID        string
	BandPaths map[BandIndex]string
}

// xmlProduct mirrors the Level-1C user product metadata structure. Element
// matching ignores the n1: namespace prefixes, so both SENTINEL-SAFE
// namespace revisions parse.
type xmlProduct struct {
	StartTime    string           `xml:"General_Info>Product_Info>PRODUCT_START_TIME"`
	GranuleLists []xmlGranuleList `xml:"General_Info>Product_Info>Product_Organisation>Granule_List"`
	Footprint    string           `xml:"Geometric_Info>Product_Footprint>Product_Footprint>Global_Footprint>EXT_POS_LIST"`
}

type xmlGranuleList struct {
	// Compact naming (late 2016 onward) uses Granule; earlier products
	// use Granules. Both carry the same attributes and children.
	Granule  []xmlGranule `xml:"Granule"`
	Granules []xmlGranule `xml:"Granules"`
}

type xmlGranule struct {
	ID         string   `xml:"granuleIdentifier,attr"`
	ImageFiles []string `xml:"IMAGE_FILE"`
}

// parseProductMetadata decodes the product metadata XML.
//
// The global footprint EXT_POS_LIST is a latitude-first WGS84 coordinate
// sequence. Band file paths come from IMAGE_FILE entries where present;
// products without them (pre-compact naming) fall back to an archive scan
// in OpenProduct.
func parseProductMetadata(r io.Reader) (*productMetadata, error) {
	var doc xmlProduct
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode product metadata: %w", err)
	}

	meta := &productMetadata{}

	if doc.StartTime != "" {
		t, err := time.Parse(time.RFC3339, doc.StartTime)
		if err != nil {
			// Some products omit the zone designator.
			t, err = time.Parse("2006-01-02T15:04:05.999", doc.StartTime)
			if err != nil {
				return nil, fmt.Errorf("failed to parse product start time: %w", err)
			}
		}
		meta.StartTime = t.UTC()
	}

	if doc.Footprint != "" {
		poly, err := parsePosList(doc.Footprint, true)
		if err != nil {
			return nil, fmt.Errorf("failed to parse product footprint: %w", err)
		}
		meta.Footprint = poly
	}

	for _, list := range doc.GranuleLists {
		granules := list.Granule
		if len(granules) == 0 {
			granules = list.Granules
		}
		for _, g := range granules {
			gm := granuleMetadata{
				ID:        g.ID,
				BandPaths: make(map[BandIndex]string, BandCount),
			}
			for _, imageFile := range g.ImageFiles {
				p := normalize(strings.TrimSpace(imageFile)) + bandExt
				if index, ok := (layout{}).isBandFile(p); ok {
					gm.BandPaths[index] = p
				}
			}
			meta.Granules = append(meta.Granules, gm)
		}
	}

	return meta, nil
}

// -----------------------------------------------------------------------------
// Granule geocoding
// -----------------------------------------------------------------------------

// xmlGranuleGeocoding mirrors the Tile_Geocoding block of the granule-level
// metadata: the horizontal CRS plus grid shape and origin per resolution.
type xmlGranuleGeocoding struct {
	CSCode       string               `xml:"Geometric_Info>Tile_Geocoding>HORIZONTAL_CS_CODE"`
	Sizes        []xmlGeocodingSize   `xml:"Geometric_Info>Tile_Geocoding>Size"`
	Geopositions []xmlGeocodingOrigin `xml:"Geometric_Info>Tile_Geocoding>Geoposition"`
}

type xmlGeocodingSize struct {
	Resolution string `xml:"resolution,attr"`
	Rows       int    `xml:"NROWS"`
	Cols       int    `xml:"NCOLS"`
}

type xmlGeocodingOrigin struct {
	Resolution string  `xml:"resolution,attr"`
	ULX        float64 `xml:"ULX"`
	ULY        float64 `xml:"ULY"`
	XDim       float64 `xml:"XDIM"`
	YDim       float64 `xml:"YDIM"`
}

// parseGranuleFootprint derives a granule's WGS84 bounds from its geocoding:
// the UTM grid extent of any one resolution, corner-converted to geographic
// coordinates. A metadata file without a recognized UTM CRS or without a
// matching Size/Geoposition pair yields zero bounds, which disables extent
// filtering for that granule rather than failing the product.
func parseGranuleFootprint(r io.Reader) (Bounds, error) {
	var doc xmlGranuleGeocoding
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Bounds{}, fmt.Errorf("failed to decode granule metadata: %w", err)
	}

	zone, north, ok := parseUTMCode(doc.CSCode)
	if !ok {
		return Bounds{}, nil
	}

	for _, origin := range doc.Geopositions {
		size, ok := geocodingSizeFor(doc.Sizes, origin.Resolution)
		if !ok || size.Rows <= 0 || size.Cols <= 0 {
			continue
		}
		x0 := origin.ULX
		x1 := origin.ULX + float64(size.Cols)*origin.XDim
		y0 := origin.ULY
		y1 := origin.ULY + float64(size.Rows)*origin.YDim
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if y1 < y0 {
			y0, y1 = y1, y0
		}

		var bounds Bounds
		for i, corner := range [4][2]float64{{x0, y0}, {x0, y1}, {x1, y0}, {x1, y1}} {
			lon, lat := utmToLonLat(zone, north, corner[0], corner[1])
			if i == 0 {
				bounds = Bounds{West: lon, South: lat, East: lon, North: lat}
				continue
			}
			bounds.West = min(bounds.West, lon)
			bounds.South = min(bounds.South, lat)
			bounds.East = max(bounds.East, lon)
			bounds.North = max(bounds.North, lat)
		}
		return bounds, nil
	}
	return Bounds{}, nil
}

// parseUTMCode resolves an EPSG horizontal CRS code to a UTM zone.
// Sentinel-2 granules sit in EPSG:326xx (northern) or EPSG:327xx (southern).
func parseUTMCode(code string) (zone int, north bool, ok bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(code), "EPSG:"))
	if err != nil {
		return 0, false, false
	}
	switch {
	case n >= 32601 && n <= 32660:
		return n - 32600, true, true
	case n >= 32701 && n <= 32760:
		return n - 32700, false, true
	}
	return 0, false, false
}

func geocodingSizeFor(sizes []xmlGeocodingSize, resolution string) (xmlGeocodingSize, bool) {
	for _, s := range sizes {
		if s.Resolution == resolution {
			return s, true
		}
	}
	return xmlGeocodingSize{}, false
}

// -----------------------------------------------------------------------------
// GML masks
// -----------------------------------------------------------------------------

// xmlMask mirrors the eop:Mask structure of the MSK_CLOUDS_B00.gml file:
// a flat list of mask features, each a GML polygon.
type xmlMask struct {
	Features []xmlMaskFeature `xml:"maskMembers>MaskFeature"`
}

type xmlMaskFeature struct {
	Exterior  string   `xml:"extentOf>Polygon>exterior>LinearRing>posList"`
	Interiors []string `xml:"extentOf>Polygon>interior>LinearRing>posList"`
}

// parseGMLMask decodes a SAFE mask vector file into polygons. An empty
// feature list is valid: products without clouds ship empty mask files.
func parseGMLMask(r io.Reader) ([]*geom.Polygon, error) {
	var doc xmlMask
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}

	var polygons []*geom.Polygon
	for _, f := range doc.Features {
		if strings.TrimSpace(f.Exterior) == "" {
			continue
		}
		rings := [][]geom.Coord{}
		ring, err := parseRing(f.Exterior, false)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mask ring: %w", err)
		}
		rings = append(rings, ring)
		for _, interior := range f.Interiors {
			ring, err := parseRing(interior, false)
			if err != nil {
				return nil, fmt.Errorf("failed to parse mask ring: %w", err)
			}
			rings = append(rings, ring)
		}
		poly := geom.NewPolygon(geom.XY)
		if _, err := poly.SetCoords(rings); err != nil {
			return nil, fmt.Errorf("invalid mask polygon: %w", err)
		}
		polygons = append(polygons, poly)
	}
	return polygons, nil
}

// -----------------------------------------------------------------------------
// Coordinate lists
// -----------------------------------------------------------------------------

// parseRing parses a whitespace-separated coordinate pair sequence into a
// closed ring. latFirst selects latitude-first ordering (product footprints)
// over x-first ordering (GML mask posLists).
func parseRing(posList string, latFirst bool) ([]geom.Coord, error) {
	fields := strings.Fields(posList)
	if len(fields) < 6 || len(fields)%2 != 0 {
		return nil, fmt.Errorf("malformed position list with %d values", len(fields))
	}
	coords := make([]geom.Coord, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		a, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, err
		}
		if latFirst {
			coords = append(coords, geom.Coord{b, a})
		} else {
			coords = append(coords, geom.Coord{a, b})
		}
	}
	// Close the ring if the source left it open.
	first, last := coords[0], coords[len(coords)-1]
	if first[0] != last[0] || first[1] != last[1] {
		coords = append(coords, geom.Coord{first[0], first[1]})
	}
	return coords, nil
}

// parsePosList parses a coordinate sequence into a single-ring polygon.
func parsePosList(posList string, latFirst bool) (*geom.Polygon, error) {
	ring, err := parseRing(posList, latFirst)
	if err != nil {
		return nil, err
	}
	poly := geom.NewPolygon(geom.XY)
	if _, err := poly.SetCoords([][]geom.Coord{ring}); err != nil {
		return nil, err
	}
	return poly, nil
}
