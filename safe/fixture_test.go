package safe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Test fixtures: a single-granule product over lon 12..13, lat 46..47 with
// all 13 bands, served from a memory archive and a fake raster layer.

const testGranuleID = "L1C_T33UUP_A008000_20170105T101402"

const testFootprintPosList = "46.0 12.0 46.0 13.0 47.0 13.0 47.0 12.0 46.0 12.0"

func testBandPath(index BandIndex) string {
	return fmt.Sprintf("GRANULE/%s/IMG_DATA/T33UUP_20170105T101402_%s.jp2", testGranuleID, index.ID())
}

func testProductXML(imageFiles []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<n1:Level-1C_User_Product xmlns:n1="https://psd-14.sentinel2.eo.esa.int/PSD/User_Product_Level-1C.xsd">`)
	b.WriteString(`<n1:General_Info><Product_Info>`)
	b.WriteString(`<PRODUCT_START_TIME>2017-01-05T10:14:02.026Z</PRODUCT_START_TIME>`)
	b.WriteString(`<Product_Organisation><Granule_List>`)
	b.WriteString(`<Granule granuleIdentifier="` + testGranuleID + `" imageFormat="JPEG2000">`)
	for _, f := range imageFiles {
		b.WriteString(`<IMAGE_FILE>` + f + `</IMAGE_FILE>`)
	}
	b.WriteString(`</Granule></Granule_List></Product_Organisation>`)
	b.WriteString(`</Product_Info></n1:General_Info>`)
	b.WriteString(`<n1:Geometric_Info><Product_Footprint><Product_Footprint><Global_Footprint>`)
	b.WriteString(`<EXT_POS_LIST>` + testFootprintPosList + `</EXT_POS_LIST>`)
	b.WriteString(`</Global_Footprint></Product_Footprint></Product_Footprint></n1:Geometric_Info>`)
	b.WriteString(`</n1:Level-1C_User_Product>`)
	return b.String()
}

// testGranuleXML builds a granule metadata file whose geocoding places a
// 10980x10980 grid of 10m pixels at the given UTM origin.
func testGranuleXML(csCode string, ulx, uly float64) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<n1:Level-1C_Tile_ID xmlns:n1="https://psd-14.sentinel2.eo.esa.int/PSD/S2_PDI_Level-1C_Tile_Metadata.xsd">`)
	b.WriteString(`<n1:Geometric_Info><Tile_Geocoding metadataLevel="Brief">`)
	b.WriteString(`<HORIZONTAL_CS_CODE>` + csCode + `</HORIZONTAL_CS_CODE>`)
	b.WriteString(`<Size resolution="10"><NROWS>10980</NROWS><NCOLS>10980</NCOLS></Size>`)
	b.WriteString(fmt.Sprintf(
		`<Geoposition resolution="10"><ULX>%.0f</ULX><ULY>%.0f</ULY><XDIM>10</XDIM><YDIM>-10</YDIM></Geoposition>`,
		ulx, uly))
	b.WriteString(`</Tile_Geocoding></n1:Geometric_Info>`)
	b.WriteString(`</n1:Level-1C_Tile_ID>`)
	return b.String()
}

func testCloudGML(posLists ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<eop:Mask xmlns:eop="http://www.opengis.net/eop/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">`)
	b.WriteString(`<eop:maskMembers>`)
	for i, posList := range posLists {
		b.WriteString(fmt.Sprintf(`<eop:MaskFeature gml:id="OPAQUE.%d">`, i))
		b.WriteString(`<eop:maskType codeSpace="urn:gs2:S2PDGS:maskType">OPAQUE</eop:maskType>`)
		b.WriteString(`<eop:extentOf><gml:Polygon><gml:exterior><gml:LinearRing>`)
		b.WriteString(`<gml:posList srsDimension="2">` + posList + `</gml:posList>`)
		b.WriteString(`</gml:LinearRing></gml:exterior></gml:Polygon></eop:extentOf>`)
		b.WriteString(`</eop:MaskFeature>`)
	}
	b.WriteString(`</eop:maskMembers></eop:Mask>`)
	return b.String()
}

// fakeBand describes how the fake raster layer fills a window.
type fakeBand struct {
	value  uint16                 // constant fill
	values func(col, row int) uint16 // overrides value when set
	masked bool                   // whole window comes back masked
	err    error                  // read fails
}

// fakeRaster implements RasterReader over a path-keyed band table.
type fakeRaster struct {
	mu    sync.Mutex
	bands map[string]fakeBand
	calls []string
}

func newFakeRaster() *fakeRaster {
	return &fakeRaster{bands: make(map[string]fakeBand)}
}

func (f *fakeRaster) set(path string, band fakeBand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bands[path] = band
}

func (f *fakeRaster) ReadWindow(_ context.Context, path string, req WindowRequest) (*Window, error) {
	f.mu.Lock()
	band, ok := f.bands[path]
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no raster at %s", path)
	}
	if band.err != nil {
		return nil, band.err
	}

	npix := req.Width * req.Height
	window := &Window{Data: make([]uint16, npix), Mask: make([]bool, npix)}
	for row := 0; row < req.Height; row++ {
		for col := 0; col < req.Width; col++ {
			i := row*req.Width + col
			if band.masked {
				window.Mask[i] = true
				continue
			}
			if band.values != nil {
				window.Data[i] = band.values(col, row)
			} else {
				window.Data[i] = band.value
			}
		}
	}
	return window, nil
}

// newTestProduct opens a single-granule fixture product. Each band's fake
// raster fills with 100*index unless overridden via raster.set afterwards.
func newTestProduct(ctx context.Context, t *testing.T, opts ...Option) (*Product, *MemArchive, *fakeRaster) {
	t.Helper()

	archive := NewMemArchive()
	var imageFiles []string
	for _, index := range AllBands() {
		imageFiles = append(imageFiles, strings.TrimSuffix(testBandPath(index), ".jp2"))
	}
	archive.Add("MTD_MSIL1C.xml", []byte(testProductXML(imageFiles)))

	raster := newFakeRaster()
	for _, index := range AllBands() {
		raster.set(testBandPath(index), fakeBand{value: uint16(100 * index)})
	}

	opts = append([]Option{WithArchive(archive), WithRasterReader(raster)}, opts...)
	product, err := OpenProduct(ctx, "MEM:test.SAFE", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return product, archive, raster
}

// testTile is fully inside the fixture footprint.
func testTile() TileRequest {
	return TileRequest{
		Bounds: Bounds{West: 12.2, South: 46.2, East: 12.6, North: 46.6},
		Width:  8,
		Height: 8,
	}
}
