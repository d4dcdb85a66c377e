package safe

import (
	"path"
	"strings"
)

// SAFE directory constants.
const (
	granuleDir    = "GRANULE"
	imgDataDir    = "IMG_DATA"
	qiDataDir     = "QI_DATA"
	cloudMaskFile = "MSK_CLOUDS_B00.gml"
	bandExt       = ".jp2"
)

// layout encodes the path grammar of a SAFE product:
//
//	MTD_*.xml                              product metadata
//	GRANULE/<granule_id>/
//	  MTD_*.xml                            granule metadata
//	  IMG_DATA/<...>_B01.jp2 .. _B12.jp2   band rasters
//	  QI_DATA/MSK_CLOUDS_B00.gml           cloud mask vectors
//
// All methods operate on product-relative, slash-separated paths as returned
// by Archive.List.
type layout struct{}

// isProductMetadata reports whether p is the product-level metadata file.
// Both the current naming (MTD_MSIL1C.xml) and the pre-2016 naming
// (S2A_..._MTD_SAFL1C_....xml) sit at the product root.
func (layout) isProductMetadata(p string) bool {
	if strings.Contains(p, "/") {
		return false
	}
	name := path.Base(p)
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	return strings.HasPrefix(name, "MTD_") || strings.Contains(name, "_MTD_")
}

// granulesPrefix returns the prefix under which granules live.
func (layout) granulesPrefix() string {
	return granuleDir + "/"
}

// granulePrefix returns the prefix of one granule's files.
func (layout) granulePrefix(granuleID string) string {
	return granuleDir + "/" + granuleID + "/"
}

// isGranuleMetadata reports whether p is the granule-level metadata file of
// the given granule: an MTD xml directly inside the granule directory, in
// either the compact (MTD_TL.xml) or pre-2016 (S2A_..._MTD_...) naming.
func (layout) isGranuleMetadata(p, granuleID string) bool {
	parts := strings.Split(p, "/")
	if len(parts) != 3 || parts[0] != granuleDir || parts[1] != granuleID {
		return false
	}
	name := parts[2]
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	return strings.HasPrefix(name, "MTD_") || strings.Contains(name, "_MTD_")
}

// granuleID extracts the granule identifier from any path below GRANULE/.
// Returns an empty string for paths outside the granule tree.
func (layout) granuleID(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[0] != granuleDir {
		return ""
	}
	return parts[1]
}

// isBandFile reports whether p is a band raster inside a granule's IMG_DATA
// directory, and returns the band index it carries.
func (layout) isBandFile(p string) (BandIndex, bool) {
	parts := strings.Split(p, "/")
	if len(parts) < 4 || parts[0] != granuleDir {
		return 0, false
	}
	inImgData := false
	for _, part := range parts[2 : len(parts)-1] {
		if part == imgDataDir {
			inImgData = true
			break
		}
	}
	if !inImgData {
		return 0, false
	}
	name := parts[len(parts)-1]
	if !strings.HasSuffix(strings.ToLower(name), bandExt) {
		return 0, false
	}
	stem := name[:len(name)-len(bandExt)]
	for i, id := range bandIDs {
		if strings.HasSuffix(stem, "_"+id) {
			return BandIndex(i + 1), true
		}
	}
	return 0, false
}

// cloudMaskPath returns the cloud mask vector file path for a granule.
func (layout) cloudMaskPath(granuleID string) string {
	return path.Join(granuleDir, granuleID, qiDataDir, cloudMaskFile)
}

// normalize strips a single shared top-level "<name>.SAFE/" component, the
// way products unpack from zip archives, so relative paths line up with the
// grammar above.
func normalize(p string) string {
	p = strings.TrimPrefix(p, "/")
	first, rest, found := strings.Cut(p, "/")
	if found && strings.HasSuffix(strings.ToUpper(first), ".SAFE") {
		return rest
	}
	return p
}
