package safe

// -----------------------------------------------------------------------------
// Bounds
// -----------------------------------------------------------------------------

// Bounds is an axis-aligned georeferenced rectangle in WGS84 coordinates.
type Bounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

// IsZero reports whether the bounds are the zero value.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Intersects reports whether two bounds share any area. Touching edges do
// not count as intersection.
func (b Bounds) Intersects(other Bounds) bool {
	return b.West < other.East && other.West < b.East &&
		b.South < other.North && other.South < b.North
}

// Union returns the smallest bounds covering both rectangles. A zero value
// on either side yields the other side unchanged.
func (b Bounds) Union(other Bounds) Bounds {
	if b.IsZero() {
		return other
	}
	if other.IsZero() {
		return b
	}
	return Bounds{
		West:  min(b.West, other.West),
		South: min(b.South, other.South),
		East:  max(b.East, other.East),
		North: max(b.North, other.North),
	}
}

// -----------------------------------------------------------------------------
// Tile request
// -----------------------------------------------------------------------------

// TileRequest is the spatial window a host framework asks to be filled:
// georeferenced bounds plus the output grid shape in pixels. The pixel grid
// covers the bounds exactly; pixel (0, 0) is the north-west corner.
type TileRequest struct {
	Bounds Bounds
	Width  int
	Height int
}

// PixelSize returns the georeferenced size of one pixel (x, y). The y size
// is positive even though rows run north to south.
func (t TileRequest) PixelSize() (float64, float64) {
	return (t.Bounds.East - t.Bounds.West) / float64(t.Width),
		(t.Bounds.North - t.Bounds.South) / float64(t.Height)
}

// PixelCenter returns the georeferenced center of pixel (col, row).
func (t TileRequest) PixelCenter(col, row int) (float64, float64) {
	px, py := t.PixelSize()
	return t.Bounds.West + (float64(col)+0.5)*px,
		t.Bounds.North - (float64(row)+0.5)*py
}

// valid reports whether the request describes a non-degenerate grid.
func (t TileRequest) valid() bool {
	return t.Width > 0 && t.Height > 0 &&
		t.Bounds.East > t.Bounds.West && t.Bounds.North > t.Bounds.South
}

// -----------------------------------------------------------------------------
// Band stack
// -----------------------------------------------------------------------------

// BandStack is the result of a tile read: one row-major uint16 plane per
// requested band, in request order, plus a shared validity mask.
//
// Mask is indexed row*Width+col; true marks an invalid pixel. Masked pixels
// are zeroed in every band plane. Mask length always equals Width*Height,
// the spatial shape of every plane.
type BandStack struct {
	Indexes []BandIndex
	Width   int
	Height  int
	Data    [][]uint16
	Mask    []bool
}

// At returns the value of the given band plane at (col, row).
func (s *BandStack) At(band, col, row int) uint16 {
	return s.Data[band][row*s.Width+col]
}

// MaskedAt reports whether the pixel at (col, row) is invalid.
func (s *BandStack) MaskedAt(col, row int) bool {
	return s.Mask[row*s.Width+col]
}

// Empty reports whether every pixel of the stack is masked.
func (s *BandStack) Empty() bool {
	for _, m := range s.Mask {
		if !m {
			return false
		}
	}
	return true
}

// newEmptyStack returns a fully-masked, all-zero stack of the given shape.
func newEmptyStack(indexes []BandIndex, width, height int) *BandStack {
	data := make([][]uint16, len(indexes))
	for i := range data {
		data[i] = make([]uint16, width*height)
	}
	mask := make([]bool, width*height)
	for i := range mask {
		mask[i] = true
	}
	return &BandStack{
		Indexes: append([]BandIndex(nil), indexes...),
		Width:   width,
		Height:  height,
		Data:    data,
		Mask:    mask,
	}
}
