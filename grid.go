package fgddem

// An ElevationGrid is the dense row-major grid of one tile.
type ElevationGrid struct {
	Width   int
	Height  int
	Samples []float64
}

// NewElevationGrid returns a new width×height grid filled with NoDataValue.
func NewElevationGrid(width, height int) *ElevationGrid {
	samples := make([]float64, width*height)
	for i := range samples {
		samples[i] = NoDataValue
	}
	return &ElevationGrid{
		Width:   width,
		Height:  height,
		Samples: samples,
	}
}

// Row returns the samples of row y.
func (g *ElevationGrid) Row(y int) []float64 {
	return g.Samples[y*g.Width : (y+1)*g.Width]
}

// MaterializeGrid lays out the elevations of doc on its grid. The first row
// is filled from the start point, later rows from column zero. It returns
// false if doc cannot be placed.
func MaterializeGrid(doc *TileDocument) (*ElevationGrid, bool) {
	if !doc.HasEnvelope || !doc.HasStartPoint {
		return nil, false
	}
	width, height := doc.Width(), doc.Height()
	if width <= 0 || height <= 0 {
		return nil, false
	}
	if doc.StartX < 0 || doc.StartX > width || doc.StartY < 0 || doc.StartY > height {
		return nil, false
	}
	grid := NewElevationGrid(width, height)
	index := 0
	for y := doc.StartY; y < height && index < len(doc.Elevations); y++ {
		startX := 0
		if y == doc.StartY {
			startX = doc.StartX
		}
		index += copy(grid.Row(y)[startX:], doc.Elevations[index:])
	}
	return grid, true
}
