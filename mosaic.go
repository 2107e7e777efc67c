package fgddem

import (
	"fmt"
	"math"
)

// A Mosaic is the combined grid of a set of tiles.
type Mosaic struct {
	Width        int
	Height       int
	Samples      []float64
	GeoTransform GeoTransform
}

// Row returns the samples of row y.
func (m *Mosaic) Row(y int) []float64 {
	return m.Samples[y*m.Width : (y+1)*m.Width]
}

// Raster returns m as a float32 EPSG:4326 raster.
func (m *Mosaic) Raster() *Raster {
	samples := make([]float32, len(m.Samples))
	for i, sample := range m.Samples {
		samples[i] = float32(sample)
	}
	return &Raster{
		Width:        m.Width,
		Height:       m.Height,
		Samples:      samples,
		GeoTransform: m.GeoTransform,
		EPSG:         EPSGWGS84,
		NoData:       NoDataValue,
		HasNoData:    true,
	}
}

// pixelSize returns the pixel size of meta. The y size is negative for
// north-up tiles.
func pixelSize(meta TileMetadata) (float64, float64) {
	return (meta.UpperCorner.Lng - meta.LowerCorner.Lng) / float64(meta.Width),
		(meta.LowerCorner.Lat - meta.UpperCorner.Lat) / float64(meta.Height)
}

// mosaicSize returns the size in pixels of bounds at the pixel size of ref.
func mosaicSize(bounds GeographicBounds, ref TileMetadata) (int, int) {
	pixelSizeX, pixelSizeY := pixelSize(ref)
	totalX := int(math.Round(math.Abs((bounds.MaxLng - bounds.MinLng) / pixelSizeX)))
	totalY := int(math.Round(math.Abs((bounds.MaxLat - bounds.MinLat) / pixelSizeY)))
	return totalX, totalY
}

// AssembleMosaic places grids into a single raster covering bounds. The pixel
// size is taken from the first tile. Only the first min(len(metas),
// len(grids)) tiles are placed and nil grids are skipped. Parts of tiles
// outside bounds are clipped.
func AssembleMosaic(bounds GeographicBounds, metas []TileMetadata, grids []*ElevationGrid) *Mosaic {
	n := min(len(metas), len(grids))
	if n == 0 || metas[0].Width <= 0 || metas[0].Height <= 0 {
		return &Mosaic{}
	}

	pixelSizeX, pixelSizeY := pixelSize(metas[0])
	totalX, totalY := mosaicSize(bounds, metas[0])
	if totalX <= 0 || totalY <= 0 {
		return &Mosaic{}
	}

	samples := make([]float64, totalX*totalY)
	for i := range samples {
		samples[i] = NoDataValue
	}
	m := &Mosaic{
		Width:   totalX,
		Height:  totalY,
		Samples: samples,
		GeoTransform: GeoTransform{
			bounds.MinLng,
			(bounds.MaxLng - bounds.MinLng) / float64(totalX),
			0,
			bounds.MaxLat,
			0,
			-(bounds.MaxLat - bounds.MinLat) / float64(totalY),
		},
	}

	for i := range n {
		grid := grids[i]
		if grid == nil {
			continue
		}
		meta := metas[i]
		xOff := int(math.Round((meta.LowerCorner.Lng - bounds.MinLng) / pixelSizeX))
		yOff := int(math.Round((meta.LowerCorner.Lat - bounds.MinLat) / -pixelSizeY))
		rowStart := totalY - (yOff + grid.Height)
		colStart := xOff

		srcStart := max(0, -colStart)
		dstStart := max(0, colStart)
		length := min(grid.Width-srcStart, totalX-dstStart)
		if length <= 0 {
			continue
		}
		for y := range grid.Height {
			row := rowStart + y
			if row < 0 || row >= totalY {
				continue
			}
			copy(m.Row(row)[dstStart:dstStart+length], grid.Row(y)[srcStart:srcStart+length])
		}
	}

	return m
}

// ValidatePixelSizes returns an error if the pixel size of any tile differs
// from the first tile's by more than tolerance.
func ValidatePixelSizes(metas []TileMetadata, tolerance float64) error {
	if len(metas) == 0 {
		return nil
	}
	refX, refY := pixelSize(metas[0])
	for _, meta := range metas[1:] {
		x, y := pixelSize(meta)
		if math.Abs(x-refX) > tolerance || math.Abs(y-refY) > tolerance {
			return fmt.Errorf("%s: pixel size %g×%g differs from %s: %g×%g", meta.FileName, x, y, metas[0].FileName, refX, refY)
		}
	}
	return nil
}
