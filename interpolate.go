package fgddem

import (
	"context"
	"math"
)

// bilinear interpolates between four samples at fractional offsets dx and dy
// from v00.
func bilinear(v00, v10, v01, v11, dx, dy float64) float64 {
	return 0 +
		v00*(1-dx)*(1-dy) +
		v10*dx*(1-dy) +
		v01*(1-dx)*dy +
		v11*dx*dy
}

// InterpolateBilinear returns the bilinear interpolation of raster at the
// fractional pixel position (col, row), where integer positions are pixel
// centers. It returns false if any of the four neighbors is outside raster or
// is nodata.
func InterpolateBilinear(raster *Raster, col, row float64) (float64, bool) {
	if math.IsNaN(col) || math.IsNaN(row) || math.IsInf(col, 0) || math.IsInf(row, 0) {
		return 0, false
	}
	col0f, row0f := math.Floor(col), math.Floor(row)
	if col0f < 0 || row0f < 0 || col0f+1 >= float64(raster.Width) || row0f+1 >= float64(raster.Height) {
		return 0, false
	}
	col0, row0 := int(col0f), int(row0f)
	v00 := raster.At(col0, row0)
	v10 := raster.At(col0+1, row0)
	v01 := raster.At(col0, row0+1)
	v11 := raster.At(col0+1, row0+1)
	if raster.IsNoData(v00) || raster.IsNoData(v10) || raster.IsNoData(v01) || raster.IsNoData(v11) {
		return 0, false
	}
	return bilinear(float64(v00), float64(v10), float64(v01), float64(v11), col-col0f, row-row0f), true
}

// InterpolateBilinear returns the bilinear interpolation of f at coords.
// Coordinates whose neighborhood is not fully inside f or contains nodata are
// returned as NaN.
func (f *GeoTIFFTile) InterpolateBilinear(ctx context.Context, coords []Coord) ([]float64, error) {
	pixels := make([]pixelCoord, 4*len(coords))
	fractions := make([][2]float64, len(coords))
	for i, coord := range coords {
		col, row := f.geoTransform.WorldToPixel(coord.X, coord.Y)
		col, row = col-0.5, row-0.5
		col0, row0 := math.Floor(col), math.Floor(row)
		fractions[i] = [2]float64{col - col0, row - row0}
		if math.IsNaN(col0) || math.IsNaN(row0) || math.Abs(col0) > math.MaxInt32 || math.Abs(row0) > math.MaxInt32 {
			col0, row0 = -1, -1
		}
		c, r := int(col0), int(row0)
		pixels[4*i+0] = pixelCoord{col: c, row: r}
		pixels[4*i+1] = pixelCoord{col: c + 1, row: r}
		pixels[4*i+2] = pixelCoord{col: c, row: r + 1}
		pixels[4*i+3] = pixelCoord{col: c + 1, row: r + 1}
	}
	samples, err := f.pixelSamples(ctx, pixels)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(coords))
	for i, fraction := range fractions {
		result[i] = bilinear(samples[4*i+0], samples[4*i+1], samples[4*i+2], samples[4*i+3], fraction[0], fraction[1])
	}
	return result, nil
}
