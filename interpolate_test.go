package fgddem

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestInterpolateBilinear(t *testing.T) {
	raster := NewRaster(3, 3, 0)
	copy(raster.Samples, []float32{
		0, 1, 2,
		2, 3, 4,
		4, 5, 6,
	})
	raster.NoData = NoDataValue
	raster.HasNoData = true

	for _, tc := range []struct {
		name       string
		col, row   float64
		expected   float64
		expectedOK bool
	}{
		{name: "origin", col: 0, row: 0, expected: 0, expectedOK: true},
		{name: "right", col: 1, row: 0, expected: 1, expectedOK: true},
		{name: "down", col: 0, row: 1, expected: 2, expectedOK: true},
		{name: "half_right", col: 0.5, row: 0, expected: 0.5, expectedOK: true},
		{name: "half_down", col: 0, row: 0.5, expected: 1, expectedOK: true},
		{name: "center", col: 0.5, row: 0.5, expected: 1.5, expectedOK: true},
		{name: "inner", col: 1.25, row: 1.5, expected: 4.25, expectedOK: true},
		{name: "last_column", col: 2, row: 0},
		{name: "last_row", col: 0, row: 2},
		{name: "negative", col: -0.5, row: 0},
		{name: "nan", col: math.NaN(), row: 0},
		{name: "inf", col: 0, row: math.Inf(1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, ok := InterpolateBilinear(raster, tc.col, tc.row)
			assert.Equal(t, tc.expectedOK, ok)
			if tc.expectedOK {
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestInterpolateBilinearNoData(t *testing.T) {
	raster := NewRaster(2, 2, 1)
	raster.NoData = NoDataValue
	raster.HasNoData = true
	raster.Set(1, 1, NoDataValue)

	_, ok := InterpolateBilinear(raster, 0.5, 0.5)
	assert.False(t, ok)

	raster.Set(1, 1, float32(math.NaN()))
	raster.HasNoData = false
	_, ok = InterpolateBilinear(raster, 0.5, 0.5)
	assert.False(t, ok)
}
