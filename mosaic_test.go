package fgddem

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func testMeta(lowerLat, lowerLng, upperLat, upperLng float64, width, height int) TileMetadata {
	return TileMetadata{
		LowerCorner: LatLng{Lat: lowerLat, Lng: lowerLng},
		UpperCorner: LatLng{Lat: upperLat, Lng: upperLng},
		Width:       width,
		Height:      height,
	}
}

func testGrid(width, height int, samples ...float64) *ElevationGrid {
	return &ElevationGrid{
		Width:   width,
		Height:  height,
		Samples: samples,
	}
}

func TestComputeBounds(t *testing.T) {
	assert.Equal(t, GeographicBounds{}, ComputeBounds(nil))
	assert.True(t, ComputeBounds(nil).IsEmpty())

	bounds := ComputeBounds([]TileMetadata{
		testMeta(35.0, 139.0, 35.1, 139.2, 2, 2),
		testMeta(35.0, 139.2, 35.1, 139.4, 2, 2),
		testMeta(35.1, 139.0, 35.2, 139.2, 2, 2),
	})
	assert.Equal(t, GeographicBounds{MinLat: 35.0, MaxLat: 35.2, MinLng: 139.0, MaxLng: 139.4}, bounds)
	assert.False(t, bounds.IsEmpty())
}

func TestAssembleMosaic(t *testing.T) {
	const n = NoDataValue
	metas := []TileMetadata{
		testMeta(35.0, 139.0, 35.1, 139.2, 2, 2),
		testMeta(35.0, 139.2, 35.1, 139.4, 2, 2),
		testMeta(35.1, 139.0, 35.2, 139.2, 2, 2),
	}
	grids := []*ElevationGrid{
		testGrid(2, 2, 1, 2, 3, 4),
		testGrid(2, 2, 5, 6, 7, 8),
		testGrid(2, 2, 9, 10, 11, 12),
	}
	bounds := ComputeBounds(metas)

	m := AssembleMosaic(bounds, metas, grids)
	assert.Equal(t, 4, m.Width)
	assert.Equal(t, 4, m.Height)
	assert.Equal(t, []float64{
		9, 10, n, n,
		11, 12, n, n,
		1, 2, 5, 6,
		3, 4, 7, 8,
	}, m.Samples)
	assert.Equal(t, 139.0, m.GeoTransform[0])
	assert.Equal(t, 35.2, m.GeoTransform[3])
	assert.True(t, math.Abs(m.GeoTransform[1]-0.1) < 1e-12)
	assert.True(t, math.Abs(m.GeoTransform[5]+0.05) < 1e-12)

	raster := m.Raster()
	assert.Equal(t, EPSGWGS84, raster.EPSG)
	assert.True(t, raster.HasNoData)
	assert.Equal(t, NoDataValue, raster.NoData)
	assert.Equal(t, float32(12), raster.At(1, 1))
	assert.True(t, raster.IsNoData(raster.At(3, 0)))
}

func TestAssembleMosaicClipping(t *testing.T) {
	a := testMeta(35.0, 139.0, 35.1, 139.2, 2, 2)
	metas := []TileMetadata{
		a,
		testMeta(35.0, 138.8, 35.1, 139.1, 3, 2), // overlaps the left edge
		testMeta(36.0, 139.0, 36.1, 139.2, 2, 2), // above the mosaic
		testMeta(35.0, 139.2, 35.1, 139.4, 2, 2), // right of the mosaic
	}
	grids := []*ElevationGrid{
		testGrid(2, 2, 1, 2, 3, 4),
		testGrid(3, 2, 5, 6, 7, 8, 9, 10),
		testGrid(2, 2, 11, 12, 13, 14),
		testGrid(2, 2, 15, 16, 17, 18),
	}

	m := AssembleMosaic(ComputeBounds(metas[:1]), metas, grids)
	assert.Equal(t, 2, m.Width)
	assert.Equal(t, 2, m.Height)
	assert.Equal(t, []float64{7, 2, 10, 4}, m.Samples)
}

func TestAssembleMosaicPrefix(t *testing.T) {
	const n = NoDataValue
	metas := []TileMetadata{
		testMeta(35.0, 139.0, 35.1, 139.2, 2, 2),
		testMeta(35.0, 139.2, 35.1, 139.4, 2, 2),
		testMeta(35.1, 139.0, 35.2, 139.2, 2, 2),
	}
	bounds := ComputeBounds(metas)

	m := AssembleMosaic(bounds, metas, []*ElevationGrid{
		nil,
		testGrid(2, 2, 5, 6, 7, 8),
	})
	assert.Equal(t, []float64{
		n, n, n, n,
		n, n, n, n,
		n, n, 5, 6,
		n, n, 7, 8,
	}, m.Samples)
}

func TestAssembleMosaicEmpty(t *testing.T) {
	m := AssembleMosaic(GeographicBounds{}, nil, nil)
	assert.Equal(t, 0, m.Width)
	assert.Equal(t, 0, m.Height)

	metas := []TileMetadata{testMeta(35.0, 139.0, 35.1, 139.2, 0, 0)}
	m = AssembleMosaic(ComputeBounds(metas), metas, []*ElevationGrid{nil})
	assert.Equal(t, 0, m.Width)
}

func TestValidatePixelSizes(t *testing.T) {
	assert.NoError(t, ValidatePixelSizes(nil, 0))
	metas := []TileMetadata{
		testMeta(35.0, 139.0, 35.1, 139.2, 2, 2),
		testMeta(35.0, 139.2, 35.1, 139.4, 2, 2),
	}
	assert.NoError(t, ValidatePixelSizes(metas, 1e-9))
	metas = append(metas, testMeta(35.1, 139.0, 35.2, 139.2, 4, 4))
	assert.Error(t, ValidatePixelSizes(metas, 1e-9))
}
