package fgddem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// writeTestTiles writes two horizontally adjacent 4×3 tiles and returns
// their paths.
func writeTestTiles(t *testing.T, dir string) []string {
	t.Helper()
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	west := testTileXML("533946", 35.0, 139.0, 35.003, 139.004, 4, 3, 0, 0, []string{
		"地表面,1", "地表面,2", "地表面,3", "地表面,4",
		"地表面,5", "地表面,6", "地表面,7", "地表面,8",
		"地表面,9", "地表面,10", "地表面,11", "地表面,12",
	})
	east := testTileXML("533947", 35.0, 139.004, 35.003, 139.008, 4, 3, 2, 0, []string{
		"地表面,103", "地表面,104",
		"地表面,105", "地表面,106", "地表面,107", "地表面,108",
		"地表面,109", "地表面,110", "海水面,-9999.", "地表面,112",
	})
	paths := []string{
		filepath.Join(dir, "FG-GML-5339-46-dem10b-20161001.xml"),
		filepath.Join(dir, "FG-GML-5339-47-dem10b-20161001.xml"),
	}
	assert.NoError(t, os.WriteFile(paths[0], []byte(west), 0o666))
	assert.NoError(t, os.WriteFile(paths[1], []byte(east), 0o666))
	return paths
}

func TestLoadTiles(t *testing.T) {
	logs := newTestLogger(t)
	dir := t.TempDir()
	paths := writeTestTiles(t, dir)
	bad := filepath.Join(dir, "bad.xml")
	assert.NoError(t, os.WriteFile(bad, []byte("not a tile"), 0o666))
	paths = append(paths, bad, filepath.Join(dir, "missing.xml"))

	tiles, err := LoadTiles(t.Context(), paths, LoadOptions{
		SeaAtZero: true,
		Workers:   2,
		InFlight:  1,
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, len(tiles))
	assert.Equal(t, "533946", tiles[0].Document.MeshCode)
	assert.Equal(t, "533947", tiles[1].Document.MeshCode)
	assert.Equal(t, 0.0, tiles[1].Document.Elevations[8])
	assert.Equal(t, (*Tile)(nil), tiles[2])
	assert.Equal(t, (*Tile)(nil), tiles[3])
	assert.True(t, logs.Contains("bad.xml"))
	assert.True(t, logs.Contains("missing.xml"))

	meta := tiles[0].Metadata()
	assert.Equal(t, "FG-GML-5339-46-dem10b-20161001.xml", meta.FileName)
	assert.Equal(t, 4, meta.Width)
	assert.Equal(t, 3, meta.Height)
}

func TestBuildMosaic(t *testing.T) {
	const n = NoDataValue
	newTestLogger(t)
	paths := writeTestTiles(t, t.TempDir())
	tiles, err := LoadTiles(t.Context(), paths, LoadOptions{})
	assert.NoError(t, err)

	mosaic, bounds, err := BuildMosaic(t.Context(), append(tiles, nil), MosaicOptions{PixelSizeTolerance: 1e-9})
	assert.NoError(t, err)
	assert.Equal(t, GeographicBounds{MinLat: 35.0, MaxLat: 35.003, MinLng: 139.0, MaxLng: 139.008}, bounds)
	assert.Equal(t, 8, mosaic.Width)
	assert.Equal(t, 3, mosaic.Height)
	assert.Equal(t, []float64{
		1, 2, 3, 4, n, n, 103, 104,
		5, 6, 7, 8, 105, 106, 107, 108,
		9, 10, 11, 12, 109, 110, n, 112,
	}, mosaic.Samples)
}

func TestBuildMosaicSkipsUnplaceableTiles(t *testing.T) {
	logs := newTestLogger(t)
	paths := writeTestTiles(t, t.TempDir())
	tiles, err := LoadTiles(t.Context(), paths, LoadOptions{})
	assert.NoError(t, err)
	tiles[0].Document.HasStartPoint = false

	mosaic, bounds, err := BuildMosaic(t.Context(), tiles, MosaicOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 139.004, bounds.MinLng)
	assert.Equal(t, 4, mosaic.Width)
	assert.True(t, logs.Contains("FG-GML-5339-46-dem10b-20161001.xml"))

	tiles[1].Document.HasEnvelope = false
	_, _, err = BuildMosaic(t.Context(), tiles, MosaicOptions{})
	assert.IsError(t, err, ErrMissingInput)
}

func TestBuildMosaicDuplicateMeshCodes(t *testing.T) {
	logs := newTestLogger(t)
	paths := writeTestTiles(t, t.TempDir())
	tiles, err := LoadTiles(t.Context(), paths, LoadOptions{})
	assert.NoError(t, err)
	tiles[1].Document.MeshCode = tiles[0].Document.MeshCode

	mosaic, _, err := BuildMosaic(t.Context(), tiles, MosaicOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 8, mosaic.Width)
	assert.True(t, logs.Contains("duplicate mesh code 533946"))
}

func TestBuildMosaicPixelSizeTolerance(t *testing.T) {
	newTestLogger(t)
	paths := writeTestTiles(t, t.TempDir())
	tiles, err := LoadTiles(t.Context(), paths, LoadOptions{})
	assert.NoError(t, err)
	tiles[1].Document.UpperCorner.Lng = 139.012

	_, _, err = BuildMosaic(t.Context(), tiles, MosaicOptions{})
	assert.NoError(t, err)
	_, _, err = BuildMosaic(t.Context(), tiles, MosaicOptions{PixelSizeTolerance: 1e-9})
	assert.Error(t, err)
}
