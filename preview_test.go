package fgddem

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestComputeRasterStats(t *testing.T) {
	raster := newMergeRaster(0, 0, 1, 4, 1, EPSGWGS84, 10, NoDataValue, 30, 20)
	stats := ComputeRasterStats(raster)
	assert.Equal(t, RasterStats{Min: 10, Max: 30, Mean: 20, Valid: 3, Total: 4}, stats)
	assert.Equal(t, "3/4 valid samples, min 10.0m, max 30.0m, mean 20.0m", stats.String())

	empty := ComputeRasterStats(newMergeRaster(0, 0, 1, 2, 1, EPSGWGS84, NoDataValue, NoDataValue))
	assert.Equal(t, RasterStats{Total: 2}, empty)
	assert.Equal(t, "0/2 valid samples", empty.String())
}

func TestRenderPreview(t *testing.T) {
	raster := newMergeRaster(0, 0, 1, 3, 1, EPSGWGS84, 0, NoDataValue, 100)
	img := RenderPreview(raster)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())

	low := colorNRGBA(img.At(0, 0))
	high := colorNRGBA(img.At(2, 0))
	noData := colorNRGBA(img.At(1, 0))
	assert.Equal(t, uint8(0xff), low.A)
	assert.True(t, low.G > low.R)
	assert.Equal(t, uint8(0xff), high.A)
	assert.True(t, high.R > high.G)
	assert.Equal(t, uint8(0), noData.A)
}

func TestWritePreviewPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	assert.NoError(t, WritePreviewPNG(path, newMergeRaster(0, 0, 1, 2, 2, EPSGWGS84, 1, 1, 1, 1)))

	file, err := os.Open(path)
	assert.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	assert.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestWriteOverlayKML(t *testing.T) {
	var sb strings.Builder
	assert.NoError(t, WriteOverlayKML(&sb, "FG-GML-5339-46-DEM5A", "FG-GML-5339-46-DEM5A.png", GeographicBounds{
		MinLat: 35.5,
		MaxLat: 35.75,
		MinLng: 139.25,
		MaxLng: 139.5,
	}))
	kml := sb.String()
	for _, expected := range []string{
		"<name>FG-GML-5339-46-DEM5A</name>",
		"<href>FG-GML-5339-46-DEM5A.png</href>",
		"<north>35.75</north>",
		"<south>35.5</south>",
		"<east>139.5</east>",
		"<west>139.25</west>",
	} {
		assert.Contains(t, kml, expected)
	}
}

func colorNRGBA(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}
