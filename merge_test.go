package fgddem

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func newMergeRaster(x0, y0, pixelSize float64, width, height int, epsg int, samples ...float32) *Raster {
	raster := NewRaster(width, height, 0)
	copy(raster.Samples, samples)
	raster.GeoTransform = GeoTransform{x0, pixelSize, 0, y0, 0, -pixelSize}
	raster.EPSG = epsg
	raster.NoData = NoDataValue
	raster.HasNoData = true
	return raster
}

func TestMergeRasters(t *testing.T) {
	const n = NoDataValue
	merged, err := MergeRasters([]*Raster{
		newMergeRaster(139, 36, 0.5, 2, 2, EPSGWGS84, 1, 2, 3, 4),
		newMergeRaster(139.5, 36, 0.5, 2, 2, EPSGWGS84, n, 6, 7, 8),
		newMergeRaster(139, 35, 0.5, 1, 1, EPSGWGS84, 9),
	}, 10)
	assert.NoError(t, err)
	assert.Equal(t, 3, merged.Width)
	assert.Equal(t, 3, merged.Height)
	assert.Equal(t, GeoTransform{139, 0.5, 0, 36, 0, -0.5}, merged.GeoTransform)
	assert.Equal(t, EPSGWGS84, merged.EPSG)
	assert.Equal(t, []float32{
		1, 2, 6,
		3, 7, 8,
		9, n, n,
	}, merged.Samples)
}

func TestMergeRastersResolution(t *testing.T) {
	for _, tc := range []struct {
		name           string
		epsg           int
		resolution     float64
		expectedWidth  int
		expectedHeight int
	}{
		{name: "metric", epsg: EPSGWebMercator, resolution: 5, expectedWidth: 4, expectedHeight: 2},
		{name: "metric_coarse", epsg: EPSGWebMercator, resolution: 15, expectedWidth: 2, expectedHeight: 1},
		{name: "metric_zero", epsg: EPSGWebMercator, resolution: 0, expectedWidth: 2, expectedHeight: 1},
		{name: "utm", epsg: 32654, resolution: 5, expectedWidth: 4, expectedHeight: 2},
		{name: "geographic", epsg: EPSGWGS84, resolution: 5, expectedWidth: 2, expectedHeight: 1},
		{name: "jgd2011", epsg: 6677, resolution: 5, expectedWidth: 2, expectedHeight: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			merged, err := MergeRasters([]*Raster{
				newMergeRaster(1000, 2000, 10, 2, 1, tc.epsg, 1, 2),
			}, tc.resolution)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedWidth, merged.Width)
			assert.Equal(t, tc.expectedHeight, merged.Height)
			assert.Equal(t, tc.epsg, merged.EPSG)
		})
	}
}

func TestMergeRastersEmpty(t *testing.T) {
	_, err := MergeRasters(nil, 10)
	assert.IsError(t, err, ErrMissingInput)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "output")
	for _, tc := range []struct {
		name   string
		raster *Raster
	}{
		{name: "FG-GML-5339-46-DEM5A-20161001.tif", raster: newMergeRaster(139, 36, 0.5, 2, 2, EPSGWGS84, 1, 2, 3, 4)},
		{name: "sub/FG-GML-5339-47-DEM5A-20170101.tif", raster: newMergeRaster(140, 36, 0.5, 2, 2, EPSGWGS84, 5, 6, 7, 8)},
		{name: "FG-GML-5339-48-DEM5B-20180101.tif", raster: newMergeRaster(141, 36, 0.5, 2, 2, EPSGWGS84, 9, 9, 9, 9)},
	} {
		assert.NoError(t, WriteGeoTIFFFile(t.Context(), filepath.Join(inputDir, tc.name), tc.raster))
	}

	paths, latestDate, err := FindMergeInputs(inputDir, "5A")
	assert.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(inputDir, "FG-GML-5339-46-DEM5A-20161001.tif"),
		filepath.Join(inputDir, "sub", "FG-GML-5339-47-DEM5A-20170101.tif"),
	}, paths)
	assert.Equal(t, "20170101", latestDate)

	var sb strings.Builder
	output, err := Merge(t.Context(), MergeOptions{
		Dir:        inputDir,
		DEMType:    "5A",
		Resolution: 10,
		OutputDir:  filepath.Join(dir, "merged"),
		Status:     NewStatusWriter(&sb),
	})
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "merged", "FG-GML-merged-DEM5A-20170101.tif"), output)
	assert.Contains(t, sb.String(), "Merge    : 2 files")

	merged, err := ReadGeoTIFFFile(t.Context(), output)
	assert.NoError(t, err)
	assert.Equal(t, 4, merged.Width)
	assert.Equal(t, 2, merged.Height)
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, merged.Samples)
}

func TestMergeOutput(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, WriteGeoTIFFFile(t.Context(), filepath.Join(dir, "tokyo-DEM10B.tif"), newMergeRaster(139, 36, 0.5, 1, 1, EPSGWGS84, 1)))

	output, err := Merge(t.Context(), MergeOptions{
		Dir:        dir,
		DEMType:    "10B",
		Resolution: 10,
		OutputDir:  dir,
	})
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "merged_output_10m_10B.tif"), output)

	explicit := filepath.Join(dir, "explicit.tif")
	output, err = Merge(t.Context(), MergeOptions{
		Dir:     dir,
		DEMType: "10B",
		Output:  explicit,
	})
	assert.NoError(t, err)
	assert.Equal(t, explicit, output)
}

func TestMergeRerun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "FG-GML-5339-46-DEM5A-20161001.tif")
	explicit := filepath.Join(dir, "mosaic-DEM5A.tif")
	for _, tc := range []struct {
		name    string
		output  string
		samples []float32
	}{
		{name: "generated_first", samples: []float32{1, 2}},
		{name: "generated_second", samples: []float32{100, 200}},
		{name: "explicit_first", output: explicit, samples: []float32{3, 4}},
		{name: "explicit_second", output: explicit, samples: []float32{300, 400}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raster := newMergeRaster(139, 36, 0.5, 2, 1, EPSGWGS84, tc.samples...)
			assert.NoError(t, WriteGeoTIFFFile(t.Context(), input, raster))

			output, err := Merge(t.Context(), MergeOptions{
				Dir:       dir,
				DEMType:   "5A",
				Output:    tc.output,
				OutputDir: dir,
			})
			assert.NoError(t, err)

			merged, err := ReadGeoTIFFFile(t.Context(), output)
			assert.NoError(t, err)
			assert.Equal(t, tc.samples, merged.Samples)
		})
	}

	paths, _, err := FindMergeInputs(dir, "5A", explicit)
	assert.NoError(t, err)
	assert.Equal(t, []string{input}, paths)
}

func TestFindMergeInputsErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := FindMergeInputs(filepath.Join(dir, "missing"), "5A")
	assert.IsError(t, err, ErrMissingInput)

	_, _, err = FindMergeInputs(dir, "5A")
	assert.IsError(t, err, ErrMissingInput)
}
