package fgddem

import (
	"strconv"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestMatchMergeInput(t *testing.T) {
	for _, tc := range []struct {
		name         string
		demType      string
		expected     bool
		expectedDate string
	}{
		{name: "FG-GML-5339-46-DEM5A-20161001.tif", demType: "5A", expected: true, expectedDate: "20161001"},
		{name: "FG-GML-5339-46-DEM10A-20161001.tif", demType: "10A", expected: true, expectedDate: "20161001"},
		{name: "tokyo-DEM5A.tif", demType: "5A", expected: true},
		{name: "FG-GML-5339-46-DEM5A-2016.tif", demType: "5A", expected: true},
		{name: "FG-GML-5339-46-DEM5A-2016100X.tif", demType: "5A", expected: true},
		{name: "FG-GML-5339-46-DEM5B-20161001.tif", demType: "5A"},
		{name: "FG-GML-5339-46-DEM5A-20161001.xml", demType: "5A"},
		{name: "FG-GML-5339-46-DEM5A-20161001.png", demType: "5A"},
		{name: "merged.tif", demType: "5A"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual, actualDate := MatchMergeInput(tc.name, tc.demType)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.expectedDate, actualDate)
		})
	}
}

func TestMergedFileName(t *testing.T) {
	assert.Equal(t, "FG-GML-merged-DEM5A-20161001.tif", MergedFileName("5A", "20161001", 10))
	assert.True(t, IsMergedFileName(MergedFileName("5A", "20161001", 10)))
	assert.True(t, IsMergedFileName(MergedFileName("5A", "", 10)))
	assert.False(t, IsMergedFileName("FG-GML-5339-46-DEM5A-20161001.tif"))
	assert.Equal(t, "merged_output_10m_5A.tif", MergedFileName("5A", "", 10))
	assert.Equal(t, "merged_output_2m_1A.tif", MergedFileName("1A", "", 2.5))
}

func TestConvertedFileName(t *testing.T) {
	assert.Equal(t, "FG-GML-5339-46-DEM5A.tif", ConvertedFileName("/data/FG-GML-5339-46-DEM5A.zip"))
}

func TestMetricEPSG(t *testing.T) {
	for _, tc := range []struct {
		epsg     int
		expected bool
	}{
		{epsg: 3857, expected: true},
		{epsg: 2451, expected: true},
		{epsg: 32601, expected: true},
		{epsg: 32654, expected: true},
		{epsg: 32660, expected: true},
		{epsg: 32661},
		{epsg: 32701, expected: true},
		{epsg: 32760, expected: true},
		{epsg: 4326},
		{epsg: 6668},
		{epsg: 6677},
		{epsg: 0},
	} {
		t.Run(strconv.Itoa(tc.epsg), func(t *testing.T) {
			assert.Equal(t, tc.expected, metricEPSG(tc.epsg))
		})
	}
}
