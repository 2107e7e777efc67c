package fgddem

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DEMTypes are the DEM types published in the Fundamental Geospatial Data.
var DEMTypes = []string{"1A", "5A", "5B", "5C", "10A", "10B"}

// metricEPSG returns whether epsg has metric axes, so that a merge
// resolution in meters applies to it.
func metricEPSG(epsg int) bool {
	switch {
	case epsg == 3857, epsg == 2451:
		return true
	case 32601 <= epsg && epsg <= 32660:
		return true
	case 32701 <= epsg && epsg <= 32760:
		return true
	default:
		return false
	}
}

// MatchMergeInput returns whether name is a GeoTIFF of demType and, if its
// name carries one, its eight-digit date.
func MatchMergeInput(name, demType string) (bool, string) {
	if !strings.EqualFold(filepath.Ext(name), ".tif") {
		return false, ""
	}
	suffix := "-DEM" + demType + ".tif"
	infix := "DEM" + demType + "-"
	index := strings.Index(name, infix)
	if !strings.Contains(name, suffix) && index < 0 {
		return false, ""
	}
	if index < 0 {
		return true, ""
	}
	date := name[index+len(infix):]
	if len(date) < 8 {
		return true, ""
	}
	date = date[:8]
	for _, c := range date {
		if c < '0' || '9' < c {
			return true, ""
		}
	}
	return true, date
}

var mergedFileNamePrefixes = []string{"FG-GML-merged-", "merged_output_"}

// IsMergedFileName returns whether name was generated by MergedFileName.
func IsMergedFileName(name string) bool {
	for _, prefix := range mergedFileNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// MergedFileName returns the name of the merged raster of demType. If date is
// empty the name is derived from resolution instead.
func MergedFileName(demType, date string, resolution float64) string {
	if date != "" {
		return mergedFileNamePrefixes[0] + "DEM" + demType + "-" + date + ".tif"
	}
	return mergedFileNamePrefixes[1] + strconv.Itoa(int(resolution)) + "m_" + demType + ".tif"
}

// ConvertedFileName returns the name of the raster converted from the archive
// at archivePath.
func ConvertedFileName(archivePath string) string {
	return archiveStem(archivePath) + ".tif"
}

func archiveStem(archivePath string) string {
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
