package fgddem

import "math"

// EncodeTerrainRGB encodes elevation in the Terrain-RGB scheme with 0.1m
// resolution and a -10000m base. Elevations at or below NoDataValue encode as
// the zero elevation.
func EncodeTerrainRGB(elevation float64) (uint8, uint8, uint8) {
	if elevation <= NoDataValue {
		return 1, 134, 160
	}
	offset := int(math.Round(elevation*10)) + 100000
	r := offset / 65536
	g := (offset - r*65536) / 256
	b := offset - r*65536 - g*256
	return uint8(r), uint8(g), uint8(b)
}
