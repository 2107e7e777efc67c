package fgddem

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 7,
		1024, 0, 1, 2,
		1025, 0, 1, 1,
		2048, 0, 1, 6668,
		2049, 34737, 26, 0,
		2054, 0, 1, 9102,
		2057, 34736, 1, 0,
		2059, 34736, 1, 1,
	}
	doubleParams := []float64{
		6378137,
		298.257222101,
	}
	asciiParams := []byte("JGD2011|GRS 1980 ellipsoid|")

	actual, err := ParseGeoKeys(directory, doubleParams, asciiParams)
	assert.NoError(t, err)

	assert.Equal(t, &ParsedGeoKeys{
		Params: map[GeoKey]int{
			GeoKeyGTModelType:  2,
			GeoKeyGTRasterType: 1,
			GeoKeyGeodeticCRS:  6668,
			GeoKeyAngularUnits: 9102,
		},
		DoubleParams: map[GeoKey]float64{
			GeoKey(2057): 6378137,
			GeoKey(2059): 298.257222101,
		},
		ASCIIParams: map[GeoKey]string{
			GeoKeyGeogCitation: "JGD2011|GRS 1980 ellipsoid|",
		},
	}, actual)
	assert.Equal(t, 6668, actual.EPSG())
}

func TestParseGeoKeysErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		directory []uint16
		expected  error
	}{
		{
			name:      "short",
			directory: []uint16{1, 1, 0},
			expected:  ErrParse,
		},
		{
			name:      "bad_version",
			directory: []uint16{2, 1, 0, 0},
			expected:  ErrParse,
		},
		{
			name:      "wrong_key_count",
			directory: []uint16{1, 1, 0, 2, 1024, 0, 1, 1},
			expected:  ErrParse,
		},
		{
			name:      "double_index_out_of_range",
			directory: []uint16{1, 1, 0, 1, 2057, 34736, 1, 3},
			expected:  ErrParse,
		},
		{
			name:      "unknown_location",
			directory: []uint16{1, 1, 0, 1, 1024, 1234, 1, 0},
			expected:  errors.ErrUnsupported,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGeoKeys(tc.directory, nil, nil)
			assert.IsError(t, err, tc.expected)
		})
	}
}

func TestParsedGeoKeysEPSG(t *testing.T) {
	for _, tc := range []struct {
		name     string
		params   map[GeoKey]int
		expected int
	}{
		{
			name:     "empty",
			params:   map[GeoKey]int{},
			expected: 0,
		},
		{
			name: "geodetic",
			params: map[GeoKey]int{
				GeoKeyGeodeticCRS: 4326,
			},
			expected: 4326,
		},
		{
			name: "projected_preferred",
			params: map[GeoKey]int{
				GeoKeyGeodeticCRS:  4326,
				GeoKeyProjectedCRS: 3857,
			},
			expected: 3857,
		},
		{
			name: "user_defined_projected",
			params: map[GeoKey]int{
				GeoKeyGeodeticCRS:  4258,
				GeoKeyProjectedCRS: 32767,
			},
			expected: 4258,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := &ParsedGeoKeys{Params: tc.params}
			assert.Equal(t, tc.expected, k.EPSG())
		})
	}
}

func TestEncodeGeoKeys(t *testing.T) {
	for _, tc := range []struct {
		epsg              int
		expectedModelType int
		expectedCRSKey    GeoKey
	}{
		{epsg: 4326, expectedModelType: 2, expectedCRSKey: GeoKeyGeodeticCRS},
		{epsg: 6668, expectedModelType: 2, expectedCRSKey: GeoKeyGeodeticCRS},
		{epsg: 3857, expectedModelType: 1, expectedCRSKey: GeoKeyProjectedCRS},
		{epsg: 2451, expectedModelType: 1, expectedCRSKey: GeoKeyProjectedCRS},
	} {
		directory := EncodeGeoKeys(tc.epsg)
		parsed, err := ParseGeoKeys(directory, nil, nil)
		assert.NoError(t, err)
		assert.Equal(t, tc.expectedModelType, parsed.Params[GeoKeyGTModelType])
		assert.Equal(t, 1, parsed.Params[GeoKeyGTRasterType])
		assert.Equal(t, tc.epsg, parsed.Params[tc.expectedCRSKey])
		assert.Equal(t, tc.epsg, parsed.EPSG())
	}

	parsed, err := ParseGeoKeys(EncodeGeoKeys(0), nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, parsed.EPSG())
}
