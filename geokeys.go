package fgddem

import (
	"errors"
	"fmt"
	"slices"
)

var errGeoKeyDirectory = fmt.Errorf("%w: invalid GeoKey directory", ErrParse)

type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS   GeoKey = 2048
	GeoKeyGeogCitation  GeoKey = 2049
	GeoKeyGeodeticDatum GeoKey = 2050
	GeoKeyAngularUnits  GeoKey = 2054

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073
	GeoKeyLinearUnits2 GeoKey = 3076

	GeoKeyVertical GeoKey = 4096
)

// GeoTIFF tags holding GeoKey values.
const (
	tagGeoKeyDirectory  = 34735
	tagGeoDoubleParams  = 34736
	tagGeoASCIIParams   = 34737
	geoKeyUserDefined   = 32767
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
)

// geographicEPSGs are the geographic CRSs that are written with a geographic
// model type. Everything else is written as projected.
var geographicEPSGs = []int{
	4019, // GRS 1980
	4258, // ETRS89
	4269, // NAD83
	4283, // GDA94
	4301, // Tokyo
	4326, // WGS 84
	4612, // JGD2000
	6668, // JGD2011
}

// IsGeographicEPSG returns whether epsg is a geographic CRS.
func IsGeographicEPSG(epsg int) bool {
	return slices.Contains(geographicEPSGs, epsg)
}

type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, errGeoKeyDirectory
	}

	if keyDirectoryVersion := int(directory[0]); keyDirectoryVersion != 1 {
		return nil, errGeoKeyDirectory
	}
	if keyRevision := int(directory[1]); keyRevision != 1 {
		return nil, errGeoKeyDirectory
	}
	if minorRevision := int(directory[2]); minorRevision != 0 && minorRevision != 1 {
		return nil, errGeoKeyDirectory
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, errGeoKeyDirectory
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(keyValues[0])
		tiffTagLocation := int(keyValues[1])
		numberOfValues := int(keyValues[2])
		switch tiffTagLocation {
		case 0:
			if numberOfValues != 1 {
				return nil, errGeoKeyDirectory
			}
			parsedGeoKeys.Params[key] = int(keyValues[3])
		case tagGeoDoubleParams:
			index := int(keyValues[3])
			if numberOfValues != 1 {
				return nil, errors.ErrUnsupported
			}
			if index >= len(doubleParams) {
				return nil, errGeoKeyDirectory
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[index]
		case tagGeoASCIIParams:
			index := int(keyValues[3])
			if index+numberOfValues > len(asciiParams) {
				return nil, errGeoKeyDirectory
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[index : index+numberOfValues])
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return parsedGeoKeys, nil
}

// EPSG returns the EPSG code of the CRS described by k, preferring the
// projected CRS over the geodetic CRS. It returns zero if neither is set to a
// registered code.
func (k *ParsedGeoKeys) EPSG() int {
	if epsg := k.Params[GeoKeyProjectedCRS]; epsg != 0 && epsg != geoKeyUserDefined {
		return epsg
	}
	if epsg := k.Params[GeoKeyGeodeticCRS]; epsg != 0 && epsg != geoKeyUserDefined {
		return epsg
	}
	return 0
}

// EncodeGeoKeys returns a GeoKey directory describing a pixel-is-area raster
// in epsg. Only short-valued keys are written.
func EncodeGeoKeys(epsg int) []uint16 {
	modelType := modelTypeProjected
	crsKey := GeoKeyProjectedCRS
	if IsGeographicEPSG(epsg) {
		modelType = modelTypeGeographic
		crsKey = GeoKeyGeodeticCRS
	}
	keys := [][4]uint16{
		{uint16(GeoKeyGTModelType), 0, 1, uint16(modelType)},
		{uint16(GeoKeyGTRasterType), 0, 1, rasterPixelIsArea},
	}
	if epsg > 0 && epsg < 1<<16 {
		keys = append(keys, [4]uint16{uint16(crsKey), 0, 1, uint16(epsg)})
	}
	directory := make([]uint16, 0, 4+4*len(keys))
	directory = append(directory, 1, 1, 0, uint16(len(keys)))
	for _, key := range keys {
		directory = append(directory, key[:]...)
	}
	return directory
}
