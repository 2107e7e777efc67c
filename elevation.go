// Package fgddem converts FGD DEM XML tiles into GeoTIFF rasters.
package fgddem

import (
	"errors"
	"math"
)

// NoDataValue is the elevation used for cells without a measurement.
const NoDataValue = -9999.0

// EPSG codes used throughout the package.
const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

var (
	// ErrMissingInput is returned when a required input is absent.
	ErrMissingInput = errors.New("missing input")
	// ErrParse is returned when a tile document cannot be parsed.
	ErrParse = errors.New("parse error")
	// ErrCodec is returned when a raster cannot be read or written.
	ErrCodec = errors.New("raster codec error")
	// ErrTransform is returned when a coordinate transform cannot be built or
	// applied.
	ErrTransform = errors.New("transform error")
)

// A Coord is a coordinate in a raster's CRS.
type Coord struct {
	X float64
	Y float64
}

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A GeoTransform maps pixel coordinates to CRS coordinates. Elements 2 and 4
// are always zero.
type GeoTransform [6]float64

// DefaultGeoTransform is the identity transform used when a raster carries no
// georeferencing.
var DefaultGeoTransform = GeoTransform{0, 1, 0, 0, 0, -1}

// PixelToWorld returns the CRS coordinate of the pixel position (col, row).
func (gt GeoTransform) PixelToWorld(col, row float64) (float64, float64) {
	return gt[0] + col*gt[1], gt[3] + row*gt[5]
}

// WorldToPixel returns the fractional pixel position of (x, y).
func (gt GeoTransform) WorldToPixel(x, y float64) (float64, float64) {
	return (x - gt[0]) / gt[1], (y - gt[3]) / gt[5]
}

// A Raster is a single-band raster held in memory.
type Raster struct {
	Width        int
	Height       int
	Samples      []float32
	GeoTransform GeoTransform
	EPSG         int
	NoData       float64
	HasNoData    bool
}

// NewRaster returns a new width×height raster filled with fill.
func NewRaster(width, height int, fill float32) *Raster {
	samples := make([]float32, width*height)
	if fill != 0 {
		for i := range samples {
			samples[i] = fill
		}
	}
	return &Raster{
		Width:        width,
		Height:       height,
		Samples:      samples,
		GeoTransform: DefaultGeoTransform,
	}
}

// At returns the sample at (col, row).
func (r *Raster) At(col, row int) float32 {
	return r.Samples[row*r.Width+col]
}

// Set sets the sample at (col, row).
func (r *Raster) Set(col, row int, value float32) {
	r.Samples[row*r.Width+col] = value
}

// Row returns the samples of row.
func (r *Raster) Row(row int) []float32 {
	return r.Samples[row*r.Width : (row+1)*r.Width]
}

// Bounds returns the extent of r in its CRS as minX, minY, maxX, maxY.
func (r *Raster) Bounds() (float64, float64, float64, float64) {
	x0, y0 := r.GeoTransform.PixelToWorld(0, 0)
	x1, y1 := r.GeoTransform.PixelToWorld(float64(r.Width), float64(r.Height))
	return min(x0, x1), min(y0, y1), max(x0, x1), max(y0, y1)
}

// IsNoData returns whether value is r's nodata value. NaNs are always
// treated as nodata.
func (r *Raster) IsNoData(value float32) bool {
	if math.IsNaN(float64(value)) {
		return true
	}
	return r.HasNoData && value == float32(r.NoData)
}
