package fgddem

import (
	"context"
	"io/fs"
)

// An ElevationService returns interpolated elevations from a set of
// converted rasters.
type ElevationService struct {
	geoTIFFTileSet *GeoTIFFTileSet
	transformer    Transformer
}

// NewElevationService returns a new ElevationService over the GeoTIFFs in
// fsys.
func NewElevationService(fsys fs.FS, options ...GeoTIFFTileSetOption) (*ElevationService, error) {
	geoTIFFTileSet, err := NewGeoTIFFTileSet(fsys, options...)
	if err != nil {
		return nil, err
	}
	s := &ElevationService{
		geoTIFFTileSet: geoTIFFTileSet,
	}
	if epsg := geoTIFFTileSet.EPSG(); epsg != 0 && epsg != EPSGWGS84 {
		s.transformer, err = NewProjTransformer(FormatEPSG(EPSGWGS84), FormatEPSG(epsg))
		if err != nil {
			geoTIFFTileSet.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the open files of s.
func (s *ElevationService) Close() {
	s.geoTIFFTileSet.Close()
}

// Elevation returns the elevations at coords in the CRS of s.
func (s *ElevationService) Elevation(ctx context.Context, coords []Coord) ([]float64, error) {
	return s.geoTIFFTileSet.InterpolateBilinear(ctx, coords)
}

// Elevation4326 returns the elevations at coords4326, given as longitude
// and latitude pairs.
func (s *ElevationService) Elevation4326(ctx context.Context, coords4326 [][]float64) ([]float64, error) {
	coords := make([]Coord, len(coords4326))
	for i, coord := range coords4326 {
		coords[i] = Coord{X: coord[0], Y: coord[1]}
		if s.transformer == nil {
			continue
		}
		x, y, err := s.transformer.Forward(coord[0], coord[1])
		if err != nil {
			return nil, err
		}
		coords[i] = Coord{X: x, Y: y}
	}
	return s.Elevation(ctx, coords)
}
