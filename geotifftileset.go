package fgddem

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
)

// A GeoTIFFTileSet is a set of GeoTIFF files sharing a CRS, typically the
// outputs of a conversion. Files are opened on demand and kept in an LRU
// cache.
type GeoTIFFTileSet struct {
	mutex              sync.Mutex
	fsys               fs.FS
	pattern            string
	epsg               int
	entries            []tileSetEntry
	geoTIFFTileOptions []GeoTIFFTileOption
	cacheSize          int
	geoTIFFTileCache   *lru.Cache[string, *GeoTIFFTile]
}

type tileSetEntry struct {
	filename string
	bound    orb.Bound
}

// A GeoTIFFTileSetOption sets an option on a GeoTIFFTileSet.
type GeoTIFFTileSetOption func(*GeoTIFFTileSet)

// NewGeoTIFFTileSet returns a new GeoTIFFTileSet of the files in fsys
// matching the set's pattern. The CRS of the set is the CRS of the first
// file; files in other CRSs are skipped.
func NewGeoTIFFTileSet(fsys fs.FS, options ...GeoTIFFTileSetOption) (*GeoTIFFTileSet, error) {
	s := &GeoTIFFTileSet{
		fsys:      fsys,
		pattern:   "*.tif",
		cacheSize: 32,
	}
	for _, option := range options {
		option(s)
	}

	filenames, err := fs.Glob(fsys, s.pattern)
	if err != nil {
		return nil, err
	}
	for _, filename := range filenames {
		geoTIFFTile, err := NewGeoTIFFTile(fsys, filename, s.geoTIFFTileOptions...)
		if err != nil {
			Logf("%s: %v", filename, err)
			continue
		}
		epsg, bound, samplesPerPixel := geoTIFFTile.EPSG(), geoTIFFTile.Bound(), geoTIFFTile.SamplesPerPixel()
		_ = geoTIFFTile.Close()
		switch {
		case samplesPerPixel != 1:
			continue
		case len(s.entries) == 0:
			s.epsg = epsg
		case epsg != s.epsg:
			Logf("%s: EPSG:%d differs from EPSG:%d, skipping", filename, epsg, s.epsg)
			continue
		}
		s.entries = append(s.entries, tileSetEntry{
			filename: filename,
			bound:    bound,
		})
	}
	if len(s.entries) == 0 {
		return nil, fmt.Errorf("%s: no GeoTIFFs: %w", s.pattern, ErrMissingInput)
	}

	s.geoTIFFTileCache, err = lru.NewWithEvict(s.cacheSize, func(key string, value *GeoTIFFTile) {
		value.Close()
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func WithCacheSize(cacheSize int) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.cacheSize = cacheSize
	}
}

func WithGeoTIFFTileOptions(geoTIFFTileOptions ...GeoTIFFTileOption) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.geoTIFFTileOptions = geoTIFFTileOptions
	}
}

func WithPattern(pattern string) GeoTIFFTileSetOption {
	return func(s *GeoTIFFTileSet) {
		s.pattern = pattern
	}
}

// EPSG returns s's EPSG code.
func (s *GeoTIFFTileSet) EPSG() int {
	return s.epsg
}

// Close closes all open files.
func (s *GeoTIFFTileSet) Close() {
	s.geoTIFFTileCache.Purge()
}

// filename returns the file containing coord. Later files take precedence.
func (s *GeoTIFFTileSet) filename(coord Coord) (string, bool) {
	point := orb.Point{coord.X, coord.Y}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].bound.Contains(point) {
			return s.entries[i].filename, true
		}
	}
	return "", false
}

// Samples returns the samples at coords. Missing samples are represented by
// NaNs.
func (s *GeoTIFFTileSet) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	return s.grouped(coords, func(tile *GeoTIFFTile, coords []Coord) ([]float64, error) {
		return tile.Samples(ctx, coords)
	})
}

// InterpolateBilinear returns the bilinearly interpolated values at coords.
// Missing values are represented by NaNs.
func (s *GeoTIFFTileSet) InterpolateBilinear(ctx context.Context, coords []Coord) ([]float64, error) {
	return s.grouped(coords, func(tile *GeoTIFFTile, coords []Coord) ([]float64, error) {
		return tile.InterpolateBilinear(ctx, coords)
	})
}

// grouped calls f once per file with the coords inside it.
func (s *GeoTIFFTileSet) grouped(coords []Coord, f func(*GeoTIFFTile, []Coord) ([]float64, error)) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by filename.
	type groupStruct struct {
		coords  []Coord
		indexes []int
	}
	groupsByFilename := make(map[string]*groupStruct)
	for index, coord := range coords {
		filename, ok := s.filename(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		group, ok := groupsByFilename[filename]
		if !ok {
			group = &groupStruct{}
			groupsByFilename[filename] = group
		}
		group.coords = append(group.coords, coord)
		group.indexes = append(group.indexes, index)
	}

	// Populate samples one file at a time.
	for filename, group := range groupsByFilename {
		tile, err := s.getTileCached(filename)
		if err != nil {
			return nil, err
		}
		localSamples, err := f(tile, group.coords)
		if err != nil {
			return nil, err
		}
		for localIndex, index := range group.indexes {
			samples[index] = localSamples[localIndex]
		}
	}

	return samples, nil
}

// getTileCached returns the open file filename, using the cache if possible.
func (s *GeoTIFFTileSet) getTileCached(filename string) (*GeoTIFFTile, error) {
	if tile, ok := s.geoTIFFTileCache.Get(filename); ok {
		tileSetCacheHits.Inc()
		return tile, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tile, ok := s.geoTIFFTileCache.Get(filename); ok {
		tileSetCacheHits.Inc()
		return tile, nil
	}

	tileSetCacheMisses.Inc()

	tile, err := NewGeoTIFFTile(s.fsys, filename, s.geoTIFFTileOptions...)
	if err != nil {
		return nil, err
	}

	if eviction := s.geoTIFFTileCache.Add(filename, tile); eviction {
		tileSetCacheEvictions.Inc()
	}

	return tile, nil
}
