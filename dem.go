package fgddem

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

// DefaultInFlight is the default number of tile documents held in memory
// between reading and parsing.
const DefaultInFlight = 16

// A Tile is a parsed tile document.
type Tile struct {
	Path     string
	Document *TileDocument
}

// Metadata returns t's metadata.
func (t *Tile) Metadata() TileMetadata {
	return t.Document.Metadata(filepath.Base(t.Path))
}

// LoadOptions configures LoadTiles.
type LoadOptions struct {
	SeaAtZero bool
	Workers   int
	InFlight  int
}

// LoadTiles reads and parses the tile documents at paths. Reading and parsing
// run concurrently with at most options.InFlight documents waiting to be
// parsed. The result has one entry per path; documents that cannot be read
// or parsed are logged and left nil.
func LoadTiles(ctx context.Context, paths []string, options LoadOptions) ([]*Tile, error) {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	inFlight := options.InFlight
	if inFlight <= 0 {
		inFlight = DefaultInFlight
	}

	type readItem struct {
		index int
		data  []byte
	}

	tiles := make([]*Tile, len(paths))
	items := make(chan readItem, inFlight)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(items)
		readers, readersCtx := errgroup.WithContext(ctx)
		readers.SetLimit(workers)
		for index, path := range paths {
			readers.Go(func() error {
				data, err := readFileMapped(path)
				if err != nil {
					Logf("%s: %v", path, err)
					tileFailures.WithLabelValues("read").Inc()
					return nil
				}
				select {
				case items <- readItem{index: index, data: data}:
					return nil
				case <-readersCtx.Done():
					return readersCtx.Err()
				}
			})
		}
		return readers.Wait()
	})

	for range workers {
		g.Go(func() error {
			for item := range items {
				doc, err := ParseTile(item.data, options.SeaAtZero)
				if err != nil {
					Logf("%s: %v", paths[item.index], err)
					tileFailures.WithLabelValues("parse").Inc()
					continue
				}
				tilesParsed.Inc()
				tiles[item.index] = &Tile{
					Path:     paths[item.index],
					Document: doc,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// readFileMapped returns the contents of the file at path.
func readFileMapped(path string) ([]byte, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil {
		return nil, err
	}
	return data, nil
}

// MosaicOptions configures BuildMosaic.
type MosaicOptions struct {
	Workers int
	// PixelSizeTolerance, if positive, rejects tiles whose pixel size
	// differs from the first usable tile's by more than it.
	PixelSizeTolerance float64
}

// BuildMosaic materializes the grids of tiles and assembles them. Nil tiles
// and tiles that cannot be placed are skipped. Tiles sharing a mesh code are
// logged.
func BuildMosaic(ctx context.Context, tiles []*Tile, options MosaicOptions) (*Mosaic, GeographicBounds, error) {
	workers := options.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	warnDuplicateMeshCodes(tiles)

	grids := make([]*ElevationGrid, len(tiles))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tile := range tiles {
		if tile == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc := tile.Document
			if !doc.HasLowerCorner || !doc.HasUpperCorner {
				return nil
			}
			if grid, ok := MaterializeGrid(doc); ok {
				grids[i] = grid
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, GeographicBounds{}, err
	}

	var metas []TileMetadata
	var placedGrids []*ElevationGrid
	for i, tile := range tiles {
		if tile == nil {
			continue
		}
		if grids[i] == nil {
			Logf("%s: missing grid envelope, corners, or start point, skipping", tile.Path)
			tileFailures.WithLabelValues("grid").Inc()
			continue
		}
		metas = append(metas, tile.Metadata())
		placedGrids = append(placedGrids, grids[i])
	}
	if len(metas) == 0 {
		return nil, GeographicBounds{}, fmt.Errorf("no usable tiles: %w", ErrMissingInput)
	}

	if options.PixelSizeTolerance > 0 {
		if err := ValidatePixelSizes(metas, options.PixelSizeTolerance); err != nil {
			return nil, GeographicBounds{}, err
		}
	}

	bounds := ComputeBounds(metas)
	mosaic := AssembleMosaic(bounds, metas, placedGrids)
	if mosaic.Width == 0 || mosaic.Height == 0 {
		return nil, GeographicBounds{}, fmt.Errorf("empty mosaic: %w", ErrMissingInput)
	}
	return mosaic, bounds, nil
}

func warnDuplicateMeshCodes(tiles []*Tile) {
	pathsByMeshCode := make(map[string]string)
	for _, tile := range tiles {
		if tile == nil || tile.Document.MeshCode == "" {
			continue
		}
		meshCode := tile.Document.MeshCode
		if path, ok := pathsByMeshCode[meshCode]; ok {
			Logf("warning: duplicate mesh code %s in %s and %s", meshCode, path, tile.Path)
			continue
		}
		pathsByMeshCode[meshCode] = tile.Path
	}
}
