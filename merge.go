package fgddem

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// MergeOptions configures a merge.
type MergeOptions struct {
	// Dir is searched recursively for inputs.
	Dir string
	// DEMType selects the inputs, e.g. "5A".
	DEMType string
	// Resolution overrides the pixel size for metric CRSs. Zero keeps the
	// pixel size of the first input.
	Resolution float64
	// Output is the output path. If empty, a name is derived from the
	// inputs and placed in OutputDir.
	Output    string
	OutputDir string
	Status    *StatusWriter
}

// FindMergeInputs returns the GeoTIFFs of demType under dir in lexical order
// and the latest date found in their names. Merged outputs and excludes are
// skipped.
func FindMergeInputs(dir, demType string, excludes ...string) ([]string, string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, "", fmt.Errorf("%s: %w: %w", dir, ErrMissingInput, err)
	}
	excluded := make(map[string]struct{}, len(excludes))
	for _, exclude := range excludes {
		if absExclude, err := filepath.Abs(exclude); err == nil {
			excluded[absExclude] = struct{}{}
		}
	}
	var paths []string
	var latestDate string
	if err := filepath.WalkDir(dir, func(path string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !dirEntry.Type().IsRegular() {
			return nil
		}
		if IsMergedFileName(dirEntry.Name()) {
			return nil
		}
		if absPath, err := filepath.Abs(path); err == nil {
			if _, ok := excluded[absPath]; ok {
				return nil
			}
		}
		ok, date := MatchMergeInput(dirEntry.Name(), demType)
		if !ok {
			return nil
		}
		paths = append(paths, path)
		latestDate = max(latestDate, date)
		return nil
	}); err != nil {
		return nil, "", err
	}
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("%s: no *-DEM%s.tif or *DEM%s-*.tif files: %w", dir, demType, demType, ErrMissingInput)
	}
	return paths, latestDate, nil
}

// Merge merges the GeoTIFFs selected by options into a single GeoTIFF and
// returns its path.
func Merge(ctx context.Context, options MergeOptions) (string, error) {
	var excludes []string
	if options.Output != "" {
		excludes = append(excludes, options.Output)
	}
	paths, latestDate, err := FindMergeInputs(options.Dir, options.DEMType, excludes...)
	if err != nil {
		return "", err
	}
	options.Status.Printf("Merge", "%d files", len(paths))

	rasters := make([]*Raster, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			raster, err := ReadGeoTIFFFile(gctx, path)
			if err != nil {
				return err
			}
			rasters[i] = raster
			options.Status.Path("Read", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	merged, err := MergeRasters(rasters, options.Resolution)
	if err != nil {
		return "", err
	}

	output := options.Output
	if output == "" {
		output = filepath.Join(options.OutputDir, MergedFileName(options.DEMType, latestDate, options.Resolution))
	}
	if err := WriteGeoTIFFFile(ctx, output, merged); err != nil {
		return "", err
	}
	return output, nil
}

// MergeRasters merges rasters onto the union of their extents. The pixel
// size, CRS, and nodata value are taken from the first raster. Nodata source
// pixels are skipped; otherwise later rasters overwrite earlier ones.
func MergeRasters(rasters []*Raster, resolution float64) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, fmt.Errorf("no rasters: %w", ErrMissingInput)
	}

	first := rasters[0]
	bound := rasterBound(first)
	for _, raster := range rasters[1:] {
		bound = bound.Union(rasterBound(raster))
	}

	pixelWidth, pixelHeight := first.GeoTransform[1], -first.GeoTransform[5]
	if resolution > 0 && metricEPSG(first.EPSG) {
		pixelWidth, pixelHeight = resolution, resolution
	}
	noData := NoDataValue
	if first.HasNoData {
		noData = first.NoData
	}

	minX, maxY := bound.Left(), bound.Top()
	width := max(1, int(math.Ceil((bound.Right()-minX)/pixelWidth)))
	height := max(1, int(math.Ceil((maxY-bound.Bottom())/pixelHeight)))
	dst := NewRaster(width, height, float32(noData))
	dst.GeoTransform = GeoTransform{minX, pixelWidth, 0, maxY, 0, -pixelHeight}
	dst.EPSG = first.EPSG
	dst.NoData = noData
	dst.HasNoData = true

	for _, src := range rasters {
		colStart := int(math.Round((src.GeoTransform[0] - minX) / pixelWidth))
		rowStart := int(math.Round((maxY - src.GeoTransform[3]) / pixelHeight))
		for row := range src.Height {
			dstRow := rowStart + row
			if dstRow < 0 || dstRow >= height {
				continue
			}
			dstSamples := dst.Row(dstRow)
			for col, value := range src.Row(row) {
				dstCol := colStart + col
				if dstCol < 0 || dstCol >= width {
					continue
				}
				if src.HasNoData && value == float32(src.NoData) {
					continue
				}
				dstSamples[dstCol] = value
			}
		}
	}
	return dst, nil
}

func rasterBound(raster *Raster) orb.Bound {
	minX, minY, maxX, maxY := raster.Bounds()
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}
