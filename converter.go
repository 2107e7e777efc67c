package fgddem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// A Converter converts FGD DEM archives into GeoTIFFs.
type Converter struct {
	outputDir          string
	extractDir         string
	targetCRS          string
	terrainRGB         bool
	seaAtZero          bool
	preview            bool
	kml                bool
	workers            int
	inFlight           int
	maxArchiveDepth    int
	pixelSizeTolerance float64
	status             *StatusWriter
}

// A ConverterOption sets an option on a Converter.
type ConverterOption func(*Converter)

// NewConverter returns a new Converter with the given options.
func NewConverter(options ...ConverterOption) *Converter {
	c := &Converter{
		outputDir:       "output",
		extractDir:      "extracted",
		targetCRS:       FormatEPSG(EPSGWebMercator),
		workers:         runtime.GOMAXPROCS(0),
		inFlight:        DefaultInFlight,
		maxArchiveDepth: DefaultMaxArchiveDepth,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// WithOutputDir sets the directory that converted rasters are written to.
func WithOutputDir(outputDir string) ConverterOption {
	return func(c *Converter) {
		c.outputDir = outputDir
	}
}

// WithExtractDir sets the directory that archives are extracted into.
func WithExtractDir(extractDir string) ConverterOption {
	return func(c *Converter) {
		c.extractDir = extractDir
	}
}

// WithTargetCRS sets the CRS of the output rasters. An empty CRS keeps
// EPSG:4326.
func WithTargetCRS(targetCRS string) ConverterOption {
	return func(c *Converter) {
		c.targetCRS = targetCRS
	}
}

// WithTerrainRGBOutput sets whether outputs are Terrain-RGB encoded.
func WithTerrainRGBOutput(terrainRGB bool) ConverterOption {
	return func(c *Converter) {
		c.terrainRGB = terrainRGB
	}
}

// WithSeaAtZero sets whether sea cells without a measurement are set to zero.
func WithSeaAtZero(seaAtZero bool) ConverterOption {
	return func(c *Converter) {
		c.seaAtZero = seaAtZero
	}
}

// WithPreview sets whether a PNG preview and, if kml is true, a KML overlay
// are written next to each output.
func WithPreview(preview, kml bool) ConverterOption {
	return func(c *Converter) {
		c.preview = preview
		c.kml = kml
	}
}

// WithWorkers sets the number of concurrent workers per conversion.
func WithWorkers(workers int) ConverterOption {
	return func(c *Converter) {
		c.workers = workers
	}
}

// WithInFlight sets the maximum number of tile documents waiting to be
// parsed.
func WithInFlight(inFlight int) ConverterOption {
	return func(c *Converter) {
		c.inFlight = inFlight
	}
}

// WithMaxArchiveDepth sets the maximum number of nested archive levels.
func WithMaxArchiveDepth(maxArchiveDepth int) ConverterOption {
	return func(c *Converter) {
		c.maxArchiveDepth = maxArchiveDepth
	}
}

// WithPixelSizeTolerance rejects archives whose tiles have pixel sizes
// differing by more than tolerance degrees. Zero disables the check.
func WithPixelSizeTolerance(tolerance float64) ConverterOption {
	return func(c *Converter) {
		c.pixelSizeTolerance = tolerance
	}
}

// WithStatusWriter sets the writer for progress lines.
func WithStatusWriter(status *StatusWriter) ConverterOption {
	return func(c *Converter) {
		c.status = status
	}
}

// Convert converts the archive at archivePath and returns the path of the
// written GeoTIFF. A failed reprojection is logged and leaves the output in
// EPSG:4326.
func (c *Converter) Convert(ctx context.Context, archivePath string) (string, error) {
	extractDir := filepath.Join(c.extractDir, archiveStem(archivePath))
	files, err := ExtractArchive(archivePath, extractDir, c.maxArchiveDepth)
	if err != nil {
		return "", err
	}

	for _, file := range files {
		if IsArchive(file) {
			Logf("warning: %s: not extracted, nested deeper than %d archives", file, c.maxArchiveDepth)
		}
	}
	xmlPaths := slices.DeleteFunc(files, func(path string) bool {
		return !strings.EqualFold(filepath.Ext(path), ".xml")
	})
	if len(xmlPaths) == 0 {
		return "", fmt.Errorf("%s: no XML files: %w", archivePath, ErrMissingInput)
	}
	slices.SortStableFunc(xmlPaths, func(a, b string) int {
		return strings.Compare(filepath.Base(a), filepath.Base(b))
	})
	c.status.Printf("Extract", "%s: %d XML files", filepath.Base(archivePath), len(xmlPaths))

	tiles, err := LoadTiles(ctx, xmlPaths, LoadOptions{
		SeaAtZero: c.seaAtZero,
		Workers:   c.workers,
		InFlight:  c.inFlight,
	})
	if err != nil {
		return "", err
	}
	mosaic, bounds, err := BuildMosaic(ctx, tiles, MosaicOptions{
		Workers:            c.workers,
		PixelSizeTolerance: c.pixelSizeTolerance,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", archivePath, err)
	}
	raster := mosaic.Raster()
	c.status.Printf("Mosaic", "%s: %dx%d, %s", filepath.Base(archivePath), raster.Width, raster.Height, ComputeRasterStats(raster))

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", err
	}
	output := filepath.Join(c.outputDir, ConvertedFileName(archivePath))
	if c.preview {
		if err := c.writePreview(output, raster, bounds); err != nil {
			Logf("%s: preview: %v", output, err)
		}
	}

	if c.terrainRGB {
		// Terrain-RGB samples are not elevations, so reproject first.
		if c.targetCRS != "" {
			reprojected, _, err := reprojectRaster(ctx, raster, FormatEPSG(EPSGWGS84), c.targetCRS)
			if err != nil {
				Logf("warning: %s: reprojection to %s failed, keeping EPSG:4326: %v", output, c.targetCRS, err)
			} else {
				raster = reprojected
			}
		}
		if err := WriteGeoTIFFFile(ctx, output, raster, WithTerrainRGB(true), WithEncoderWorkers(c.workers)); err != nil {
			return "", err
		}
	} else {
		if err := WriteGeoTIFFFile(ctx, output, raster, WithEncoderWorkers(c.workers)); err != nil {
			return "", err
		}
		if c.targetCRS != "" {
			if _, err := ReprojectFile(ctx, output, c.targetCRS, WithEncoderWorkers(c.workers)); err != nil {
				Logf("warning: %s: reprojection to %s failed, keeping EPSG:4326: %v", output, c.targetCRS, err)
			}
		}
	}

	c.status.Path("Output", output)
	return output, nil
}

func (c *Converter) writePreview(output string, raster *Raster, bounds GeographicBounds) error {
	previewPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".png"
	if err := WritePreviewPNG(previewPath, raster); err != nil {
		return err
	}
	if !c.kml {
		return nil
	}
	kmlPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".kml"
	return WriteOverlayKMLFile(kmlPath, archiveStem(output), filepath.Base(previewPath), bounds)
}
