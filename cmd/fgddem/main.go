package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/twpayne/go-fgddem"
	"github.com/twpayne/go-fgddem/internal/config"
)

var (
	GitCommit = "local"
	GitTag    = "0.0.0"
)

const strictPixelSizeTolerance = 1e-9

var errItemsFailed = errors.New("failed")

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := config.Default()
	flagSet := flag.NewFlagSet("fgddem", flag.ExitOnError)
	flagSet.StringVar(&cfg.Input, "i", cfg.Input, "input zip file or directory of zip files")
	flagSet.StringVar(&cfg.Output, "o", cfg.Output, "output directory")
	flagSet.StringVar(&cfg.EPSG, "e", cfg.EPSG, "output CRS, empty to keep EPSG:4326")
	flagSet.BoolVar(&cfg.TerrainRGB, "r", cfg.TerrainRGB, "write Terrain-RGB")
	flagSet.BoolVar(&cfg.SeaAtZero, "z", cfg.SeaAtZero, "set sea cells without a measurement to 0")
	flagSet.BoolVar(&cfg.ExtractOnly, "x", cfg.ExtractOnly, "extract archives only")
	flagSet.StringVar(&cfg.MergeType, "m", cfg.MergeType, "merge outputs of DEM type (e.g. 5A)")
	flagSet.BoolVar(&cfg.MergeOnly, "M", cfg.MergeOnly, "merge only, skip conversion")
	flagSet.StringVar(&cfg.MergeDir, "d", cfg.MergeDir, "directory searched by -M")
	flagSet.Float64Var(&cfg.Resolution, "t", cfg.Resolution, "merge resolution in meters for metric CRSs")
	flagSet.IntVar(&cfg.Workers, "j", cfg.Workers, "workers")
	flagSet.IntVar(&cfg.InFlight, "inflight", cfg.InFlight, "tile documents held between reading and parsing")
	flagSet.StringVar(&cfg.ExtractDir, "extract-dir", cfg.ExtractDir, "extraction directory")
	flagSet.IntVar(&cfg.MaxArchiveDepth, "max-archive-depth", cfg.MaxArchiveDepth, "maximum nested archive depth")
	flagSet.BoolVar(&cfg.Preview, "preview", cfg.Preview, "write a PNG preview of each output")
	flagSet.BoolVar(&cfg.KML, "kml", cfg.KML, "write a KML overlay for each preview")
	flagSet.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write metrics to file on exit")
	configPath := flagSet.String("config", "", "JSON configuration file")
	strict := flagSet.Bool("strict", false, "reject archives with inconsistent pixel sizes")
	version := flagSet.Bool("version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *version {
		fmt.Printf("fgddem %s, commit: %s\n", GitTag, GitCommit)
		return nil
	}

	// Flags take precedence over the configuration file.
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return err
		}
		if err := flagSet.Parse(os.Args[1:]); err != nil {
			return err
		}
	}
	if *strict && cfg.PixelSizeTolerance == 0 {
		cfg.PixelSizeTolerance = strictPixelSizeTolerance
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.MergeType != "" && !slices.Contains(fgddem.DEMTypes, cfg.MergeType) {
		fgddem.Logf("warning: unknown DEM type %q", cfg.MergeType)
	}

	if cfg.MetricsFile != "" {
		defer func() {
			if err := fgddem.WriteMetricsFile(cfg.MetricsFile); err != nil {
				fgddem.Logf("%s: %v", cfg.MetricsFile, err)
			}
		}()
	}

	status := fgddem.NewStatusWriter(os.Stdout)

	if cfg.MergeOnly {
		return merge(ctx, cfg, cfg.MergeDir, status)
	}

	archives, err := findInputArchives(cfg.Input)
	if err != nil {
		return err
	}
	nested, extractErr := extractAll(ctx, cfg, archives, status)
	if extractErr != nil && !errors.Is(extractErr, errItemsFailed) {
		return extractErr
	}
	if cfg.ExtractOnly {
		return extractErr
	}

	if len(nested) == 0 {
		if extractErr != nil {
			return extractErr
		}
		nested = archives
	}
	convertErr := convertAll(ctx, cfg, nested, status)
	if convertErr != nil && !errors.Is(convertErr, errItemsFailed) {
		return convertErr
	}

	if cfg.MergeType != "" {
		if err := merge(ctx, cfg, cfg.Output, status); err != nil {
			return err
		}
	}
	return errors.Join(extractErr, convertErr)
}

// findInputArchives returns input if it is a zip archive, otherwise the zip
// archives under it.
func findInputArchives(input string) ([]string, error) {
	fileInfo, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", input, fgddem.ErrMissingInput, err)
	}
	if !fileInfo.IsDir() {
		if !fgddem.IsArchive(input) {
			return nil, fmt.Errorf("%s: not a zip archive: %w", input, fgddem.ErrMissingInput)
		}
		return []string{input}, nil
	}
	archives, err := fgddem.FindArchives(input)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("%s: no zip archives: %w", input, fgddem.ErrMissingInput)
	}
	return archives, nil
}

// extractAll extracts the outermost level of each archive and returns the
// archives nested inside them. Failed extractions are logged and counted.
func extractAll(ctx context.Context, cfg *config.Config, archives []string, status *fgddem.StatusWriter) ([]string, error) {
	var failures atomic.Int64
	results := make([][]string, len(archives))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, archive := range archives {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dir := filepath.Join(cfg.ExtractDir, archiveStem(archive))
			files, err := fgddem.ExtractArchive(archive, dir, 1)
			if err != nil {
				fgddem.Logf("%v", err)
				failures.Add(1)
				return nil
			}
			results[i] = slices.DeleteFunc(files, func(file string) bool {
				return !fgddem.IsArchive(file)
			})
			status.Printf("Extract", "%s: %d archives", filepath.Base(archive), len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	nested := slices.Concat(results...)
	if n := failures.Load(); n > 0 {
		return nested, fmt.Errorf("extracting %d of %d archives: %w", n, len(archives), errItemsFailed)
	}
	return nested, nil
}

// convertAll converts archives concurrently. Failed conversions are logged
// and counted.
func convertAll(ctx context.Context, cfg *config.Config, archives []string, status *fgddem.StatusWriter) error {
	archives, duplicates := uniqueArchiveStems(archives)
	for _, duplicate := range duplicates {
		fgddem.Logf("warning: %s: skipped, output %s already claimed by another archive", duplicate, archiveStem(duplicate)+".tif")
	}

	converter := fgddem.NewConverter(
		fgddem.WithOutputDir(cfg.Output),
		fgddem.WithExtractDir(cfg.ExtractDir),
		fgddem.WithTargetCRS(cfg.EPSG),
		fgddem.WithTerrainRGBOutput(cfg.TerrainRGB),
		fgddem.WithSeaAtZero(cfg.SeaAtZero),
		fgddem.WithPreview(cfg.Preview, cfg.KML),
		fgddem.WithWorkers(max(1, cfg.Workers/max(1, len(archives)))),
		fgddem.WithInFlight(cfg.InFlight),
		fgddem.WithMaxArchiveDepth(cfg.MaxArchiveDepth),
		fgddem.WithPixelSizeTolerance(cfg.PixelSizeTolerance),
		fgddem.WithStatusWriter(status),
	)

	var failures atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, archive := range archives {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := converter.Convert(ctx, archive); err != nil {
				fgddem.Logf("%s: %v", archive, err)
				failures.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := failures.Load() + int64(len(duplicates)); n > 0 {
		return fmt.Errorf("converting %d of %d archives: %w", n, len(archives)+len(duplicates), errItemsFailed)
	}
	return nil
}

func merge(ctx context.Context, cfg *config.Config, dir string, status *fgddem.StatusWriter) error {
	output, err := fgddem.Merge(ctx, fgddem.MergeOptions{
		Dir:        dir,
		DEMType:    cfg.MergeType,
		Resolution: cfg.Resolution,
		OutputDir:  cfg.Output,
		Status:     status,
	})
	if err != nil {
		return err
	}
	status.Path("Merged", output)
	return nil
}

// uniqueArchiveStems splits archives into those with distinct stems, which
// are converted, and later archives whose stem was already seen. Archives
// sharing a stem would share an extract directory and an output file.
func uniqueArchiveStems(archives []string) ([]string, []string) {
	seen := make(map[string]struct{}, len(archives))
	unique := make([]string, 0, len(archives))
	var duplicates []string
	for _, archive := range archives {
		stem := archiveStem(archive)
		if _, ok := seen[stem]; ok {
			duplicates = append(duplicates, archive)
			continue
		}
		seen[stem] = struct{}{}
		unique = append(unique, archive)
	}
	return unique, duplicates
}

func archiveStem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
