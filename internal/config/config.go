// Package config holds the settings of the fgddem command.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const maxFileSize = 1 << 20 // 1MB

// A Config holds the settings of a conversion run. Fields map one-to-one to
// command line flags.
type Config struct {
	Input              string  `json:"input"`
	Output             string  `json:"output"`
	ExtractDir         string  `json:"extract_dir"`
	EPSG               string  `json:"epsg"`
	TerrainRGB         bool    `json:"rgbify"`
	SeaAtZero          bool    `json:"sea_at_zero"`
	ExtractOnly        bool    `json:"extract_only"`
	MergeType          string  `json:"merge"`
	MergeOnly          bool    `json:"merge_only"`
	MergeDir           string  `json:"merge_dir"`
	Resolution         float64 `json:"resolution"`
	Workers            int     `json:"workers"`
	InFlight           int     `json:"in_flight"`
	MaxArchiveDepth    int     `json:"max_archive_depth"`
	PixelSizeTolerance float64 `json:"pixel_size_tolerance"`
	Preview            bool    `json:"preview"`
	KML                bool    `json:"kml"`
	MetricsFile        string  `json:"metrics_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:          "./output",
		ExtractDir:      "./extracted",
		EPSG:            "EPSG:3857",
		MergeDir:        "./output",
		Resolution:      10,
		Workers:         runtime.GOMAXPROCS(0),
		InFlight:        16,
		MaxArchiveDepth: 4,
	}
}

// Load reads the JSON configuration at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the JSON configuration at path into c. Fields absent from
// the file keep their values.
func (c *Config) LoadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return c.Validate()
}

// Validate returns an error if c is inconsistent.
func (c *Config) Validate() error {
	var errs []error
	if c.MergeOnly && c.MergeType == "" {
		errs = append(errs, errors.New("merge_only requires merge to name a DEM type"))
	}
	if !c.MergeOnly && c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if c.EPSG != "" && !strings.Contains(c.EPSG, ":") {
		errs = append(errs, fmt.Errorf("epsg must be AUTHORITY:CODE, got %q", c.EPSG))
	}
	if c.Resolution < 0 {
		errs = append(errs, fmt.Errorf("resolution must be non-negative, got %g", c.Resolution))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.InFlight < 1 {
		errs = append(errs, fmt.Errorf("in_flight must be positive, got %d", c.InFlight))
	}
	if c.MaxArchiveDepth < 1 {
		errs = append(errs, fmt.Errorf("max_archive_depth must be positive, got %d", c.MaxArchiveDepth))
	}
	if c.PixelSizeTolerance < 0 {
		errs = append(errs, fmt.Errorf("pixel_size_tolerance must be non-negative, got %g", c.PixelSizeTolerance))
	}
	if c.KML && !c.Preview {
		errs = append(errs, errors.New("kml requires preview"))
	}
	return errors.Join(errs...)
}
