package fgddem

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/mazznoer/colorgrad"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RasterStats summarizes the valid samples of a raster.
type RasterStats struct {
	Min   float64
	Max   float64
	Mean  float64
	Valid int
	Total int
}

func (s RasterStats) String() string {
	if s.Valid == 0 {
		return fmt.Sprintf("0/%d valid samples", s.Total)
	}
	return fmt.Sprintf("%d/%d valid samples, min %.1fm, max %.1fm, mean %.1fm", s.Valid, s.Total, s.Min, s.Max, s.Mean)
}

// ComputeRasterStats returns the statistics of the non-nodata samples of
// raster.
func ComputeRasterStats(raster *Raster) RasterStats {
	valid := make([]float64, 0, len(raster.Samples))
	for _, sample := range raster.Samples {
		if !raster.IsNoData(sample) {
			valid = append(valid, float64(sample))
		}
	}
	stats := RasterStats{
		Valid: len(valid),
		Total: len(raster.Samples),
	}
	if len(valid) == 0 {
		return stats
	}
	stats.Min = floats.Min(valid)
	stats.Max = floats.Max(valid)
	stats.Mean = stat.Mean(valid, nil)
	return stats
}

// RenderPreview renders raster as a hypsometric image. Low elevations are
// green, high elevations red, and nodata is transparent.
func RenderPreview(raster *Raster) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	stats := ComputeRasterStats(raster)
	if stats.Valid == 0 {
		return img
	}
	grad := colorgrad.RdYlGn()
	elevationRange := stats.Max - stats.Min
	for y := range raster.Height {
		for x, sample := range raster.Row(y) {
			if raster.IsNoData(sample) {
				continue
			}
			t := 0.5
			if elevationRange > 0 {
				t = (float64(sample) - stats.Min) / elevationRange
			}
			r, g, b, _ := grad.At(1 - t).RGBA()
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff})
		}
	}
	return img
}

// WritePreviewPNG writes a preview of raster to path.
func WritePreviewPNG(path string, raster *Raster) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, RenderPreview(raster)); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
