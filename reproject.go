package fgddem

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/twpayne/go-proj/v10"
	"golang.org/x/sync/errgroup"
)

// metersPerDegree converts a geographic pixel size to a projected one.
const metersPerDegree = 111000

// A Transformer transforms coordinates between two CRSs.
type Transformer interface {
	Forward(x, y float64) (float64, float64, error)
	Inverse(x, y float64) (float64, float64, error)
}

// A ProjTransformer is a Transformer backed by PROJ. Coordinates are in
// visualization order, i.e. longitude before latitude.
type ProjTransformer struct {
	pj *proj.PJ
}

// NewProjTransformer returns a new ProjTransformer from sourceCRS to
// targetCRS.
func NewProjTransformer(sourceCRS, targetCRS string) (*ProjTransformer, error) {
	pj, err := proj.NewCRSToCRS(sourceCRS, targetCRS, nil)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w: %w", sourceCRS, targetCRS, ErrTransform, err)
	}
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w: %w", sourceCRS, targetCRS, ErrTransform, err)
	}
	return &ProjTransformer{
		pj: normalizedPJ,
	}, nil
}

func (t *ProjTransformer) Forward(x, y float64) (float64, float64, error) {
	coord, err := t.pj.Forward(proj.Coord{x, y, 0, 0})
	if err != nil {
		return 0, 0, err
	}
	return coord[0], coord[1], nil
}

func (t *ProjTransformer) Inverse(x, y float64) (float64, float64, error) {
	coord, err := t.pj.Inverse(proj.Coord{x, y, 0, 0})
	if err != nil {
		return 0, 0, err
	}
	return coord[0], coord[1], nil
}

// CRSEquivalent returns whether a and b describe equivalent CRSs.
func CRSEquivalent(a, b string) (bool, error) {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true, nil
	}
	pjA, err := proj.New(a)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", a, ErrTransform, err)
	}
	pjB, err := proj.New(b)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", b, ErrTransform, err)
	}
	return pjA.IsEquivalentTo(pjB, proj.ComparisonCriterionEquivalent), nil
}

// ParseEPSG returns the code of an EPSG:NNNN CRS string.
func ParseEPSG(crs string) (int, bool) {
	prefix, code, ok := strings.Cut(strings.TrimSpace(crs), ":")
	if !ok || !strings.EqualFold(prefix, "EPSG") {
		return 0, false
	}
	epsg, err := strconv.Atoi(code)
	if err != nil || epsg <= 0 {
		return 0, false
	}
	return epsg, true
}

// FormatEPSG returns the CRS string of epsg.
func FormatEPSG(epsg int) string {
	return "EPSG:" + strconv.Itoa(epsg)
}

// Reproject resamples src, which must be geographic, into targetCRS using t.
// The output pixel size is the source pixel size scaled from degrees to
// meters. Output pixels whose source neighborhood is incomplete or contains
// nodata are nodata.
func Reproject(ctx context.Context, src *Raster, targetCRS string, t Transformer) (*Raster, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return nil, errEmptyRaster
	}
	gt := src.GeoTransform

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{
		{gt[0], gt[3]},
		{gt[0] + float64(src.Width)*gt[1], gt[3]},
		{gt[0], gt[3] + float64(src.Height)*gt[5]},
		{gt[0] + float64(src.Width)*gt[1], gt[3] + float64(src.Height)*gt[5]},
	} {
		x, y, err := t.Forward(corner[0], corner[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransform, err)
		}
		minX, minY = min(minX, x), min(minY, y)
		maxX, maxY = max(maxX, x), max(maxY, y)
	}
	if math.IsInf(minX, 0) || math.IsInf(minY, 0) || math.IsInf(maxX, 0) || math.IsInf(maxY, 0) {
		return nil, fmt.Errorf("%w: non-finite target bounds", ErrTransform)
	}

	pixelWidth := math.Abs(gt[1]) * metersPerDegree
	pixelHeight := math.Abs(gt[5]) * metersPerDegree
	width := max(1, int(math.Ceil((maxX-minX)/pixelWidth)))
	height := max(1, int(math.Ceil((maxY-minY)/pixelHeight)))

	noData := NoDataValue
	if src.HasNoData {
		noData = src.NoData
	}
	dst := NewRaster(width, height, float32(noData))
	dst.GeoTransform = GeoTransform{minX, pixelWidth, 0, maxY, 0, -pixelHeight}
	dst.EPSG, _ = ParseEPSG(targetCRS)
	dst.NoData = noData
	dst.HasNoData = true

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for row := range height {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dstRow := dst.Row(row)
			y := maxY - (float64(row)+0.5)*pixelHeight
			for col := range width {
				x := minX + (float64(col)+0.5)*pixelWidth
				srcX, srcY, err := t.Inverse(x, y)
				if err != nil {
					continue
				}
				srcCol := (srcX-gt[0])/gt[1] - 0.5
				srcRow := (gt[3]-srcY)/-gt[5] - 0.5
				if value, ok := InterpolateBilinear(src, srcCol, srcRow); ok {
					dstRow[col] = float32(value)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReprojectFile reprojects the GeoTIFF at path into targetCRS in place. The
// source CRS is read from the file and defaults to EPSG:4326. If the CRSs are
// equivalent the file is left untouched and ReprojectFile returns false. On
// error the file is left unchanged.
func ReprojectFile(ctx context.Context, path, targetCRS string, options ...GeoTIFFWriterOption) (bool, error) {
	src, err := ReadGeoTIFFFile(ctx, path)
	if err != nil {
		return false, err
	}
	sourceCRS := FormatEPSG(EPSGWGS84)
	if src.EPSG != 0 {
		sourceCRS = FormatEPSG(src.EPSG)
	}

	dst, reprojected, err := reprojectRaster(ctx, src, sourceCRS, targetCRS)
	if err != nil || !reprojected {
		return false, err
	}
	if err := WriteGeoTIFFFile(ctx, path, dst, options...); err != nil {
		return false, err
	}
	return true, nil
}

// reprojectRaster reprojects src from sourceCRS to targetCRS. It returns src
// and false if the CRSs are equivalent.
func reprojectRaster(ctx context.Context, src *Raster, sourceCRS, targetCRS string) (*Raster, bool, error) {
	switch equivalent, err := CRSEquivalent(sourceCRS, targetCRS); {
	case err != nil:
		reprojections.WithLabelValues("error").Inc()
		return nil, false, err
	case equivalent:
		reprojections.WithLabelValues("skipped").Inc()
		return src, false, nil
	}
	transformer, err := NewProjTransformer(sourceCRS, targetCRS)
	if err != nil {
		reprojections.WithLabelValues("error").Inc()
		return nil, false, err
	}
	dst, err := Reproject(ctx, src, targetCRS, transformer)
	if err != nil {
		reprojections.WithLabelValues("error").Inc()
		return nil, false, err
	}
	reprojections.WithLabelValues("ok").Inc()
	return dst, true, nil
}
