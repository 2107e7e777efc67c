package fgddem

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff/lzw"
	"golang.org/x/sync/errgroup"
)

var errShortRead = errors.New("short read")

// A GeoTIFFTile is an open GeoTIFF file.
type GeoTIFFTile struct {
	file                *os.File
	fileSize            uint64
	name                string
	byteOrder           binary.ByteOrder
	imageWidth          int
	imageLength         int
	chunkWidth          int
	chunkLength         int
	stripped            bool
	chunksAcross        int
	chunksDown          int
	chunkOffsets        []uint64
	chunkByteCounts     []uint64
	compression         int
	samplesPerPixel     int
	bitsPerSample       int
	sampleFormat        int
	geoTransform        GeoTransform
	epsg                int
	noData              float64
	hasNoData           bool
	chunkCacheSizeBytes int
	chunkSamplesCache   *lru.Cache[int, []float32]
}

// A GeoTIFFTileOption sets an option on a GeoTIFFTile.
type GeoTIFFTileOption func(*GeoTIFFTile)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint64    `tiff:"field,tag=256"`
	ImageLength               uint64    `tiff:"field,tag=257"`
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint64    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// OpenGeoTIFFFile opens the GeoTIFF file at path.
func OpenGeoTIFFFile(path string, options ...GeoTIFFTileOption) (*GeoTIFFTile, error) {
	return NewGeoTIFFTile(os.DirFS(filepath.Dir(path)), filepath.Base(path), options...)
}

// ReadGeoTIFFFile reads the single-band GeoTIFF at path into memory.
func ReadGeoTIFFFile(ctx context.Context, path string) (*Raster, error) {
	geoTIFFTile, err := OpenGeoTIFFFile(path)
	if err != nil {
		return nil, err
	}
	defer geoTIFFTile.Close()
	return geoTIFFTile.ReadRaster(ctx)
}

// NewGeoTIFFTile returns a new GeoTIFFTile. Only the header is read; chunks
// are read on demand.
func NewGeoTIFFTile(fsys fs.FS, filename string, options ...GeoTIFFTileOption) (*GeoTIFFTile, error) {
	var err error
	ok := false

	f := &GeoTIFFTile{
		name:                filename,
		chunkCacheSizeBytes: 64 << 20, // 64MB.
	}
	for _, option := range options {
		option(f)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	if _, ok := file.(*os.File); !ok {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	f.file = file.(*os.File)
	defer func() {
		if !ok {
			_ = f.file.Close()
		}
	}()

	fileInfo, err := f.file.Stat()
	if err != nil {
		return nil, f.codecError(err)
	}
	f.fileSize = uint64(fileInfo.Size())

	byteOrderMark := make([]byte, 2)
	if _, err := f.file.ReadAt(byteOrderMark, 0); err != nil {
		return nil, f.codecError(err)
	}
	switch string(byteOrderMark) {
	case "II":
		f.byteOrder = binary.LittleEndian
	case "MM":
		f.byteOrder = binary.BigEndian
	default:
		return nil, f.codecError(errors.New("not a TIFF file"))
	}

	tiffTIFF, err := tiff.Parse(f.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, f.codecError(err)
	}
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, f.codecError(errors.New("no IFDs"))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, f.codecError(err)
	}
	if err := f.setLayout(&ifd); err != nil {
		return nil, err
	}
	if err := f.setGeoreferencing(&ifd); err != nil {
		return nil, err
	}

	chunkCacheCount := max(f.chunkCacheSizeBytes/(4*f.chunkWidth*f.chunkLength), 1)
	f.chunkSamplesCache, err = lru.New[int, []float32](chunkCacheCount)
	if err != nil {
		return nil, err
	}

	ok = true
	return f, nil
}

// WithChunkCacheSize sets the size in bytes of the decoded chunk cache.
func WithChunkCacheSize(chunkCacheSize int) GeoTIFFTileOption {
	return func(f *GeoTIFFTile) {
		f.chunkCacheSizeBytes = chunkCacheSize
	}
}

func (f *GeoTIFFTile) setLayout(ifd *geoTIFFIFD) error {
	f.imageWidth = int(ifd.ImageWidth)
	f.imageLength = int(ifd.ImageLength)
	if f.imageWidth <= 0 || f.imageLength <= 0 {
		return f.codecError(errors.New("empty image"))
	}

	f.samplesPerPixel = max(int(ifd.SamplesPerPixel), 1)
	if len(ifd.BitsPerSample) == 0 {
		return f.codecError(errors.New("missing BitsPerSample"))
	}
	f.bitsPerSample = int(ifd.BitsPerSample[0])
	f.sampleFormat = sampleFormatUint
	if len(ifd.SampleFormat) > 0 {
		f.sampleFormat = int(ifd.SampleFormat[0])
	}
	f.compression = max(int(ifd.Compression), compressionNone)

	switch {
	case ifd.PlanarConfiguration > 1 && f.samplesPerPixel > 1:
		return f.unsupported("planar configuration %d", ifd.PlanarConfiguration)
	case ifd.Predictor > 1:
		return f.unsupported("predictor %d", ifd.Predictor)
	}
	switch f.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionAdobeDeflate:
	default:
		return f.unsupported("compression %d", f.compression)
	}

	switch {
	case ifd.TileWidth != 0 && ifd.TileLength != 0:
		f.chunkWidth = int(ifd.TileWidth)
		f.chunkLength = int(ifd.TileLength)
		f.chunksAcross = (f.imageWidth + f.chunkWidth - 1) / f.chunkWidth
		f.chunksDown = (f.imageLength + f.chunkLength - 1) / f.chunkLength
		f.chunkOffsets = ifd.TileOffsets
		f.chunkByteCounts = ifd.TileByteCounts
	case len(ifd.StripOffsets) != 0:
		rowsPerStrip := int(ifd.RowsPerStrip)
		if rowsPerStrip <= 0 || rowsPerStrip > f.imageLength {
			rowsPerStrip = f.imageLength
		}
		f.chunkWidth = f.imageWidth
		f.chunkLength = rowsPerStrip
		f.chunksAcross = 1
		f.stripped = true
		f.chunksDown = (f.imageLength + rowsPerStrip - 1) / rowsPerStrip
		f.chunkOffsets = ifd.StripOffsets
		f.chunkByteCounts = ifd.StripByteCounts
	default:
		return f.codecError(errors.New("neither tiles nor strips"))
	}
	if chunks := f.chunksAcross * f.chunksDown; len(f.chunkOffsets) != chunks || len(f.chunkByteCounts) != chunks {
		return f.codecError(errors.New("incorrect number of chunk byte counts or offsets"))
	}
	return nil
}

func (f *GeoTIFFTile) setGeoreferencing(ifd *geoTIFFIFD) error {
	f.geoTransform = DefaultGeoTransform
	if len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6 {
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		f.geoTransform = GeoTransform{x - i*scaleX, scaleX, 0, y + j*scaleY, 0, -scaleY}
	}

	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return f.codecError(err)
		}
		f.epsg = geoKeys.EPSG()
	}

	if noData := strings.TrimSpace(strings.TrimRight(ifd.GDALNoData, "\x00")); noData != "" {
		if value, err := strconv.ParseFloat(noData, 64); err == nil {
			f.noData = value
			f.hasNoData = true
		}
	}
	return nil
}

func (f *GeoTIFFTile) Close() error {
	return f.file.Close()
}

// Width returns f's width in pixels.
func (f *GeoTIFFTile) Width() int {
	return f.imageWidth
}

// Height returns f's height in pixels.
func (f *GeoTIFFTile) Height() int {
	return f.imageLength
}

// SamplesPerPixel returns the number of bands in f.
func (f *GeoTIFFTile) SamplesPerPixel() int {
	return f.samplesPerPixel
}

// GeoTransform returns f's geotransform.
func (f *GeoTIFFTile) GeoTransform() GeoTransform {
	return f.geoTransform
}

// EPSG returns the EPSG code of f's CRS, or zero if unknown.
func (f *GeoTIFFTile) EPSG() int {
	return f.epsg
}

// NoData returns f's nodata value and whether it is set.
func (f *GeoTIFFTile) NoData() (float64, bool) {
	return f.noData, f.hasNoData
}

// Bound returns f's extent in its CRS.
func (f *GeoTIFFTile) Bound() orb.Bound {
	x0, y0 := f.geoTransform.PixelToWorld(0, 0)
	x1, y1 := f.geoTransform.PixelToWorld(float64(f.imageWidth), float64(f.imageLength))
	return orb.Bound{
		Min: orb.Point{min(x0, x1), min(y0, y1)},
		Max: orb.Point{max(x0, x1), max(y0, y1)},
	}
}

// ReadRaster reads all of f into memory. Chunks are decoded concurrently and
// bypass the chunk cache.
func (f *GeoTIFFTile) ReadRaster(ctx context.Context) (*Raster, error) {
	if f.samplesPerPixel != 1 {
		return nil, f.unsupported("%d samples per pixel", f.samplesPerPixel)
	}
	raster := &Raster{
		Width:        f.imageWidth,
		Height:       f.imageLength,
		Samples:      make([]float32, f.imageWidth*f.imageLength),
		GeoTransform: f.geoTransform,
		EPSG:         f.epsg,
		NoData:       f.noData,
		HasNoData:    f.hasNoData,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := range f.chunksDown {
		for c := range f.chunksAcross {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunkCoord := TileCoord{C: c, R: r}
				chunkSamples, err := f.getChunkSamples(chunkCoord)
				if err != nil {
					return err
				}
				f.copyChunk(raster, chunkCoord, chunkSamples)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return raster, nil
}

// copyChunk copies chunkSamples into raster, clipping at its right and
// bottom edges.
func (f *GeoTIFFTile) copyChunk(raster *Raster, chunkCoord TileCoord, chunkSamples []float32) {
	x0 := chunkCoord.C * f.chunkWidth
	y0 := chunkCoord.R * f.chunkLength
	width := min(f.chunkWidth, f.imageWidth-x0)
	height := min(f.chunkLength, f.imageLength-y0)
	for y := range height {
		copy(raster.Row(y0 + y)[x0:x0+width], chunkSamples[y*f.chunkWidth:y*f.chunkWidth+width])
	}
}

// Sample returns the sample of the pixel containing coord. Coordinates
// outside f and nodata samples are returned as NaN.
func (f *GeoTIFFTile) Sample(ctx context.Context, coord Coord) (float64, error) {
	samples, err := f.Samples(ctx, []Coord{coord})
	if err != nil {
		return 0, err
	}
	return samples[0], nil
}

// Samples returns multiple samples from f. It is significantly faster than
// calling [Sample] for each coordinate.
func (f *GeoTIFFTile) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	pixels := make([]pixelCoord, len(coords))
	for i, coord := range coords {
		col, row := f.geoTransform.WorldToPixel(coord.X, coord.Y)
		pixels[i] = pixelCoord{col: int(math.Floor(col)), row: int(math.Floor(row))}
	}
	return f.pixelSamples(ctx, pixels)
}

type pixelCoord struct {
	col int
	row int
}

// pixelSamples returns the samples at pixels, grouped by chunk.
func (f *GeoTIFFTile) pixelSamples(ctx context.Context, pixels []pixelCoord) ([]float64, error) {
	samples := make([]float64, len(pixels))

	// Group indexes by chunk coord.
	indexesByChunkCoord := make(map[TileCoord][]int)
	for index, pixel := range pixels {
		chunkCoord, ok := f.chunkCoord(pixel)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByChunkCoord[chunkCoord] = append(indexesByChunkCoord[chunkCoord], index)
	}

	// Populate samples one chunk at a time.
	for chunkCoord, indexes := range indexesByChunkCoord {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slices.Sort(indexes)
		chunkSamples, err := f.getChunkSamplesCached(chunkCoord)
		if err != nil {
			return nil, err
		}
		for _, index := range indexes {
			samples[index] = f.chunkSample(chunkSamples, pixels[index])
		}
	}

	return samples, nil
}

// chunkCoord returns the chunk containing pixel.
func (f *GeoTIFFTile) chunkCoord(pixel pixelCoord) (TileCoord, bool) {
	if pixel.col < 0 || f.imageWidth <= pixel.col || pixel.row < 0 || f.imageLength <= pixel.row {
		return TileCoord{}, false
	}
	return TileCoord{
		C: pixel.col / f.chunkWidth,
		R: pixel.row / f.chunkLength,
	}, true
}

// chunkSample returns the sample from chunkSamples at pixel.
func (f *GeoTIFFTile) chunkSample(chunkSamples []float32, pixel pixelCoord) float64 {
	sample := chunkSamples[pixel.col%f.chunkWidth+(pixel.row%f.chunkLength)*f.chunkWidth]
	if math.IsNaN(float64(sample)) || f.hasNoData && sample == float32(f.noData) {
		return math.NaN()
	}
	return float64(sample)
}

// getChunkSamplesCached returns the samples of the chunk at chunkCoord using
// f's cache.
func (f *GeoTIFFTile) getChunkSamplesCached(chunkCoord TileCoord) ([]float32, error) {
	index := chunkCoord.C + f.chunksAcross*chunkCoord.R
	if chunkSamples, ok := f.chunkSamplesCache.Get(index); ok {
		chunkCacheHits.Inc()
		return chunkSamples, nil
	}
	chunkCacheMisses.Inc()
	chunkSamples, err := f.getChunkSamples(chunkCoord)
	if err != nil {
		return nil, err
	}
	f.chunkSamplesCache.Add(index, chunkSamples)
	return chunkSamples, nil
}

// getChunkSamples reads, decompresses, and decodes the chunk at chunkCoord.
// The result always holds chunkWidth×chunkLength samples.
func (f *GeoTIFFTile) getChunkSamples(chunkCoord TileCoord) ([]float32, error) {
	if f.samplesPerPixel != 1 {
		return nil, f.unsupported("%d samples per pixel", f.samplesPerPixel)
	}
	chunkData, err := f.readChunk(chunkCoord.C + f.chunksAcross*chunkCoord.R)
	if err != nil {
		return nil, err
	}
	return f.decodeChunkData(chunkData)
}

// readChunk returns the decompressed bytes of the chunk at index. Strips
// shorter than chunkLength are padded with zeros.
func (f *GeoTIFFTile) readChunk(index int) ([]byte, error) {
	offset, byteCount := f.chunkOffsets[index], f.chunkByteCounts[index]
	if offset > f.fileSize || byteCount > f.fileSize-offset {
		return nil, f.codecError(errShortRead)
	}
	compressedData := make([]byte, byteCount)
	if n, err := f.file.ReadAt(compressedData, int64(offset)); n != int(byteCount) {
		if err == nil {
			err = errShortRead
		}
		return nil, f.codecError(err)
	}

	rows := f.chunkLength
	if f.stripped {
		rows = min(f.chunkLength, f.imageLength-index*f.chunkLength)
	}
	rowBytes := f.chunkWidth * f.samplesPerPixel * f.bitsPerSample / 8
	chunkData := make([]byte, f.chunkLength*rowBytes)
	expected := chunkData[:rows*rowBytes]

	switch f.compression {
	case compressionNone:
		if len(compressedData) < len(expected) {
			return nil, f.codecError(errShortRead)
		}
		copy(expected, compressedData)
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer r.Close()
		if _, err := io.ReadFull(r, expected); err != nil {
			return nil, f.codecError(err)
		}
	case compressionDeflate, compressionAdobeDeflate:
		r, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, f.codecError(err)
		}
		defer r.Close()
		if _, err := io.ReadFull(r, expected); err != nil {
			return nil, f.codecError(err)
		}
	}
	return chunkData, nil
}

// decodeChunkData decodes chunkData into float32 samples.
func (f *GeoTIFFTile) decodeChunkData(chunkData []byte) ([]float32, error) {
	n := f.chunkWidth * f.chunkLength
	samples := make([]float32, n)
	order := f.byteOrder
	switch {
	case f.sampleFormat == sampleFormatFloat && f.bitsPerSample == 32:
		for i := range n {
			samples[i] = math.Float32frombits(order.Uint32(chunkData[4*i:]))
		}
	case f.sampleFormat == sampleFormatFloat && f.bitsPerSample == 64:
		for i := range n {
			samples[i] = float32(math.Float64frombits(order.Uint64(chunkData[8*i:])))
		}
	case f.sampleFormat == sampleFormatInt && f.bitsPerSample == 16:
		for i := range n {
			samples[i] = float32(int16(order.Uint16(chunkData[2*i:])))
		}
	case f.sampleFormat == sampleFormatUint && f.bitsPerSample == 16:
		for i := range n {
			samples[i] = float32(order.Uint16(chunkData[2*i:]))
		}
	case f.sampleFormat == sampleFormatInt && f.bitsPerSample == 32:
		for i := range n {
			samples[i] = float32(int32(order.Uint32(chunkData[4*i:])))
		}
	case f.sampleFormat == sampleFormatUint && f.bitsPerSample == 8:
		for i := range n {
			samples[i] = float32(chunkData[i])
		}
	default:
		return nil, f.unsupported("sample format %d with %d bits", f.sampleFormat, f.bitsPerSample)
	}
	return samples, nil
}

func (f *GeoTIFFTile) codecError(err error) error {
	return fmt.Errorf("%s: %w: %w", f.name, ErrCodec, err)
}

func (f *GeoTIFFTile) unsupported(format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", f.name, fmt.Sprintf(format, args...), errors.ErrUnsupported)
}
