package fgddem

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"
)

// TIFF field types.
const (
	tiffTypeByte   = 1
	tiffTypeASCII  = 2
	tiffTypeShort  = 3
	tiffTypeLong   = 4
	tiffTypeDouble = 12
	tiffTypeLong8  = 16
)

// TIFF and GeoTIFF tags.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagSamplesPerPixel           = 277
	tagPlanarConfiguration       = 284
	tagTileWidth                 = 322
	tagTileLength                = 323
	tagTileOffsets               = 324
	tagTileByteCounts            = 325
	tagSampleFormat              = 339
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagGDALNoData                = 42113
)

const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946

	photometricMinIsBlack = 1
	photometricRGB        = 2

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	defaultTileSize = 256

	// Rasters larger than this are written as BigTIFF.
	bigTIFFThreshold = 1<<32 - 1<<28
)

var errEmptyRaster = fmt.Errorf("%w: empty raster", ErrCodec)

type geoTIFFWriter struct {
	tileSize         int
	terrainRGB       bool
	bigTIFF          bool
	compressionLevel int
	workers          int
}

// A GeoTIFFWriterOption sets an option on a GeoTIFF write.
type GeoTIFFWriterOption func(*geoTIFFWriter)

// WithTerrainRGB sets whether samples are written as three Terrain-RGB
// bytes instead of float32 elevations.
func WithTerrainRGB(terrainRGB bool) GeoTIFFWriterOption {
	return func(w *geoTIFFWriter) {
		w.terrainRGB = terrainRGB
	}
}

// WithTileSize sets the tile width and length. It must be a multiple of 16.
func WithTileSize(tileSize int) GeoTIFFWriterOption {
	return func(w *geoTIFFWriter) {
		w.tileSize = tileSize
	}
}

// WithBigTIFF forces the BigTIFF format.
func WithBigTIFF(bigTIFF bool) GeoTIFFWriterOption {
	return func(w *geoTIFFWriter) {
		w.bigTIFF = bigTIFF
	}
}

// WithCompressionLevel sets the DEFLATE compression level.
func WithCompressionLevel(level int) GeoTIFFWriterOption {
	return func(w *geoTIFFWriter) {
		w.compressionLevel = level
	}
}

// WithEncoderWorkers sets the number of tiles compressed concurrently.
func WithEncoderWorkers(workers int) GeoTIFFWriterOption {
	return func(w *geoTIFFWriter) {
		w.workers = workers
	}
}

// WriteGeoTIFFFile writes raster to path. The raster is written to a
// temporary file in the same directory which then replaces path.
func WriteGeoTIFFFile(ctx context.Context, path string, raster *Raster, options ...GeoTIFFWriterOption) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tempPath := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", path, ErrCodec, err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := WriteGeoTIFF(ctx, file, raster, options...); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%s: %w: %w", path, ErrCodec, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("%s: %w: %w", path, ErrCodec, err)
	}

	ok = true
	rastersWritten.Inc()
	return nil
}

// WriteGeoTIFF writes raster to w as a tiled, DEFLATE-compressed GeoTIFF. w
// must be positioned at its start.
func WriteGeoTIFF(ctx context.Context, w io.WriteSeeker, raster *Raster, options ...GeoTIFFWriterOption) error {
	if raster.Width <= 0 || raster.Height <= 0 {
		return errEmptyRaster
	}
	if len(raster.Samples) != raster.Width*raster.Height {
		return fmt.Errorf("%w: %d samples for %dx%d raster", ErrCodec, len(raster.Samples), raster.Width, raster.Height)
	}

	gw := &geoTIFFWriter{
		tileSize:         defaultTileSize,
		compressionLevel: zlib.DefaultCompression,
		workers:          runtime.GOMAXPROCS(0),
	}
	for _, option := range options {
		option(gw)
	}
	if gw.tileSize <= 0 || gw.tileSize%16 != 0 {
		return fmt.Errorf("%w: tile size %d is not a positive multiple of 16", ErrCodec, gw.tileSize)
	}
	if int64(raster.Width)*int64(raster.Height)*int64(gw.bytesPerPixel()) > bigTIFFThreshold {
		gw.bigTIFF = true
	}

	cw := &countingWriter{w: w}
	if err := gw.writeHeader(cw); err != nil {
		return err
	}

	tilesAcross := (raster.Width + gw.tileSize - 1) / gw.tileSize
	tilesDown := (raster.Height + gw.tileSize - 1) / gw.tileSize
	tileOffsets := make([]uint64, 0, tilesAcross*tilesDown)
	tileByteCounts := make([]uint64, 0, tilesAcross*tilesDown)
	for r := range tilesDown {
		compressedTiles := make([][]byte, tilesAcross)
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(max(gw.workers, 1))
		for c := range tilesAcross {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				compressedTile, err := gw.compressTile(raster, TileCoord{C: c, R: r})
				if err != nil {
					return err
				}
				compressedTiles[c] = compressedTile
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, compressedTile := range compressedTiles {
			tileOffsets = append(tileOffsets, uint64(cw.n))
			tileByteCounts = append(tileByteCounts, uint64(len(compressedTile)))
			if _, err := cw.Write(compressedTile); err != nil {
				return fmt.Errorf("%w: %w", ErrCodec, err)
			}
		}
	}

	if !gw.bigTIFF && cw.n > math.MaxUint32 {
		return fmt.Errorf("%w: tile data exceeds 4GiB, use BigTIFF", ErrCodec)
	}

	// IFDs must begin on a word boundary.
	if cw.n%2 == 1 {
		if _, err := cw.Write([]byte{0}); err != nil {
			return fmt.Errorf("%w: %w", ErrCodec, err)
		}
	}
	ifdOffset := cw.n
	if err := gw.writeIFD(cw, gw.ifdEntries(raster, tileOffsets, tileByteCounts)); err != nil {
		return err
	}

	return gw.patchIFDOffset(w, ifdOffset)
}

func (gw *geoTIFFWriter) samplesPerPixel() int {
	if gw.terrainRGB {
		return 3
	}
	return 1
}

func (gw *geoTIFFWriter) bytesPerSample() int {
	if gw.terrainRGB {
		return 1
	}
	return 4
}

func (gw *geoTIFFWriter) bytesPerPixel() int {
	return gw.samplesPerPixel() * gw.bytesPerSample()
}

func (gw *geoTIFFWriter) writeHeader(w io.Writer) error {
	var header []byte
	if gw.bigTIFF {
		header = binary.LittleEndian.AppendUint16([]byte("II"), 43)
		header = binary.LittleEndian.AppendUint16(header, 8)
		header = binary.LittleEndian.AppendUint16(header, 0)
		header = binary.LittleEndian.AppendUint64(header, 0)
	} else {
		header = binary.LittleEndian.AppendUint16([]byte("II"), 42)
		header = binary.LittleEndian.AppendUint32(header, 0)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return nil
}

// patchIFDOffset writes the offset of the first IFD into the header.
func (gw *geoTIFFWriter) patchIFDOffset(w io.WriteSeeker, ifdOffset int64) error {
	var b []byte
	var pos int64
	if gw.bigTIFF {
		b, pos = binary.LittleEndian.AppendUint64(nil, uint64(ifdOffset)), 8
	} else {
		b, pos = binary.LittleEndian.AppendUint32(nil, uint32(ifdOffset)), 4
	}
	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return nil
}

// compressTile encodes and compresses the tile at tileCoord. Pixels outside
// the raster are padded with the nodata value, or zero in Terrain-RGB mode.
func (gw *geoTIFFWriter) compressTile(raster *Raster, tileCoord TileCoord) ([]byte, error) {
	bytesPerPixel := gw.bytesPerPixel()
	tileData := make([]byte, gw.tileSize*gw.tileSize*bytesPerPixel)
	if !gw.terrainRGB && raster.HasNoData && raster.NoData != 0 {
		fillBits := math.Float32bits(float32(raster.NoData))
		for i := 0; i < len(tileData); i += 4 {
			binary.LittleEndian.PutUint32(tileData[i:], fillBits)
		}
	}

	x0 := tileCoord.C * gw.tileSize
	y0 := tileCoord.R * gw.tileSize
	width := min(gw.tileSize, raster.Width-x0)
	height := min(gw.tileSize, raster.Height-y0)
	for y := range height {
		row := raster.Row(y0 + y)[x0 : x0+width]
		rowData := tileData[y*gw.tileSize*bytesPerPixel:]
		for x, sample := range row {
			if gw.terrainRGB {
				r, g, b := EncodeTerrainRGB(float64(sample))
				rowData[3*x], rowData[3*x+1], rowData[3*x+2] = r, g, b
			} else {
				binary.LittleEndian.PutUint32(rowData[4*x:], math.Float32bits(sample))
			}
		}
	}

	var buffer bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buffer, gw.compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if _, err := zw.Write(tileData); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return buffer.Bytes(), nil
}

func (gw *geoTIFFWriter) ifdEntries(raster *Raster, tileOffsets, tileByteCounts []uint64) []ifdEntry {
	samplesPerPixel := gw.samplesPerPixel()
	bitsPerSample := make([]uint16, samplesPerPixel)
	sampleFormat := make([]uint16, samplesPerPixel)
	photometric := uint16(photometricMinIsBlack)
	for i := range samplesPerPixel {
		if gw.terrainRGB {
			bitsPerSample[i], sampleFormat[i] = 8, sampleFormatUint
		} else {
			bitsPerSample[i], sampleFormat[i] = 32, sampleFormatFloat
		}
	}
	if gw.terrainRGB {
		photometric = photometricRGB
	}

	gt := raster.GeoTransform
	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(raster.Width)),
		longEntry(tagImageLength, uint32(raster.Height)),
		shortEntry(tagBitsPerSample, bitsPerSample...),
		shortEntry(tagCompression, compressionDeflate),
		shortEntry(tagPhotometricInterpretation, photometric),
		shortEntry(tagSamplesPerPixel, uint16(samplesPerPixel)),
		shortEntry(tagPlanarConfiguration, 1),
		shortEntry(tagTileWidth, uint16(gw.tileSize)),
		shortEntry(tagTileLength, uint16(gw.tileSize)),
		shortEntry(tagSampleFormat, sampleFormat...),
		doubleEntry(tagModelPixelScale, gt[1], -gt[5], 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
		shortEntry(tagGeoKeyDirectory, EncodeGeoKeys(raster.EPSG)...),
	}
	if gw.bigTIFF {
		entries = append(entries,
			long8Entry(tagTileOffsets, tileOffsets...),
			long8Entry(tagTileByteCounts, tileByteCounts...),
		)
	} else {
		entries = append(entries,
			longEntry(tagTileOffsets, narrowUint32s(tileOffsets)...),
			longEntry(tagTileByteCounts, narrowUint32s(tileByteCounts)...),
		)
	}
	if !gw.terrainRGB && raster.HasNoData {
		entries = append(entries, asciiEntry(tagGDALNoData, FormatNoData(raster.NoData)))
	}
	slices.SortFunc(entries, func(a, b ifdEntry) int {
		return int(a.tag) - int(b.tag)
	})
	return entries
}

// writeIFD writes entries as a single IFD followed by the values that do not
// fit inline.
func (gw *geoTIFFWriter) writeIFD(cw *countingWriter, entries []ifdEntry) error {
	countSize, entrySize, inlineSize := 2, 12, 4
	if gw.bigTIFF {
		countSize, entrySize, inlineSize = 8, 20, 8
	}
	ifdOffset := uint64(cw.n)
	overflowOffset := ifdOffset + uint64(countSize+len(entries)*entrySize+inlineSize)

	var ifd, overflow []byte
	ifd = gw.appendOffset(ifd, uint64(len(entries)), countSize)
	for _, entry := range entries {
		ifd = binary.LittleEndian.AppendUint16(ifd, entry.tag)
		ifd = binary.LittleEndian.AppendUint16(ifd, entry.fieldType)
		ifd = gw.appendOffset(ifd, entry.count, inlineSize)
		if len(entry.value) <= inlineSize {
			ifd = append(ifd, entry.value...)
			ifd = append(ifd, make([]byte, inlineSize-len(entry.value))...)
			continue
		}
		ifd = gw.appendOffset(ifd, overflowOffset+uint64(len(overflow)), inlineSize)
		overflow = append(overflow, entry.value...)
		if len(overflow)%2 == 1 {
			overflow = append(overflow, 0)
		}
	}
	ifd = gw.appendOffset(ifd, 0, inlineSize)

	if _, err := cw.Write(ifd); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	if _, err := cw.Write(overflow); err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}
	return nil
}

// appendOffset appends value to b as a size-byte little-endian integer.
func (gw *geoTIFFWriter) appendOffset(b []byte, value uint64, size int) []byte {
	switch size {
	case 2:
		return binary.LittleEndian.AppendUint16(b, uint16(value))
	case 4:
		return binary.LittleEndian.AppendUint32(b, uint32(value))
	default:
		return binary.LittleEndian.AppendUint64(b, value)
	}
}

// An ifdEntry is a TIFF field with its value encoded little-endian.
type ifdEntry struct {
	tag       uint16
	fieldType uint16
	count     uint64
	value     []byte
}

func shortEntry(tag uint16, values ...uint16) ifdEntry {
	value := make([]byte, 0, 2*len(values))
	for _, v := range values {
		value = binary.LittleEndian.AppendUint16(value, v)
	}
	return ifdEntry{tag: tag, fieldType: tiffTypeShort, count: uint64(len(values)), value: value}
}

func longEntry(tag uint16, values ...uint32) ifdEntry {
	value := make([]byte, 0, 4*len(values))
	for _, v := range values {
		value = binary.LittleEndian.AppendUint32(value, v)
	}
	return ifdEntry{tag: tag, fieldType: tiffTypeLong, count: uint64(len(values)), value: value}
}

func long8Entry(tag uint16, values ...uint64) ifdEntry {
	value := make([]byte, 0, 8*len(values))
	for _, v := range values {
		value = binary.LittleEndian.AppendUint64(value, v)
	}
	return ifdEntry{tag: tag, fieldType: tiffTypeLong8, count: uint64(len(values)), value: value}
}

func doubleEntry(tag uint16, values ...float64) ifdEntry {
	value := make([]byte, 0, 8*len(values))
	for _, v := range values {
		value = binary.LittleEndian.AppendUint64(value, math.Float64bits(v))
	}
	return ifdEntry{tag: tag, fieldType: tiffTypeDouble, count: uint64(len(values)), value: value}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	value := append([]byte(s), 0)
	return ifdEntry{tag: tag, fieldType: tiffTypeASCII, count: uint64(len(value)), value: value}
}

func narrowUint32s(values []uint64) []uint32 {
	result := make([]uint32, len(values))
	for i, v := range values {
		result[i] = uint32(v)
	}
	return result
}

// FormatNoData formats a nodata value the way GDAL writes it.
func FormatNoData(noData float64) string {
	if noData == math.Trunc(noData) && math.Abs(noData) < 1e15 {
		return strconv.FormatFloat(noData, 'f', 1, 64)
	}
	return strconv.FormatFloat(noData, 'g', -1, 64)
}

// A countingWriter counts the bytes written to it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}
