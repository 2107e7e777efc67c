package fgddem

import (
	"bytes"
	"fmt"
	"strconv"
)

// Sea surface types. Cells of these types carry no land elevation.
var (
	seaSurfaceType       = []byte("海水面")
	seaBottomSurfaceType = []byte("海水底面")
)

// A LatLng is a geographic position in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// A GridEnvelope is the inclusive integer cell range of a tile.
type GridEnvelope struct {
	LowX  int
	LowY  int
	HighX int
	HighY int
}

// A TileDocument is the parsed content of one FGD DEM XML document.
type TileDocument struct {
	MeshCode       string
	DEMType        string
	LowerCorner    LatLng
	UpperCorner    LatLng
	Envelope       GridEnvelope
	StartX         int
	StartY         int
	Elevations     []float64
	HasLowerCorner bool
	HasUpperCorner bool
	HasEnvelope    bool
	HasStartPoint  bool
}

// A TileMetadata describes the placement of one tile.
type TileMetadata struct {
	FileName    string
	MeshCode    string
	DEMType     string
	LowerCorner LatLng
	UpperCorner LatLng
	Width       int
	Height      int
	StartX      int
	StartY      int
}

// Width returns the number of columns in d's grid.
func (d *TileDocument) Width() int {
	if !d.HasEnvelope {
		return 0
	}
	return d.Envelope.HighX - d.Envelope.LowX + 1
}

// Height returns the number of rows in d's grid.
func (d *TileDocument) Height() int {
	if !d.HasEnvelope {
		return 0
	}
	return d.Envelope.HighY - d.Envelope.LowY + 1
}

// Metadata returns the metadata of d.
func (d *TileDocument) Metadata(fileName string) TileMetadata {
	return TileMetadata{
		FileName:    fileName,
		MeshCode:    d.MeshCode,
		DEMType:     d.DEMType,
		LowerCorner: d.LowerCorner,
		UpperCorner: d.UpperCorner,
		Width:       d.Width(),
		Height:      d.Height(),
		StartX:      d.StartX,
		StartY:      d.StartY,
	}
}

type parseState int

const (
	stateUnmatched parseState = iota
	stateLowerCorner
	stateUpperCorner
	stateGridLow
	stateGridHigh
	stateStartPoint
	stateMesh
	stateType
	stateTupleList
)

var tagPrefixes = []struct {
	prefix []byte
	state  parseState
}{
	{[]byte("gml:lowerCorner>"), stateLowerCorner},
	{[]byte("gml:upperCorner>"), stateUpperCorner},
	{[]byte("gml:low>"), stateGridLow},
	{[]byte("gml:high>"), stateGridHigh},
	{[]byte("gml:startPoint>"), stateStartPoint},
	{[]byte("mesh>"), stateMesh},
	{[]byte("type>"), stateType},
	{[]byte("gml:tupleList>"), stateTupleList},
}

// matchTag returns the state for the tag at the start of b and the length of
// its prefix.
func matchTag(b []byte) (parseState, int) {
	for _, tp := range tagPrefixes {
		if bytes.HasPrefix(b, tp.prefix) {
			return tp.state, len(tp.prefix)
		}
	}
	return stateUnmatched, 0
}

// A tileAccumulator is the value threaded through the scan loop. Each
// recognized tag produces a new accumulator.
type tileAccumulator struct {
	doc       TileDocument
	tagsFound int
}

// complete returns whether every field needed to place the tile is present.
func (acc tileAccumulator) complete() bool {
	return acc.doc.HasLowerCorner &&
		acc.doc.HasUpperCorner &&
		acc.doc.HasEnvelope &&
		acc.doc.HasStartPoint
}

// step consumes the content of a tag in state from b and returns the updated
// accumulator and the number of bytes consumed.
func (acc tileAccumulator) step(state parseState, b []byte, seaAtZero bool, scanner ByteScanner) (tileAccumulator, int) {
	end := scanner.IndexByte(b, '<')
	if end < 0 {
		end = len(b)
	}
	content := b[:end]
	acc.tagsFound++
	switch state {
	case stateLowerCorner:
		acc.doc.LowerCorner.Lat, acc.doc.LowerCorner.Lng = parseFloatPair(content)
		acc.doc.HasLowerCorner = true
	case stateUpperCorner:
		acc.doc.UpperCorner.Lat, acc.doc.UpperCorner.Lng = parseFloatPair(content)
		acc.doc.HasUpperCorner = true
	case stateGridLow:
		acc.doc.Envelope.LowX, acc.doc.Envelope.LowY = parseIntPair(content)
	case stateGridHigh:
		acc.doc.Envelope.HighX, acc.doc.Envelope.HighY = parseIntPair(content)
		acc.doc.HasEnvelope = true
	case stateStartPoint:
		x, y := parseFloatPair(content)
		acc.doc.StartX, acc.doc.StartY = int(x), int(y)
		acc.doc.HasStartPoint = true
	case stateMesh:
		acc.doc.MeshCode = string(bytes.TrimSpace(content))
	case stateType:
		acc.doc.DEMType = string(bytes.TrimSpace(content))
	case stateTupleList:
		acc.doc.Elevations = append(acc.doc.Elevations, parseTupleList(content, seaAtZero, scanner)...)
	}
	return acc, end
}

// ParseTile parses an FGD DEM XML document. Elevations that cannot be parsed
// are replaced by NoDataValue. If seaAtZero is true then sea cells without a
// measurement are set to zero.
func ParseTile(data []byte, seaAtZero bool) (*TileDocument, error) {
	return parseTile(data, seaAtZero, defaultScanner)
}

func parseTile(data []byte, seaAtZero bool, scanner ByteScanner) (*TileDocument, error) {
	var acc tileAccumulator
	for pos := 0; pos < len(data); {
		i := scanner.IndexByte(data[pos:], '<')
		if i < 0 {
			break
		}
		pos += i + 1
		state, n := matchTag(data[pos:])
		if state == stateUnmatched {
			continue
		}
		pos += n
		var consumed int
		acc, consumed = acc.step(state, data[pos:], seaAtZero, scanner)
		pos += consumed
		if state == stateTupleList && acc.complete() {
			break
		}
	}
	if acc.tagsFound == 0 {
		return nil, fmt.Errorf("%w: no recognizable tags", ErrParse)
	}
	return &acc.doc, nil
}

// parseTupleList parses the lines of a tuple list. Each line is a type and an
// elevation separated by a comma.
func parseTupleList(b []byte, seaAtZero bool, scanner ByteScanner) []float64 {
	elevations := make([]float64, 0, bytes.Count(b, []byte{'\n'})+1)
	for pos := 0; pos < len(b); {
		pos += scanner.SkipSpace(b[pos:])
		if pos >= len(b) {
			break
		}
		comma := scanner.IndexByte(b[pos:], ',')
		if comma < 0 {
			break
		}
		cellType := b[pos : pos+comma]
		pos += comma + 1
		pos += scanner.SkipSpace(b[pos:])
		valueEnd := scanner.IndexByte(b[pos:], '\n')
		if valueEnd < 0 {
			valueEnd = len(b) - pos
		}
		elevation, ok := parseElevation(b[pos : pos+valueEnd])
		if ok && seaAtZero && elevation <= NoDataValue && isSeaType(cellType) {
			elevation = 0
		}
		elevations = append(elevations, elevation)
		pos += valueEnd
	}
	return elevations
}

func isSeaType(cellType []byte) bool {
	cellType = bytes.TrimSpace(cellType)
	return bytes.Equal(cellType, seaSurfaceType) || bytes.Equal(cellType, seaBottomSurfaceType)
}

// parseElevation returns NoDataValue and false if b is not a number.
func parseElevation(b []byte) (float64, bool) {
	value, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil {
		return NoDataValue, false
	}
	return value, true
}

func parseFloatPair(b []byte) (float64, float64) {
	fields := bytes.Fields(b)
	if len(fields) < 2 {
		return 0, 0
	}
	first, err := strconv.ParseFloat(string(fields[0]), 64)
	if err != nil {
		return 0, 0
	}
	second, err := strconv.ParseFloat(string(fields[1]), 64)
	if err != nil {
		return 0, 0
	}
	return first, second
}

func parseIntPair(b []byte) (int, int) {
	fields := bytes.Fields(b)
	if len(fields) < 2 {
		return 0, 0
	}
	first, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return 0, 0
	}
	second, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0, 0
	}
	return first, second
}
