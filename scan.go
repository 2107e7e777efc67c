package fgddem

import "bytes"

// A ByteScanner provides the byte-level primitives used by the tile parser.
type ByteScanner interface {
	// IndexByte returns the index of the first c in b, or -1.
	IndexByte(b []byte, c byte) int
	// SkipSpace returns the number of leading space, tab, CR, and LF bytes
	// in b.
	SkipSpace(b []byte) int
}

// portableScanner implements ByteScanner on top of package bytes, whose
// IndexByte is already vectorized by the runtime where the CPU allows it.
type portableScanner struct{}

var defaultScanner ByteScanner = newByteScanner()

// newByteScanner returns the best ByteScanner for the running CPU.
func newByteScanner() ByteScanner {
	return portableScanner{}
}

func (portableScanner) IndexByte(b []byte, c byte) int {
	return bytes.IndexByte(b, c)
}

func (portableScanner) SkipSpace(b []byte) int {
	for i, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return i
		}
	}
	return len(b)
}
