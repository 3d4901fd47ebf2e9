package storage

import "github.com/golang/snappy"

// Compressor/DeCompressor are function values rather than an interface,
// following the compression-backend shape used elsewhere in this
// engine's lineage — swapping algorithms is swapping two closures, not
// implementing a type.
type Compressor func([]byte) []byte
type DeCompressor func([]byte) ([]byte, error)

var (
	SnappyCompress Compressor = func(in []byte) []byte {
		return snappy.Encode(nil, in)
	}
	SnappyDecompress DeCompressor = func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	}
)

// compressFlag values are stored as the first byte of a DataBlock's
// payload, ahead of the length-prefixed body, so a database can mix
// blocks written under different Options.Compress settings over its
// lifetime without losing the ability to read older ones.
const (
	compressFlagNone byte = 0
	compressFlagSnappy byte = 1
)
