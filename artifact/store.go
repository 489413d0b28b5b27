// Package artifact stores intermediate run artifacts (model checkpoints,
// evaluation side files) under a run's working directory, optionally
// compressed.
package artifact

import (
	"fmt"
	"os"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Compression selects the codec applied to stored blobs.
type Compression uint8

const (
	// CompressionNone stores blobs uncompressed.
	CompressionNone Compression = iota
	// CompressionLZ4 applies LZ4 frame compression (fast).
	CompressionLZ4
	// CompressionZSTD applies zstd compression (better ratio).
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// Store is an abstraction for persisting immutable artifact blobs.
type Store interface {
	// Put stores data under name, replacing any previous blob.
	Put(name string, data []byte) error

	// Get retrieves the blob stored under name.
	Get(name string) ([]byte, error)
}
