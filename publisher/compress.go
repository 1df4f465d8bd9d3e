package publisher

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compression names accepted in sink configuration
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Compressor compresses payloads before they are handed to a sink
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// zstdCompressor compresses whole payloads with pooled encoders
type zstdCompressor struct {
	level       zstd.EncoderLevel
	encoderPool sync.Pool
}

// NewCompressor returns the compressor for name, or nil for no compression
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "", CompressionNone:
		return nil, nil
	case CompressionZstd:
		return &zstdCompressor{level: zstd.SpeedDefault}, nil
	default:
		return nil, fmt.Errorf("unknown compression: %s", name)
	}
}

// Compress returns data compressed as a single zstd frame. Nil input
// (tombstones) stays nil.
func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	enc, ok := c.encoderPool.Get().(*zstd.Encoder)
	if !ok {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
		if err != nil {
			return nil, err
		}
	}
	defer c.encoderPool.Put(enc)

	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

var decoderPool sync.Pool

// Decompress reverses a zstd Compress
func Decompress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	dec, ok := decoderPool.Get().(*zstd.Decoder)
	if !ok {
		var err error
		dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	defer decoderPool.Put(dec)

	return dec.DecodeAll(data, nil)
}
