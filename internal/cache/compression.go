// internal/cache/compression.go
package cache

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms
const (
	CompressionNone   = "none"
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
)

// Compressor compresses and decompresses entry payloads.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() string
}

// NewCompressor creates a compressor for the named algorithm.
func NewCompressor(algorithm string) (Compressor, error) {
	switch algorithm {
	case CompressionZstd:
		return &zstdCompressor{}, nil
	case CompressionSnappy:
		return &snappyCompressor{}, nil
	case CompressionNone, "":
		return &noopCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// zstdCompressor implements Compressor using zstd. Encoder and decoder
// are created lazily and reused across calls.
type zstdCompressor struct {
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	encoderOnce sync.Once
	decoderOnce sync.Once
	encoderErr  error
	decoderErr  error
}

func (c *zstdCompressor) getEncoder() (*zstd.Encoder, error) {
	c.encoderOnce.Do(func() {
		c.encoder, c.encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return c.encoder, c.encoderErr
}

func (c *zstdCompressor) getDecoder() (*zstd.Decoder, error) {
	c.decoderOnce.Do(func() {
		c.decoder, c.decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(256*1024*1024),
		)
	})
	return c.decoder, c.decoderErr
}

func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	encoder, err := c.getEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get encoder: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	decoder, err := c.getDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to get decoder: %w", err)
	}
	return decoder.DecodeAll(data, nil)
}

func (c *zstdCompressor) Algorithm() string { return CompressionZstd }

// snappyCompressor implements Compressor using snappy block encoding.
type snappyCompressor struct{}

func (c *snappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return snappy.Encode(nil, data), nil
}

func (c *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return snappy.Decode(nil, data)
}

func (c *snappyCompressor) Algorithm() string { return CompressionSnappy }

// noopCompressor is a pass-through compressor.
type noopCompressor struct{}

func (c *noopCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (c *noopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (c *noopCompressor) Algorithm() string                      { return CompressionNone }
