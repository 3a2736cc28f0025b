// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compression

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	_ Compressor = (*limitedCompressor)(nil)
	_ Compressor = nopCompressor{}

	ErrInvalidMaxSizeCompressor = errors.New("invalid compressor max size")
	ErrDecompressedMsgTooLarge  = errors.New("decompressed msg too large")
	ErrMsgTooLarge              = errors.New("msg too large to be compressed")
)

// Compressor compresses and decompresses messages.
// Decompress is the inverse of Compress.
// Decompress(Compress(msg)) == msg.
type Compressor interface {
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}

// NewCompressor returns a compressor of the given type that refuses inputs
// or outputs larger than [maxSize].
func NewCompressor(t Type, maxSize int64) (Compressor, error) {
	var alg algorithm
	switch t {
	case TypeNone:
		return nopCompressor{}, nil
	case TypeGzip:
		alg = newGzip()
	case TypeZstd:
		alg = zstdAlgorithm{}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownCompressionType, t)
	}

	// Decompression reads one byte past [maxSize] to detect oversized
	// payloads.
	if maxSize < 0 || maxSize == math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxSizeCompressor, maxSize)
	}
	return &limitedCompressor{
		algorithm: alg,
		maxSize:   maxSize,
	}, nil
}

// algorithm is a compression format.
type algorithm interface {
	compress(msg []byte) ([]byte, error)
	// newReader returns a stream of the decompressed bytes of [msg].
	newReader(msg []byte) (io.ReadCloser, error)
}

// limitedCompressor bounds the messages of an algorithm by [maxSize], both
// before compression and after decompression.
type limitedCompressor struct {
	algorithm
	maxSize int64
}

func (c *limitedCompressor) Compress(msg []byte) ([]byte, error) {
	if int64(len(msg)) > c.maxSize {
		return nil, fmt.Errorf("%w: (%d) > (%d)", ErrMsgTooLarge, len(msg), c.maxSize)
	}
	return c.compress(msg)
}

func (c *limitedCompressor) Decompress(msg []byte) ([]byte, error) {
	reader, err := c.newReader(msg)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	// A small payload can expand without bound, so it's streamed.
	decompressed, err := io.ReadAll(io.LimitReader(reader, c.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(decompressed)) > c.maxSize {
		return nil, fmt.Errorf("%w: (> %d)", ErrDecompressedMsgTooLarge, c.maxSize)
	}
	return decompressed, nil
}

type nopCompressor struct{}

func (nopCompressor) Compress(msg []byte) ([]byte, error) {
	return msg, nil
}

func (nopCompressor) Decompress(msg []byte) ([]byte, error) {
	return msg, nil
}
