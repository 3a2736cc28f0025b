// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compression

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/utils/units"
)

const maxMessageSize = 2 * units.MiB

var compressionTypes = []Type{TypeNone, TypeGzip, TypeZstd}

func TestCompressDecompress(t *testing.T) {
	for _, typ := range compressionTypes {
		t.Run(typ.String(), func(t *testing.T) {
			require := require.New(t)

			compressor, err := NewCompressor(typ, maxMessageSize)
			require.NoError(err)

			for _, size := range []int{0, 1, 64, units.KiB, 100 * units.KiB} {
				msg := bytes.Repeat([]byte{0x0f, 0x1e}, size/2)

				compressed, err := compressor.Compress(msg)
				require.NoError(err)

				decompressed, err := compressor.Decompress(compressed)
				require.NoError(err)
				require.Equal(len(msg), len(decompressed), fmt.Sprintf("size %d", size))
				require.True(bytes.Equal(msg, decompressed))
			}
		})
	}
}

func TestCompressTooLarge(t *testing.T) {
	for _, typ := range []Type{TypeGzip, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			require := require.New(t)

			compressor, err := NewCompressor(typ, units.KiB)
			require.NoError(err)

			_, err = compressor.Compress(make([]byte, units.KiB+1))
			require.ErrorIs(err, ErrMsgTooLarge)
		})
	}
}

func TestDecompressTooLarge(t *testing.T) {
	for _, typ := range []Type{TypeGzip, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			require := require.New(t)

			large, err := NewCompressor(typ, maxMessageSize)
			require.NoError(err)
			compressed, err := large.Compress(make([]byte, 2*units.KiB))
			require.NoError(err)

			small, err := NewCompressor(typ, units.KiB)
			require.NoError(err)
			_, err = small.Decompress(compressed)
			require.ErrorIs(err, ErrDecompressedMsgTooLarge)
		})
	}
}

func TestTypeFromString(t *testing.T) {
	require := require.New(t)

	for _, typ := range compressionTypes {
		got, err := TypeFromString(typ.String())
		require.NoError(err)
		require.Equal(typ, got)
	}
	_, err := TypeFromString("lz4")
	require.ErrorIs(err, errUnknownCompressionType)
}

func TestNewCompressorErrors(t *testing.T) {
	tests := []struct {
		name        string
		typ         Type
		maxSize     int64
		expectedErr error
	}{
		{
			name:        "unknown type",
			typ:         TypeZstd + 1,
			maxSize:     maxMessageSize,
			expectedErr: errUnknownCompressionType,
		},
		{
			name:        "max size overflows",
			typ:         TypeGzip,
			maxSize:     math.MaxInt64,
			expectedErr: ErrInvalidMaxSizeCompressor,
		},
		{
			name:        "negative max size",
			typ:         TypeZstd,
			maxSize:     -1,
			expectedErr: ErrInvalidMaxSizeCompressor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompressor(tt.typ, tt.maxSize)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestDecompressCorrupt(t *testing.T) {
	for _, typ := range []Type{TypeGzip, TypeZstd} {
		t.Run(typ.String(), func(t *testing.T) {
			compressor, err := NewCompressor(typ, maxMessageSize)
			require.NoError(t, err)

			_, err = compressor.Decompress([]byte("not compressed"))
			require.Error(t, err) //nolint:forbidigo // the format's own error
		})
	}
}
