// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compression

import (
	"bytes"
	"io"

	"github.com/DataDog/zstd"
)

var _ algorithm = zstdAlgorithm{}

type zstdAlgorithm struct{}

func (zstdAlgorithm) compress(msg []byte) ([]byte, error) {
	return zstd.Compress(nil, msg)
}

func (zstdAlgorithm) newReader(msg []byte) (io.ReadCloser, error) {
	return zstd.NewReader(bytes.NewReader(msg)), nil
}
