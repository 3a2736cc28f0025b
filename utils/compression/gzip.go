// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
)

var _ algorithm = (*gzipAlgorithm)(nil)

type gzipAlgorithm struct {
	writers sync.Pool
}

func newGzip() *gzipAlgorithm {
	return &gzipAlgorithm{
		writers: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
	}
}

func (g *gzipAlgorithm) compress(msg []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := g.writers.Get().(*gzip.Writer)
	defer g.writers.Put(writer)

	writer.Reset(&buf)
	if _, err := writer.Write(msg); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (*gzipAlgorithm) newReader(msg []byte) (io.ReadCloser, error) {
	return gzip.NewReader(bytes.NewReader(msg))
}
