// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcutils

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// RawCodecName is the content subtype of calls whose messages are already
// encoded. Messages of such calls must be *[]byte.
const RawCodecName = "vmsync-raw"

var _ encoding.Codec = rawCodec{}

func init() {
	encoding.RegisterCodec(rawCodec{})
}

type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("%s codec can't marshal %T", RawCodecName, v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("%s codec can't unmarshal into %T", RawCodecName, v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return RawCodecName
}
