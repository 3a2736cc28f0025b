// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package compression

import (
	"errors"
	"fmt"
	"strings"
)

var errUnknownCompressionType = errors.New("unknown compression type")

// Type is the compression used for a message payload. The numeric value is
// carried on the wire, so existing values must never change.
type Type byte

const (
	TypeNone Type = iota + 1
	TypeGzip
	TypeZstd
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

func TypeFromString(s string) (Type, error) {
	switch strings.ToLower(s) {
	case TypeNone.String():
		return TypeNone, nil
	case TypeGzip.String():
		return TypeGzip, nil
	case TypeZstd.String():
		return TypeZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownCompressionType, s)
	}
}

func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}
