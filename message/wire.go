// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

// forEachField calls [fn] with the number, wire type and raw value of every
// field in [b]. Unknown fields are expected to be ignored by [fn].
func forEachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("%w: field %d: %s", ErrMalformedMessage, num, protowire.ParseError(n))
		}
		if err := fn(num, typ, b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func wrongType(typ protowire.Type) error {
	return fmt.Errorf("%w: unexpected wire type %d", ErrMalformedMessage, typ)
}

func readBytes(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, wrongType(typ)
	}
	value, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, protowire.ParseError(n))
	}
	return append([]byte{}, value...), nil
}

func readMaybeBytes(typ protowire.Type, v []byte) (maybe.Maybe[[]byte], error) {
	value, err := readBytes(typ, v)
	if err != nil {
		return maybe.Nothing[[]byte](), err
	}
	return maybe.Some(value), nil
}

func readString(typ protowire.Type, v []byte) (string, error) {
	value, err := readBytes(typ, v)
	return string(value), err
}

func readID(typ protowire.Type, v []byte) (ids.ID, error) {
	value, err := readBytes(typ, v)
	if err != nil {
		return ids.Empty, err
	}
	id, err := ids.ToID(value)
	if err != nil {
		return ids.Empty, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	return id, nil
}

func readUint64(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, wrongType(typ)
	}
	value, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMalformedMessage, protowire.ParseError(n))
	}
	return value, nil
}

func readUint32(typ protowire.Type, v []byte) (uint32, error) {
	value, err := readUint64(typ, v)
	if err != nil {
		return 0, err
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d overflows uint32", ErrMalformedMessage, value)
	}
	return uint32(value), nil
}

func readInt64(typ protowire.Type, v []byte) (int64, error) {
	value, err := readUint64(typ, v)
	return protowire.DecodeZigZag(value), err
}

func readBool(typ protowire.Type, v []byte) (bool, error) {
	value, err := readUint64(typ, v)
	return protowire.DecodeBool(value), err
}

func appendBytes(b []byte, num protowire.Number, value []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

// appendNonEmptyBytes omits [value] if it is empty.
func appendNonEmptyBytes(b []byte, num protowire.Number, value []byte) []byte {
	if len(value) == 0 {
		return b
	}
	return appendBytes(b, num, value)
}

func appendMaybeBytes(b []byte, num protowire.Number, value maybe.Maybe[[]byte]) []byte {
	if value.IsNothing() {
		return b
	}
	return appendBytes(b, num, value.Value())
}

func appendID(b []byte, num protowire.Number, id ids.ID) []byte {
	if id == ids.Empty {
		return b
	}
	return appendBytes(b, num, id[:])
}

// appendUint64 omits zero values.
func appendUint64(b []byte, num protowire.Number, value uint64) []byte {
	if value == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, value)
}

func appendInt64(b []byte, num protowire.Number, value int64) []byte {
	return appendUint64(b, num, protowire.EncodeZigZag(value))
}

func appendBool(b []byte, num protowire.Number, value bool) []byte {
	return appendUint64(b, num, protowire.EncodeBool(value))
}
