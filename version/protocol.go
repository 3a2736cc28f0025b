// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"errors"
	"fmt"
)

var (
	ErrProtocolOutOfRange = errors.New("protocol version out of range")
	errInvalidRange       = errors.New("invalid protocol range")
)

// ProtocolRange is an inclusive range of plugin protocol versions.
type ProtocolRange struct {
	Min uint32 `json:"min" yaml:"min"`
	Max uint32 `json:"max" yaml:"max"`
}

func (r ProtocolRange) Verify() error {
	if r.Min > r.Max {
		return fmt.Errorf("%w: min %d > max %d", errInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Check returns nil if [protocol] is within the range.
func (r ProtocolRange) Check(protocol uint32) error {
	if protocol < r.Min || protocol > r.Max {
		return fmt.Errorf("%w: negotiated %d, required %s",
			ErrProtocolOutOfRange,
			protocol,
			r,
		)
	}
	return nil
}

func (r ProtocolRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}
