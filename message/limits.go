// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import "github.com/ava-labs/vmsync/utils/units"

const (
	// DefaultKeyLimit is the key limit of a proof request with a zero key
	// limit. Servers never return more keys than this.
	DefaultKeyLimit = 2048

	// DefaultBytesLimit is the bytes limit of a proof request with a zero
	// bytes limit. Servers never return larger proofs than this. It leaves
	// room in a maximum size message for the envelope.
	DefaultBytesLimit = 2*units.MiB - 4*units.KiB
)

// EffectiveKeyLimit returns the number of keys a server returns for a
// request with key limit [limit].
func EffectiveKeyLimit(limit uint32) int {
	if limit == 0 || limit > DefaultKeyLimit {
		return DefaultKeyLimit
	}
	return int(limit)
}

// EffectiveBytesLimit returns the size of the largest proof a server returns
// for a request with bytes limit [limit].
func EffectiveBytesLimit(limit uint32) int {
	if limit == 0 || limit > DefaultBytesLimit {
		return DefaultBytesLimit
	}
	return int(limit)
}
