// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"strings"

	"github.com/ava-labs/vmsync/utils/maybe"
)

// Keys are stored as strings so they can be used as map keys and compared
// without copying. Each byte of a key is one token of the radix-256 trie.

// commonPrefixLen returns the length of the longest common prefix of [a] and
// [b].
func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hasStrictPrefix returns true iff [prefix] is a prefix of [key] and is
// shorter than [key].
func hasStrictPrefix(key, prefix string) bool {
	return len(prefix) < len(key) && strings.HasPrefix(key, prefix)
}

// keyBounds is an inclusive key range. A Nothing bound is unbounded.
type keyBounds struct {
	lower maybe.Maybe[[]byte]
	upper maybe.Maybe[[]byte]
}

// contains returns true iff [key] is within the bounds.
func (b keyBounds) contains(key []byte) bool {
	if b.lower.HasValue() && bytes.Compare(key, b.lower.Value()) < 0 {
		return false
	}
	return b.upper.IsNothing() || bytes.Compare(key, b.upper.Value()) <= 0
}

// subtreeOutside returns true iff every key with [prefix] is outside of the
// bounds.
func (b keyBounds) subtreeOutside(prefix string) bool {
	if b.lower.HasValue() {
		lower := string(b.lower.Value())
		if prefix < lower && !strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return b.upper.HasValue() && prefix > string(b.upper.Value())
}

// nextKey returns the smallest key that is larger than [key].
func nextKey(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}
