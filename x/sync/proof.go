// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"bytes"
	"context"

	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/x/merkledb"
)

// proof is a verified proof of a prefix of a range.
type proof interface {
	// commit applies the proof to [db] and returns the start of the part of
	// the range the proof didn't cover, or Nothing if it covered the whole
	// range.
	commit(ctx context.Context, db DB) (maybe.Maybe[[]byte], error)
	// size is the number of bytes of the encoded proof.
	size() int
}

type rangeProof struct {
	proof *merkledb.RangeProof
	start maybe.Maybe[[]byte]
	end   maybe.Maybe[[]byte]
}

func (r *rangeProof) commit(ctx context.Context, db DB) (maybe.Maybe[[]byte], error) {
	// Range proofs must always be committed, even if no key changes are present.
	// This is because it may have been provided instead of a change proof, and the keys were deleted.
	if err := db.CommitRangeProof(ctx, r.start, r.end, r.proof); err != nil {
		return maybe.Nothing[[]byte](), err
	}
	return findNextKey(r.proof.Largest(), r.end), nil
}

func (r *rangeProof) size() int {
	return r.proof.Size()
}

type changeProof struct {
	proof *merkledb.ChangeProof
	end   maybe.Maybe[[]byte]
}

func (c *changeProof) commit(ctx context.Context, db DB) (maybe.Maybe[[]byte], error) {
	// We only need to apply changes if there are any key changes to commit.
	if len(c.proof.KeyChanges) != 0 {
		if err := db.CommitChangeProof(ctx, c.proof); err != nil {
			return maybe.Nothing[[]byte](), err
		}
	}
	return findNextKey(c.proof.Largest(), c.end), nil
}

func (c *changeProof) size() int {
	return c.proof.Size()
}

// findNextKey returns the start of the key range that should be fetched next
// given that we just received a proof of a range ending at [rangeEnd] whose
// largest key is [largest].
//
// Returns Nothing if there are no more keys to fetch in the range. A proof
// without keys covers its whole range.
func findNextKey(largest, rangeEnd maybe.Maybe[[]byte]) maybe.Maybe[[]byte] {
	if largest.IsNothing() {
		return maybe.Nothing[[]byte]()
	}
	lastReceivedKey := largest.Value()
	if rangeEnd.HasValue() && bytes.Compare(lastReceivedKey, rangeEnd.Value()) >= 0 {
		return maybe.Nothing[[]byte]()
	}

	// [lastReceivedKey] + 0 is the first key in the open range
	// (lastReceivedKey, rangeEnd].
	nextKey := make([]byte, len(lastReceivedKey)+1)
	copy(nextKey, lastReceivedKey)
	return maybe.Some(nextKey)
}
