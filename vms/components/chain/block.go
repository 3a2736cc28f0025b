// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"time"

	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/choices"
)

// Block is a block tracked by a [State].
type Block struct {
	ID        ids.ID
	Parent    ids.ID
	Height    uint64
	Timestamp time.Time
	Bytes     []byte
	Status    choices.Status
}

func (b *Block) clone() *Block {
	c := *b
	c.Bytes = slices.Clone(b.Bytes)
	return &c
}

// Executor is the VM that runs the blocks. A State calls it for every
// transition.
type Executor interface {
	// Verify returns nil if [blk] is a valid child of its parent.
	Verify(ctx context.Context, blk *Block) error
	// Accept is called once [blk] is persisted as accepted.
	Accept(ctx context.Context, blk *Block) error
	// Reject is called once [blk] is rejected.
	Reject(ctx context.Context, blk *Block) error
	// SetPreference is called before the preferred block changes.
	SetPreference(ctx context.Context, blkID ids.ID) error
}

// BlockStore persists accepted blocks.
type BlockStore interface {
	// GetBlock returns database.ErrNotFound if [blkID] was never put.
	GetBlock(blkID ids.ID) (*Block, error)
	PutBlock(blk *Block) error
}
