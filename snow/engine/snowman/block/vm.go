// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"context"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/health"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/consensus/snowman"
)

// Getter defines the functionality for fetching a block by its ID.
type Getter interface {
	// Attempt to load a block.
	//
	// If the block does not exist, database.ErrNotFound should be returned.
	//
	// It is expected that blocks that have been successfully verified should be
	// returned correctly. It is also expected that blocks that have been
	// accepted by the consensus engine should be able to be fetched. It is not
	// required for blocks that have been rejected by the consensus engine to be
	// able to be fetched.
	GetBlock(ctx context.Context, blkID ids.ID) (snowman.Block, error)
}

// Parser defines the functionality for fetching a block by its bytes.
type Parser interface {
	// Attempt to create a block from a stream of bytes.
	//
	// The block should be represented by the full byte array, without extra
	// bytes.
	ParseBlock(ctx context.Context, blockBytes []byte) (snowman.Block, error)
}

// ChainVM defines the required functionality of a Snowman VM served over the
// plugin protocol.
type ChainVM interface {
	health.Checkable
	Getter
	Parser

	// Version returns the version of the VM.
	Version(context.Context) (string, error)

	// Notify this VM of the currently preferred block.
	//
	// This should always be a block that has no children known to consensus.
	SetPreference(ctx context.Context, blkID ids.ID) error

	// LastAccepted returns the ID of the last accepted block.
	LastAccepted(context.Context) (ids.ID, error)

	// Shutdown is called when the host is closing the session.
	Shutdown(context.Context) error
}

// DatabaseVM is a ChainVM that keeps its state in a database of the host.
type DatabaseVM interface {
	ChainVM

	// Initialize is called once, while the session is established and before
	// any other request is handled. [db] is served by the host and remains
	// usable until the session ends.
	Initialize(ctx context.Context, db database.Database) error
}
