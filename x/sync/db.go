// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"context"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/x/merkledb"
)

// DB is the local database being synced. It is also the database proofs are
// served from.
type DB interface {
	merkledb.Clearer
	merkledb.ChangeProofer
	merkledb.RangeProofer

	GetMerkleRoot(ctx context.Context) (ids.ID, error)
}
