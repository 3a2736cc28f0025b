// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/prefixdb"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/snow/choices"
)

var (
	_ BlockStore = (*DBStore)(nil)

	blockPrefix  = []byte("block")
	heightPrefix = []byte("height")
	metaPrefix   = []byte("meta")

	lastAcceptedKey = []byte("lastAccepted")

	errUnexpectedEncoding = errors.New("unexpected block encoding")
)

// DBStore is a BlockStore backed by a database. Accepted blocks are indexed by
// height and the most recently put accepted block is the last accepted block.
type DBStore struct {
	db database.Database

	// block ID -> block
	blockDB *prefixdb.Database
	// height -> ID of the accepted block
	heightDB *prefixdb.Database
	// lastAcceptedKey -> ID of the last accepted block
	metaDB *prefixdb.Database
}

func NewDBStore(db database.Database) *DBStore {
	return &DBStore{
		db:       db,
		blockDB:  prefixdb.New(blockPrefix, db),
		heightDB: prefixdb.New(heightPrefix, db),
		metaDB:   prefixdb.New(metaPrefix, db),
	}
}

func (s *DBStore) GetBlock(blkID ids.ID) (*Block, error) {
	blkBytes, err := s.blockDB.Get(blkID[:])
	if err != nil {
		return nil, err
	}
	msg, err := message.Decode(blkBytes)
	if err != nil {
		return nil, err
	}
	blk, ok := msg.(*message.BlockResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnexpectedEncoding, msg.Op())
	}
	return &Block{
		ID:        blk.ID,
		Parent:    blk.ParentID,
		Height:    blk.Height,
		Timestamp: blk.Timestamp,
		Bytes:     blk.Bytes,
		Status:    blk.Status,
	}, nil
}

// PutBlock writes [blk]. If [blk] is accepted, it also becomes the block at
// its height and the last accepted block.
func (s *DBStore) PutBlock(blk *Block) error {
	blkBytes, err := message.Encode(&message.BlockResponse{
		ID:        blk.ID,
		ParentID:  blk.Parent,
		Height:    blk.Height,
		Timestamp: blk.Timestamp,
		Bytes:     blk.Bytes,
		Status:    blk.Status,
	})
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	if err := s.blockDB.WrapBatch(batch).Put(blk.ID[:], blkBytes); err != nil {
		return err
	}
	if blk.Status == choices.Accepted {
		if err := s.heightDB.WrapBatch(batch).Put(heightKey(blk.Height), blk.ID[:]); err != nil {
			return err
		}
		if err := s.metaDB.WrapBatch(batch).Put(lastAcceptedKey, blk.ID[:]); err != nil {
			return err
		}
	}
	return batch.Write()
}

// GetLastAccepted returns database.ErrNotFound if no accepted block was put.
func (s *DBStore) GetLastAccepted() (ids.ID, error) {
	idBytes, err := s.metaDB.Get(lastAcceptedKey)
	if err != nil {
		return ids.Empty, err
	}
	return ids.ToID(idBytes)
}

// GetBlockIDAtHeight returns the ID of the accepted block at [height].
func (s *DBStore) GetBlockIDAtHeight(height uint64) (ids.ID, error) {
	idBytes, err := s.heightDB.Get(heightKey(height))
	if err != nil {
		return ids.Empty, err
	}
	return ids.ToID(idBytes)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, height)
}
