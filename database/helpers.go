// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import "errors"

// GetOrNil returns the value at [key], or nil if it doesn't exist.
func GetOrNil(db KeyValueReader, key []byte) ([]byte, error) {
	value, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// ClearPrefix deletes every key with [prefix], writing deletions in batches of at
// most [writeSize] bytes.
func ClearPrefix(db interface {
	Iteratee
	Batcher
}, prefix []byte, writeSize int,
) error {
	it := db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	batch := db.NewBatch()
	for it.Next() {
		if err := batch.Delete(it.Key()); err != nil {
			return err
		}
		if batch.Size() >= writeSize {
			if err := batch.Write(); err != nil {
				return err
			}
			batch.Reset()
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	return batch.Write()
}

// PrefixUpperBound returns the smallest key that is greater than every key
// starting with [prefix]. Returns nil if there is no such key, which is the
// case when [prefix] is empty or only holds 0xff bytes.
func PrefixUpperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			limit := make([]byte, i+1)
			copy(limit, prefix)
			limit[i]++
			return limit
		}
	}
	return nil
}
