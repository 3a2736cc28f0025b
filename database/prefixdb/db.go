// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package prefixdb

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/ava-labs/vmsync/database"
)

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

// Database partitions a database into a sub-database by prefixing all keys with
// a unique value.
type Database struct {
	// All keys in this db begin with this byte slice
	dbPrefix []byte
	// Smallest key after every key of this db. nil if there is none.
	dbLimit []byte

	// lock needs to be held during Close to guarantee db will not be set to nil
	// concurrently with another operation. All other operations can hold RLock.
	lock sync.RWMutex
	// The underlying storage
	db     database.Database
	closed bool
}

// New returns a new prefixed database. Prefixing a prefixed database joins
// both prefixes over the same underlying database.
func New(prefix []byte, db database.Database) *Database {
	if prefixDB, ok := db.(*Database); ok {
		return newDB(
			JoinPrefixes(prefixDB.dbPrefix, prefix),
			prefixDB.db,
		)
	}
	return newDB(
		MakePrefix(prefix),
		db,
	)
}

func newDB(prefix []byte, db database.Database) *Database {
	return &Database{
		dbPrefix: prefix,
		dbLimit:  database.PrefixUpperBound(prefix),
		db:       db,
	}
}

// MakePrefix returns the hash of [prefix], so that no two prefixes passed to
// New share a key range.
func MakePrefix(prefix []byte) []byte {
	hash := sha256.Sum256(prefix)
	return hash[:]
}

func JoinPrefixes(firstPrefix, secondPrefix []byte) []byte {
	return MakePrefix(prefixKey(firstPrefix, secondPrefix))
}

func prefixKey(prefix, key []byte) []byte {
	prefixedKey := make([]byte, len(prefix)+len(key))
	copy(prefixedKey, prefix)
	copy(prefixedKey[len(prefix):], key)
	return prefixedKey
}

func (db *Database) prefix(key []byte) []byte {
	return prefixKey(db.dbPrefix, key)
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return false, database.ErrClosed
	}
	return db.db.Has(db.prefix(key))
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return db.db.Get(db.prefix(key))
}

func (db *Database) Put(key, value []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.db.Put(db.prefix(key), value)
}

func (db *Database) Delete(key []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.db.Delete(db.prefix(key))
}

func (db *Database) NewBatch() database.Batch {
	return db.WrapBatch(db.db.NewBatch())
}

// WrapBatch returns a batch that writes the keys of [db] into [inner], a
// batch of the underlying database. Batches of several sub-databases
// wrapping the same [inner] are written together by writing any of them.
func (db *Database) WrapBatch(inner database.Batch) database.Batch {
	return &batch{
		Batch: inner,
		db:    db,
	}
}

func (db *Database) NewIterator() database.Iterator {
	return db.NewIteratorWithStartAndPrefix(nil, nil)
}

func (db *Database) NewIteratorWithStart(start []byte) database.Iterator {
	return db.NewIteratorWithStartAndPrefix(start, nil)
}

func (db *Database) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return db.NewIteratorWithStartAndPrefix(nil, prefix)
}

func (db *Database) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return &database.IteratorError{
			Err: database.ErrClosed,
		}
	}
	return &iterator{
		Iterator: db.db.NewIteratorWithStartAndPrefix(db.prefix(start), db.prefix(prefix)),
		db:       db,
	}
}

func (db *Database) Compact(start, limit []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	if limit == nil {
		return db.db.Compact(db.prefix(start), db.dbLimit)
	}
	return db.db.Compact(db.prefix(start), db.prefix(limit))
}

// Close closes the sub-database. The underlying database is left open.
func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	db.closed = true
	return nil
}

func (db *Database) isClosed() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.closed
}

func (db *Database) HealthCheck(ctx context.Context) (interface{}, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return db.db.HealthCheck(ctx)
}

// batch prefixes the keys written to the underlying batch and records them
// for Replay.
type batch struct {
	database.Batch

	db *Database

	// Keys are unprefixed.
	ops []database.BatchOp
}

func (b *batch) Put(key, value []byte) error {
	prefixedKey := b.db.prefix(key)
	b.ops = append(b.ops, database.BatchOp{
		Key:   prefixedKey[len(b.db.dbPrefix):],
		Value: append([]byte{}, value...),
	})
	return b.Batch.Put(prefixedKey, value)
}

func (b *batch) Delete(key []byte) error {
	prefixedKey := b.db.prefix(key)
	b.ops = append(b.ops, database.BatchOp{
		Key:    prefixedKey[len(b.db.dbPrefix):],
		Delete: true,
	})
	return b.Batch.Delete(prefixedKey)
}

func (b *batch) Write() error {
	if b.db.isClosed() {
		return database.ErrClosed
	}
	return b.Batch.Write()
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.Batch.Reset()
}

// Replay replays the batch contents with the prefix of the database removed
// from the keys.
func (b *batch) Replay(w database.KeyValueWriterDeleter) error {
	for _, op := range b.ops {
		if op.Delete {
			if err := w.Delete(op.Key); err != nil {
				return err
			}
		} else if err := w.Put(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// Inner returns [b]. Writes to the underlying batch must be prefixed, so it
// isn't exposed.
func (b *batch) Inner() database.Batch {
	return b
}

// iterator strips the prefix of the database from the keys of the underlying
// iterator.
type iterator struct {
	database.Iterator

	db *Database

	key, val []byte
	err      error
}

func (it *iterator) Next() bool {
	if it.db.isClosed() {
		it.key = nil
		it.val = nil
		it.err = database.ErrClosed
		return false
	}

	hasNext := it.Iterator.Next()
	if hasNext {
		key := it.Iterator.Key()
		if prefixLen := len(it.db.dbPrefix); len(key) >= prefixLen {
			key = key[prefixLen:]
		}
		it.key = key
		it.val = it.Iterator.Value()
	} else {
		it.key = nil
		it.val = nil
	}
	return hasNext
}

func (it *iterator) Key() []byte {
	return it.key
}

func (it *iterator) Value() []byte {
	return it.val
}

// Error returns [database.ErrClosed] if the database was closed while
// iterating.
func (it *iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.Iterator.Error()
}
