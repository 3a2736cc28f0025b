// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package memdb

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/database"
)

const (
	// Name is the name of this database for database switches
	Name = "memdb"

	degree = 16
)

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

type entry struct {
	key   []byte
	value []byte
}

func less(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Database is an ephemeral key-value store kept sorted by key.
//
// Iterators read a copy-on-write snapshot of the tree, so writes made after
// an iterator is created aren't visible to it.
type Database struct {
	lock sync.RWMutex
	// nil once closed
	tree *btree.BTreeG[entry]
}

func New() *Database {
	return &Database{tree: btree.NewG(degree, less)}
}

func (db *Database) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return database.ErrClosed
	}
	db.tree = nil
	return nil
}

func (db *Database) isClosed() bool {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return db.tree == nil
}

func (db *Database) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return false, database.ErrClosed
	}
	return db.tree.Has(entry{key: key}), nil
}

func (db *Database) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return nil, database.ErrClosed
	}
	e, ok := db.tree.Get(entry{key: key})
	if !ok {
		return nil, database.ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (db *Database) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return database.ErrClosed
	}
	db.put(slices.Clone(key), slices.Clone(value))
	return nil
}

// put stores [key] and [value] without copying them.
// Assumes [db.lock] is held.
func (db *Database) put(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	db.tree.ReplaceOrInsert(entry{key: key, value: value})
}

func (db *Database) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return database.ErrClosed
	}
	db.tree.Delete(entry{key: key})
	return nil
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db}
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
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.tree == nil {
		return &database.IteratorError{
			Err: database.ErrClosed,
		}
	}

	next := prefix
	if bytes.Compare(start, prefix) > 0 {
		next = start
	}
	return &iterator{
		db:       db,
		snapshot: db.tree.Clone(),
		next:     slices.Clone(next),
		prefix:   slices.Clone(prefix),
	}
}

func (db *Database) Compact(_, _ []byte) error {
	if db.isClosed() {
		return database.ErrClosed
	}
	return nil
}

func (db *Database) HealthCheck(context.Context) (interface{}, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.tree == nil {
		return nil, database.ErrClosed
	}
	return map[string]int{"keys": db.tree.Len()}, nil
}

type batch struct {
	database.BatchOps

	db *Database
}

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.tree == nil {
		return database.ErrClosed
	}

	// The ops own copies of their keys and values.
	for _, op := range b.Ops {
		if op.Delete {
			b.db.tree.Delete(entry{key: op.Key})
		} else {
			b.db.put(op.Key, op.Value)
		}
	}
	return nil
}

func (b *batch) Inner() database.Batch {
	return b
}

// iterator walks a snapshot of the tree one entry at a time.
type iterator struct {
	db       *Database
	snapshot *btree.BTreeG[entry]
	// Smallest key that may be returned next.
	next   []byte
	prefix []byte

	current entry
	valid   bool
	err     error
}

func (it *iterator) Next() bool {
	// Short-circuit and set an error if the underlying database has been closed.
	if it.db.isClosed() {
		it.release()
		it.err = database.ErrClosed
		return false
	}
	if it.snapshot == nil {
		it.valid = false
		return false
	}

	it.valid = false
	it.snapshot.AscendGreaterOrEqual(entry{key: it.next}, func(e entry) bool {
		if bytes.HasPrefix(e.key, it.prefix) {
			it.current = e
			it.valid = true
		}
		return false
	})
	if !it.valid {
		it.release()
		return false
	}
	// The smallest key after the current one.
	it.next = append(slices.Clone(it.current.key), 0)
	return true
}

func (it *iterator) Error() error {
	return it.err
}

func (it *iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return slices.Clone(it.current.key)
}

func (it *iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return slices.Clone(it.current.value)
}

func (it *iterator) Release() {
	it.release()
}

func (it *iterator) release() {
	it.snapshot = nil
	it.current = entry{}
	it.valid = false
}
