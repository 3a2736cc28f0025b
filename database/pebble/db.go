// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pebble

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/units"
)

// Name is the name of this database for database switches
const Name = "pebble"

var (
	_ database.Database = (*Database)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iter)(nil)

	DefaultConfig = Config{
		CacheSize:       64 * units.MiB,
		MemTableSize:    16 * units.MiB,
		MaxOpenFiles:    1024,
		BloomFilterBits: 10,
	}
)

type Config struct {
	CacheSize       int  `json:"cacheSize"`
	MemTableSize    int  `json:"memTableSize"`
	MaxOpenFiles    int  `json:"maxOpenFiles"`
	BloomFilterBits int  `json:"bloomFilterBits"`
	Sync            bool `json:"sync"`
}

func (c Config) options() *pebble.Options {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(c.CacheSize)),
		MemTableSize:             c.MemTableSize,
		MaxOpenFiles:             c.MaxOpenFiles,
		MaxConcurrentCompactions: runtime.NumCPU,
		Levels:                   []pebble.LevelOptions{{}},
	}
	if c.BloomFilterBits > 0 {
		opts.Levels[0].FilterPolicy = bloom.FilterPolicy(c.BloomFilterBits)
		opts.Levels[0].FilterType = pebble.TableFilter
	}
	return opts
}

// Database is a persistent key-value store backed by pebble.
type Database struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	// pebble panics when used after close
	closed atomic.Bool
}

// New opens, creating it if needed, the pebble database in [dir].
func New(dir string, cfg Config, log logging.Logger) (*Database, error) {
	opts := cfg.options()
	db, err := pebble.Open(dir, opts)
	// The cache is referenced by the database while it's open.
	opts.Cache.Unref()
	if err != nil {
		return nil, err
	}

	writeOpts := pebble.NoSync
	if cfg.Sync {
		writeOpts = pebble.Sync
	}
	log.Info("opened pebble",
		zap.String("dir", dir),
		zap.Int("cacheSize", cfg.CacheSize),
		zap.Bool("sync", cfg.Sync),
	)
	return &Database{
		db:        db,
		writeOpts: writeOpts,
	}, nil
}

func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return database.ErrClosed
	}
	return updateError(db.db.Close())
}

func (db *Database) HealthCheck(context.Context) (interface{}, error) {
	if db.closed.Load() {
		return nil, database.ErrClosed
	}
	return map[string]uint64{
		"diskSpaceUsage": db.db.Metrics().DiskSpaceUsage(),
	}, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	_, err := db.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (db *Database) Get(key []byte) ([]byte, error) {
	if db.closed.Load() {
		return nil, database.ErrClosed
	}

	value, closer, err := db.db.Get(key)
	if err != nil {
		return nil, updateError(err)
	}
	defer closer.Close()

	return slices.Clone(value), nil
}

func (db *Database) Put(key []byte, value []byte) error {
	if db.closed.Load() {
		return database.ErrClosed
	}
	return updateError(db.db.Set(key, value, db.writeOpts))
}

func (db *Database) Delete(key []byte) error {
	if db.closed.Load() {
		return database.ErrClosed
	}
	return updateError(db.db.Delete(key, db.writeOpts))
}

// Compact compacts [start, limit). A nil [limit] compacts through the last
// key.
func (db *Database) Compact(start []byte, limit []byte) error {
	if db.closed.Load() {
		return database.ErrClosed
	}
	if limit == nil {
		it := db.db.NewIter(&pebble.IterOptions{LowerBound: start})
		if it.Last() {
			// One past the last key.
			limit = append(slices.Clone(it.Key()), 0)
		}
		if err := it.Close(); err != nil {
			return updateError(err)
		}
	}
	// pebble rejects empty ranges.
	if bytes.Compare(start, limit) >= 0 {
		return nil
	}
	return updateError(db.db.Compact(start, limit, true))
}

func (db *Database) NewBatch() database.Batch {
	return &batch{db: db}
}

// batch buffers its ops until Write, so it can be written more than once.
type batch struct {
	database.BatchOps

	db *Database
}

func (b *batch) Write() error {
	if b.db.closed.Load() {
		return database.ErrClosed
	}

	pb := b.db.db.NewBatch()
	defer pb.Close()

	for _, op := range b.Ops {
		var err error
		if op.Delete {
			err = pb.Delete(op.Key, nil)
		} else {
			err = pb.Set(op.Key, op.Value, nil)
		}
		if err != nil {
			return updateError(err)
		}
	}
	return updateError(pb.Commit(b.db.writeOpts))
}

func (b *batch) Inner() database.Batch {
	return b
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
	if db.closed.Load() {
		return &database.IteratorError{Err: database.ErrClosed}
	}
	return &iter{
		db:   db,
		iter: db.db.NewIter(iterOptions(start, prefix)),
	}
}

// iterOptions bounds an iterator to the keys at or after [start] that begin
// with [prefix].
func iterOptions(start, prefix []byte) *pebble.IterOptions {
	lower := prefix
	if bytes.Compare(start, prefix) > 0 {
		lower = start
	}
	return &pebble.IterOptions{
		LowerBound: lower,
		UpperBound: database.PrefixUpperBound(prefix),
	}
}

type iter struct {
	db      *Database
	iter    *pebble.Iterator
	started bool
	valid   bool
	err     error
}

func (it *iter) Next() bool {
	switch {
	case it.iter == nil:
		it.valid = false
	case it.db.closed.Load():
		it.valid = false
		it.err = database.ErrClosed
	case !it.started:
		it.started = true
		it.valid = it.iter.First()
	default:
		it.valid = it.iter.Next()
	}
	return it.valid
}

func (it *iter) Error() error {
	if it.err != nil || it.iter == nil {
		return it.err
	}
	return updateError(it.iter.Error())
}

func (it *iter) Key() []byte {
	if !it.valid {
		return nil
	}
	return slices.Clone(it.iter.Key())
}

func (it *iter) Value() []byte {
	if !it.valid {
		return nil
	}
	return slices.Clone(it.iter.Value())
}

func (it *iter) Release() {
	if it.iter == nil {
		return
	}
	if err := it.iter.Close(); err != nil && it.err == nil {
		it.err = updateError(err)
	}
	it.iter = nil
	it.valid = false
}

func updateError(err error) error {
	switch {
	case errors.Is(err, pebble.ErrClosed):
		return database.ErrClosed
	case errors.Is(err, pebble.ErrNotFound):
		return database.ErrNotFound
	default:
		return err
	}
}
