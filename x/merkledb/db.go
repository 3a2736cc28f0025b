// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/slices"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/prefixdb"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/trace"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/utils/set"
)

const DefaultHistoryLength = 300

var (
	_ MerkleDB    = (*merkleDB)(nil)
	_ RangeReader = (*merkleDB)(nil)

	// Values are stored in a prefixdb of the base database under this prefix.
	valuePrefix = []byte{0}

	errInvalidHistoryLength = errors.New("history length must be > 0")
)

type ChangeProofer interface {
	// GetChangeProof returns a proof for a subset of the key/value changes in key range
	// [start, end] that occurred between [startRootID] and [endRootID].
	// Returns at most [maxLength] key/value pairs.
	// Returns [ErrInsufficientHistory] if this node has insufficient history
	// to generate the proof.
	GetChangeProof(
		ctx context.Context,
		startRootID ids.ID,
		endRootID ids.ID,
		start maybe.Maybe[[]byte],
		end maybe.Maybe[[]byte],
		maxLength int,
	) (*ChangeProof, error)

	// VerifyChangeProof returns nil iff all the following hold:
	//   - [start] <= [end].
	//   - [proof] has at most [keyLimit] keys and [bytesLimit] bytes.
	//   - [proof] is non-empty iff [proof.KeyChanges] or the range proves
	//     something about [expectedEndRootID].
	//   - All keys in [proof.KeyChanges] are in [start, end].
	//   - The keys in [proof.KeyChanges] are strictly increasing.
	//   - Applying [proof.KeyChanges] to this database's keys in
	//     [start, largest key] results in the key-value pairs of that range
	//     in the trie with root [expectedEndRootID].
	VerifyChangeProof(
		ctx context.Context,
		proof *ChangeProof,
		start maybe.Maybe[[]byte],
		end maybe.Maybe[[]byte],
		expectedEndRootID ids.ID,
		keyLimit int,
		bytesLimit int,
	) error

	// CommitChangeProof commits the key/value pairs within the [proof] to the db.
	CommitChangeProof(ctx context.Context, proof *ChangeProof) error
}

type RangeProofer interface {
	// GetRangeProofAtRoot returns a proof for the key/value pairs in this trie within the range
	// [start, end] when the root of the trie was [rootID].
	GetRangeProofAtRoot(
		ctx context.Context,
		rootID ids.ID,
		start maybe.Maybe[[]byte],
		end maybe.Maybe[[]byte],
		maxLength int,
	) (*RangeProof, error)

	// CommitRangeProof commits the key/value pairs within the [proof] to the db.
	// [start] is the smallest possible key in the range this [proof] covers.
	// [end] is the largest possible key in the range this [proof] covers.
	CommitRangeProof(ctx context.Context, start, end maybe.Maybe[[]byte], proof *RangeProof) error
}

type Clearer interface {
	// Deletes all key/value pairs from the database.
	Clear() error
}

type MerkleDB interface {
	database.Database
	Clearer
	RangeReader
	ChangeProofer
	RangeProofer

	// GetMerkleRoot returns the root of the trie.
	GetMerkleRoot(ctx context.Context) (ids.ID, error)

	// GetProof returns a proof of the existence/non-existence of [key] in
	// the trie.
	GetProof(ctx context.Context, key []byte) (*Proof, error)

	// GetRangeProof returns a proof of at most [maxLength] key/value pairs
	// with keys in [start, end] in the trie.
	GetRangeProof(
		ctx context.Context,
		start maybe.Maybe[[]byte],
		end maybe.Maybe[[]byte],
		maxLength int,
	) (*RangeProof, error)
}

type Config struct {
	// The number of changes to the database that we store in memory in order to
	// serve change proofs.
	HistoryLength int
	// If nil, metrics aren't reported.
	Reg       prometheus.Registerer
	Namespace string
	Tracer    trace.Tracer
}

// NewConfig returns a Config with the default history length that reports
// neither metrics nor traces.
func NewConfig() Config {
	return Config{
		HistoryLength: DefaultHistoryLength,
		Tracer:        trace.Noop,
	}
}

// merkleDB can only be edited by committing changes. Every commit produces a
// new immutable trie, so readers and proof generation never observe a partial
// commit.
type merkleDB struct {
	// Should be held before taking [valueDB] writes.
	// Write locked while committing changes.
	lock sync.RWMutex

	// Invariant: [valueDB] holds exactly the key-value pairs of [root].
	valueDB *prefixdb.Database
	root    trie

	history *trieHistory
	metrics merkleMetrics
	tracer  trace.Tracer
	closed  bool
}

// New returns a MerkleDB over the key-value pairs previously written to
// [db] by a MerkleDB.
func New(ctx context.Context, db database.Database, config Config) (MerkleDB, error) {
	return newDatabase(ctx, db, config)
}

func newDatabase(ctx context.Context, db database.Database, config Config) (*merkleDB, error) {
	if config.HistoryLength <= 0 {
		return nil, errInvalidHistoryLength
	}
	metrics, err := newMetrics(config.Namespace, config.Reg)
	if err != nil {
		return nil, err
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = trace.Noop
	}

	_, span := tracer.Start(ctx, "MerkleDB.New")
	defer span.End()

	valueDB := prefixdb.New(valuePrefix, db)
	root := trie{}
	it := valueDB.NewIterator()
	defer it.Release()
	for it.Next() {
		root, err = root.put(it.Key(), it.Value())
		if err != nil {
			return nil, err
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	mdb := &merkleDB{
		valueDB: valueDB,
		root:    root,
		history: newTrieHistory(config.HistoryLength),
		metrics: metrics,
		tracer:  tracer,
	}
	// The state the database was opened at can be the start of a change proof.
	initial := newChangeSummary(0)
	initial.rootID = root.rootID()
	initial.trie = root
	mdb.history.record(initial)
	return mdb, nil
}

func (db *merkleDB) GetMerkleRoot(ctx context.Context) (ids.ID, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetMerkleRoot")
	defer span.End()

	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return ids.Empty, database.ErrClosed
	}
	return db.root.rootID(), nil
}

func (db *merkleDB) GetProof(ctx context.Context, key []byte) (*Proof, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetProof")
	defer span.End()

	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	db.metrics.ProofGenerated()
	return &Proof{
		Path:  db.root.getProof(key),
		Key:   slices.Clone(key),
		Value: maybe.Bind(db.root.get(key), slices.Clone[[]byte]),
	}, nil
}

func (db *merkleDB) GetRangeProof(
	ctx context.Context,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	maxLength int,
) (*RangeProof, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetRangeProof")
	defer span.End()

	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	db.metrics.RangeProofGenerated()
	return db.root.getRangeProof(start, end, maxLength)
}

func (db *merkleDB) GetRangeProofAtRoot(
	ctx context.Context,
	rootID ids.ID,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	maxLength int,
) (*RangeProof, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetRangeProofAtRoot", oteltrace.WithAttributes(
		attribute.String("rootID", rootID.String()),
		attribute.Int("maxLength", maxLength),
	))
	defer span.End()

	db.lock.RLock()
	defer db.lock.RUnlock()

	switch {
	case db.closed:
		return nil, database.ErrClosed
	case maxLength <= 0:
		return nil, fmt.Errorf("%w but was %d", ErrInvalidMaxLength, maxLength)
	case rootID == ids.Empty:
		return trie{}.getRangeProof(start, end, maxLength)
	}

	historical, ok := db.history.getTrie(rootID)
	if !ok {
		db.metrics.InsufficientHistory()
		return nil, fmt.Errorf("%w: root %s", ErrInsufficientHistory, rootID)
	}
	db.metrics.RangeProofGenerated()
	return historical.getRangeProof(start, end, maxLength)
}

func (db *merkleDB) GetChangeProof(
	ctx context.Context,
	startRootID ids.ID,
	endRootID ids.ID,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	maxLength int,
) (*ChangeProof, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetChangeProof", oteltrace.WithAttributes(
		attribute.String("startRootID", startRootID.String()),
		attribute.String("endRootID", endRootID.String()),
		attribute.Int("maxLength", maxLength),
	))
	defer span.End()

	switch {
	case start.HasValue() && end.HasValue() && bytes.Compare(start.Value(), end.Value()) > 0:
		return nil, ErrStartAfterEnd
	case maxLength <= 0:
		return nil, fmt.Errorf("%w but was %d", ErrInvalidMaxLength, maxLength)
	case startRootID == endRootID && endRootID == ids.Empty:
		return &ChangeProof{}, nil
	}

	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}

	changes, err := db.history.getValueChanges(startRootID, endRootID, start, end, maxLength)
	if err != nil {
		if errors.Is(err, ErrInsufficientHistory) {
			db.metrics.InsufficientHistory()
		}
		return nil, err
	}
	endTrie, _ := db.history.getTrie(endRootID)

	proof := &ChangeProof{
		KeyChanges: changes,
	}
	switch {
	case len(changes) > 0:
		proof.EndProof = endTrie.getProof(changes[len(changes)-1].Key)
	case end.HasValue():
		proof.EndProof = endTrie.getProof(end.Value())
	}
	if start.HasValue() {
		proof.StartProof = endTrie.getProof(start.Value())
	}
	db.metrics.ChangeProofGenerated()
	return proof, nil
}

func (db *merkleDB) VerifyChangeProof(
	ctx context.Context,
	proof *ChangeProof,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	expectedEndRootID ids.ID,
	keyLimit int,
	bytesLimit int,
) error {
	ctx, span := db.tracer.Start(ctx, "MerkleDB.VerifyChangeProof")
	defer span.End()

	return VerifyChangeProof(ctx, proof, db, start, end, expectedEndRootID, keyLimit, bytesLimit)
}

func (db *merkleDB) GetKeyValues(ctx context.Context, start, end maybe.Maybe[[]byte]) ([]KeyChange, error) {
	_, span := db.tracer.Start(ctx, "MerkleDB.GetKeyValues")
	defer span.End()

	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return db.root.keyValues(start, end, 0), nil
}

func (db *merkleDB) CommitRangeProof(ctx context.Context, start, end maybe.Maybe[[]byte], proof *RangeProof) error {
	_, span := db.tracer.Start(ctx, "MerkleDB.CommitRangeProof")
	defer span.End()

	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}

	upper := proof.Largest()
	if upper.IsNothing() {
		upper = end
	}

	// Remove the keys in the proven range that the proof doesn't contain.
	proofKeys := set.NewSet[string](len(proof.KeyChanges))
	for _, kv := range proof.KeyChanges {
		proofKeys.Add(string(kv.Key))
	}
	var ops []KeyChange
	for _, kv := range db.root.keyValues(start, upper, 0) {
		if !proofKeys.Contains(string(kv.Key)) {
			ops = append(ops, KeyChange{
				Key:   kv.Key,
				Value: maybe.Nothing[[]byte](),
			})
		}
	}
	ops = append(ops, proof.KeyChanges...)
	return db.commit(ops)
}

func (db *merkleDB) CommitChangeProof(ctx context.Context, proof *ChangeProof) error {
	_, span := db.tracer.Start(ctx, "MerkleDB.CommitChangeProof")
	defer span.End()

	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.commit(proof.KeyChanges)
}

func (db *merkleDB) Clear() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}

	ops := db.root.keyValues(maybe.Nothing[[]byte](), maybe.Nothing[[]byte](), 0)
	for i := range ops {
		ops[i].Value = maybe.Nothing[[]byte]()
	}
	return db.commit(ops)
}

// commit applies [ops] in order to the trie and the base database.
//
// Assumes [db.lock] is write locked.
func (db *merkleDB) commit(ops []KeyChange) error {
	var (
		newRoot = db.root
		summary = newChangeSummary(len(ops))
		batch   = db.valueDB.NewBatch()
		err     error
	)
	for _, op := range ops {
		key := string(op.Key)
		before := newRoot.get(op.Key)
		if op.Value.IsNothing() {
			newRoot = newRoot.remove(op.Key)
			err = batch.Delete(op.Key)
		} else {
			newRoot, err = newRoot.put(op.Key, op.Value.Value())
			if err == nil {
				err = batch.Put(op.Key, op.Value.Value())
			}
		}
		if err != nil {
			return err
		}
		db.metrics.DatabaseValueWrite()

		after := newRoot.get(op.Key)
		if existing, ok := summary.values[key]; ok {
			existing.after = after
		} else {
			summary.values[key] = &change[maybe.Maybe[[]byte]]{
				before: before,
				after:  after,
			}
		}
	}
	for key, valueChange := range summary.values {
		if maybe.Equal(valueChange.before, valueChange.after, bytes.Equal) {
			delete(summary.values, key)
		}
	}

	if err := batch.Write(); err != nil {
		return err
	}

	db.root = newRoot
	summary.rootID = newRoot.rootID()
	summary.trie = newRoot
	db.history.record(summary)
	db.metrics.Committed()
	return nil
}

func (db *merkleDB) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return false, database.ErrClosed
	}
	db.metrics.DatabaseValueRead()
	return db.root.get(key).HasValue(), nil
}

func (db *merkleDB) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	db.metrics.DatabaseValueRead()
	value := db.root.get(key)
	if value.IsNothing() {
		return nil, database.ErrNotFound
	}
	return slices.Clone(value.Value()), nil
}

func (db *merkleDB) Put(key, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.commit([]KeyChange{{
		Key:   key,
		Value: maybe.Some(value),
	}})
}

func (db *merkleDB) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.commit([]KeyChange{{
		Key:   key,
		Value: maybe.Nothing[[]byte](),
	}})
}

func (db *merkleDB) NewBatch() database.Batch {
	return &batch{
		db: db,
	}
}

func (db *merkleDB) NewIterator() database.Iterator {
	return db.NewIteratorWithStartAndPrefix(nil, nil)
}

func (db *merkleDB) NewIteratorWithStart(start []byte) database.Iterator {
	return db.NewIteratorWithStartAndPrefix(start, nil)
}

func (db *merkleDB) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return db.NewIteratorWithStartAndPrefix(nil, prefix)
}

func (db *merkleDB) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return &database.IteratorError{
			Err: database.ErrClosed,
		}
	}
	return db.valueDB.NewIteratorWithStartAndPrefix(start, prefix)
}

func (db *merkleDB) Compact(start []byte, limit []byte) error {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return database.ErrClosed
	}
	return db.valueDB.Compact(start, limit)
}

// Close marks the database as closed. The base database is left open.
func (db *merkleDB) Close() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	if db.closed {
		return database.ErrClosed
	}
	db.closed = true
	return db.valueDB.Close()
}

func (db *merkleDB) HealthCheck(ctx context.Context) (interface{}, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if db.closed {
		return nil, database.ErrClosed
	}
	return db.valueDB.HealthCheck(ctx)
}

type batch struct {
	database.BatchOps

	db *merkleDB
}

func (b *batch) Write() error {
	ops := make([]KeyChange, len(b.Ops))
	for i, op := range b.Ops {
		ops[i] = KeyChange{
			Key:   op.Key,
			Value: maybe.Some(op.Value),
		}
		if op.Delete {
			ops[i].Value = maybe.Nothing[[]byte]()
		}
	}

	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	if b.db.closed {
		return database.ErrClosed
	}
	return b.db.commit(ops)
}

func (b *batch) Inner() database.Batch {
	return b
}
