// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/utils/maybe"
)

func newDB(t testing.TB) *merkleDB {
	t.Helper()

	db, err := newDatabase(context.Background(), memdb.New(), NewConfig())
	require.NoError(t, err)
	return db
}

// randomKey returns a short key drawn from a small alphabet so that keys
// frequently share prefixes.
func randomKey(r *rand.Rand) []byte {
	key := make([]byte, 1+r.Intn(4))
	for i := range key {
		key[i] = byte(r.Intn(4))
	}
	return key
}

// randomValue returns a value that is sometimes longer than a hash.
func randomValue(r *rand.Rand) []byte {
	value := make([]byte, r.Intn(2*HashLength))
	_, _ = r.Read(value)
	return value
}

// writeRandomKeyValues writes [n] random key-value pairs to [db].
func writeRandomKeyValues(t testing.TB, r *rand.Rand, db *merkleDB, n int) {
	t.Helper()

	batch := db.NewBatch()
	for i := 0; i < n; i++ {
		require.NoError(t, batch.Put(randomKey(r), randomValue(r)))
	}
	require.NoError(t, batch.Write())
}

// copyDB returns a new database with the same key-value pairs as [db].
func copyDB(t testing.TB, db *merkleDB) *merkleDB {
	t.Helper()

	kvs, err := db.GetKeyValues(context.Background(), maybe.Nothing[[]byte](), maybe.Nothing[[]byte]())
	require.NoError(t, err)

	newDB := newDB(t)
	batch := newDB.NewBatch()
	for _, kv := range kvs {
		require.NoError(t, batch.Put(kv.Key, kv.Value.Value()))
	}
	require.NoError(t, batch.Write())
	return newDB
}

func someBytes(s string) maybe.Maybe[[]byte] {
	return maybe.Some([]byte(s))
}

func nothing() maybe.Maybe[[]byte] {
	return maybe.Nothing[[]byte]()
}
