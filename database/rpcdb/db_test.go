// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcdb

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/dbtest"
	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/message"
)

// codecRequester passes requests to a Server through the wire encoding.
type codecRequester struct {
	server   *Server
	requests map[message.DatabaseAction]int
}

func (r *codecRequester) Request(ctx context.Context, msg message.Message) (message.Message, error) {
	b, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}
	decoded, err := message.Decode(b)
	if err != nil {
		return nil, err
	}
	request := decoded.(*message.DatabaseRequest)
	r.requests[request.Action]++

	response, err := r.server.Handle(ctx, request)
	if err != nil {
		return nil, err
	}
	b, err = message.Encode(response)
	if err != nil {
		return nil, err
	}
	return message.Decode(b)
}

func setupDB(t testing.TB) (*Client, *codecRequester, database.Database) {
	t.Helper()

	db := memdb.New()
	requester := &codecRequester{
		server:   NewServer(db),
		requests: make(map[message.DatabaseAction]int),
	}
	return NewClient(requester), requester, db
}

func TestInterface(t *testing.T) {
	for name, test := range dbtest.Tests {
		t.Run(name, func(t *testing.T) {
			db, _, _ := setupDB(t)
			test(t, db)
		})
	}
}

func TestCloseKeepsRemoteOpen(t *testing.T) {
	require := require.New(t)

	client, _, db := setupDB(t)
	require.NoError(client.Put([]byte("key"), []byte("value")))
	require.NoError(client.Close())

	value, err := db.Get([]byte("key"))
	require.NoError(err)
	require.Equal([]byte("value"), value)
}

func TestIteratorFetchesInBatches(t *testing.T) {
	require := require.New(t)

	client, requester, db := setupDB(t)

	// Each pair is 32KiB, so a batch holds 4 pairs.
	const numPairs = 10
	value := make([]byte, 32*1024-2)
	for i := 0; i < numPairs; i++ {
		require.NoError(db.Put([]byte(fmt.Sprintf("%02d", i)), value))
	}

	it := client.NewIterator()
	var seen int
	for it.Next() {
		require.Equal([]byte(fmt.Sprintf("%02d", seen)), it.Key())
		require.Equal(value, it.Value())
		seen++
	}
	require.NoError(it.Error())
	it.Release()

	require.Equal(numPairs, seen)
	// 3 batches with pairs and 1 empty batch.
	require.Equal(4, requester.requests[message.DatabaseIteratorNext])
	require.Equal(1, requester.requests[message.DatabaseIteratorRelease])
	require.Empty(requester.server.iterators)
}

func TestServerReleaseIterators(t *testing.T) {
	require := require.New(t)

	client, requester, _ := setupDB(t)
	_ = client.NewIterator()
	_ = client.NewIteratorWithPrefix([]byte("a"))
	require.Len(requester.server.iterators, 2)

	requester.server.ReleaseIterators()
	require.Empty(requester.server.iterators)

	_, err := requester.server.Handle(context.Background(), &message.DatabaseRequest{
		Action:     message.DatabaseIteratorNext,
		IteratorID: 0,
	})
	require.ErrorIs(err, errUnknownIterator)
}

func TestHealthCheck(t *testing.T) {
	require := require.New(t)

	client, _, _ := setupDB(t)
	require.NoError(client.Put([]byte("key"), []byte("value")))
	details, err := client.HealthCheck(context.Background())
	require.NoError(err)
	require.Equal(json.RawMessage(`{"keys":1}`), details)

	require.NoError(client.Close())
	_, err = client.HealthCheck(context.Background())
	require.Equal(database.ErrClosed, err)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code uint32
		ok   bool
	}{
		{
			err: nil,
		},
		{
			err:  database.ErrClosed,
			code: 1,
			ok:   true,
		},
		{
			err:  fmt.Errorf("wrapped: %w", database.ErrNotFound),
			code: 2,
			ok:   true,
		},
		{
			err: errUnknownIterator,
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.err), func(t *testing.T) {
			require := require.New(t)

			code, ok := errorToErrCode(test.err)
			require.Equal(test.ok, ok)
			require.Equal(test.code, code)
		})
	}

	require.ErrorIs(t, errCodeToErr(100), errUnknownErrorCode)
	require.NoError(t, errCodeToErr(0))
}
