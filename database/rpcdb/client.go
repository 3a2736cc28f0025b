// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/message"
)

var (
	errUnexpectedResponse = errors.New("unexpected response")

	_ database.Database = (*Client)(nil)
	_ database.Batch    = (*batch)(nil)
	_ database.Iterator = (*iterator)(nil)
)

// Requester sends a request to the owner of a database and waits for the
// response.
type Requester interface {
	Request(ctx context.Context, request message.Message) (message.Message, error)
}

// Client is a database that is managed over the requests of [requester].
//
// Closing a Client doesn't close the remote database.
type Client struct {
	requester Requester
	closed    atomic.Bool
}

func NewClient(requester Requester) *Client {
	return &Client{
		requester: requester,
	}
}

func (c *Client) request(request *message.DatabaseRequest) (*message.DatabaseResponse, error) {
	if c.closed.Load() {
		return nil, database.ErrClosed
	}

	msg, err := c.requester.Request(context.Background(), request)
	if err != nil {
		return nil, err
	}
	response, ok := msg.(*message.DatabaseResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", errUnexpectedResponse, msg.Op(), request.Action)
	}
	if err := errCodeToErr(response.Err); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) Has(key []byte) (bool, error) {
	response, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseHas,
		Key:    key,
	})
	if err != nil {
		return false, err
	}
	return response.Has, nil
}

func (c *Client) Get(key []byte) ([]byte, error) {
	response, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseGet,
		Key:    key,
	})
	if err != nil {
		return nil, err
	}
	return response.Value, nil
}

func (c *Client) Put(key, value []byte) error {
	_, err := c.request(&message.DatabaseRequest{
		Action: message.DatabasePut,
		Key:    key,
		Value:  value,
	})
	return err
}

func (c *Client) Delete(key []byte) error {
	_, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseDelete,
		Key:    key,
	})
	return err
}

func (c *Client) NewBatch() database.Batch {
	return &batch{db: c}
}

func (c *Client) NewIterator() database.Iterator {
	return c.NewIteratorWithStartAndPrefix(nil, nil)
}

func (c *Client) NewIteratorWithStart(start []byte) database.Iterator {
	return c.NewIteratorWithStartAndPrefix(start, nil)
}

func (c *Client) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return c.NewIteratorWithStartAndPrefix(nil, prefix)
}

func (c *Client) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator {
	response, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseNewIterator,
		Start:  start,
		Prefix: prefix,
	})
	if err != nil {
		return &database.IteratorError{
			Err: err,
		}
	}
	return &iterator{
		db: c,
		id: response.IteratorID,
	}
}

func (c *Client) Compact(start, limit []byte) error {
	_, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseCompact,
		Start:  start,
		Limit:  limit,
	})
	return err
}

// Close stops the Client from making requests.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return database.ErrClosed
	}
	return nil
}

// HealthCheck returns the health details of the remote database as raw JSON.
func (c *Client) HealthCheck(context.Context) (interface{}, error) {
	response, err := c.request(&message.DatabaseRequest{
		Action: message.DatabaseHealth,
	})
	if err != nil {
		return nil, err
	}
	if len(response.Value) == 0 {
		return nil, nil
	}
	return json.RawMessage(response.Value), nil
}

type batch struct {
	database.BatchOps

	db *Client
}

func (b *batch) Write() error {
	ops := make([]message.KeyValue, len(b.Ops))
	for i, op := range b.Ops {
		ops[i] = message.KeyValue{
			Key:    op.Key,
			Value:  op.Value,
			Delete: op.Delete,
		}
	}
	_, err := b.db.request(&message.DatabaseRequest{
		Action: message.DatabaseWriteBatch,
		Ops:    ops,
	})
	return err
}

func (b *batch) Inner() database.Batch {
	return b
}

// iterator fetches the pairs of a remote iterator in batches.
type iterator struct {
	db *Client
	id uint64

	// Pairs fetched but not yet visited.
	data      []message.KeyValue
	exhausted bool
	key       []byte
	value     []byte
	err       error
	released  bool
}

func (it *iterator) Next() bool {
	if it.err == nil && len(it.data) == 0 && !it.exhausted {
		it.fetch()
	}
	if len(it.data) == 0 {
		it.key = nil
		it.value = nil
		return false
	}

	it.key = it.data[0].Key
	it.value = it.data[0].Value
	it.data[0] = message.KeyValue{}
	it.data = it.data[1:]
	return true
}

func (it *iterator) fetch() {
	response, err := it.db.request(&message.DatabaseRequest{
		Action:     message.DatabaseIteratorNext,
		IteratorID: it.id,
		MaxBytes:   defaultIteratorBatchBytes,
	})
	if err != nil {
		it.err = err
		return
	}
	it.data = response.Pairs
	it.exhausted = len(it.data) == 0
}

func (it *iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	_, err := it.db.request(&message.DatabaseRequest{
		Action:     message.DatabaseIteratorError,
		IteratorID: it.id,
	})
	it.err = err
	return err
}

func (it *iterator) Key() []byte {
	return it.key
}

func (it *iterator) Value() []byte {
	return it.value
}

func (it *iterator) Release() {
	if it.released {
		return
	}
	it.released = true
	it.data = nil
	it.key = nil
	it.value = nil
	if it.db.closed.Load() {
		return
	}
	_, _ = it.db.request(&message.DatabaseRequest{
		Action:     message.DatabaseIteratorRelease,
		IteratorID: it.id,
	})
}
