// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/utils/units"
)

// Default bound on the bytes of the pairs returned by a single
// DatabaseIteratorNext.
const defaultIteratorBatchBytes = 128 * units.KiB

var (
	errUnknownIterator = errors.New("unknown iterator")
	errUnknownAction   = errors.New("unknown database action")
)

// Server is a database that is managed remotely.
type Server struct {
	db database.Database

	// [lock] must be held when accessing [nextIteratorID] or [iterators].
	lock           sync.Mutex
	nextIteratorID uint64
	iterators      map[uint64]database.Iterator
}

// NewServer returns a database instance that is managed remotely
func NewServer(db database.Database) *Server {
	return &Server{
		db:        db,
		iterators: make(map[uint64]database.Iterator),
	}
}

// Handle performs [request] on the database. Database errors with a code are
// reported in the response. Any other error is returned.
func (s *Server) Handle(ctx context.Context, request *message.DatabaseRequest) (*message.DatabaseResponse, error) {
	var (
		response = &message.DatabaseResponse{}
		err      error
	)
	switch request.Action {
	case message.DatabaseHas:
		response.Has, err = s.db.Has(request.Key)
	case message.DatabaseGet:
		response.Value, err = s.db.Get(request.Key)
	case message.DatabasePut:
		err = s.db.Put(request.Key, request.Value)
	case message.DatabaseDelete:
		err = s.db.Delete(request.Key)
	case message.DatabaseWriteBatch:
		err = s.writeBatch(request.Ops)
	case message.DatabaseCompact:
		err = s.db.Compact(request.Start, request.Limit)
	case message.DatabaseHealth:
		response.Value, err = s.health(ctx)
	case message.DatabaseNewIterator:
		response.IteratorID = s.newIterator(request.Start, request.Prefix)
	case message.DatabaseIteratorNext:
		response.Pairs, err = s.iteratorNext(request.IteratorID, request.MaxBytes)
	case message.DatabaseIteratorError:
		err = s.iteratorError(request.IteratorID)
	case message.DatabaseIteratorRelease:
		s.iteratorRelease(request.IteratorID)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownAction, request.Action)
	}

	if code, ok := errorToErrCode(err); ok {
		return &message.DatabaseResponse{
			Err: code,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (s *Server) writeBatch(ops []message.KeyValue) error {
	batch := s.db.NewBatch()
	for _, op := range ops {
		var err error
		if op.Delete {
			err = batch.Delete(op.Key)
		} else {
			err = batch.Put(op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	return batch.Write()
}

func (s *Server) health(ctx context.Context) ([]byte, error) {
	details, err := s.db.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

func (s *Server) newIterator(start, prefix []byte) uint64 {
	it := s.db.NewIteratorWithStartAndPrefix(start, prefix)

	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextIteratorID
	s.iterators[id] = it
	s.nextIteratorID++
	return id
}

func (s *Server) iterator(id uint64) (database.Iterator, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	it, ok := s.iterators[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errUnknownIterator, id)
	}
	return it, nil
}

// iteratorNext returns the next pairs of iterator [id], stopping once at
// least [maxBytes] were collected. An empty result means the iterator is
// exhausted.
func (s *Server) iteratorNext(id uint64, maxBytes uint32) ([]message.KeyValue, error) {
	it, err := s.iterator(id)
	if err != nil {
		return nil, err
	}
	if maxBytes == 0 {
		maxBytes = defaultIteratorBatchBytes
	}

	var (
		pairs []message.KeyValue
		size  int
	)
	for size < int(maxBytes) && it.Next() {
		key := slices.Clone(it.Key())
		value := slices.Clone(it.Value())
		pairs = append(pairs, message.KeyValue{
			Key:   key,
			Value: value,
		})
		size += len(key) + len(value)
	}
	return pairs, nil
}

func (s *Server) iteratorError(id uint64) error {
	it, err := s.iterator(id)
	if err != nil {
		return err
	}
	return it.Error()
}

func (s *Server) iteratorRelease(id uint64) {
	s.lock.Lock()
	it, ok := s.iterators[id]
	delete(s.iterators, id)
	s.lock.Unlock()

	if ok {
		it.Release()
	}
}

// ReleaseIterators releases every iterator the client left open. The
// database itself isn't closed.
func (s *Server) ReleaseIterators() {
	s.lock.Lock()
	iterators := s.iterators
	s.iterators = make(map[uint64]database.Iterator)
	s.lock.Unlock()

	for _, it := range iterators {
		it.Release()
	}
}
