// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	_ Message = (*DatabaseRequest)(nil)
	_ Message = (*DatabaseResponse)(nil)

	errUnknownDatabaseAction = errors.New("unknown database action")
)

// DatabaseAction is the operation a DatabaseRequest asks the database owner
// to perform.
type DatabaseAction uint32

const (
	DatabaseHas DatabaseAction = iota + 1
	DatabaseGet
	DatabasePut
	DatabaseDelete
	DatabaseWriteBatch
	DatabaseCompact
	DatabaseHealth
	DatabaseNewIterator
	DatabaseIteratorNext
	DatabaseIteratorError
	DatabaseIteratorRelease
)

func (a DatabaseAction) String() string {
	switch a {
	case DatabaseHas:
		return "has"
	case DatabaseGet:
		return "get"
	case DatabasePut:
		return "put"
	case DatabaseDelete:
		return "delete"
	case DatabaseWriteBatch:
		return "write_batch"
	case DatabaseCompact:
		return "compact"
	case DatabaseHealth:
		return "health"
	case DatabaseNewIterator:
		return "new_iterator"
	case DatabaseIteratorNext:
		return "iterator_next"
	case DatabaseIteratorError:
		return "iterator_error"
	case DatabaseIteratorRelease:
		return "iterator_release"
	default:
		return "unknown"
	}
}

// KeyValue is a key and its value. In a batch, [Delete] removes [Key].
type KeyValue struct {
	Key    []byte
	Value  []byte
	Delete bool
}

func appendKeyValues(b []byte, num protowire.Number, kvs []KeyValue) []byte {
	for _, kv := range kvs {
		var kvBytes []byte
		kvBytes = appendNonEmptyBytes(kvBytes, 1, kv.Key)
		kvBytes = appendNonEmptyBytes(kvBytes, 2, kv.Value)
		kvBytes = appendBool(kvBytes, 3, kv.Delete)
		b = appendBytes(b, num, kvBytes)
	}
	return b
}

func readKeyValue(typ protowire.Type, v []byte) (KeyValue, error) {
	kvBytes, err := readBytes(typ, v)
	if err != nil {
		return KeyValue{}, err
	}
	var kv KeyValue
	err = forEachField(kvBytes, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			kv.Key, err = readBytes(typ, v)
		case 2:
			kv.Value, err = readBytes(typ, v)
		case 3:
			kv.Delete, err = readBool(typ, v)
		}
		return err
	})
	return kv, err
}

// DatabaseRequest asks the owner of a database to perform [Action].
//
// [Key] is set for [DatabaseHas], [DatabaseGet], [DatabasePut] and
// [DatabaseDelete]. [Ops] holds the writes of [DatabaseWriteBatch].
// [DatabaseCompact] compacts [Start, Limit) and [DatabaseNewIterator] iterates
// from [Start] over the keys with [Prefix]. Every other iterator action
// refers to [IteratorID]. [MaxBytes] bounds the pairs returned by
// [DatabaseIteratorNext].
type DatabaseRequest struct {
	Action     DatabaseAction
	Key        []byte
	Value      []byte
	Start      []byte
	Limit      []byte
	Prefix     []byte
	Ops        []KeyValue
	IteratorID uint64
	MaxBytes   uint32
}

func (*DatabaseRequest) Op() Op {
	return DatabaseRequestOp
}

func (r *DatabaseRequest) verify() error {
	if r.Action < DatabaseHas || r.Action > DatabaseIteratorRelease {
		return fmt.Errorf("%w: %d", errUnknownDatabaseAction, r.Action)
	}
	return nil
}

func (r *DatabaseRequest) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.Action))
	b = appendNonEmptyBytes(b, 2, r.Key)
	b = appendNonEmptyBytes(b, 3, r.Value)
	b = appendNonEmptyBytes(b, 4, r.Start)
	b = appendNonEmptyBytes(b, 5, r.Limit)
	b = appendNonEmptyBytes(b, 6, r.Prefix)
	b = appendKeyValues(b, 7, r.Ops)
	b = appendUint64(b, 8, r.IteratorID)
	return appendUint64(b, 9, uint64(r.MaxBytes))
}

func (r *DatabaseRequest) unmarshal(b []byte) error {
	*r = DatabaseRequest{}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			var action uint32
			action, err = readUint32(typ, v)
			r.Action = DatabaseAction(action)
		case 2:
			r.Key, err = readBytes(typ, v)
		case 3:
			r.Value, err = readBytes(typ, v)
		case 4:
			r.Start, err = readBytes(typ, v)
		case 5:
			r.Limit, err = readBytes(typ, v)
		case 6:
			r.Prefix, err = readBytes(typ, v)
		case 7:
			var kv KeyValue
			kv, err = readKeyValue(typ, v)
			r.Ops = append(r.Ops, kv)
		case 8:
			r.IteratorID, err = readUint64(typ, v)
		case 9:
			r.MaxBytes, err = readUint32(typ, v)
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := r.verify(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	return nil
}

// DatabaseResponse is the result of a DatabaseRequest. [Err] is the code of a
// database error the request ended with, 0 if it succeeded.
type DatabaseResponse struct {
	Err uint32
	// Result of [DatabaseHas].
	Has bool
	// Result of [DatabaseGet] and details of [DatabaseHealth].
	Value []byte
	// Result of [DatabaseNewIterator].
	IteratorID uint64
	// Result of [DatabaseIteratorNext]. Empty once the iterator is exhausted.
	Pairs []KeyValue
}

func (*DatabaseResponse) Op() Op {
	return DatabaseResponseOp
}

func (r *DatabaseResponse) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.Err))
	b = appendBool(b, 2, r.Has)
	b = appendNonEmptyBytes(b, 3, r.Value)
	b = appendUint64(b, 4, r.IteratorID)
	return appendKeyValues(b, 5, r.Pairs)
}

func (r *DatabaseResponse) unmarshal(b []byte) error {
	*r = DatabaseResponse{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.Err, err = readUint32(typ, v)
		case 2:
			r.Has, err = readBool(typ, v)
		case 3:
			r.Value, err = readBytes(typ, v)
		case 4:
			r.IteratorID, err = readUint64(typ, v)
		case 5:
			var kv KeyValue
			kv, err = readKeyValue(typ, v)
			r.Pairs = append(r.Pairs, kv)
		}
		return err
	})
}
