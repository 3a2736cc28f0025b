// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

const (
	// Child index, child ID, child key count
	estimatedHashValuesChildLen = 2*binary.MaxVarintLen16 + ids.IDLen
	estimatedKeyLen             = 64
)

// Field numbers of the proof encodings.
const (
	proofNodeKeyField         protowire.Number = 1
	proofNodeValueOrHashField protowire.Number = 2
	proofNodeChildField       protowire.Number = 3

	proofChildIndexField protowire.Number = 1
	proofChildIDField    protowire.Number = 2
	proofChildKeysField  protowire.Number = 3

	keyChangeKeyField   protowire.Number = 1
	keyChangeValueField protowire.Number = 2

	startProofField protowire.Number = 1
	endProofField   protowire.Number = 2
	keyChangesField protowire.Number = 3

	proofKeyField   protowire.Number = 1
	proofValueField protowire.Number = 2
	proofPathField  protowire.Number = 3
)

var (
	codec = newCodec()

	ErrMalformedProof = errors.New("malformed proof")

	errChildIndexTooLarge = errors.New("child index too large")
	errDuplicateChild     = errors.New("duplicate child index")
)

func newCodec() *codecImpl {
	return &codecImpl{
		varIntPool: sync.Pool{
			New: func() interface{} {
				return make([]byte, binary.MaxVarintLen64)
			},
		},
	}
}

// Note that bytes.Buffer.Write always returns nil so we
// can ignore its return values in [codecImpl] methods.
type codecImpl struct {
	// Invariant: Every byte slice returned by [varIntPool] has
	// length [binary.MaxVarintLen64].
	varIntPool sync.Pool
}

// encodeHashValues returns the bytes that are hashed to generate [n]'s ID.
func (c *codecImpl) encodeHashValues(n *node) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(n.children)*estimatedHashValuesChildLen+estimatedKeyLen))

	c.encodeUint(buf, uint64(len(n.children)))

	// ensure that the order of entries is consistent
	indices := maps.Keys(n.children)
	slices.Sort(indices)
	for _, index := range indices {
		entry := n.children[index]
		c.encodeUint(buf, uint64(index))
		_, _ = buf.Write(entry.id[:])
		c.encodeUint(buf, entry.keys)
	}
	c.encodeMaybeByteSlice(buf, n.valueDigest)
	c.encodeByteSlice(buf, []byte(n.key))
	return buf.Bytes()
}

func (c *codecImpl) encodeBool(dst *bytes.Buffer, value bool) {
	if value {
		_ = dst.WriteByte(1)
		return
	}
	_ = dst.WriteByte(0)
}

func (c *codecImpl) encodeUint(dst *bytes.Buffer, value uint64) {
	buf := c.varIntPool.Get().([]byte)
	size := binary.PutUvarint(buf, value)
	_, _ = dst.Write(buf[:size])
	c.varIntPool.Put(buf)
}

func (c *codecImpl) encodeMaybeByteSlice(dst *bytes.Buffer, maybeValue maybe.Maybe[[]byte]) {
	hasValue := maybeValue.HasValue()
	c.encodeBool(dst, hasValue)
	if hasValue {
		c.encodeByteSlice(dst, maybeValue.Value())
	}
}

func (c *codecImpl) encodeByteSlice(dst *bytes.Buffer, value []byte) {
	c.encodeUint(dst, uint64(len(value)))
	_, _ = dst.Write(value)
}

func appendProofNodes(b []byte, num protowire.Number, nodes []ProofNode) []byte {
	for _, n := range nodes {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, n.appendTo(nil))
	}
	return b
}

func (n ProofNode) appendTo(b []byte) []byte {
	b = protowire.AppendTag(b, proofNodeKeyField, protowire.BytesType)
	b = protowire.AppendBytes(b, n.Key)
	if n.ValueOrHash.HasValue() {
		b = protowire.AppendTag(b, proofNodeValueOrHashField, protowire.BytesType)
		b = protowire.AppendBytes(b, n.ValueOrHash.Value())
	}

	indices := maps.Keys(n.Children)
	slices.Sort(indices)
	for _, index := range indices {
		entry := n.Children[index]

		var child []byte
		child = protowire.AppendTag(child, proofChildIndexField, protowire.VarintType)
		child = protowire.AppendVarint(child, uint64(index))
		child = protowire.AppendTag(child, proofChildIDField, protowire.BytesType)
		child = protowire.AppendBytes(child, entry.ID[:])
		child = protowire.AppendTag(child, proofChildKeysField, protowire.VarintType)
		child = protowire.AppendVarint(child, entry.Keys)

		b = protowire.AppendTag(b, proofNodeChildField, protowire.BytesType)
		b = protowire.AppendBytes(b, child)
	}
	return b
}

func (n *ProofNode) unmarshal(b []byte) error {
	*n = ProofNode{
		Children: make(map[byte]ProofChild),
	}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case proofNodeKeyField:
			key, err := fieldBytes(typ, v)
			n.Key = key
			return err
		case proofNodeValueOrHashField:
			valueOrHash, err := fieldBytes(typ, v)
			n.ValueOrHash = maybe.Some(valueOrHash)
			return err
		case proofNodeChildField:
			childBytes, err := fieldBytes(typ, v)
			if err != nil {
				return err
			}
			index, entry, err := unmarshalProofChild(childBytes)
			if err != nil {
				return err
			}
			if _, ok := n.Children[index]; ok {
				return fmt.Errorf("%w: %s %d", ErrMalformedProof, errDuplicateChild, index)
			}
			n.Children[index] = entry
		}
		return nil
	})
}

func unmarshalProofChild(b []byte) (byte, ProofChild, error) {
	var (
		index uint64
		entry ProofChild
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case proofChildIndexField:
			var err error
			index, err = fieldVarint(typ, v)
			return err
		case proofChildIDField:
			idBytes, err := fieldBytes(typ, v)
			if err != nil {
				return err
			}
			entry.ID, err = ids.ToID(idBytes)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrMalformedProof, err)
			}
		case proofChildKeysField:
			var err error
			entry.Keys, err = fieldVarint(typ, v)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, ProofChild{}, err
	}
	if index > math.MaxUint8 {
		return 0, ProofChild{}, fmt.Errorf("%w: %s %d", ErrMalformedProof, errChildIndexTooLarge, index)
	}
	return byte(index), entry, nil
}

func unmarshalProofNodes(typ protowire.Type, v []byte, nodes []ProofNode) ([]ProofNode, error) {
	nodeBytes, err := fieldBytes(typ, v)
	if err != nil {
		return nil, err
	}
	var n ProofNode
	if err := n.unmarshal(nodeBytes); err != nil {
		return nil, err
	}
	return append(nodes, n), nil
}

func appendKeyChanges(b []byte, changes []KeyChange) []byte {
	for _, change := range changes {
		var entry []byte
		entry = protowire.AppendTag(entry, keyChangeKeyField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, change.Key)
		if change.Value.HasValue() {
			entry = protowire.AppendTag(entry, keyChangeValueField, protowire.BytesType)
			entry = protowire.AppendBytes(entry, change.Value.Value())
		}

		b = protowire.AppendTag(b, keyChangesField, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func unmarshalKeyChange(typ protowire.Type, v []byte) (KeyChange, error) {
	changeBytes, err := fieldBytes(typ, v)
	if err != nil {
		return KeyChange{}, err
	}
	var change KeyChange
	err = forEachField(changeBytes, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case keyChangeKeyField:
			key, err := fieldBytes(typ, v)
			change.Key = key
			return err
		case keyChangeValueField:
			value, err := fieldBytes(typ, v)
			change.Value = maybe.Some(value)
			return err
		}
		return nil
	})
	return change, err
}

// marshalKeyChangeProof encodes the shared shape of range and change proofs.
func marshalKeyChangeProof(startProof, endProof []ProofNode, changes []KeyChange) []byte {
	var b []byte
	b = appendProofNodes(b, startProofField, startProof)
	b = appendProofNodes(b, endProofField, endProof)
	return appendKeyChanges(b, changes)
}

func unmarshalKeyChangeProof(b []byte) ([]ProofNode, []ProofNode, []KeyChange, error) {
	var (
		startProof []ProofNode
		endProof   []ProofNode
		changes    []KeyChange
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case startProofField:
			startProof, err = unmarshalProofNodes(typ, v, startProof)
		case endProofField:
			endProof, err = unmarshalProofNodes(typ, v, endProof)
		case keyChangesField:
			var change KeyChange
			change, err = unmarshalKeyChange(typ, v)
			changes = append(changes, change)
		}
		return err
	})
	return startProof, endProof, changes, err
}

// forEachField calls [fn] with the number, wire type and raw value of every
// field in [b]. Fields [fn] doesn't recognize should be ignored.
func forEachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformedProof, protowire.ParseError(n))
		}
		b = b[n:]

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrMalformedProof, protowire.ParseError(n))
		}
		if err := fn(num, typ, b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func fieldBytes(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: unexpected wire type %d", ErrMalformedProof, typ)
	}
	value, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedProof, protowire.ParseError(n))
	}
	return append([]byte{}, value...), nil
}

func fieldVarint(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: unexpected wire type %d", ErrMalformedProof, typ)
	}
	value, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrMalformedProof, protowire.ParseError(n))
	}
	return value, nil
}

func (proof *Proof) MarshalBinary() []byte {
	var b []byte
	b = protowire.AppendTag(b, proofKeyField, protowire.BytesType)
	b = protowire.AppendBytes(b, proof.Key)
	if proof.Value.HasValue() {
		b = protowire.AppendTag(b, proofValueField, protowire.BytesType)
		b = protowire.AppendBytes(b, proof.Value.Value())
	}
	return appendProofNodes(b, proofPathField, proof.Path)
}

func (proof *Proof) UnmarshalBinary(b []byte) error {
	*proof = Proof{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case proofKeyField:
			proof.Key, err = fieldBytes(typ, v)
		case proofValueField:
			var value []byte
			value, err = fieldBytes(typ, v)
			proof.Value = maybe.Some(value)
		case proofPathField:
			proof.Path, err = unmarshalProofNodes(typ, v, proof.Path)
		}
		return err
	})
}
