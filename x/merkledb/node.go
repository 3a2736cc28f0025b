// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"crypto/sha256"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

const HashLength = sha256.Size

// child is a reference from a node to one of its subtrees.
type child struct {
	id   ids.ID
	keys uint64
	// nil iff the subtree is only known by its ID and key count.
	node *node
}

// node is an immutable node of the trie. Every update produces new nodes along
// the updated path.
type node struct {
	key string
	// value is Nothing for nodes without a value and for nodes whose value is
	// only known by its digest.
	value       maybe.Maybe[[]byte]
	valueDigest maybe.Maybe[[]byte]
	children    map[byte]*child
	// number of values in the subtree rooted at this node
	keys uint64
	id   ids.ID
}

// newNode returns a finalized node holding [value].
func newNode(key string, value maybe.Maybe[[]byte], children map[byte]*child) *node {
	n := &node{
		key:         key,
		value:       value,
		valueDigest: getValueDigest(value),
		children:    children,
	}
	n.finalize()
	return n
}

// clone returns an unfinalized copy of [n] that may be modified.
func (n *node) clone() *node {
	children := make(map[byte]*child, len(n.children)+1)
	maps.Copy(children, n.children)
	return &node{
		key:         n.key,
		value:       n.value,
		valueDigest: n.valueDigest,
		children:    children,
	}
}

func (n *node) hasValue() bool {
	return n.valueDigest.HasValue()
}

func (n *node) setValue(value maybe.Maybe[[]byte]) {
	n.value = value
	n.valueDigest = getValueDigest(value)
}

// finalize recomputes the key count and ID of [n]. It must be called after
// [n] is modified and before [n] is referenced by a parent.
func (n *node) finalize() {
	if n.children == nil {
		n.children = make(map[byte]*child)
	}
	n.keys = 0
	if n.hasValue() {
		n.keys++
	}
	for _, c := range n.children {
		n.keys += c.keys
	}
	n.id = sha256.Sum256(codec.encodeHashValues(n))
}

func (n *node) asChild() *child {
	return &child{
		id:   n.id,
		keys: n.keys,
		node: n,
	}
}

// asProofNode returns the proof representation of [n].
func (n *node) asProofNode() ProofNode {
	pn := ProofNode{
		Key:         []byte(n.key),
		ValueOrHash: maybe.Bind(n.valueDigest, slices.Clone[[]byte]),
		Children:    make(map[byte]ProofChild, len(n.children)),
	}
	for index, c := range n.children {
		pn.Children[index] = ProofChild{
			ID:   c.id,
			Keys: c.keys,
		}
	}
	return pn
}

// getValueDigest returns [value] if it is at most [HashLength] bytes long and
// its hash otherwise.
func getValueDigest(value maybe.Maybe[[]byte]) maybe.Maybe[[]byte] {
	if value.IsNothing() || len(value.Value()) <= HashLength {
		return value
	}
	hash := sha256.Sum256(value.Value())
	return maybe.Some(hash[:])
}
