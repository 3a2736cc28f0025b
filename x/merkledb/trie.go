// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

var errOpaqueSubtree = errors.New("path passes through a subtree without nodes")

// trie is an immutable radix-256 Merkle trie. The root, if any, is at the empty
// key. Updates return a new trie sharing unmodified nodes with the old one.
type trie struct {
	root *node
}

func (t trie) rootID() ids.ID {
	if t.root == nil {
		return ids.Empty
	}
	return t.root.id
}

func (t trie) len() int {
	if t.root == nil {
		return 0
	}
	return int(t.root.keys)
}

// get returns the value of [key] or Nothing if it isn't in the trie.
func (t trie) get(key []byte) maybe.Maybe[[]byte] {
	k := string(key)
	n := t.root
	for n != nil {
		if n.key == k {
			return n.value
		}
		if !strings.HasPrefix(k, n.key) {
			break
		}
		c, ok := n.children[k[len(n.key)]]
		if !ok {
			break
		}
		n = c.node
	}
	return maybe.Nothing[[]byte]()
}

// put returns a trie where [key] maps to [value].
func (t trie) put(key, value []byte) (trie, error) {
	value = slices.Clone(value)
	if value == nil {
		value = []byte{}
	}
	root, err := update(t.rootOrEmpty(), string(key), func(n *node) error {
		n.setValue(maybe.Some(value))
		return nil
	})
	return trie{root: root}, err
}

// remove returns a trie without [key].
func (t trie) remove(key []byte) trie {
	if t.root == nil {
		return t
	}
	root := removeKey(t.root, string(key))
	if root == nil || (root.keys == 0 && len(root.children) == 0) {
		return trie{}
	}
	return trie{root: root}
}

// apply returns a trie with [changes] applied in order.
func (t trie) apply(changes []KeyChange) (trie, error) {
	var err error
	for _, change := range changes {
		if change.Value.IsNothing() {
			t = t.remove(change.Key)
			continue
		}
		t, err = t.put(change.Key, change.Value.Value())
		if err != nil {
			return trie{}, err
		}
	}
	return t, nil
}

func (t trie) rootOrEmpty() *node {
	if t.root != nil {
		return t.root
	}
	return &node{}
}

// update returns a copy of [n] where [fn] has been applied to the node at
// [key], creating that node and splitting compressed paths as needed.
//
// Assumes [n.key] is a prefix of [key].
func update(n *node, key string, fn func(*node) error) (*node, error) {
	if n.key == key {
		updated := n.clone()
		if err := fn(updated); err != nil {
			return nil, err
		}
		updated.finalize()
		return updated, nil
	}

	index := key[len(n.key)]
	existing, ok := n.children[index]
	var (
		newChild *node
		err      error
	)
	switch {
	case !ok:
		newChild, err = update(&node{key: key}, key, fn)
	case existing.node == nil:
		return nil, errOpaqueSubtree
	case strings.HasPrefix(key, existing.node.key):
		newChild, err = update(existing.node, key, fn)
	default:
		// Split the compressed path to [existing] at the first differing
		// byte.
		prefixLen := commonPrefixLen(key, existing.node.key)
		branch := newNode(
			key[:prefixLen],
			maybe.Nothing[[]byte](),
			map[byte]*child{
				existing.node.key[prefixLen]: existing,
			},
		)
		newChild, err = update(branch, key, fn)
	}
	if err != nil {
		return nil, err
	}

	parent := n.clone()
	parent.children[index] = newChild.asChild()
	parent.finalize()
	return parent, nil
}

// removeKey returns a copy of [n] without [key]. Nodes left without a value
// and with at most one child are removed. The returned node may be nil.
func removeKey(n *node, key string) *node {
	var updated *node
	if n.key == key {
		if n.value.IsNothing() {
			return n
		}
		updated = n.clone()
		updated.setValue(maybe.Nothing[[]byte]())
	} else {
		if !strings.HasPrefix(key, n.key) {
			return n
		}
		index := key[len(n.key)]
		existing, ok := n.children[index]
		if !ok || existing.node == nil {
			return n
		}
		newChild := removeKey(existing.node, key)
		if newChild == existing.node {
			return n
		}
		updated = n.clone()
		if newChild == nil {
			delete(updated.children, index)
		} else {
			updated.children[index] = newChild.asChild()
		}
	}

	// The root is kept at the empty key.
	if updated.key != "" && !updated.hasValue() {
		switch len(updated.children) {
		case 0:
			return nil
		case 1:
			for _, c := range updated.children {
				if c.node != nil {
					return c.node
				}
			}
		}
	}
	updated.finalize()
	return updated
}

// iterate calls [fn] on every key-value pair with a key >= [start] in
// increasing key order until [fn] returns false.
func (t trie) iterate(start []byte, fn func(key, value []byte) bool) {
	if t.root == nil {
		return
	}
	iterateNode(t.root, string(start), fn)
}

func iterateNode(n *node, start string, fn func(key, value []byte) bool) bool {
	if n.value.HasValue() && n.key >= start {
		if !fn([]byte(n.key), n.value.Value()) {
			return false
		}
	}
	indices := maps.Keys(n.children)
	slices.Sort(indices)
	for _, index := range indices {
		c := n.children[index]
		if c.node == nil {
			continue
		}
		// Skip subtrees that only contain keys before [start].
		if c.node.key < start && !strings.HasPrefix(start, c.node.key) {
			continue
		}
		if !iterateNode(c.node, start, fn) {
			return false
		}
	}
	return true
}

// keyValues returns the key-value pairs in [start, end] in increasing key
// order. At most [maxLength] pairs are returned if [maxLength] > 0.
func (t trie) keyValues(start, end maybe.Maybe[[]byte], maxLength int) []KeyChange {
	var changes []KeyChange
	t.iterate(start.Value(), func(key, value []byte) bool {
		if end.HasValue() && bytes.Compare(key, end.Value()) > 0 {
			return false
		}
		changes = append(changes, KeyChange{
			Key:   key,
			Value: maybe.Some(slices.Clone(value)),
		})
		return maxLength <= 0 || len(changes) < maxLength
	})
	return changes
}

// getProof returns the nodes from the root towards [key]. Every node but the
// last has a key that is a prefix of [key]. If no node exists at [key], the
// last node is the node that would be the parent of [key] or the child of
// that parent on the path to [key].
func (t trie) getProof(key []byte) []ProofNode {
	if t.root == nil {
		return nil
	}
	k := string(key)
	var path []ProofNode
	n := t.root
	for {
		path = append(path, n.asProofNode())
		if n.key == k || !strings.HasPrefix(k, n.key) {
			return path
		}
		c, ok := n.children[k[len(n.key)]]
		if !ok || c.node == nil {
			return path
		}
		n = c.node
	}
}

// getRangeProof returns a proof of at most [maxLength] key-value pairs in
// [start, end].
func (t trie) getRangeProof(start, end maybe.Maybe[[]byte], maxLength int) (*RangeProof, error) {
	switch {
	case start.HasValue() && end.HasValue() && bytes.Compare(start.Value(), end.Value()) > 0:
		return nil, ErrStartAfterEnd
	case maxLength <= 0:
		return nil, ErrInvalidMaxLength
	case t.root == nil:
		return &RangeProof{}, nil
	}

	proof := &RangeProof{
		KeyChanges: t.keyValues(start, end, maxLength),
	}
	switch {
	case len(proof.KeyChanges) > 0:
		proof.EndProof = t.getProof(proof.KeyChanges[len(proof.KeyChanges)-1].Key)
	case end.HasValue():
		proof.EndProof = t.getProof(end.Value())
	}
	if start.HasValue() {
		proof.StartProof = t.getProof(start.Value())
	}
	return proof, nil
}
