// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

var (
	ErrInvalidProof = errors.New("invalid proof")

	ErrRootMismatch                  = fmt.Errorf("%w: root mismatch", ErrInvalidProof)
	ErrIncomplete                    = fmt.Errorf("%w: proof omits keys in its range", ErrInvalidProof)
	ErrOutOfOrder                    = fmt.Errorf("%w: keys must be strictly increasing", ErrInvalidProof)
	ErrLimitExceeded                 = fmt.Errorf("%w: proof exceeds the requested limits", ErrInvalidProof)
	ErrKeyOutOfRange                 = fmt.Errorf("%w: key is outside of the requested range", ErrInvalidProof)
	ErrUnexpectedStartProof          = fmt.Errorf("%w: start proof should be empty when start is nothing", ErrInvalidProof)
	ErrUnexpectedEndProof            = fmt.Errorf("%w: end proof should be empty when end is nothing and there are no keys", ErrInvalidProof)
	ErrNoEndProof                    = fmt.Errorf("%w: end proof is empty", ErrInvalidProof)
	ErrProofNodeNotForKey            = fmt.Errorf("%w: proof node's key is not a prefix of the proven key", ErrInvalidProof)
	ErrNonIncreasingProofNodes       = fmt.Errorf("%w: each proof node key must be a strict prefix of the next", ErrInvalidProof)
	ErrExclusionProofInvalidNode     = fmt.Errorf("%w: last node of exclusion proof is not on the path to the key", ErrInvalidProof)
	ErrExclusionProofMissingEndNodes = fmt.Errorf("%w: exclusion proof is missing the node on the path to the key", ErrInvalidProof)
	ErrEmptyProof                    = fmt.Errorf("%w: proof is empty", ErrInvalidProof)
	ErrProofValueDoesntMatch         = fmt.Errorf("%w: proven value doesn't match the proof node", ErrInvalidProof)
	ErrExclusionProofUnexpectedValue = fmt.Errorf("%w: exclusion proof has a value", ErrInvalidProof)
	ErrDeletionInRangeProof          = fmt.Errorf("%w: range proof contains a deletion", ErrInvalidProof)

	ErrStartAfterEnd    = errors.New("start key is greater than end key")
	ErrInvalidMaxLength = errors.New("expected max length to be > 0")
)

// ProofChild is the commitment to a child subtree of a proof node.
type ProofChild struct {
	ID ids.ID
	// number of values in the subtree
	Keys uint64
}

// ProofNode is a node of a Merkle proof path.
type ProofNode struct {
	Key []byte
	// Nothing if this node has no value.
	// The value itself if it is at most [HashLength] bytes long.
	// The hash of the value otherwise.
	ValueOrHash maybe.Maybe[[]byte]
	Children    map[byte]ProofChild
}

func (n ProofNode) keys() uint64 {
	var keys uint64
	if n.ValueOrHash.HasValue() {
		keys++
	}
	for _, c := range n.Children {
		keys += c.Keys
	}
	return keys
}

// KeyChange is a key and its new value. A Nothing value is a deletion.
type KeyChange struct {
	Key   []byte
	Value maybe.Maybe[[]byte]
}

// Proof is an inclusion or exclusion proof of a single key.
type Proof struct {
	// Nodes from the root towards [Key].
	Path []ProofNode
	Key  []byte
	// Nothing if this is an exclusion proof.
	Value maybe.Maybe[[]byte]
}

// Verify returns nil iff [proof] proves that [proof.Key] maps to
// [proof.Value] in the trie with root [expectedRootID].
func (proof *Proof) Verify(ctx context.Context, expectedRootID ids.ID) error {
	if len(proof.Path) == 0 {
		return ErrEmptyProof
	}
	if err := verifyProofPath(proof.Path, proof.Key); err != nil {
		return err
	}

	last := proof.Path[len(proof.Path)-1]
	if bytes.Equal(last.Key, proof.Key) {
		if !maybe.Equal(getValueDigest(proof.Value), last.ValueOrHash, bytes.Equal) {
			return ErrProofValueDoesntMatch
		}
	} else if proof.Value.HasValue() {
		return ErrExclusionProofUnexpectedValue
	}

	var (
		t   trie
		err error
	)
	if proof.Value.HasValue() {
		t, err = t.put(proof.Key, proof.Value.Value())
		if err != nil {
			return err
		}
	}
	bounds := keyBounds{
		lower: maybe.Some(proof.Key),
		upper: maybe.Some(proof.Key),
	}
	t, err = graft(t, bounds, proof.Path)
	if err != nil {
		return err
	}
	if rootID := t.rootID(); rootID != expectedRootID {
		return fmt.Errorf("%w: expected %s, got %s", ErrRootMismatch, expectedRootID, rootID)
	}
	return nil
}

// RangeProof proves that [KeyChanges] are exactly the key-value pairs of a
// trie in a range of keys.
type RangeProof struct {
	// Path to the start of the range. Empty if the range has no lower bound.
	StartProof []ProofNode
	// Path to the largest key in [KeyChanges], or to the end of the range if
	// [KeyChanges] is empty.
	EndProof []ProofNode
	// Strictly increasing keys. Every value is Some.
	KeyChanges []KeyChange
}

// Verify returns nil iff [proof] proves that [proof.KeyChanges] are all of the
// key-value pairs in [start, largest key] of the trie with root
// [expectedRootID], where largest key is the last key of [proof.KeyChanges],
// or [end] if there are none.
//
// A limit <= 0 is unlimited.
func (proof *RangeProof) Verify(
	ctx context.Context,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	expectedRootID ids.ID,
	keyLimit int,
	bytesLimit int,
) error {
	switch {
	case start.HasValue() && end.HasValue() && bytes.Compare(start.Value(), end.Value()) > 0:
		return ErrStartAfterEnd
	case keyLimit > 0 && len(proof.KeyChanges) > keyLimit:
		return fmt.Errorf("%w: %d keys > limit %d", ErrLimitExceeded, len(proof.KeyChanges), keyLimit)
	case len(proof.KeyChanges) == 0 && len(proof.StartProof) == 0 && len(proof.EndProof) == 0:
		if expectedRootID == ids.Empty {
			return nil
		}
		return fmt.Errorf("%w: empty proof for root %s", ErrIncomplete, expectedRootID)
	case start.IsNothing() && len(proof.StartProof) > 0:
		return ErrUnexpectedStartProof
	case end.IsNothing() && len(proof.KeyChanges) == 0 && len(proof.EndProof) > 0:
		return ErrUnexpectedEndProof
	case len(proof.EndProof) == 0 && (end.HasValue() || len(proof.KeyChanges) > 0):
		return ErrNoEndProof
	}
	if bytesLimit > 0 {
		if size := proof.Size(); size > bytesLimit {
			return fmt.Errorf("%w: %d bytes > limit %d", ErrLimitExceeded, size, bytesLimit)
		}
	}
	for _, change := range proof.KeyChanges {
		if change.Value.IsNothing() {
			return fmt.Errorf("%w: %x", ErrDeletionInRangeProof, change.Key)
		}
	}

	verifier := proofVerifier{
		start:      start,
		end:        end,
		startProof: proof.StartProof,
		endProof:   proof.EndProof,
		changes:    proof.KeyChanges,
	}
	return verifier.verify(ctx, nil, expectedRootID)
}

// Size returns the number of bytes of the encoded proof.
func (proof *RangeProof) Size() int {
	return len(proof.MarshalBinary())
}

func (proof *RangeProof) MarshalBinary() []byte {
	return marshalKeyChangeProof(proof.StartProof, proof.EndProof, proof.KeyChanges)
}

func (proof *RangeProof) UnmarshalBinary(b []byte) error {
	var err error
	proof.StartProof, proof.EndProof, proof.KeyChanges, err = unmarshalKeyChangeProof(b)
	return err
}

// ChangeProof proves the changes to a range of keys between two tries.
type ChangeProof struct {
	// Path to the start of the range in the end trie. Empty if the range has
	// no lower bound.
	StartProof []ProofNode
	// Path to the largest key in [KeyChanges] in the end trie, or to the end
	// of the range if [KeyChanges] is empty.
	EndProof []ProofNode
	// Strictly increasing keys. A Nothing value is a deletion.
	KeyChanges []KeyChange
}

func (proof *ChangeProof) Size() int {
	return len(proof.MarshalBinary())
}

func (proof *ChangeProof) MarshalBinary() []byte {
	return marshalKeyChangeProof(proof.StartProof, proof.EndProof, proof.KeyChanges)
}

func (proof *ChangeProof) UnmarshalBinary(b []byte) error {
	var err error
	proof.StartProof, proof.EndProof, proof.KeyChanges, err = unmarshalKeyChangeProof(b)
	return err
}

// Largest returns the largest key of the proof or Nothing if it has no keys.
func (proof *ChangeProof) Largest() maybe.Maybe[[]byte] {
	return largestKey(proof.KeyChanges)
}

// Largest returns the largest key of the proof or Nothing if it has no keys.
func (proof *RangeProof) Largest() maybe.Maybe[[]byte] {
	return largestKey(proof.KeyChanges)
}

func largestKey(changes []KeyChange) maybe.Maybe[[]byte] {
	if len(changes) == 0 {
		return maybe.Nothing[[]byte]()
	}
	return maybe.Some(changes[len(changes)-1].Key)
}

// RangeReader is the ordered local state a change proof is applied to.
type RangeReader interface {
	// GetKeyValues returns the key-value pairs in [start, end] in increasing
	// key order.
	GetKeyValues(ctx context.Context, start, end maybe.Maybe[[]byte]) ([]KeyChange, error)
}

// VerifyChangeProof returns nil iff applying [proof.KeyChanges] to the
// key-value pairs of [local] in [start, largest key] results in the key-value
// pairs in that range of the trie with root [endRootID], where largest key is
// the last key of [proof.KeyChanges], or [end] if there are none.
//
// A limit <= 0 is unlimited.
func VerifyChangeProof(
	ctx context.Context,
	proof *ChangeProof,
	local RangeReader,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	endRootID ids.ID,
	keyLimit int,
	bytesLimit int,
) error {
	switch {
	case start.HasValue() && end.HasValue() && bytes.Compare(start.Value(), end.Value()) > 0:
		return ErrStartAfterEnd
	case keyLimit > 0 && len(proof.KeyChanges) > keyLimit:
		return fmt.Errorf("%w: %d keys > limit %d", ErrLimitExceeded, len(proof.KeyChanges), keyLimit)
	}
	if bytesLimit > 0 {
		if size := proof.Size(); size > bytesLimit {
			return fmt.Errorf("%w: %d bytes > limit %d", ErrLimitExceeded, size, bytesLimit)
		}
	}
	// An empty end trie has no nodes to prove anything with.
	if endRootID != ids.Empty {
		switch {
		case start.IsNothing() && len(proof.StartProof) > 0:
			return ErrUnexpectedStartProof
		case end.IsNothing() && len(proof.KeyChanges) == 0 && len(proof.EndProof) > 0:
			return ErrUnexpectedEndProof
		case len(proof.EndProof) == 0 && (end.HasValue() || len(proof.KeyChanges) > 0):
			return ErrNoEndProof
		}
	}

	verifier := proofVerifier{
		start:      start,
		end:        end,
		startProof: proof.StartProof,
		endProof:   proof.EndProof,
		changes:    proof.KeyChanges,
	}
	return verifier.verify(ctx, local, endRootID)
}

// proofVerifier holds the state shared by range and change proof
// verification.
type proofVerifier struct {
	start      maybe.Maybe[[]byte]
	end        maybe.Maybe[[]byte]
	startProof []ProofNode
	endProof   []ProofNode
	changes    []KeyChange
}

func (v *proofVerifier) verify(ctx context.Context, local RangeReader, expectedRootID ids.ID) error {
	if err := verifyKeyChanges(v.changes, v.start, v.end); err != nil {
		return err
	}

	// [upper] is the largest key the proof speaks for.
	upper := largestKey(v.changes)
	if upper.IsNothing() {
		upper = v.end
	}

	var localChanges []KeyChange
	if local != nil {
		var err error
		localChanges, err = local.GetKeyValues(ctx, v.start, upper)
		if err != nil {
			return err
		}
	}
	localValues := make(map[string][]byte, len(localChanges))
	for _, kv := range localChanges {
		localValues[string(kv.Key)] = kv.Value.Value()
	}
	changedValues := make(map[string]maybe.Maybe[[]byte], len(v.changes))
	for _, change := range v.changes {
		changedValues[string(change.Key)] = change.Value
	}

	// Every value on the proof paths inside of the range must match the
	// resulting state.
	bounds := keyBounds{
		lower: v.start,
		upper: upper,
	}
	if err := verifyProofValues(v.startProof, bounds, changedValues, localValues); err != nil {
		return err
	}
	// When [upper] is a key of the proven trie, the end proof ends at [upper]
	// and may not hold values up to [end]. Otherwise the last node of the end
	// proof may be after [upper].
	endBounds := bounds
	if len(v.changes) > 0 && v.changes[len(v.changes)-1].Value.HasValue() {
		endBounds.upper = v.end
	}
	if err := verifyProofValues(v.endProof, endBounds, changedValues, localValues); err != nil {
		return err
	}

	if v.start.HasValue() {
		if err := verifyProofPath(v.startProof, v.start.Value()); err != nil {
			return err
		}
	}
	if upper.HasValue() {
		if err := verifyProofPath(v.endProof, upper.Value()); err != nil {
			return err
		}
	}

	// Rebuild the trie of the range and add the commitments to everything
	// outside of it.
	t, err := trie{}.apply(localChanges)
	if err != nil {
		return err
	}
	t, err = t.apply(v.changes)
	if err != nil {
		return err
	}
	t, err = graft(t, bounds, v.startProof, v.endProof)
	if err != nil {
		return err
	}

	rootID := t.rootID()
	if rootID == expectedRootID {
		return nil
	}
	if claimed, ok := v.claimedKeys(); ok && claimed > uint64(t.len()) {
		return fmt.Errorf("%w: root claims %d keys, proof accounts for %d", ErrIncomplete, claimed, t.len())
	}
	return fmt.Errorf("%w: expected %s, got %s", ErrRootMismatch, expectedRootID, rootID)
}

// claimedKeys returns the number of keys the proven root commits to.
func (v *proofVerifier) claimedKeys() (uint64, bool) {
	for _, path := range [][]ProofNode{v.endProof, v.startProof} {
		if len(path) > 0 && len(path[0].Key) == 0 {
			return path[0].keys(), true
		}
	}
	return 0, false
}

// verifyKeyChanges returns nil iff [changes] are strictly increasing and
// within [start, end].
func verifyKeyChanges(changes []KeyChange, start, end maybe.Maybe[[]byte]) error {
	bounds := keyBounds{
		lower: start,
		upper: end,
	}
	for i, change := range changes {
		if i > 0 && bytes.Compare(changes[i-1].Key, change.Key) >= 0 {
			return fmt.Errorf("%w: %x >= %x", ErrOutOfOrder, changes[i-1].Key, change.Key)
		}
		if !bounds.contains(change.Key) {
			return fmt.Errorf("%w: %x", ErrKeyOutOfRange, change.Key)
		}
	}
	return nil
}

// verifyProofValues returns an error if a node of [path] in [bounds] doesn't
// hold the value that [key] has after [changed] are applied to [local].
func verifyProofValues(
	path []ProofNode,
	bounds keyBounds,
	changed map[string]maybe.Maybe[[]byte],
	local map[string][]byte,
) error {
	for _, n := range path {
		if !bounds.contains(n.Key) {
			continue
		}
		expected, isChanged := changed[string(n.Key)]
		if !isChanged {
			expected = maybe.Nothing[[]byte]()
			if value, ok := local[string(n.Key)]; ok {
				expected = maybe.Some(value)
			}
		}
		if maybe.Equal(getValueDigest(expected), n.ValueOrHash, bytes.Equal) {
			continue
		}
		if isChanged {
			return fmt.Errorf("%w: value of %x doesn't match proof node", ErrRootMismatch, n.Key)
		}
		return fmt.Errorf("%w: proof node %x has a value that isn't included", ErrIncomplete, n.Key)
	}
	return nil
}

// verifyProofPath returns nil iff [path] is a well formed path from the root
// towards [key]. Every node but the last must have a key that is a strict
// prefix of [key] and of the next node's key. The last node may be the node at
// [key], its nearest ancestor, or the child of that ancestor on the path to
// [key].
func verifyProofPath(path []ProofNode, key []byte) error {
	if len(path) == 0 {
		return nil
	}
	k := string(key)
	for i := 0; i < len(path)-1; i++ {
		current := string(path[i].Key)
		if !hasStrictPrefix(k, current) {
			return fmt.Errorf("%w: %x", ErrProofNodeNotForKey, path[i].Key)
		}
		if !hasStrictPrefix(string(path[i+1].Key), current) {
			return fmt.Errorf("%w: %x then %x", ErrNonIncreasingProofNodes, path[i].Key, path[i+1].Key)
		}
	}

	last := string(path[len(path)-1].Key)
	switch {
	case last == k:
		return nil
	case strings.HasPrefix(k, last):
		// The next node towards [key] must not exist.
		if _, ok := path[len(path)-1].Children[k[len(last)]]; ok {
			return fmt.Errorf("%w: %x", ErrExclusionProofMissingEndNodes, key)
		}
		return nil
	case len(path) == 1:
		return nil
	default:
		// The last node must be the child of its parent towards [key].
		parentLen := len(path[len(path)-2].Key)
		if last[parentLen] != k[parentLen] {
			return fmt.Errorf("%w: %x", ErrExclusionProofInvalidNode, path[len(path)-1].Key)
		}
		return nil
	}
}

// graft returns [t] with the nodes of [paths] added to it. Values of proof
// nodes outside of [bounds] and children of proof nodes whose subtrees are
// entirely outside of [bounds] are taken from the proof.
func graft(t trie, bounds keyBounds, paths ...[]ProofNode) (trie, error) {
	root := t.root
	for _, path := range paths {
		for _, pn := range path {
			pn := pn
			key := string(pn.Key)
			if root == nil {
				root = &node{}
			}
			var err error
			root, err = update(root, key, func(n *node) error {
				if !bounds.contains(pn.Key) {
					n.value = maybe.Nothing[[]byte]()
					n.valueDigest = pn.ValueOrHash
				}
				for index, pc := range pn.Children {
					if !bounds.subtreeOutside(key + string([]byte{index})) {
						continue
					}
					if existing, ok := n.children[index]; ok && existing.node != nil {
						return fmt.Errorf("%w: subtree %x%02x has keys outside of the range", ErrRootMismatch, pn.Key, index)
					}
					n.children[index] = &child{
						id:   pc.ID,
						keys: pc.Keys,
					}
				}
				return nil
			})
			if errors.Is(err, errOpaqueSubtree) {
				return trie{}, fmt.Errorf("%w: proof node %x: %s", ErrRootMismatch, pn.Key, err)
			}
			if err != nil {
				return trie{}, err
			}
		}
	}
	return trie{root: root}, nil
}
