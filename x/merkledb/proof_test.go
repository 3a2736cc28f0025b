// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

func Test_Proof_Empty(t *testing.T) {
	proof := &Proof{}
	err := proof.Verify(context.Background(), ids.Empty)
	require.ErrorIs(t, err, ErrEmptyProof)
}

func Test_Proof_Inclusion_Exclusion(t *testing.T) {
	require := require.New(t)

	r := rand.New(rand.NewSource(1)) // #nosec G404
	db := newDB(t)
	writeRandomKeyValues(t, r, db, 100)

	root, err := db.GetMerkleRoot(context.Background())
	require.NoError(err)

	for i := 0; i < 100; i++ {
		key := randomKey(r)
		proof, err := db.GetProof(context.Background(), key)
		require.NoError(err)
		require.NoError(proof.Verify(context.Background(), root))

		// Claim the opposite of what the proof shows.
		if proof.Value.HasValue() {
			proof.Value = maybe.Some(append(proof.Value.Value(), 1))
			require.ErrorIs(proof.Verify(context.Background(), root), ErrProofValueDoesntMatch)
		} else {
			proof.Value = maybe.Some([]byte{1})
			err := proof.Verify(context.Background(), root)
			require.ErrorIs(err, ErrInvalidProof)
		}
	}
}

func Test_Proof_Wrong_Root(t *testing.T) {
	require := require.New(t)

	db := newDB(t)
	require.NoError(db.Put([]byte("key"), []byte("value")))
	require.NoError(db.Put([]byte("key2"), []byte("value2")))

	proof, err := db.GetProof(context.Background(), []byte("key"))
	require.NoError(err)

	err = proof.Verify(context.Background(), ids.GenerateTestID())
	require.ErrorIs(err, ErrRootMismatch)
}

func Test_Proof_Exclusion_Has_Proof_Value(t *testing.T) {
	require := require.New(t)

	db := newDB(t)
	require.NoError(db.Put([]byte{1}, []byte{1}))
	require.NoError(db.Put([]byte{1, 2}, []byte{2}))

	root, err := db.GetMerkleRoot(context.Background())
	require.NoError(err)

	proof, err := db.GetProof(context.Background(), []byte{1, 3})
	require.NoError(err)
	require.True(proof.Value.IsNothing())
	require.NoError(proof.Verify(context.Background(), root))

	proof.Value = maybe.Some([]byte{3})
	err = proof.Verify(context.Background(), root)
	require.ErrorIs(err, ErrExclusionProofUnexpectedValue)
}

func TestVerifyProofPath(t *testing.T) {
	type test struct {
		name     string
		path     []ProofNode
		proofKey []byte
		wantErr  error
	}

	tests := []test{
		{
			name:     "empty",
			path:     nil,
			proofKey: []byte{2},
			wantErr:  nil,
		},
		{
			name:     "1 element inclusion proof",
			path:     []ProofNode{{Key: []byte{1}}},
			proofKey: []byte{1},
			wantErr:  nil,
		},
		{
			name:     "1 element exclusion proof",
			path:     []ProofNode{{Key: []byte{1}}},
			proofKey: []byte{2},
			wantErr:  nil,
		},
		{
			name: "non-increasing keys",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrNonIncreasingProofNodes,
		},
		{
			name: "invalid key",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 4}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrProofNodeNotForKey,
		},
		{
			name: "extra node inclusion proof",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2},
			wantErr:  ErrProofNodeNotForKey,
		},
		{
			name: "extra node exclusion proof",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 3}},
				{Key: []byte{1, 3, 4}},
			},
			proofKey: []byte{1, 2},
			wantErr:  ErrProofNodeNotForKey,
		},
		{
			name: "happy path exclusion proof with parent",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  nil,
		},
		{
			name: "happy path exclusion proof with replacement",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3, 4}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  nil,
		},
		{
			name: "happy path inclusion proof",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  nil,
		},
		{
			name: "wrong last node exclusion proof",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 4},
			wantErr:  ErrExclusionProofInvalidNode,
		},
		{
			name: "wrong mid-node exclusion proof",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
				{Key: []byte{1, 2, 3, 4}},
			},
			proofKey: []byte{1, 2, 4},
			wantErr:  ErrProofNodeNotForKey,
		},
		{
			name: "wrong last node exclusion proof with parent (possible extension)",
			path: []ProofNode{
				{Key: []byte{1}},
				{
					Key: []byte{1, 2},
					Children: map[byte]ProofChild{
						3: {},
					},
				},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrExclusionProofMissingEndNodes,
		},
		{
			name: "repeat nodes",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrNonIncreasingProofNodes,
		},
		{
			name: "repeat nodes 2",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrNonIncreasingProofNodes,
		},
		{
			name: "repeat nodes 3",
			path: []ProofNode{
				{Key: []byte{1}},
				{Key: []byte{1, 2}},
				{Key: []byte{1, 2, 3}},
				{Key: []byte{1, 2, 3}},
			},
			proofKey: []byte{1, 2, 3},
			wantErr:  ErrProofNodeNotForKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyProofPath(tt.path, tt.proofKey)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// A store holding a, b and c yields a proof of exactly those entries that
// rebuilds the same root in an empty store.
func Test_RangeProof_Full_Store(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	require.NoError(db.Put([]byte("b"), []byte("2")))
	require.NoError(db.Put([]byte("c"), []byte("3")))
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetRangeProofAtRoot(ctx, root, nothing(), nothing(), 100)
	require.NoError(err)
	require.Equal([]KeyChange{
		{Key: []byte("a"), Value: someBytes("1")},
		{Key: []byte("b"), Value: someBytes("2")},
		{Key: []byte("c"), Value: someBytes("3")},
	}, proof.KeyChanges)
	require.Empty(proof.StartProof)
	require.NotEmpty(proof.EndProof)

	require.NoError(proof.Verify(ctx, nothing(), nothing(), root, 100, 4096))

	empty := newDB(t)
	require.NoError(empty.CommitRangeProof(ctx, nothing(), nothing(), proof))
	gotRoot, err := empty.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(root, gotRoot)
}

// Updating b from 2 to 5 yields a change proof of exactly that change which
// moves a store at the old root to the new root.
func Test_ChangeProof_Single_Update(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	require.NoError(db.Put([]byte("b"), []byte("2")))
	require.NoError(db.Put([]byte("c"), []byte("3")))
	startRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	other := copyDB(t, db)

	require.NoError(db.Put([]byte("b"), []byte("5")))
	endRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetChangeProof(ctx, startRoot, endRoot, nothing(), nothing(), 100)
	require.NoError(err)
	require.Equal([]KeyChange{
		{Key: []byte("b"), Value: someBytes("5")},
	}, proof.KeyChanges)

	require.NoError(other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 100, 4096))
	require.NoError(other.CommitChangeProof(ctx, proof))

	gotRoot, err := other.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(endRoot, gotRoot)
}

func Test_RangeProof_Syntactic_Verify(t *testing.T) {
	ctx := context.Background()

	db := newDB(t)
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put([]byte(key), []byte(key)))
	}
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(t, err)
	validProof, err := db.GetRangeProof(ctx, nothing(), nothing(), 10)
	require.NoError(t, err)

	type test struct {
		name        string
		start       maybe.Maybe[[]byte]
		end         maybe.Maybe[[]byte]
		root        ids.ID
		keyLimit    int
		bytesLimit  int
		proof       *RangeProof
		expectedErr error
	}

	tests := []test{
		{
			name:        "start after end",
			start:       someBytes("b"),
			end:         someBytes("a"),
			root:        root,
			proof:       validProof,
			expectedErr: ErrStartAfterEnd,
		},
		{
			name:        "too many keys",
			start:       nothing(),
			end:         nothing(),
			root:        root,
			keyLimit:    2,
			proof:       validProof,
			expectedErr: ErrLimitExceeded,
		},
		{
			name:        "too many bytes",
			start:       nothing(),
			end:         nothing(),
			root:        root,
			bytesLimit:  1,
			proof:       validProof,
			expectedErr: ErrLimitExceeded,
		},
		{
			name:        "empty proof of non-empty trie",
			start:       nothing(),
			end:         nothing(),
			root:        root,
			proof:       &RangeProof{},
			expectedErr: ErrIncomplete,
		},
		{
			name:        "empty proof of empty trie",
			start:       nothing(),
			end:         nothing(),
			root:        ids.Empty,
			proof:       &RangeProof{},
			expectedErr: nil,
		},
		{
			name:  "unexpected start proof",
			start: nothing(),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				StartProof: validProof.EndProof,
				EndProof:   validProof.EndProof,
				KeyChanges: validProof.KeyChanges,
			},
			expectedErr: ErrUnexpectedStartProof,
		},
		{
			name:  "unexpected end proof",
			start: someBytes("a"),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				EndProof: validProof.EndProof,
			},
			expectedErr: ErrUnexpectedEndProof,
		},
		{
			name:  "no end proof",
			start: nothing(),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				KeyChanges: validProof.KeyChanges,
			},
			expectedErr: ErrNoEndProof,
		},
		{
			name:  "deletion",
			start: nothing(),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				EndProof: validProof.EndProof,
				KeyChanges: []KeyChange{
					{Key: []byte("c"), Value: nothing()},
				},
			},
			expectedErr: ErrDeletionInRangeProof,
		},
		{
			name:  "out of order",
			start: nothing(),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				EndProof: validProof.EndProof,
				KeyChanges: []KeyChange{
					validProof.KeyChanges[1],
					validProof.KeyChanges[0],
					validProof.KeyChanges[2],
				},
			},
			expectedErr: ErrOutOfOrder,
		},
		{
			name:  "duplicate key",
			start: nothing(),
			end:   nothing(),
			root:  root,
			proof: &RangeProof{
				EndProof: validProof.EndProof,
				KeyChanges: []KeyChange{
					validProof.KeyChanges[0],
					validProof.KeyChanges[0],
				},
			},
			expectedErr: ErrOutOfOrder,
		},
		{
			name:        "key after end",
			start:       nothing(),
			end:         someBytes("b"),
			root:        root,
			proof:       validProof,
			expectedErr: ErrKeyOutOfRange,
		},
		{
			name:        "key before start",
			start:       someBytes("b"),
			end:         nothing(),
			root:        root,
			proof:       &RangeProof{StartProof: validProof.EndProof, EndProof: validProof.EndProof, KeyChanges: validProof.KeyChanges},
			expectedErr: ErrKeyOutOfRange,
		},
		{
			name:        "wrong root",
			start:       nothing(),
			end:         nothing(),
			root:        ids.GenerateTestID(),
			proof:       validProof,
			expectedErr: ErrRootMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.proof.Verify(ctx, tt.start, tt.end, tt.root, tt.keyLimit, tt.bytesLimit)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func Test_RangeProof_BadBounds(t *testing.T) {
	require := require.New(t)

	db := newDB(t)
	_, err := db.GetRangeProof(context.Background(), someBytes("b"), someBytes("a"), 50)
	require.ErrorIs(err, ErrStartAfterEnd)

	_, err = db.GetRangeProof(context.Background(), nothing(), nothing(), 0)
	require.ErrorIs(err, ErrInvalidMaxLength)
}

func Test_RangeProof_Truncated(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	for i := 0; i < 10; i++ {
		require.NoError(db.Put([]byte{byte(i)}, []byte{byte(i)}))
	}
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetRangeProof(ctx, maybe.Some([]byte{2}), maybe.Some([]byte{8}), 3)
	require.NoError(err)
	require.Len(proof.KeyChanges, 3)
	require.Equal([]byte{4}, proof.Largest().Value())
	require.NoError(proof.Verify(ctx, maybe.Some([]byte{2}), maybe.Some([]byte{8}), root, 3, 0))

	// The rest of the range is proven by a second proof.
	rest, err := db.GetRangeProof(ctx, maybe.Some(nextKey([]byte{4})), maybe.Some([]byte{8}), 10)
	require.NoError(err)
	require.Len(rest.KeyChanges, 4)
	require.NoError(rest.Verify(ctx, maybe.Some(nextKey([]byte{4})), maybe.Some([]byte{8}), root, 10, 0))
}

func Test_RangeProof_Empty_Range(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	require.NoError(db.Put([]byte("d"), []byte("2")))
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetRangeProof(ctx, someBytes("b"), someBytes("c"), 10)
	require.NoError(err)
	require.Empty(proof.KeyChanges)
	require.NoError(proof.Verify(ctx, someBytes("b"), someBytes("c"), root, 10, 0))

	// Claiming nothing after b hides d.
	proof, err = db.GetRangeProof(ctx, someBytes("b"), nothing(), 10)
	require.NoError(err)
	require.Len(proof.KeyChanges, 1)
	proof.KeyChanges = nil
	proof.EndProof = nil
	require.ErrorIs(proof.Verify(ctx, someBytes("b"), nothing(), root, 10, 0), ErrIncomplete)
}

func Test_ChangeProof_Missing_History(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	_, err = db.GetChangeProof(ctx, root, ids.GenerateTestID(), nothing(), nothing(), 10)
	require.ErrorIs(err, ErrNoEndRoot)
	require.ErrorIs(err, ErrInsufficientHistory)

	_, err = db.GetChangeProof(ctx, ids.GenerateTestID(), root, nothing(), nothing(), 10)
	require.ErrorIs(err, ErrInsufficientHistory)

	_, err = db.GetRangeProofAtRoot(ctx, ids.GenerateTestID(), nothing(), nothing(), 10)
	require.ErrorIs(err, ErrInsufficientHistory)
}

func Test_ChangeProof_History_Eviction(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	config := NewConfig()
	config.HistoryLength = 2
	db, err := New(ctx, memdb.New(), config)
	require.NoError(err)

	require.NoError(db.Put([]byte("a"), []byte("1")))
	first, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	require.NoError(db.Put([]byte("a"), []byte("2")))
	require.NoError(db.Put([]byte("a"), []byte("3")))
	last, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	_, err = db.GetChangeProof(ctx, first, last, nothing(), nothing(), 10)
	require.ErrorIs(err, ErrInsufficientHistory)
}

func Test_ChangeProof_Deletions(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	for _, key := range []string{"a", "ab", "b", "c"} {
		require.NoError(db.Put([]byte(key), []byte(key)))
	}
	startRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	other := copyDB(t, db)

	require.NoError(db.Delete([]byte("ab")))
	require.NoError(db.Delete([]byte("c")))
	endRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetChangeProof(ctx, startRoot, endRoot, nothing(), nothing(), 10)
	require.NoError(err)
	require.Equal([]KeyChange{
		{Key: []byte("ab"), Value: nothing()},
		{Key: []byte("c"), Value: nothing()},
	}, proof.KeyChanges)

	require.NoError(other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 10, 0))
	require.NoError(other.CommitChangeProof(ctx, proof))
	gotRoot, err := other.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(endRoot, gotRoot)
}

func Test_ChangeProof_To_Empty_Root(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	require.NoError(db.Put([]byte("b"), []byte("2")))
	startRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	other := copyDB(t, db)

	require.NoError(db.Clear())
	endRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(ids.Empty, endRoot)

	proof, err := db.GetChangeProof(ctx, startRoot, endRoot, nothing(), nothing(), 10)
	require.NoError(err)
	require.Len(proof.KeyChanges, 2)
	require.Empty(proof.EndProof)

	require.NoError(other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 10, 0))
	require.NoError(other.CommitChangeProof(ctx, proof))
	gotRoot, err := other.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(ids.Empty, gotRoot)
}

func Test_ChangeProof_Empty_Proves_Equal_Range(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	require.NoError(db.Put([]byte("c"), []byte("3")))
	startRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	other := copyDB(t, db)

	require.NoError(db.Put([]byte("c"), []byte("4")))
	endRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	// Nothing changed in [a, b].
	proof, err := db.GetChangeProof(ctx, startRoot, endRoot, someBytes("a"), someBytes("b"), 10)
	require.NoError(err)
	require.Empty(proof.KeyChanges)
	require.NoError(other.VerifyChangeProof(ctx, proof, someBytes("a"), someBytes("b"), endRoot, 10, 0))

	// Hiding the change to c is detected.
	proof, err = db.GetChangeProof(ctx, startRoot, endRoot, someBytes("a"), nothing(), 10)
	require.NoError(err)
	require.Len(proof.KeyChanges, 1)
	proof.KeyChanges = nil
	proof.EndProof = nil
	err = other.VerifyChangeProof(ctx, proof, someBytes("a"), nothing(), endRoot, 10, 0)
	require.ErrorIs(err, ErrInvalidProof)
}

func Test_ChangeProof_BadBounds(t *testing.T) {
	require := require.New(t)

	db := newDB(t)
	startRoot, err := db.GetMerkleRoot(context.Background())
	require.NoError(err)
	require.NoError(db.Put([]byte("a"), []byte("1")))
	endRoot, err := db.GetMerkleRoot(context.Background())
	require.NoError(err)

	_, err = db.GetChangeProof(context.Background(), startRoot, endRoot, someBytes("b"), someBytes("a"), 50)
	require.ErrorIs(err, ErrStartAfterEnd)

	err = db.VerifyChangeProof(context.Background(), &ChangeProof{}, someBytes("b"), someBytes("a"), endRoot, 0, 0)
	require.ErrorIs(err, ErrStartAfterEnd)
}

func Test_ChangeProof_Limits(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	startRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)
	other := copyDB(t, db)

	for i := 0; i < 5; i++ {
		require.NoError(db.Put([]byte{byte(i)}, []byte{byte(i)}))
	}
	endRoot, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	proof, err := db.GetChangeProof(ctx, startRoot, endRoot, nothing(), nothing(), 3)
	require.NoError(err)
	require.Len(proof.KeyChanges, 3)

	err = other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 2, 0)
	require.ErrorIs(err, ErrLimitExceeded)
	err = other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 0, 1)
	require.ErrorIs(err, ErrLimitExceeded)
	require.NoError(other.VerifyChangeProof(ctx, proof, nothing(), nothing(), endRoot, 3, 0))
}

func TestProofErrorsWrapInvalidProof(t *testing.T) {
	for _, err := range []error{
		ErrRootMismatch,
		ErrIncomplete,
		ErrOutOfOrder,
		ErrLimitExceeded,
		ErrKeyOutOfRange,
		ErrUnexpectedStartProof,
		ErrUnexpectedEndProof,
		ErrNoEndProof,
		ErrProofNodeNotForKey,
		ErrNonIncreasingProofNodes,
		ErrEmptyProof,
	} {
		require.ErrorIs(t, err, ErrInvalidProof)
	}
	require.NotErrorIs(t, ErrStartAfterEnd, ErrInvalidProof)
}

func TestNextKey(t *testing.T) {
	require := require.New(t)

	key := []byte{1, 2}
	next := nextKey(key)
	require.Equal([]byte{1, 2, 0}, next)
	require.Equal(1, bytes.Compare(next, key))
	require.Equal([]byte{1, 2}, key)
}
