// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

func TestEncodeHashValues(t *testing.T) {
	require := require.New(t)

	leaf := newNode("ab", maybe.Some([]byte{1}), nil)
	require.Equal(
		[]byte{
			0,    // num children
			1,    // has value
			1, 1, // value digest
			2, 'a', 'b', // key
		},
		codec.encodeHashValues(leaf),
	)

	branch := newNode("a", maybe.Nothing[[]byte](), map[byte]*child{
		'b': leaf.asChild(),
	})
	encoded := codec.encodeHashValues(branch)
	require.Equal(byte(1), encoded[0])   // num children
	require.Equal(byte('b'), encoded[1]) // child index
	require.Equal(leaf.id[:], encoded[2:2+ids.IDLen])
	require.Equal(byte(1), encoded[2+ids.IDLen]) // child keys
	require.Equal([]byte{0, 1, 'a'}, encoded[3+ids.IDLen:])
}

func TestRangeProofEncodingRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	r := rand.New(rand.NewSource(1)) // #nosec G404
	db := newDB(t)
	writeRandomKeyValues(t, r, db, 200)
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	start := maybe.Some([]byte{1})
	end := maybe.Some([]byte{2, 2})
	proof, err := db.GetRangeProof(ctx, start, end, 20)
	require.NoError(err)

	encoded := proof.MarshalBinary()
	require.Len(encoded, proof.Size())

	var parsed RangeProof
	require.NoError(parsed.UnmarshalBinary(encoded))
	require.Equal(encoded, parsed.MarshalBinary())
	require.NoError(parsed.Verify(ctx, start, end, root, 20, len(encoded)))
}

func TestChangeProofEncodingKeepsDeletions(t *testing.T) {
	require := require.New(t)

	proof := &ChangeProof{
		KeyChanges: []KeyChange{
			{Key: []byte{1}, Value: maybe.Nothing[[]byte]()},
			{Key: []byte{2}, Value: maybe.Some([]byte{})},
		},
	}
	var parsed ChangeProof
	require.NoError(parsed.UnmarshalBinary(proof.MarshalBinary()))
	require.Len(parsed.KeyChanges, 2)
	require.True(parsed.KeyChanges[0].Value.IsNothing())
	require.True(parsed.KeyChanges[1].Value.HasValue())
	require.Empty(parsed.KeyChanges[1].Value.Value())
}

func TestProofEncodingRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	db := newDB(t)
	require.NoError(db.Put([]byte("key"), []byte("value")))
	require.NoError(db.Put([]byte("key1"), make([]byte, 2*HashLength)))
	root, err := db.GetMerkleRoot(ctx)
	require.NoError(err)

	for _, key := range [][]byte{[]byte("key"), []byte("key1"), []byte("other")} {
		proof, err := db.GetProof(ctx, key)
		require.NoError(err)

		var parsed Proof
		require.NoError(parsed.UnmarshalBinary(proof.MarshalBinary()))
		require.Equal(proof.MarshalBinary(), parsed.MarshalBinary())
		require.NoError(parsed.Verify(ctx, root))
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	require := require.New(t)

	proof := &RangeProof{
		EndProof: []ProofNode{{Key: []byte{}}},
		KeyChanges: []KeyChange{
			{Key: []byte{1}, Value: maybe.Some([]byte{1})},
		},
	}
	encoded := proof.MarshalBinary()
	encoded = protowire.AppendTag(encoded, 100, protowire.VarintType)
	encoded = protowire.AppendVarint(encoded, 5)

	var parsed RangeProof
	require.NoError(parsed.UnmarshalBinary(encoded))
	require.Equal(proof.MarshalBinary(), parsed.MarshalBinary())
}

func TestUnmarshalMalformed(t *testing.T) {
	varintField := func(num protowire.Number, v uint64) []byte {
		b := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}
	bytesField := func(num protowire.Number, v []byte) []byte {
		b := protowire.AppendTag(nil, num, protowire.BytesType)
		return protowire.AppendBytes(b, v)
	}
	concat := func(fields ...[]byte) []byte {
		var b []byte
		for _, f := range fields {
			b = append(b, f...)
		}
		return b
	}
	endProofNode := func(fields ...[]byte) []byte {
		return bytesField(endProofField, concat(fields...))
	}
	proofChild := func(fields ...[]byte) []byte {
		return bytesField(proofNodeChildField, concat(fields...))
	}

	tests := []struct {
		name    string
		encoded []byte
	}{
		{
			name:    "truncated tag",
			encoded: []byte{0x80},
		},
		{
			name:    "truncated bytes",
			encoded: append(protowire.AppendTag(nil, keyChangesField, protowire.BytesType), 10, 1),
		},
		{
			name:    "wrong wire type",
			encoded: varintField(startProofField, 1),
		},
		{
			name:    "child index too large",
			encoded: endProofNode(proofChild(varintField(proofChildIndexField, 256))),
		},
		{
			name:    "short child id",
			encoded: endProofNode(proofChild(bytesField(proofChildIDField, []byte{1, 2, 3}))),
		},
		{
			name: "duplicate child",
			encoded: endProofNode(
				proofChild(varintField(proofChildIndexField, 1)),
				proofChild(varintField(proofChildIndexField, 1)),
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var proof RangeProof
			err := proof.UnmarshalBinary(tt.encoded)
			require.ErrorIs(t, err, ErrMalformedProof)
		})
	}
}

func FuzzRangeProofUnmarshal(f *testing.F) {
	f.Add((&RangeProof{
		StartProof: []ProofNode{{Key: []byte{}, Children: map[byte]ProofChild{1: {ID: ids.GenerateTestID(), Keys: 3}}}},
		EndProof:   []ProofNode{{Key: []byte{2}, ValueOrHash: maybe.Some([]byte{2})}},
		KeyChanges: []KeyChange{{Key: []byte{2}, Value: maybe.Some([]byte{2})}},
	}).MarshalBinary())
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, b []byte) {
		var proof RangeProof
		if err := proof.UnmarshalBinary(b); err != nil {
			return
		}
		encoded := proof.MarshalBinary()

		var parsed RangeProof
		require.NoError(t, parsed.UnmarshalBinary(encoded))
		require.Equal(t, encoded, parsed.MarshalBinary())
	})
}
