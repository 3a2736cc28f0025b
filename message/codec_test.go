// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/choices"
	"github.com/ava-labs/vmsync/utils/compression"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/utils/units"
	"github.com/ava-labs/vmsync/x/merkledb"
)

func TestEncodeDecode(t *testing.T) {
	tests := []Message{
		&RangeProofRequest{
			RootHash:   ids.GenerateTestID(),
			StartKey:   maybe.Some([]byte{}),
			EndKey:     maybe.Some([]byte{1, 2, 3}),
			KeyLimit:   100,
			BytesLimit: 4096,
		},
		&RangeProofRequest{
			RootHash: ids.GenerateTestID(),
			StartKey: maybe.Nothing[[]byte](),
			EndKey:   maybe.Nothing[[]byte](),
		},
		&ChangeProofRequest{
			StartRootHash: ids.GenerateTestID(),
			EndRootHash:   ids.GenerateTestID(),
			StartKey:      maybe.Some([]byte{1}),
			EndKey:        maybe.Nothing[[]byte](),
			KeyLimit:      1,
			BytesLimit:    2,
		},
		&VersionRequest{
			ProtocolVersion: 1,
			AppVersion:      "vmsync/1.0.0",
		},
		&VersionResponse{
			ProtocolVersion: 2,
		},
		&HealthRequest{},
		&HealthResponse{
			Details: []byte(`{"healthy":true}`),
		},
		&BlockRequest{
			Action: BlockParse,
			Bytes:  []byte{1, 2, 3},
		},
		&BlockRequest{
			Action:  BlockAccept,
			BlockID: ids.GenerateTestID(),
		},
		&BlockResponse{
			ID:        ids.GenerateTestID(),
			ParentID:  ids.GenerateTestID(),
			Height:    7,
			Timestamp: time.Unix(1_700_000_000, 0).UTC(),
			Bytes:     []byte{4, 5, 6},
			Status:    choices.Processing,
		},
		&SetPreferenceRequest{
			BlockID: ids.GenerateTestID(),
		},
		&ErrorResponse{
			Code:    3,
			Message: "not found",
		},
		&Empty{},
		&Notification{
			Kind: StateSyncDone,
		},
		&DatabaseRequest{
			Action: DatabasePut,
			Key:    []byte("key"),
			Value:  []byte("value"),
		},
		&DatabaseRequest{
			Action: DatabaseWriteBatch,
			Ops: []KeyValue{
				{Key: []byte{1}, Value: []byte{2}},
				{Key: []byte{3}, Delete: true},
			},
		},
		&DatabaseRequest{
			Action:     DatabaseIteratorNext,
			IteratorID: 7,
			MaxBytes:   1024,
		},
		&DatabaseResponse{
			Err:   2,
			Has:   true,
			Value: []byte("value"),
		},
		&DatabaseResponse{
			IteratorID: 3,
			Pairs: []KeyValue{
				{Key: []byte{1}, Value: []byte{2}},
				{Key: []byte{3}},
			},
		},
	}
	for _, msg := range tests {
		t.Run(msg.Op().String(), func(t *testing.T) {
			require := require.New(t)

			b, err := Encode(msg)
			require.NoError(err)

			parsed, err := Decode(b)
			require.NoError(err)
			require.Equal(msg, parsed)
		})
	}
}

func TestEncodeDecodeProofResponses(t *testing.T) {
	require := require.New(t)

	rangeProof := &merkledb.RangeProof{
		EndProof: []merkledb.ProofNode{{
			Key:         []byte{},
			ValueOrHash: maybe.Some([]byte{1}),
			Children: map[byte]merkledb.ProofChild{
				2: {ID: ids.GenerateTestID(), Keys: 4},
			},
		}},
		KeyChanges: []merkledb.KeyChange{
			{Key: []byte{1}, Value: maybe.Some([]byte{1})},
		},
	}
	changeProof := &merkledb.ChangeProof{
		KeyChanges: []merkledb.KeyChange{
			{Key: []byte{1}, Value: maybe.Nothing[[]byte]()},
		},
	}

	b, err := Encode(&RangeProofResponse{Proof: rangeProof})
	require.NoError(err)
	parsed, err := Decode(b)
	require.NoError(err)
	require.IsType(&RangeProofResponse{}, parsed)
	require.Equal(rangeProof.MarshalBinary(), parsed.(*RangeProofResponse).Proof.MarshalBinary())

	b, err = Encode(&ChangeProofResponse{ChangeProof: changeProof})
	require.NoError(err)
	parsed, err = Decode(b)
	require.NoError(err)
	response := parsed.(*ChangeProofResponse)
	require.Nil(response.RangeProof)
	require.Equal(changeProof.KeyChanges, response.ChangeProof.KeyChanges)

	b, err = Encode(&ChangeProofResponse{RangeProof: rangeProof})
	require.NoError(err)
	parsed, err = Decode(b)
	require.NoError(err)
	response = parsed.(*ChangeProofResponse)
	require.Nil(response.ChangeProof)
	require.Equal(rangeProof.MarshalBinary(), response.RangeProof.MarshalBinary())

	_, err = Encode(&ChangeProofResponse{})
	require.ErrorIs(err, errNoProof)
	_, err = Encode(&ChangeProofResponse{ChangeProof: changeProof, RangeProof: rangeProof})
	require.ErrorIs(err, errMultipleProofs)
}

func TestDecodeErrors(t *testing.T) {
	envelope := func(op Op, body []byte) []byte {
		return appendBytes(nil, protowire.Number(op), body)
	}
	valid, err := Encode(&VersionRequest{ProtocolVersion: 1, AppVersion: "v"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		b           []byte
		expectedErr error
	}{
		{
			name:        "empty",
			b:           nil,
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "truncated",
			b:           valid[:len(valid)-1],
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "bad varint",
			b:           []byte{0x0a, 0xff},
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "multiple messages",
			b:           append(envelope(HealthRequestOp, nil), envelope(EmptyOp, nil)...),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "wrong wire type",
			b:           appendUint64(nil, protowire.Number(HealthRequestOp), 1),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "unknown message",
			b:           envelope(99, []byte{1, 2, 3}),
			expectedErr: ErrUnsupportedMessage,
		},
		{
			name:        "unknown message with varint type",
			b:           appendUint64(nil, 99, 1),
			expectedErr: ErrUnsupportedMessage,
		},
		{
			name:        "wrong field wire type",
			b:           envelope(RangeProofRequestOp, appendBytes(nil, 4, []byte{1})),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "short root hash",
			b:           envelope(RangeProofRequestOp, appendBytes(nil, 1, []byte{1})),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "key limit overflow",
			b:           envelope(RangeProofRequestOp, appendUint64(nil, 4, 1<<32)),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "change proof response without proof",
			b:           envelope(ChangeProofResponseOp, nil),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "malformed proof",
			b:           envelope(RangeProofResponseOp, appendBytes(nil, 1, []byte{0x80})),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "unknown block action",
			b:           envelope(BlockRequestOp, appendUint64(nil, 1, 100)),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "unknown block status",
			b:           envelope(BlockResponseOp, appendUint64(nil, 6, 100)),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "unknown notification",
			b:           envelope(NotificationOp, nil),
			expectedErr: ErrMalformedMessage,
		},
		{
			name:        "too large",
			b:           envelope(HealthResponseOp, appendBytes(nil, 1, make([]byte, 2*units.MiB))),
			expectedErr: ErrMalformedMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.b)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	require := require.New(t)

	body := (&VersionRequest{ProtocolVersion: 5}).appendTo(nil)
	body = appendBytes(body, 50, []byte("future"))
	body = appendUint64(body, 51, 1)

	msg, err := Decode(appendBytes(nil, protowire.Number(VersionRequestOp), body))
	require.NoError(err)
	require.Equal(&VersionRequest{ProtocolVersion: 5}, msg)
}

func TestEncodeErrors(t *testing.T) {
	require := require.New(t)

	_, err := Encode(nil)
	require.ErrorIs(err, errNilMessage)

	codec, err := NewCodec(Config{MaxMessageSize: 16})
	require.NoError(err)
	_, err = codec.Encode(&HealthResponse{Details: make([]byte, 16)})
	require.ErrorIs(err, ErrMessageTooLarge)

	_, err = Encode(&BlockRequest{})
	require.ErrorIs(err, errUnknownBlockAction)

	_, err = Encode(&DatabaseRequest{Action: DatabaseIteratorRelease + 1})
	require.ErrorIs(err, errUnknownDatabaseAction)

	_, err = NewCodec(Config{})
	require.ErrorIs(err, errInvalidMaxSize)
}

func TestFrame(t *testing.T) {
	for _, compressionType := range []compression.Type{compression.TypeNone, compression.TypeGzip, compression.TypeZstd} {
		t.Run(compressionType.String(), func(t *testing.T) {
			require := require.New(t)

			config := DefaultConfig()
			config.CompressionType = compressionType
			config.CompressionThreshold = units.KiB
			codec, err := NewCodec(config)
			require.NoError(err)

			// Any codec can decode compressed frames.
			reader, err := NewCodec(DefaultConfig())
			require.NoError(err)

			small := &Frame{
				RequestID: 1,
				Message:   &HealthRequest{},
			}
			b, err := codec.EncodeFrame(small)
			require.NoError(err)
			parsed, err := reader.DecodeFrame(b)
			require.NoError(err)
			require.Equal(small, parsed)

			large := &Frame{
				RequestID: 2,
				Response:  true,
				Message: &HealthResponse{
					Details: make([]byte, 64*units.KiB),
				},
			}
			b, err = codec.EncodeFrame(large)
			require.NoError(err)
			parsed, err = reader.DecodeFrame(b)
			require.NoError(err)
			require.Equal(large.RequestID, parsed.RequestID)
			require.True(parsed.Response)
			require.Equal(large.Message, parsed.Message)
			if compressionType == compression.TypeNone {
				require.Zero(parsed.BytesSavedCompression)
				require.Greater(len(b), 64*units.KiB)
			} else {
				require.Positive(parsed.BytesSavedCompression)
				require.Less(len(b), 64*units.KiB)
			}
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	require := require.New(t)

	codec, err := NewCodec(DefaultConfig())
	require.NoError(err)

	msgBytes, err := Encode(&Empty{})
	require.NoError(err)

	// Unknown compression
	b := appendBytes(nil, frameMessageField, msgBytes)
	b = appendUint64(b, frameCompressionField, 100)
	_, err = codec.DecodeFrame(b)
	require.ErrorIs(err, ErrMalformedMessage)

	// Claims compression but isn't compressed
	b = appendBytes(nil, frameMessageField, msgBytes)
	b = appendUint64(b, frameCompressionField, uint64(compression.TypeGzip))
	_, err = codec.DecodeFrame(b)
	require.ErrorIs(err, ErrMalformedMessage)

	// No message
	_, err = codec.DecodeFrame(appendUint64(nil, frameRequestIDField, 1))
	require.ErrorIs(err, ErrMalformedMessage)
}

func TestEffectiveLimits(t *testing.T) {
	require := require.New(t)

	require.Equal(DefaultKeyLimit, EffectiveKeyLimit(0))
	require.Equal(10, EffectiveKeyLimit(10))
	require.Equal(DefaultKeyLimit, EffectiveKeyLimit(DefaultKeyLimit+1))

	require.Equal(DefaultBytesLimit, EffectiveBytesLimit(0))
	require.Equal(4096, EffectiveBytesLimit(4096))
	require.Equal(DefaultBytesLimit, EffectiveBytesLimit(1<<31))

	request := &RangeProofRequest{KeyLimit: 100}
	require.Equal(100, request.EffectiveKeyLimit())
	require.Equal(DefaultBytesLimit, request.EffectiveBytesLimit())
}

func TestRequestVerify(t *testing.T) {
	require := require.New(t)

	rangeRequest := &RangeProofRequest{
		RootHash: ids.GenerateTestID(),
		StartKey: maybe.Some([]byte{2}),
		EndKey:   maybe.Some([]byte{1}),
	}
	require.ErrorIs(rangeRequest.Verify(), ErrInvalidRequest)
	rangeRequest.EndKey = maybe.Nothing[[]byte]()
	require.NoError(rangeRequest.Verify())
	rangeRequest.RootHash = ids.Empty
	require.ErrorIs(rangeRequest.Verify(), ErrInvalidRequest)

	changeRequest := &ChangeProofRequest{
		EndRootHash: ids.GenerateTestID(),
		StartKey:    maybe.Some([]byte{1}),
		EndKey:      maybe.Some([]byte{1}),
	}
	require.NoError(changeRequest.Verify())
	changeRequest.EndRootHash = ids.Empty
	require.ErrorIs(changeRequest.Verify(), ErrInvalidRequest)
}

func FuzzDecode(f *testing.F) {
	for _, msg := range []Message{
		&RangeProofRequest{RootHash: ids.GenerateTestID(), StartKey: maybe.Some([]byte{1}), KeyLimit: 1},
		&ChangeProofResponse{ChangeProof: &merkledb.ChangeProof{}},
		&BlockResponse{ID: ids.GenerateTestID(), Status: choices.Accepted},
	} {
		b, err := Encode(msg)
		require.NoError(f, err)
		f.Add(b)
	}

	f.Fuzz(func(t *testing.T, b []byte) {
		msg, err := Decode(b)
		if err != nil {
			return
		}

		encoded, err := Encode(msg)
		require.NoError(t, err)

		parsed, err := Decode(encoded)
		require.NoError(t, err)

		reencoded, err := Encode(parsed)
		require.NoError(t, err)
		require.Equal(t, encoded, reencoded)
	})
}
