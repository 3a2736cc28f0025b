// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/choices"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/x/merkledb"
)

var (
	_ Message = (*RangeProofRequest)(nil)
	_ Message = (*ChangeProofRequest)(nil)
	_ Message = (*RangeProofResponse)(nil)
	_ Message = (*ChangeProofResponse)(nil)
	_ Message = (*VersionRequest)(nil)
	_ Message = (*VersionResponse)(nil)
	_ Message = (*HealthRequest)(nil)
	_ Message = (*HealthResponse)(nil)
	_ Message = (*BlockRequest)(nil)
	_ Message = (*BlockResponse)(nil)
	_ Message = (*SetPreferenceRequest)(nil)
	_ Message = (*ErrorResponse)(nil)
	_ Message = (*Empty)(nil)
	_ Message = (*Notification)(nil)

	ErrInvalidRequest = errors.New("invalid request")

	errStartAfterEnd       = errors.New("start key is greater than end key")
	errNoProof             = errors.New("change proof response has no proof")
	errMultipleProofs      = errors.New("change proof response has both a change and a range proof")
	errUnknownBlockAction  = errors.New("unknown block action")
	errUnknownNotification = errors.New("unknown notification")
	errEmptyRootHash       = errors.New("root hash is empty")
)

// Message is one of the messages of the plugin protocol. The set of messages
// is closed: every implementation is declared in this package.
type Message interface {
	Op() Op

	appendTo(b []byte) []byte
	unmarshal(b []byte) error
}

// verifier is implemented by messages with invariants beyond their encoding.
type verifier interface {
	verify() error
}

func verifyBounds(start, end maybe.Maybe[[]byte]) error {
	if start.HasValue() && end.HasValue() && bytes.Compare(start.Value(), end.Value()) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, errStartAfterEnd)
	}
	return nil
}

// RangeProofRequest requests the key-value pairs in [StartKey, EndKey] of the
// trie with root [RootHash].
type RangeProofRequest struct {
	RootHash ids.ID
	// Nothing means the range is unbounded.
	StartKey maybe.Maybe[[]byte]
	EndKey   maybe.Maybe[[]byte]
	// 0 means [DefaultKeyLimit].
	KeyLimit uint32
	// 0 means [DefaultBytesLimit].
	BytesLimit uint32
}

func (*RangeProofRequest) Op() Op {
	return RangeProofRequestOp
}

// EffectiveKeyLimit returns the key limit a server applies to [r].
func (r *RangeProofRequest) EffectiveKeyLimit() int {
	return EffectiveKeyLimit(r.KeyLimit)
}

// EffectiveBytesLimit returns the bytes limit a server applies to [r].
func (r *RangeProofRequest) EffectiveBytesLimit() int {
	return EffectiveBytesLimit(r.BytesLimit)
}

// Verify returns an error if [r] can't be served.
func (r *RangeProofRequest) Verify() error {
	if r.RootHash == ids.Empty {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, errEmptyRootHash)
	}
	return verifyBounds(r.StartKey, r.EndKey)
}

func (r *RangeProofRequest) appendTo(b []byte) []byte {
	b = appendID(b, 1, r.RootHash)
	b = appendMaybeBytes(b, 2, r.StartKey)
	b = appendMaybeBytes(b, 3, r.EndKey)
	b = appendUint64(b, 4, uint64(r.KeyLimit))
	return appendUint64(b, 5, uint64(r.BytesLimit))
}

func (r *RangeProofRequest) unmarshal(b []byte) error {
	*r = RangeProofRequest{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.RootHash, err = readID(typ, v)
		case 2:
			r.StartKey, err = readMaybeBytes(typ, v)
		case 3:
			r.EndKey, err = readMaybeBytes(typ, v)
		case 4:
			r.KeyLimit, err = readUint32(typ, v)
		case 5:
			r.BytesLimit, err = readUint32(typ, v)
		}
		return err
	})
}

// ChangeProofRequest requests the changes to the key-value pairs in
// [StartKey, EndKey] between the tries with roots [StartRootHash] and
// [EndRootHash].
type ChangeProofRequest struct {
	StartRootHash ids.ID
	EndRootHash   ids.ID
	StartKey      maybe.Maybe[[]byte]
	EndKey        maybe.Maybe[[]byte]
	KeyLimit      uint32
	BytesLimit    uint32
}

func (*ChangeProofRequest) Op() Op {
	return ChangeProofRequestOp
}

func (r *ChangeProofRequest) EffectiveKeyLimit() int {
	return EffectiveKeyLimit(r.KeyLimit)
}

func (r *ChangeProofRequest) EffectiveBytesLimit() int {
	return EffectiveBytesLimit(r.BytesLimit)
}

// Verify returns an error if [r] can't be served.
func (r *ChangeProofRequest) Verify() error {
	if r.EndRootHash == ids.Empty {
		return fmt.Errorf("%w: end %s", ErrInvalidRequest, errEmptyRootHash)
	}
	return verifyBounds(r.StartKey, r.EndKey)
}

func (r *ChangeProofRequest) appendTo(b []byte) []byte {
	b = appendID(b, 1, r.StartRootHash)
	b = appendID(b, 2, r.EndRootHash)
	b = appendMaybeBytes(b, 3, r.StartKey)
	b = appendMaybeBytes(b, 4, r.EndKey)
	b = appendUint64(b, 5, uint64(r.KeyLimit))
	return appendUint64(b, 6, uint64(r.BytesLimit))
}

func (r *ChangeProofRequest) unmarshal(b []byte) error {
	*r = ChangeProofRequest{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.StartRootHash, err = readID(typ, v)
		case 2:
			r.EndRootHash, err = readID(typ, v)
		case 3:
			r.StartKey, err = readMaybeBytes(typ, v)
		case 4:
			r.EndKey, err = readMaybeBytes(typ, v)
		case 5:
			r.KeyLimit, err = readUint32(typ, v)
		case 6:
			r.BytesLimit, err = readUint32(typ, v)
		}
		return err
	})
}

type RangeProofResponse struct {
	Proof *merkledb.RangeProof
}

func (*RangeProofResponse) Op() Op {
	return RangeProofResponseOp
}

func (r *RangeProofResponse) appendTo(b []byte) []byte {
	if r.Proof == nil {
		return b
	}
	return appendBytes(b, 1, r.Proof.MarshalBinary())
}

func (r *RangeProofResponse) unmarshal(b []byte) error {
	r.Proof = &merkledb.RangeProof{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		proofBytes, err := readBytes(typ, v)
		if err != nil {
			return err
		}
		if err := r.Proof.UnmarshalBinary(proofBytes); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedMessage, err)
		}
		return nil
	})
}

// ChangeProofResponse holds either a change proof or, if the server couldn't
// produce one, a range proof of the same range at the requested end root.
type ChangeProofResponse struct {
	ChangeProof *merkledb.ChangeProof
	RangeProof  *merkledb.RangeProof
}

func (*ChangeProofResponse) Op() Op {
	return ChangeProofResponseOp
}

func (r *ChangeProofResponse) verify() error {
	switch {
	case r.ChangeProof == nil && r.RangeProof == nil:
		return errNoProof
	case r.ChangeProof != nil && r.RangeProof != nil:
		return errMultipleProofs
	default:
		return nil
	}
}

func (r *ChangeProofResponse) appendTo(b []byte) []byte {
	if r.ChangeProof != nil {
		b = appendBytes(b, 1, r.ChangeProof.MarshalBinary())
	}
	if r.RangeProof != nil {
		b = appendBytes(b, 2, r.RangeProof.MarshalBinary())
	}
	return b
}

func (r *ChangeProofResponse) unmarshal(b []byte) error {
	*r = ChangeProofResponse{}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var proof interface{ UnmarshalBinary([]byte) error }
		switch num {
		case 1:
			r.ChangeProof = &merkledb.ChangeProof{}
			proof = r.ChangeProof
		case 2:
			r.RangeProof = &merkledb.RangeProof{}
			proof = r.RangeProof
		default:
			return nil
		}
		proofBytes, err := readBytes(typ, v)
		if err != nil {
			return err
		}
		if err := proof.UnmarshalBinary(proofBytes); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformedMessage, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.verify(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	return nil
}

// VersionRequest opens a session. It is the first message sent by the host.
type VersionRequest struct {
	ProtocolVersion uint32
	AppVersion      string
}

func (*VersionRequest) Op() Op {
	return VersionRequestOp
}

func (r *VersionRequest) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.ProtocolVersion))
	return appendNonEmptyBytes(b, 2, []byte(r.AppVersion))
}

func (r *VersionRequest) unmarshal(b []byte) error {
	*r = VersionRequest{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.ProtocolVersion, err = readUint32(typ, v)
		case 2:
			r.AppVersion, err = readString(typ, v)
		}
		return err
	})
}

type VersionResponse struct {
	ProtocolVersion uint32
	AppVersion      string
}

func (*VersionResponse) Op() Op {
	return VersionResponseOp
}

func (r *VersionResponse) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.ProtocolVersion))
	return appendNonEmptyBytes(b, 2, []byte(r.AppVersion))
}

func (r *VersionResponse) unmarshal(b []byte) error {
	*r = VersionResponse{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.ProtocolVersion, err = readUint32(typ, v)
		case 2:
			r.AppVersion, err = readString(typ, v)
		}
		return err
	})
}

type HealthRequest struct{}

func (*HealthRequest) Op() Op {
	return HealthRequestOp
}

func (*HealthRequest) appendTo(b []byte) []byte {
	return b
}

func (*HealthRequest) unmarshal(b []byte) error {
	return forEachField(b, func(protowire.Number, protowire.Type, []byte) error {
		return nil
	})
}

type HealthResponse struct {
	// Opaque description of the VM's health.
	Details []byte
}

func (*HealthResponse) Op() Op {
	return HealthResponseOp
}

func (r *HealthResponse) appendTo(b []byte) []byte {
	return appendNonEmptyBytes(b, 1, r.Details)
}

func (r *HealthResponse) unmarshal(b []byte) error {
	*r = HealthResponse{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		var err error
		r.Details, err = readBytes(typ, v)
		return err
	})
}

// BlockAction is the operation a BlockRequest asks the VM to perform.
type BlockAction uint32

const (
	BlockParse BlockAction = iota + 1
	BlockGet
	BlockVerify
	BlockAccept
	BlockReject
	BlockLastAccepted
)

func (a BlockAction) String() string {
	switch a {
	case BlockParse:
		return "parse"
	case BlockGet:
		return "get"
	case BlockVerify:
		return "verify"
	case BlockAccept:
		return "accept"
	case BlockReject:
		return "reject"
	case BlockLastAccepted:
		return "last_accepted"
	default:
		return "unknown"
	}
}

// BlockRequest asks the VM to perform [Action]. [Bytes] is set for
// [BlockParse], [BlockID] for every other action but [BlockLastAccepted].
type BlockRequest struct {
	Action  BlockAction
	BlockID ids.ID
	Bytes   []byte
}

func (*BlockRequest) Op() Op {
	return BlockRequestOp
}

func (r *BlockRequest) verify() error {
	if r.Action < BlockParse || r.Action > BlockLastAccepted {
		return fmt.Errorf("%w: %d", errUnknownBlockAction, r.Action)
	}
	return nil
}

func (r *BlockRequest) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.Action))
	b = appendID(b, 2, r.BlockID)
	return appendNonEmptyBytes(b, 3, r.Bytes)
}

func (r *BlockRequest) unmarshal(b []byte) error {
	*r = BlockRequest{}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			var action uint32
			action, err = readUint32(typ, v)
			r.Action = BlockAction(action)
		case 2:
			r.BlockID, err = readID(typ, v)
		case 3:
			r.Bytes, err = readBytes(typ, v)
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

// BlockResponse describes a block known to the VM.
type BlockResponse struct {
	ID        ids.ID
	ParentID  ids.ID
	Height    uint64
	Timestamp time.Time
	Bytes     []byte
	Status    choices.Status
}

func (*BlockResponse) Op() Op {
	return BlockResponseOp
}

func (r *BlockResponse) verify() error {
	return r.Status.Valid()
}

func (r *BlockResponse) appendTo(b []byte) []byte {
	b = appendID(b, 1, r.ID)
	b = appendID(b, 2, r.ParentID)
	b = appendUint64(b, 3, r.Height)
	b = appendInt64(b, 4, r.Timestamp.Unix())
	b = appendNonEmptyBytes(b, 5, r.Bytes)
	return appendUint64(b, 6, uint64(r.Status))
}

func (r *BlockResponse) unmarshal(b []byte) error {
	*r = BlockResponse{
		Timestamp: time.Unix(0, 0).UTC(),
	}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.ID, err = readID(typ, v)
		case 2:
			r.ParentID, err = readID(typ, v)
		case 3:
			r.Height, err = readUint64(typ, v)
		case 4:
			var timestamp int64
			timestamp, err = readInt64(typ, v)
			r.Timestamp = time.Unix(timestamp, 0).UTC()
		case 5:
			r.Bytes, err = readBytes(typ, v)
		case 6:
			var status uint32
			status, err = readUint32(typ, v)
			r.Status = choices.Status(status)
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

type SetPreferenceRequest struct {
	BlockID ids.ID
}

func (*SetPreferenceRequest) Op() Op {
	return SetPreferenceRequestOp
}

func (r *SetPreferenceRequest) appendTo(b []byte) []byte {
	return appendID(b, 1, r.BlockID)
}

func (r *SetPreferenceRequest) unmarshal(b []byte) error {
	*r = SetPreferenceRequest{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		var err error
		r.BlockID, err = readID(typ, v)
		return err
	})
}

// ErrorResponse reports that a request failed. [Code] identifies errors that
// the receiver can classify. 0 is an unclassified error described by
// [Message].
type ErrorResponse struct {
	Code    uint32
	Message string
}

func (*ErrorResponse) Op() Op {
	return ErrorResponseOp
}

func (r *ErrorResponse) appendTo(b []byte) []byte {
	b = appendUint64(b, 1, uint64(r.Code))
	return appendNonEmptyBytes(b, 2, []byte(r.Message))
}

func (r *ErrorResponse) unmarshal(b []byte) error {
	*r = ErrorResponse{}
	return forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		var err error
		switch num {
		case 1:
			r.Code, err = readUint32(typ, v)
		case 2:
			r.Message, err = readString(typ, v)
		}
		return err
	})
}

// Empty acknowledges a request that has no result.
type Empty struct{}

func (*Empty) Op() Op {
	return EmptyOp
}

func (*Empty) appendTo(b []byte) []byte {
	return b
}

func (*Empty) unmarshal(b []byte) error {
	return forEachField(b, func(protowire.Number, protowire.Type, []byte) error {
		return nil
	})
}

// NotificationKind is an event the VM reports to the host without being
// asked.
type NotificationKind uint32

const (
	PendingTxs NotificationKind = iota + 1
	StateSyncDone
)

func (k NotificationKind) String() string {
	switch k {
	case PendingTxs:
		return "pending_txs"
	case StateSyncDone:
		return "state_sync_done"
	default:
		return "unknown"
	}
}

type Notification struct {
	Kind NotificationKind
}

func (*Notification) Op() Op {
	return NotificationOp
}

func (n *Notification) verify() error {
	if n.Kind < PendingTxs || n.Kind > StateSyncDone {
		return fmt.Errorf("%w: %d", errUnknownNotification, n.Kind)
	}
	return nil
}

func (n *Notification) appendTo(b []byte) []byte {
	return appendUint64(b, 1, uint64(n.Kind))
}

func (n *Notification) unmarshal(b []byte) error {
	*n = Notification{}
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		kind, err := readUint32(typ, v)
		n.Kind = NotificationKind(kind)
		return err
	})
	if err != nil {
		return err
	}
	if err := n.verify(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	return nil
}
