// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import "google.golang.org/protobuf/encoding/protowire"

// Op is the type of a message. The value of an Op is the field number of the
// message in the envelope, so existing values must never change.
type Op protowire.Number

const (
	RangeProofRequestOp Op = iota + 1
	ChangeProofRequestOp
	RangeProofResponseOp
	ChangeProofResponseOp
	VersionRequestOp
	VersionResponseOp
	HealthRequestOp
	HealthResponseOp
	BlockRequestOp
	BlockResponseOp
	SetPreferenceRequestOp
	ErrorResponseOp
	EmptyOp
	NotificationOp
	DatabaseRequestOp
	DatabaseResponseOp
)

func (op Op) String() string {
	switch op {
	case RangeProofRequestOp:
		return "range_proof_request"
	case ChangeProofRequestOp:
		return "change_proof_request"
	case RangeProofResponseOp:
		return "range_proof_response"
	case ChangeProofResponseOp:
		return "change_proof_response"
	case VersionRequestOp:
		return "version_request"
	case VersionResponseOp:
		return "version_response"
	case HealthRequestOp:
		return "health_request"
	case HealthResponseOp:
		return "health_response"
	case BlockRequestOp:
		return "block_request"
	case BlockResponseOp:
		return "block_response"
	case SetPreferenceRequestOp:
		return "set_preference_request"
	case ErrorResponseOp:
		return "error_response"
	case EmptyOp:
		return "empty"
	case NotificationOp:
		return "notification"
	case DatabaseRequestOp:
		return "database_request"
	case DatabaseResponseOp:
		return "database_response"
	default:
		return "unknown"
	}
}

// newMessage returns an empty message of type [op] or false if [op] is not
// supported.
func newMessage(op Op) (Message, bool) {
	switch op {
	case RangeProofRequestOp:
		return &RangeProofRequest{}, true
	case ChangeProofRequestOp:
		return &ChangeProofRequest{}, true
	case RangeProofResponseOp:
		return &RangeProofResponse{}, true
	case ChangeProofResponseOp:
		return &ChangeProofResponse{}, true
	case VersionRequestOp:
		return &VersionRequest{}, true
	case VersionResponseOp:
		return &VersionResponse{}, true
	case HealthRequestOp:
		return &HealthRequest{}, true
	case HealthResponseOp:
		return &HealthResponse{}, true
	case BlockRequestOp:
		return &BlockRequest{}, true
	case BlockResponseOp:
		return &BlockResponse{}, true
	case SetPreferenceRequestOp:
		return &SetPreferenceRequest{}, true
	case ErrorResponseOp:
		return &ErrorResponse{}, true
	case EmptyOp:
		return &Empty{}, true
	case NotificationOp:
		return &Notification{}, true
	case DatabaseRequestOp:
		return &DatabaseRequest{}, true
	case DatabaseResponseOp:
		return &DatabaseResponse{}, true
	default:
		return nil, false
	}
}
