// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"context"
	"fmt"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/vms/components/chain"
	"github.com/ava-labs/vmsync/x/sync"
)

var (
	_ sync.Client    = (*Session)(nil)
	_ chain.Executor = (*Executor)(nil)
)

// Version returns the version the VM reported during the handshake.
func (s *Session) Version() string {
	return s.vmVersion
}

// Health asks the VM for its health details.
func (s *Session) Health(ctx context.Context) ([]byte, error) {
	response, err := request[*message.HealthResponse](ctx, s, &message.HealthRequest{})
	if err != nil {
		return nil, err
	}
	return response.Details, nil
}

func (s *Session) ParseBlock(ctx context.Context, blockBytes []byte) (*chain.Block, error) {
	return s.blockRequest(ctx, &message.BlockRequest{
		Action: message.BlockParse,
		Bytes:  blockBytes,
	})
}

func (s *Session) GetBlock(ctx context.Context, blkID ids.ID) (*chain.Block, error) {
	return s.blockRequest(ctx, &message.BlockRequest{
		Action:  message.BlockGet,
		BlockID: blkID,
	})
}

// LastAccepted returns the last block the VM accepted.
func (s *Session) LastAccepted(ctx context.Context) (*chain.Block, error) {
	return s.blockRequest(ctx, &message.BlockRequest{
		Action: message.BlockLastAccepted,
	})
}

func (s *Session) VerifyBlock(ctx context.Context, blkID ids.ID) error {
	return s.blockDecision(ctx, message.BlockVerify, blkID)
}

func (s *Session) AcceptBlock(ctx context.Context, blkID ids.ID) error {
	return s.blockDecision(ctx, message.BlockAccept, blkID)
}

func (s *Session) RejectBlock(ctx context.Context, blkID ids.ID) error {
	return s.blockDecision(ctx, message.BlockReject, blkID)
}

func (s *Session) SetPreference(ctx context.Context, blkID ids.ID) error {
	_, err := request[*message.Empty](ctx, s, &message.SetPreferenceRequest{
		BlockID: blkID,
	})
	return err
}

func (s *Session) GetRangeProof(ctx context.Context, req *message.RangeProofRequest) (*message.RangeProofResponse, error) {
	return request[*message.RangeProofResponse](ctx, s, req)
}

func (s *Session) GetChangeProof(ctx context.Context, req *message.ChangeProofRequest) (*message.ChangeProofResponse, error) {
	return request[*message.ChangeProofResponse](ctx, s, req)
}

func (s *Session) blockRequest(ctx context.Context, req *message.BlockRequest) (*chain.Block, error) {
	response, err := request[*message.BlockResponse](ctx, s, req)
	if err != nil {
		return nil, err
	}
	return &chain.Block{
		ID:        response.ID,
		Parent:    response.ParentID,
		Height:    response.Height,
		Timestamp: response.Timestamp,
		Bytes:     response.Bytes,
		Status:    response.Status,
	}, nil
}

func (s *Session) blockDecision(ctx context.Context, action message.BlockAction, blkID ids.ID) error {
	_, err := request[*message.Empty](ctx, s, &message.BlockRequest{
		Action:  action,
		BlockID: blkID,
	})
	return err
}

// request sends [msg] and returns the response if it has type [T].
func request[T message.Message](ctx context.Context, s *Session, msg message.Message) (T, error) {
	var zero T
	response, err := s.Request(ctx, msg)
	if err != nil {
		return zero, err
	}
	typed, ok := response.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %T but got %s",
			errUnexpectedResponse,
			zero,
			response.Op(),
		)
	}
	return typed, nil
}

// Executor applies the decisions of a chain.State to the VM of a Session.
type Executor struct {
	session *Session
}

func NewExecutor(session *Session) *Executor {
	return &Executor{
		session: session,
	}
}

func (e *Executor) Verify(ctx context.Context, blk *chain.Block) error {
	return e.session.VerifyBlock(ctx, blk.ID)
}

func (e *Executor) Accept(ctx context.Context, blk *chain.Block) error {
	return e.session.AcceptBlock(ctx, blk.ID)
}

func (e *Executor) Reject(ctx context.Context, blk *chain.Block) error {
	return e.session.RejectBlock(ctx, blk.ID)
}

func (e *Executor) SetPreference(ctx context.Context, blkID ids.ID) error {
	return e.session.SetPreference(ctx, blkID)
}
