// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"context"
	"fmt"

	"github.com/ava-labs/vmsync/message"
)

var (
	_ Client = (*ServerClient)(nil)
)

// Client fetches proofs from a single peer. Responses are verified by the
// caller.
type Client interface {
	GetRangeProof(ctx context.Context, request *message.RangeProofRequest) (*message.RangeProofResponse, error)
	GetChangeProof(ctx context.Context, request *message.ChangeProofRequest) (*message.ChangeProofResponse, error)
}

// ServerClient answers requests with a NetworkServer in the same process.
// Requests and responses are passed through the wire codec so that the
// answers are exactly those a remote peer would send.
type ServerClient struct {
	server *NetworkServer
}

func NewServerClient(server *NetworkServer) *ServerClient {
	return &ServerClient{
		server: server,
	}
}

func (c *ServerClient) GetRangeProof(ctx context.Context, request *message.RangeProofRequest) (*message.RangeProofResponse, error) {
	request, err := roundTrip(request)
	if err != nil {
		return nil, err
	}
	response, err := c.server.HandleRangeProofRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	return roundTrip(response)
}

func (c *ServerClient) GetChangeProof(ctx context.Context, request *message.ChangeProofRequest) (*message.ChangeProofResponse, error) {
	request, err := roundTrip(request)
	if err != nil {
		return nil, err
	}
	response, err := c.server.HandleChangeProofRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	return roundTrip(response)
}

func roundTrip[T message.Message](msg T) (T, error) {
	var zero T
	msgBytes, err := message.Encode(msg)
	if err != nil {
		return zero, err
	}
	parsed, err := message.Decode(msgBytes)
	if err != nil {
		return zero, err
	}
	typed, ok := parsed.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", errUnexpectedResponse, parsed.Op())
	}
	return typed, nil
}
