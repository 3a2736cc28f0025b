// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/exp/slices"
)

var (
	errPipeClosed = errors.New("pipe closed")

	_ Conn = (*pipeConn)(nil)
)

// pipeConn is one end of an in-memory Conn. A Send blocks until the other
// end receives the frame.
type pipeConn struct {
	in         <-chan []byte
	out        chan<- []byte
	closed     chan struct{}
	peerClosed <-chan struct{}
	closeOnce  sync.Once
}

func newPipe() (*pipeConn, *pipeConn) {
	var (
		aToB    = make(chan []byte)
		bToA    = make(chan []byte)
		aClosed = make(chan struct{})
		bClosed = make(chan struct{})
	)
	a := &pipeConn{
		in:         bToA,
		out:        aToB,
		closed:     aClosed,
		peerClosed: bClosed,
	}
	b := &pipeConn{
		in:         aToB,
		out:        bToA,
		closed:     bClosed,
		peerClosed: aClosed,
	}
	return a, b
}

func (c *pipeConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return errPipeClosed
	case <-c.peerClosed:
		return io.ErrClosedPipe
	default:
	}

	select {
	case c.out <- slices.Clone(frame):
		return nil
	case <-c.closed:
		return errPipeClosed
	case <-c.peerClosed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.closed:
		return nil, errPipeClosed
	case <-c.peerClosed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *pipeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
