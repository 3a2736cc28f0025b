// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gconn carries session frames over a bidirectional gRPC stream.
package gconn

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"

	"github.com/ava-labs/vmsync/utils/wrappers"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/grpcutils"
)

const (
	serviceName = "vmsync.rpcchainvm.Conn"
	streamName  = "Frames"
	fullMethod  = "/" + serviceName + "/" + streamName
)

var (
	ErrClosed = errors.New("connection closed")

	serviceDesc = grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*frameServer)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    streamName,
				Handler:       serveFrames,
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "rpcchainvm/conn",
	}
)

// Handler serves a single connection. The connection is closed when the
// handler returns.
type Handler func(ctx context.Context, conn *Conn) error

type frameServer interface {
	handle(ctx context.Context, conn *Conn) error
}

type server struct {
	handler Handler
}

func (s *server) handle(ctx context.Context, conn *Conn) error {
	return s.handler(ctx, conn)
}

// Register serves every stream opened against [s] with [handler].
func Register(s grpc.ServiceRegistrar, handler Handler) {
	s.RegisterService(&serviceDesc, &server{handler: handler})
}

func serveFrames(srv interface{}, stream grpc.ServerStream) error {
	conn := &Conn{
		stream: stream,
		closed: make(chan struct{}),
	}
	defer conn.Close()
	return srv.(frameServer).handle(stream.Context(), conn)
}

type stream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

// Conn sends and receives opaque frames. Send may be called concurrently with
// Receive. Concurrent calls to Send are serialized.
type Conn struct {
	stream stream

	sendLock sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	// Only set on the client side.
	cancel  context.CancelFunc
	closeFn func() error
	toClose []io.Closer
}

// Dial opens a stream to a server registered with [Register]. The stream
// lives until Close is called, regardless of [ctx]. [toClose] is closed
// after the stream.
func Dial(ctx context.Context, cc grpc.ClientConnInterface, toClose ...io.Closer) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	clientStream, err := cc.NewStream(
		streamCtx,
		&serviceDesc.Streams[0],
		fullMethod,
		grpc.CallContentSubtype(grpcutils.RawCodecName),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Conn{
		stream:  clientStream,
		closed:  make(chan struct{}),
		cancel:  cancel,
		closeFn: clientStream.CloseSend,
		toClose: toClose,
	}, nil
}

func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return c.stream.SendMsg(&frame)
}

// Receive blocks until a frame arrives or the stream ends. Once the remote
// side finished sending, io.EOF is returned.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var frame []byte
	if err := c.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Close ends the stream. It is safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		errs := wrappers.Errs{}
		// A blocked Send holds [sendLock]. The stream is then torn down by
		// cancel without a graceful close.
		if c.closeFn != nil && c.sendLock.TryLock() {
			errs.Add(c.closeFn())
			c.sendLock.Unlock()
		}
		if c.cancel != nil {
			c.cancel()
		}
		for _, closer := range c.toClose {
			errs.Add(closer.Close())
		}
		c.closeErr = errs.Err
	})
	return c.closeErr
}
