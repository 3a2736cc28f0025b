// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcutils

import (
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const (
	// Minimum time a client should wait between keepalive pings.
	// grpc-go default 5 mins
	defaultServerKeepAliveMinTime = 5 * time.Second
	// If the server doesn't see any activity for this long it pings the
	// client. grpc-go default 2h
	defaultServerKeepAliveInterval = 2 * time.Hour
	// Time the server waits for a keepalive ack before closing the
	// connection. grpc-go default 20s
	defaultServerKeepAliveTimeout = 20 * time.Second
)

// DefaultServerOptions allow frames of any size and a single long lived
// stream per session.
var DefaultServerOptions = []grpc.ServerOption{
	grpc.MaxRecvMsgSize(math.MaxInt),
	grpc.MaxSendMsgSize(math.MaxInt),
	grpc.MaxConcurrentStreams(math.MaxUint32),
	grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
		MinTime:             defaultServerKeepAliveMinTime,
		PermitWithoutStream: defaultPermitWithoutStream,
	}),
	grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    defaultServerKeepAliveInterval,
		Timeout: defaultServerKeepAliveTimeout,
	}),
}

// NewServer returns a gRPC server using [DefaultServerOptions] followed by
// [opts].
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	// A fresh slice so concurrent callers never share a backing array.
	serverOpts := make([]grpc.ServerOption, 0, len(DefaultServerOptions)+len(opts))
	serverOpts = append(serverOpts, DefaultServerOptions...)
	serverOpts = append(serverOpts, opts...)
	return grpc.NewServer(serverOpts...)
}
