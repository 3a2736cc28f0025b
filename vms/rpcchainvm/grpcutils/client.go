// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcutils

import (
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const (
	// Interval between keepalive pings when the connection is idle.
	// grpc-go default infinity
	defaultClientKeepAliveTime = 30 * time.Second
	// Time the client waits for a keepalive ack before closing the
	// connection. grpc-go default 20s
	defaultClientKeepAliveTimeOut = 10 * time.Second
	// Allow keepalive pings without active streams.
	// grpc-go default false
	defaultPermitWithoutStream = true
)

// DefaultDialOptions are the options used to connect to a VM process. The
// VM is always local so the transport is insecure.
var DefaultDialOptions = []grpc.DialOption{
	grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(math.MaxInt),
		grpc.MaxCallSendMsgSize(math.MaxInt),
		grpc.WaitForReady(true),
	),
	grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                defaultClientKeepAliveTime,
		Timeout:             defaultClientKeepAliveTimeOut,
		PermitWithoutStream: defaultPermitWithoutStream,
	}),
	grpc.WithTransportCredentials(insecure.NewCredentials()),
}

// Dial returns a client connection to [addr]. If no options are provided,
// [DefaultDialOptions] are used.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = DefaultDialOptions
	}
	return grpc.Dial(addr, opts...)
}
