// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"context"

	"github.com/ava-labs/vmsync/vms/rpcchainvm/gconn"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime/subprocess"
)

var _ Conn = (*gconn.Conn)(nil)

// Conn is an ordered, reliable channel of frames between the host and a VM.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until a frame arrives, [ctx] is cancelled or the Conn is
	// closed.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// DialFunc opens a connection to a VM. The returned Stopper, which may be
// nil, releases the VM runtime.
type DialFunc func(ctx context.Context) (Conn, runtime.Stopper, error)

// SubprocessDialer starts the VM binary described by [config] on every dial.
func SubprocessDialer(config subprocess.Config) DialFunc {
	return func(ctx context.Context) (Conn, runtime.Stopper, error) {
		config := config
		conn, stopper, err := subprocess.Bootstrap(ctx, &config)
		if err != nil {
			return nil, nil, err
		}
		return conn, stopper, nil
	}
}
