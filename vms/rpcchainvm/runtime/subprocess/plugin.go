// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package subprocess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"google.golang.org/grpc"

	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/version"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/gconn"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/grpcutils"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime"
)

const (
	pluginName = "vm"

	DefaultHandshakeTimeout = 5 * time.Second
)

var (
	// Handshake is shared by the host and the VM process. A process that
	// doesn't present the magic cookie is not treated as a VM.
	Handshake = plugin.HandshakeConfig{
		ProtocolVersion:  uint(version.RPCChainVMProtocol),
		MagicCookieKey:   "VMSYNC_VM_PLUGIN",
		MagicCookieValue: "dynamic",
	}

	errWrongConn = errors.New("wrong connection type")

	_ plugin.Plugin     = (*vmPlugin)(nil)
	_ plugin.GRPCPlugin = (*vmPlugin)(nil)
)

type Config struct {
	// Path to the VM binary.
	Path string
	Args []string
	// Time allowed for the VM process to start and complete the plugin
	// handshake.
	HandshakeTimeout time.Duration
	// Receives the output of the VM process.
	Log logging.Logger
}

type vmPlugin struct {
	plugin.NetRPCUnsupportedPlugin

	// Only set in the VM process.
	handler gconn.Handler
}

func (p *vmPlugin) GRPCServer(_ *plugin.GRPCBroker, s *grpc.Server) error {
	gconn.Register(s, p.handler)
	return nil
}

func (*vmPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, cc *grpc.ClientConn) (interface{}, error) {
	return cc, nil
}

// Bootstrap starts the VM process and opens a connection to it. The returned
// Stopper kills the process. The process is killed if Bootstrap fails.
func Bootstrap(ctx context.Context, config *Config) (*gconn.Conn, runtime.Stopper, error) {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	log := config.Log
	if log == nil {
		log = logging.NoLog{}
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          plugin.PluginSet{pluginName: &vmPlugin{}},
		Cmd:              NewCmd(config.Path, config.Args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		StartTimeout:     config.HandshakeTimeout,
		SyncStdout:       log,
		SyncStderr:       log,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "vm",
			Output: log,
			Level:  hclog.Info,
		}),
	})
	stopper := NewStopper(log, client)

	rpcClient, err := client.Client()
	if err != nil {
		stopper.Stop(ctx)
		return nil, nil, fmt.Errorf("failed to start %s: %w", config.Path, err)
	}
	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		stopper.Stop(ctx)
		return nil, nil, err
	}
	cc, ok := raw.(*grpc.ClientConn)
	if !ok {
		stopper.Stop(ctx)
		return nil, nil, fmt.Errorf("%w: %T", errWrongConn, raw)
	}

	conn, err := gconn.Dial(ctx, cc)
	if err != nil {
		stopper.Stop(ctx)
		return nil, nil, err
	}
	return conn, stopper, nil
}

// Serve blocks, serving every connection from the host with [handler]. It
// must only be called by a VM process started with Bootstrap.
func Serve(handler gconn.Handler) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: plugin.PluginSet{
			pluginName: &vmPlugin{handler: handler},
		},
		GRPCServer: func(opts []grpc.ServerOption) *grpc.Server {
			return grpcutils.NewServer(opts...)
		},
	})
}
