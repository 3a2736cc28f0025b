// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

const (
	Client = "vmsync"

	// RPCChainVMProtocol should be bumped anytime changes are made to the
	// plugin wire protocol which require the VM and the host to upgrade
	// together.
	//
	// Protocol 1 resolves a zero key_limit to message.DefaultKeyLimit and a
	// zero bytes_limit to message.DefaultBytesLimit.
	RPCChainVMProtocol uint32 = 1

	// MinRPCChainVMProtocol and MaxRPCChainVMProtocol bound the protocol
	// versions a host accepts during the session handshake.
	MinRPCChainVMProtocol uint32 = 1
	MaxRPCChainVMProtocol uint32 = RPCChainVMProtocol
)

var (
	Current = &Application{
		Name:  Client,
		Major: 1,
		Minor: 0,
		Patch: 0,
	}

	// DefaultProtocolRange is the set of plugin protocol versions this build
	// speaks.
	DefaultProtocolRange = ProtocolRange{
		Min: MinRPCChainVMProtocol,
		Max: MaxRPCChainVMProtocol,
	}
)
