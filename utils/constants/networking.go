// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package constants

import (
	"time"

	"github.com/ava-labs/vmsync/utils/units"
)

const (
	// AppName is the name of this application
	AppName = "vmsync"

	// DefaultMaxMessageSize is the largest message that may be sent or
	// received over a plugin session.
	DefaultMaxMessageSize = 2 * units.MiB

	// DefaultRequestTimeout bounds every outbound request of a session.
	DefaultRequestTimeout = 10 * time.Second

	DefaultHealthCheckInterval  = 30 * time.Second
	DefaultHealthCheckTimeout   = 5 * time.Second
	DefaultHealthFailureLimit   = 3
	DefaultCompressionThreshold = 128 * units.KiB
)
