// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import "context"

// Stopper stops a VM runtime.
type Stopper interface {
	// Stop the runtime. Only the first call has an effect.
	Stop(ctx context.Context)
}

// StopperFunc adapts a function to a Stopper. The function is called on
// every call to Stop.
type StopperFunc func(ctx context.Context)

func (f StopperFunc) Stop(ctx context.Context) {
	f(ctx)
}
