// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package subprocess

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime"
)

var _ runtime.Stopper = (*stopper)(nil)

// killer is implemented by *plugin.Client.
type killer interface {
	Kill()
	Exited() bool
}

func NewStopper(log logging.Logger, process killer) runtime.Stopper {
	return &stopper{
		process: process,
		log:     log,
	}
}

type stopper struct {
	once    sync.Once
	process killer
	log     logging.Logger
}

func (s *stopper) Stop(context.Context) {
	s.once.Do(func() {
		if s.process.Exited() {
			s.log.Debug("subprocess already exited")
			return
		}
		s.process.Kill()
		s.log.Debug("subprocess was killed",
			zap.Bool("exited", s.process.Exited()),
		)
	})
}
