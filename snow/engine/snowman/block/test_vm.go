// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package block

import (
	"context"
	"errors"
	"testing"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/consensus/snowman"
)

var (
	errParseBlock    = errors.New("unexpectedly called ParseBlock")
	errGetBlock      = errors.New("unexpectedly called GetBlock")
	errLastAccepted  = errors.New("unexpectedly called LastAccepted")
	errVersion       = errors.New("unexpectedly called Version")
	errHealthCheck   = errors.New("unexpectedly called HealthCheck")
	errSetPreference = errors.New("unexpectedly called SetPreference")

	_ ChainVM = (*TestVM)(nil)
)

// TestVM is a ChainVM that is useful for testing.
type TestVM struct {
	T *testing.T

	CantParseBlock,
	CantGetBlock,
	CantSetPreference,
	CantLastAccepted,
	CantVersion,
	CantHealthCheck bool

	ParseBlockF    func(context.Context, []byte) (snowman.Block, error)
	GetBlockF      func(context.Context, ids.ID) (snowman.Block, error)
	SetPreferenceF func(context.Context, ids.ID) error
	LastAcceptedF  func(context.Context) (ids.ID, error)
	VersionF       func(context.Context) (string, error)
	HealthCheckF   func(context.Context) (interface{}, error)
	ShutdownF      func(context.Context) error
}

func (vm *TestVM) Default(cant bool) {
	vm.CantParseBlock = cant
	vm.CantGetBlock = cant
	vm.CantSetPreference = cant
	vm.CantLastAccepted = cant
	vm.CantVersion = cant
	vm.CantHealthCheck = cant
}

func (vm *TestVM) ParseBlock(ctx context.Context, b []byte) (snowman.Block, error) {
	if vm.ParseBlockF != nil {
		return vm.ParseBlockF(ctx, b)
	}
	if vm.CantParseBlock && vm.T != nil {
		vm.T.Fatal(errParseBlock)
	}
	return nil, errParseBlock
}

func (vm *TestVM) GetBlock(ctx context.Context, id ids.ID) (snowman.Block, error) {
	if vm.GetBlockF != nil {
		return vm.GetBlockF(ctx, id)
	}
	if vm.CantGetBlock && vm.T != nil {
		vm.T.Fatal(errGetBlock)
	}
	return nil, errGetBlock
}

func (vm *TestVM) SetPreference(ctx context.Context, id ids.ID) error {
	if vm.SetPreferenceF != nil {
		return vm.SetPreferenceF(ctx, id)
	}
	if vm.CantSetPreference && vm.T != nil {
		vm.T.Fatal(errSetPreference)
	}
	return nil
}

func (vm *TestVM) LastAccepted(ctx context.Context) (ids.ID, error) {
	if vm.LastAcceptedF != nil {
		return vm.LastAcceptedF(ctx)
	}
	if vm.CantLastAccepted && vm.T != nil {
		vm.T.Fatal(errLastAccepted)
	}
	return ids.Empty, errLastAccepted
}

func (vm *TestVM) Version(ctx context.Context) (string, error) {
	if vm.VersionF != nil {
		return vm.VersionF(ctx)
	}
	if vm.CantVersion && vm.T != nil {
		vm.T.Fatal(errVersion)
	}
	return "", errVersion
}

func (vm *TestVM) HealthCheck(ctx context.Context) (interface{}, error) {
	if vm.HealthCheckF != nil {
		return vm.HealthCheckF(ctx)
	}
	if vm.CantHealthCheck && vm.T != nil {
		vm.T.Fatal(errHealthCheck)
	}
	return nil, errHealthCheck
}

func (vm *TestVM) Shutdown(ctx context.Context) error {
	if vm.ShutdownF != nil {
		return vm.ShutdownF(ctx)
	}
	return nil
}
