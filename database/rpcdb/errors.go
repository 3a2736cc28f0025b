// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcdb

import (
	"errors"
	"fmt"

	"github.com/ava-labs/vmsync/database"
)

var (
	errUnknownErrorCode = errors.New("unknown error code")

	// Codes must never be reused for a different error. 0 is success.
	errCodeToError = map[uint32]error{
		1: database.ErrClosed,
		2: database.ErrNotFound,
	}
)

// errorToErrCode returns the code of the database error [err] wraps.
func errorToErrCode(err error) (uint32, bool) {
	if err == nil {
		return 0, false
	}
	for code, codeErr := range errCodeToError {
		if errors.Is(err, codeErr) {
			return code, true
		}
	}
	return 0, false
}

func errCodeToErr(code uint32) error {
	if code == 0 {
		return nil
	}
	if err, ok := errCodeToError[code]; ok {
		return err
	}
	return fmt.Errorf("%w: %d", errUnknownErrorCode, code)
}
