// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"errors"
	"fmt"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/x/merkledb"
	"github.com/ava-labs/vmsync/x/sync"
)

var (
	// ErrRemote is returned for errors reported by the VM that have no code.
	ErrRemote = errors.New("remote error")

	// Codes must never be reused for a different error.
	errCodeToError = map[uint32]error{
		1: database.ErrClosed,
		2: database.ErrNotFound,

		3: merkledb.ErrInsufficientHistory,
		4: message.ErrInvalidRequest,
		5: sync.ErrMinProofSizeIsTooLarge,

		6: errProofsNotSupported,
		7: errUnexpectedRequest,
		8: errNoDatabase,
	}
	errorToErrCode = func() map[error]uint32 {
		codes := make(map[error]uint32, len(errCodeToError))
		for code, err := range errCodeToError {
			codes[err] = code
		}
		return codes
	}()
)

// errorToResponse returns the response reporting [err]. Errors that wrap an
// error with a code are reported with that code.
func errorToResponse(err error) *message.ErrorResponse {
	response := &message.ErrorResponse{
		Message: err.Error(),
	}
	if code, ok := errorToErrCode[err]; ok {
		response.Code = code
		return response
	}
	for code, codeErr := range errCodeToError {
		if errors.Is(err, codeErr) {
			response.Code = code
			break
		}
	}
	return response
}

// responseToError returns an error wrapping the error with the code of
// [response], or [ErrRemote] if the code is unknown.
func responseToError(response *message.ErrorResponse) error {
	err, ok := errCodeToError[response.Code]
	if !ok {
		err = ErrRemote
	}
	if response.Message == err.Error() {
		return err
	}
	return fmt.Errorf("%w: %s", err, response.Message)
}
