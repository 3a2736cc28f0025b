// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package choices

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	require := require.New(t)

	require.NoError(Accepted.Valid())
	require.NoError(Rejected.Valid())
	require.NoError(Processing.Valid())
	require.NoError(Unknown.Valid())
	require.ErrorIs(Status(math.MaxInt32).Valid(), errUnknownStatus)
}

func TestStatusDecided(t *testing.T) {
	require := require.New(t)

	require.True(Accepted.Decided())
	require.True(Rejected.Decided())
	require.False(Processing.Decided())
	require.False(Unknown.Decided())
	require.False(Status(math.MaxInt32).Decided())

	require.True(Processing.Fetched())
	require.False(Unknown.Fetched())
}

func TestStatusJSON(t *testing.T) {
	require := require.New(t)

	for _, status := range []Status{Unknown, Processing, Rejected, Accepted} {
		b, err := json.Marshal(status)
		require.NoError(err)

		var parsed Status
		require.NoError(json.Unmarshal(b, &parsed))
		require.Equal(status, parsed)
	}

	_, err := json.Marshal(Status(math.MaxInt32))
	require.ErrorIs(err, errUnknownStatus)

	var parsed Status
	err = json.Unmarshal([]byte(`"Finalized"`), &parsed)
	require.ErrorIs(err, errUnknownStatus)
}

func TestDecidableTransitions(t *testing.T) {
	require := require.New(t)

	d := &TestDecidable{StatusV: Processing}
	require.NoError(d.Accept(context.Background()))
	require.Equal(Accepted, d.Status())
	require.Error(d.Reject(context.Background())) //nolint:forbidigo // transition errors are not sentinels
}
