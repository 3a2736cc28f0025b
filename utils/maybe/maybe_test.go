// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package maybe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaybe(t *testing.T) {
	require := require.New(t)

	m := Some([]byte{1, 2, 3})
	require.True(m.HasValue())
	require.False(m.IsNothing())
	require.Equal([]byte{1, 2, 3}, m.Value())

	n := Nothing[[]byte]()
	require.True(n.IsNothing())
	require.Nil(n.Value())
}

func TestMaybeEquality(t *testing.T) {
	require := require.New(t)
	require.True(Equal(Nothing[[]byte](), Nothing[[]byte](), bytes.Equal))
	require.False(Equal(Nothing[[]byte](), Some([]byte{1}), bytes.Equal))
	require.False(Equal(Some([]byte{1}), Nothing[[]byte](), bytes.Equal))
	require.True(Equal(Some([]byte{1}), Some([]byte{1}), bytes.Equal))
	require.False(Equal(Some([]byte{1}), Some([]byte{2}), bytes.Equal))
}

func TestMaybeBind(t *testing.T) {
	require := require.New(t)

	got := Bind(Some([]byte{1, 2}), func(b []byte) int { return len(b) })
	require.Equal(Some(2), got)

	require.True(Bind(Nothing[[]byte](), func(b []byte) int { return len(b) }).IsNothing())
}
