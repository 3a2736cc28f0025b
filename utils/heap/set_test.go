// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetPushPop(t *testing.T) {
	require := require.New(t)

	h := NewSet[int](func(a, b int) bool { return a > b })
	require.False(h.Push(3))
	require.False(h.Push(1))
	require.False(h.Push(5))
	require.True(h.Push(3))
	require.Equal(3, h.Len())

	got, ok := h.Peek()
	require.True(ok)
	require.Equal(5, got)

	for _, expected := range []int{5, 3, 1} {
		got, ok := h.Pop()
		require.True(ok)
		require.Equal(expected, got)
	}
	_, ok = h.Pop()
	require.False(ok)
}

func TestSetRemove(t *testing.T) {
	require := require.New(t)

	h := NewSet[int](func(a, b int) bool { return a < b })
	for i := 0; i < 10; i++ {
		h.Push(i)
	}
	removed, ok := h.Remove(4)
	require.True(ok)
	require.Equal(4, removed)
	require.False(h.Contains(4))

	_, ok = h.Remove(4)
	require.False(ok)

	prev := -1
	for h.Len() > 0 {
		got, _ := h.Pop()
		require.Greater(got, prev)
		prev = got
	}
}
