// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	require := require.New(t)

	var s Set[int]
	require.False(s.Contains(1))

	s.Add(1, 2, 2)
	require.Equal(2, s.Len())
	require.True(s.Contains(1))
	require.True(s.Contains(2))
	require.ElementsMatch([]int{1, 2}, s.List())

	s.Remove(1, 3)
	require.Equal(1, s.Len())
	require.False(s.Contains(1))

	s.Clear()
	require.Zero(s.Len())
	require.Equal(2, Of(5, 6, 5).Len())
}
