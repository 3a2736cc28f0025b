// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/database"
)

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix   []byte
		expected []byte
	}{
		{
			prefix:   nil,
			expected: nil,
		},
		{
			prefix:   []byte{0x00},
			expected: []byte{0x01},
		},
		{
			prefix:   []byte{0x01, 0xff},
			expected: []byte{0x02},
		},
		{
			prefix:   []byte{0x01, 0xfe},
			expected: []byte{0x01, 0xff},
		},
		{
			prefix:   []byte{0xff, 0xff},
			expected: nil,
		},
	}
	for _, test := range tests {
		require.Equal(t, test.expected, database.PrefixUpperBound(test.prefix))
	}
}
