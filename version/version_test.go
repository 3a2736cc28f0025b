// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplicationString(t *testing.T) {
	tests := []struct {
		app      *Application
		expected string
	}{
		{
			app: &Application{
				Name:  Client,
				Major: 0,
				Minor: 0,
				Patch: 1,
			},
			expected: "vmsync/0.0.1",
		},
		{
			app: &Application{
				Name:  "myClient",
				Major: 10,
				Minor: 20,
				Patch: 30,
			},
			expected: "myClient/10.20.30",
		},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			require.Equal(t, test.expected, test.app.String())
		})
	}
}

func TestApplicationCompare(t *testing.T) {
	require := require.New(t)

	v1 := &Application{Name: Client, Major: 1, Minor: 2, Patch: 3}
	v2 := &Application{Name: Client, Major: 1, Minor: 3, Patch: 0}
	v3 := &Application{Name: Client, Major: 2, Minor: 0, Patch: 0}

	require.Zero(v1.Compare(v1))
	require.Negative(v1.Compare(v2))
	require.Positive(v3.Compare(v2))
	require.True(v1.Before(v3))
	require.False(v3.Before(v1))

	require.NoError(v1.Compatible(v3))
	require.ErrorIs(v3.Compatible(v1), errDifferentMajor)
}

func TestParseApplication(t *testing.T) {
	tests := []struct {
		s           string
		expected    *Application
		expectedErr bool
	}{
		{
			s:        "vmsync/1.2.3",
			expected: &Application{Name: Client, Major: 1, Minor: 2, Patch: 3},
		},
		{
			s:           "1.2.3",
			expectedErr: true,
		},
		{
			s:           "vmsync/1.2",
			expectedErr: true,
		},
		{
			s:           "vmsync/1.x.3",
			expectedErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.s, func(t *testing.T) {
			require := require.New(t)

			app, err := ParseApplication(test.s)
			if test.expectedErr {
				require.Error(err) //nolint:forbidigo // parse errors are not sentinels
				return
			}
			require.NoError(err)
			require.Equal(test.expected.String(), app.String())
			require.Zero(test.expected.Compare(app))
		})
	}
}

func TestProtocolRange(t *testing.T) {
	require := require.New(t)

	r := ProtocolRange{Min: 2, Max: 4}
	require.NoError(r.Verify())
	require.NoError(r.Check(2))
	require.NoError(r.Check(4))
	require.ErrorIs(r.Check(1), ErrProtocolOutOfRange)
	require.ErrorIs(r.Check(5), ErrProtocolOutOfRange)
	require.ErrorContains(r.Check(5), "negotiated 5, required [2, 4]")

	require.ErrorIs(ProtocolRange{Min: 3, Max: 2}.Verify(), errInvalidRange)
	require.NoError(DefaultProtocolRange.Check(RPCChainVMProtocol))
}
