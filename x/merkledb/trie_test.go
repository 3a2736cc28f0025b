// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/ids"
)

func TestTrieGetPutRemove(t *testing.T) {
	require := require.New(t)

	var (
		tr  trie
		err error
	)
	require.Equal(ids.Empty, tr.rootID())
	require.True(tr.get([]byte("a")).IsNothing())

	tr, err = tr.put([]byte("ab"), []byte("1"))
	require.NoError(err)
	tr, err = tr.put([]byte("abc"), []byte("2"))
	require.NoError(err)
	tr, err = tr.put([]byte("ad"), []byte("3"))
	require.NoError(err)
	tr, err = tr.put([]byte(""), []byte("4"))
	require.NoError(err)
	require.Equal(4, tr.len())

	require.Equal([]byte("1"), tr.get([]byte("ab")).Value())
	require.Equal([]byte("2"), tr.get([]byte("abc")).Value())
	require.Equal([]byte("3"), tr.get([]byte("ad")).Value())
	require.Equal([]byte("4"), tr.get([]byte("")).Value())
	require.True(tr.get([]byte("a")).IsNothing())
	require.True(tr.get([]byte("abcd")).IsNothing())

	removed := tr.remove([]byte("ab"))
	require.True(removed.get([]byte("ab")).IsNothing())
	require.Equal([]byte("2"), removed.get([]byte("abc")).Value())
	require.Equal(3, removed.len())

	// [tr] is unchanged by updates to it.
	require.Equal([]byte("1"), tr.get([]byte("ab")).Value())

	for _, key := range []string{"", "abc", "ad"} {
		removed = removed.remove([]byte(key))
	}
	require.Equal(ids.Empty, removed.rootID())
	require.Zero(removed.len())
}

func TestTrieRootIndependentOfOrder(t *testing.T) {
	require := require.New(t)

	r := rand.New(rand.NewSource(1)) // #nosec G404
	keys := make([][]byte, 50)
	for i := range keys {
		keys[i] = randomKey(r)
	}

	var (
		expected trie
		err      error
	)
	for _, key := range keys {
		expected, err = expected.put(key, key)
		require.NoError(err)
	}

	for i := 0; i < 10; i++ {
		r.Shuffle(len(keys), func(i, j int) {
			keys[i], keys[j] = keys[j], keys[i]
		})
		var tr trie
		for _, key := range keys {
			tr, err = tr.put(key, key)
			require.NoError(err)
		}
		require.Equal(expected.rootID(), tr.rootID())
	}
}

func TestTrieRemoveRestoresRoot(t *testing.T) {
	require := require.New(t)

	r := rand.New(rand.NewSource(2)) // #nosec G404
	var (
		tr  trie
		err error
	)
	for i := 0; i < 50; i++ {
		tr, err = tr.put(randomKey(r), randomValue(r))
		require.NoError(err)
	}

	for i := 0; i < 20; i++ {
		key := randomKey(r)
		if tr.get(key).HasValue() {
			continue
		}
		updated, err := tr.put(key, randomValue(r))
		require.NoError(err)
		require.NotEqual(tr.rootID(), updated.rootID())
		require.Equal(tr.rootID(), updated.remove(key).rootID())
	}
}

func TestTrieIterate(t *testing.T) {
	require := require.New(t)

	var (
		tr  trie
		err error
	)
	keys := []string{"", "a", "ab", "abc", "b", "ba", "c"}
	for i := len(keys) - 1; i >= 0; i-- {
		tr, err = tr.put([]byte(keys[i]), []byte{byte(i)})
		require.NoError(err)
	}

	tests := []struct {
		start    string
		expected []string
	}{
		{
			start:    "",
			expected: keys,
		},
		{
			start:    "ab",
			expected: []string{"ab", "abc", "b", "ba", "c"},
		},
		{
			start:    "abd",
			expected: []string{"b", "ba", "c"},
		},
		{
			start:    "d",
			expected: nil,
		},
	}
	for _, test := range tests {
		var got []string
		tr.iterate([]byte(test.start), func(key, _ []byte) bool {
			got = append(got, string(key))
			return true
		})
		require.Equal(test.expected, got, "start %q", test.start)
	}
}

func TestTrieGetProofPath(t *testing.T) {
	require := require.New(t)

	var (
		tr  trie
		err error
	)
	for _, key := range []string{"ab", "abc", "ad"} {
		tr, err = tr.put([]byte(key), []byte(key))
		require.NoError(err)
	}

	tests := []struct {
		key      string
		expected []string
	}{
		{
			key:      "abc",
			expected: []string{"", "a", "ab", "abc"},
		},
		{
			// ancestor of the key
			key:      "abcd",
			expected: []string{"", "a", "ab", "abc"},
		},
		{
			// child of the deepest ancestor towards the key
			key:      "ac",
			expected: []string{"", "a"},
		},
		{
			key:      "b",
			expected: []string{""},
		},
	}
	for _, test := range tests {
		path := tr.getProof([]byte(test.key))
		keys := make([]string, len(path))
		for i, n := range path {
			keys[i] = string(n.Key)
		}
		require.Equal(test.expected, keys, "key %q", test.key)
	}
}

func TestValueDigest(t *testing.T) {
	require := require.New(t)

	short := make([]byte, HashLength)
	require.Equal(short, getValueDigest(someBytes(string(short))).Value())

	long := make([]byte, HashLength+1)
	digest := getValueDigest(someBytes(string(long))).Value()
	require.Len(digest, HashLength)
	require.NotEqual(long[:HashLength], digest)

	require.True(getValueDigest(nothing()).IsNothing())
}
