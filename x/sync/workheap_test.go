// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
)

var (
	nothing = maybe.Nothing[[]byte]()
	some    = maybe.Some[[]byte]
)

func TestWorkHeapInsertGetWork(t *testing.T) {
	require := require.New(t)
	h := newWorkHeap()

	now := time.Now()
	lowPriorityItem := newWorkItem(ids.GenerateTestID(), some([]byte{4}), some([]byte{5}), lowPriority, now)
	medPriorityItem := newWorkItem(ids.GenerateTestID(), some([]byte{0}), some([]byte{1}), medPriority, now)
	highPriorityItem := newWorkItem(ids.GenerateTestID(), some([]byte{2}), some([]byte{3}), highPriority, now)
	retryItem := newWorkItem(ids.GenerateTestID(), nothing, some([]byte{}), retryPriority, now)
	for _, item := range []*workItem{highPriorityItem, medPriorityItem, lowPriorityItem, retryItem} {
		require.NoError(h.Insert(item))
	}
	require.Equal(4, h.Len())

	// Ranges are sorted by start. Nothing is the smallest start.
	got := []*workItem{}
	h.ranges.Ascend(func(i *workItem) bool {
		got = append(got, i)
		return true
	})
	require.Equal(
		[]*workItem{retryItem, medPriorityItem, highPriorityItem, lowPriorityItem},
		got,
	)

	require.Equal(retryItem, h.GetWork())
	require.Equal(highPriorityItem, h.GetWork())
	require.Equal(medPriorityItem, h.GetWork())
	require.Equal(lowPriorityItem, h.GetWork())
	require.Nil(h.GetWork())
	require.Zero(h.Len())

	// Popped ranges are in flight until released.
	require.Equal(4, h.Held())
	for _, item := range got {
		h.Release(item)
	}
	require.Zero(h.Held())
}

func TestWorkHeapGetWorkOrdersByQueueTime(t *testing.T) {
	require := require.New(t)
	h := newWorkHeap()

	now := time.Now()
	later := newWorkItem(ids.Empty, some([]byte{0}), some([]byte{1}), medPriority, now)
	earlier := newWorkItem(ids.Empty, some([]byte{2}), some([]byte{3}), medPriority, now.Add(-time.Second))
	require.NoError(h.Insert(later))
	require.NoError(h.Insert(earlier))

	require.Equal(earlier, h.GetWork())
	require.Equal(later, h.GetWork())
}

func TestWorkHeapClose(t *testing.T) {
	require := require.New(t)
	h := newWorkHeap()

	require.NoError(h.Insert(newWorkItem(ids.Empty, nothing, some([]byte{0}), lowPriority, time.Now())))
	h.Close()

	require.Nil(h.GetWork())

	// Inserts after closing are dropped.
	require.NoError(h.Insert(newWorkItem(ids.Empty, some([]byte{1}), nothing, lowPriority, time.Now())))
	require.NoError(h.MergeInsert(newWorkItem(ids.Empty, some([]byte{2}), nothing, lowPriority, time.Now())))
	require.Equal(1, h.Len())
}

func TestWorkHeapRejectsOverlap(t *testing.T) {
	held := [][2]maybe.Maybe[[]byte]{
		{some([]byte{1}), some([]byte{2})},
		{some([]byte{5}), some([]byte{6})},
	}
	tests := []struct {
		name        string
		start       maybe.Maybe[[]byte]
		end         maybe.Maybe[[]byte]
		expectedErr error
	}{
		{
			name:        "same range",
			start:       some([]byte{1}),
			end:         some([]byte{2}),
			expectedErr: errOverlappingRange,
		},
		{
			name:        "shares end key",
			start:       some([]byte{2}),
			end:         some([]byte{3}),
			expectedErr: errOverlappingRange,
		},
		{
			name:        "shares start key",
			start:       some([]byte{3}),
			end:         some([]byte{5}),
			expectedErr: errOverlappingRange,
		},
		{
			name:        "unbounded start",
			start:       nothing,
			end:         some([]byte{1}),
			expectedErr: errOverlappingRange,
		},
		{
			name:        "unbounded end",
			start:       some([]byte{6}),
			end:         nothing,
			expectedErr: errOverlappingRange,
		},
		{
			name:        "covers held ranges",
			start:       nothing,
			end:         nothing,
			expectedErr: errOverlappingRange,
		},
		{
			name:  "first key after end",
			start: some([]byte{2, 0}),
			end:   some([]byte{4}),
		},
		{
			name:  "before every range",
			start: nothing,
			end:   some([]byte{0, 255}),
		},
		{
			name:  "after every range",
			start: some([]byte{6, 0}),
			end:   nothing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			h := newWorkHeap()
			for _, r := range held {
				require.NoError(h.Insert(newWorkItem(ids.Empty, r[0], r[1], lowPriority, time.Now())))
			}

			item := newWorkItem(ids.Empty, tt.start, tt.end, lowPriority, time.Now())
			err := h.Insert(item)
			require.ErrorIs(err, tt.expectedErr)

			err = h.MergeInsert(newWorkItem(ids.Empty, tt.start, tt.end, lowPriority, time.Now()))
			if tt.expectedErr == nil {
				// [item] is already held.
				require.ErrorIs(err, errOverlappingRange)
				return
			}
			require.ErrorIs(err, tt.expectedErr)
			require.Equal(len(held), h.Held())
		})
	}
}

func TestWorkHeapInFlightRangeStaysReserved(t *testing.T) {
	require := require.New(t)
	h := newWorkHeap()

	item := newWorkItem(ids.Empty, some([]byte{1}), some([]byte{5}), lowPriority, time.Now())
	require.NoError(h.Insert(item))
	require.Equal(item, h.GetWork())

	err := h.Insert(newWorkItem(ids.Empty, some([]byte{3}), some([]byte{4}), lowPriority, time.Now()))
	require.ErrorIs(err, errOverlappingRange)

	// In-flight ranges aren't merged into.
	require.NoError(h.MergeInsert(newWorkItem(ids.Empty, some([]byte{5, 0}), some([]byte{6}), lowPriority, time.Now())))
	require.Equal(2, h.Held())
	require.Equal(some([]byte{5}), item.end)

	// A requeued range is handed out again.
	h.Requeue(item)
	h.Requeue(item)
	require.Equal(2, h.Len())

	h.Release(item)
	require.Equal(2, h.Held())

	require.Equal(item, h.GetWork())
	h.Release(item)
	require.Equal(1, h.Held())
}

func TestWorkHeapMergeInsert(t *testing.T) {
	type test struct {
		name     string
		ranges   [][2]maybe.Maybe[[]byte]
		merged   [2]maybe.Maybe[[]byte]
		expected [][2]maybe.Maybe[[]byte]
	}

	tests := []test{
		{
			name:   "merge with range before",
			ranges: [][2]maybe.Maybe[[]byte]{{nothing, some([]byte{63})}, {some([]byte{127}), some([]byte{192})}},
			merged: [2]maybe.Maybe[[]byte]{some([]byte{63, 0}), some([]byte{100})},
			expected: [][2]maybe.Maybe[[]byte]{
				{nothing, some([]byte{100})},
				{some([]byte{127}), some([]byte{192})},
			},
		},
		{
			name:   "merge with range after",
			ranges: [][2]maybe.Maybe[[]byte]{{nothing, some([]byte{63})}, {some([]byte{127, 0}), some([]byte{192})}},
			merged: [2]maybe.Maybe[[]byte]{some([]byte{100}), some([]byte{127})},
			expected: [][2]maybe.Maybe[[]byte]{
				{nothing, some([]byte{63})},
				{some([]byte{100}), some([]byte{192})},
			},
		},
		{
			name:   "merge with both sides",
			ranges: [][2]maybe.Maybe[[]byte]{{nothing, some([]byte{63})}, {some([]byte{127, 0}), nothing}},
			merged: [2]maybe.Maybe[[]byte]{some([]byte{63, 0}), some([]byte{127})},
			expected: [][2]maybe.Maybe[[]byte]{
				{nothing, nothing},
			},
		},
		{
			name:   "next byte is not adjacent",
			ranges: [][2]maybe.Maybe[[]byte]{{nothing, some([]byte{63})}},
			merged: [2]maybe.Maybe[[]byte]{some([]byte{64}), some([]byte{100})},
			expected: [][2]maybe.Maybe[[]byte]{
				{nothing, some([]byte{63})},
				{some([]byte{64}), some([]byte{100})},
			},
		},
		{
			name:   "gap between ranges",
			ranges: [][2]maybe.Maybe[[]byte]{{nothing, some([]byte{63})}, {some([]byte{127}), nothing}},
			merged: [2]maybe.Maybe[[]byte]{some([]byte{63, 1}), some([]byte{126})},
			expected: [][2]maybe.Maybe[[]byte]{
				{nothing, some([]byte{63})},
				{some([]byte{63, 1}), some([]byte{126})},
				{some([]byte{127}), nothing},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			h := newWorkHeap()
			for _, r := range tt.ranges {
				require.NoError(h.MergeInsert(newWorkItem(ids.Empty, r[0], r[1], lowPriority, time.Now())))
			}
			require.NoError(h.MergeInsert(newWorkItem(ids.Empty, tt.merged[0], tt.merged[1], lowPriority, time.Now())))
			require.Equal(len(tt.expected), h.Len())
			require.Equal(h.Len(), h.Held())

			got := [][2]maybe.Maybe[[]byte]{}
			h.ranges.Ascend(func(i *workItem) bool {
				got = append(got, [2]maybe.Maybe[[]byte]{i.start, i.end})
				return true
			})
			require.Equal(tt.expected, got)
		})
	}
}

func TestWorkHeapMergeInsertRequiresSameRootAndState(t *testing.T) {
	tests := []struct {
		name     string
		second   *workItem
		expected int
	}{
		{
			name:     "same root and state",
			second:   &workItem{start: some([]byte{1, 0}), end: nothing, state: workApplied},
			expected: 1,
		},
		{
			name:     "different root",
			second:   &workItem{start: some([]byte{1, 0}), end: nothing, state: workApplied, localRootID: ids.GenerateTestID()},
			expected: 2,
		},
		{
			name:     "different state",
			second:   &workItem{start: some([]byte{1, 0}), end: nothing, state: workPending},
			expected: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			h := newWorkHeap()

			require.NoError(h.MergeInsert(&workItem{
				start: nothing,
				end:   some([]byte{1}),
				state: workApplied,
			}))
			require.NoError(h.MergeInsert(tt.second))
			require.Equal(tt.expected, h.Len())
		})
	}
}

func TestWorkHeapMergeInsertKeepsHighestPriority(t *testing.T) {
	require := require.New(t)
	h := newWorkHeap()

	now := time.Now()
	require.NoError(h.MergeInsert(newWorkItem(ids.Empty, nothing, some([]byte{1}), lowPriority, now)))
	require.NoError(h.MergeInsert(newWorkItem(ids.Empty, some([]byte{1, 0}), nothing, highPriority, now.Add(time.Second))))
	require.Equal(1, h.Len())

	got := h.GetWork()
	require.Equal(highPriority, got.priority)
	require.Equal(now, got.queueTime)
	require.True(got.start.IsNothing())
	require.True(got.end.IsNothing())
}

func TestWorkHeapMergeInsertRandom(t *testing.T) {
	var (
		require   = require.New(t)
		seed      = time.Now().UnixNano()
		r         = rand.New(rand.NewSource(seed)) // #nosec G404
		numRanges = 1_000
		bounds    = [][]byte{}
		rootID    = ids.GenerateTestID()
	)
	t.Logf("seed: %d", seed)

	for i := 0; i < numRanges; i++ {
		bound := make([]byte, 32)
		_, _ = r.Read(bound)
		bounds = append(bounds, bound)
	}
	slices.SortFunc(bounds, func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})

	// Disjoint ranges [bounds[2i]||0, bounds[2i+1]] with gaps
	// [bounds[2i+1]||0, bounds[2i+2]] between them. Equal bounds are
	// possible but extremely unlikely.
	after := func(key []byte) maybe.Maybe[[]byte] {
		return some(append(slices.Clone(key), 0))
	}
	ranges := [][2]maybe.Maybe[[]byte]{}
	for i := 0; i < numRanges/2; i++ {
		ranges = append(ranges, [2]maybe.Maybe[[]byte]{after(bounds[i*2]), some(bounds[i*2+1])})
	}
	ranges[0][0] = nothing
	ranges[len(ranges)-1][1] = nothing

	setup := func() *workHeap {
		h := newWorkHeap()
		for i, r := range ranges {
			require.Equal(i, h.Len())
			require.NoError(h.MergeInsert(newWorkItem(rootID, r[0], r[1], lowPriority, time.Now())))
		}
		return h
	}

	t.Run("fill every gap", func(t *testing.T) {
		h := setup()
		for i := 0; i < len(ranges)-1; i++ {
			require.NoError(h.MergeInsert(newWorkItem(
				rootID,
				after(ranges[i][1].Value()),
				some(bounds[i*2+2]),
				lowPriority,
				time.Now(),
			)))
			require.Equal(len(ranges)-i-1, h.Len())
		}
		got := h.GetWork()
		require.True(got.start.IsNothing())
		require.True(got.end.IsNothing())
	})

	t.Run("extend every end", func(t *testing.T) {
		h := setup()
		for i := 0; i < len(ranges)-1; i++ {
			newEnd := after(ranges[i][1].Value()).Value()
			newEnd = append(newEnd, 0)
			require.NoError(h.MergeInsert(newWorkItem(
				rootID,
				after(ranges[i][1].Value()),
				some(newEnd),
				lowPriority,
				time.Now(),
			)))
			require.Equal(len(ranges), h.Len())

			got, ok := h.ranges.Get(&workItem{start: ranges[i][0]})
			require.True(ok)
			require.Equal(newEnd, got.end.Value())
		}
	})

	t.Run("extend every start", func(t *testing.T) {
		h := setup()
		for i := 1; i < len(ranges); i++ {
			// [bounds[2i]] is the last key before the range.
			newStart := some(bounds[i*2])
			require.NoError(h.MergeInsert(newWorkItem(
				rootID,
				newStart,
				newStart,
				lowPriority,
				time.Now(),
			)))
			require.Equal(len(ranges), h.Len())

			got, ok := h.ranges.Get(&workItem{start: newStart})
			require.True(ok)
			require.Equal(ranges[i][1], got.end)
		}
	})
}
