// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/ava-labs/vmsync/utils/heap"
	"github.com/ava-labs/vmsync/utils/maybe"
)

var errOverlappingRange = errors.New("overlapping range")

// workHeap holds the key ranges of a sync. Each range is closed: it covers
// [start, end], where a Nothing start has no lower bound and a Nothing end
// has no upper bound. No two held ranges share a key.
//
// A range is either queued or, after GetWork, in flight. An in-flight range
// keeps its keys reserved until it is released or requeued.
//
// Not safe for concurrent use.
type workHeap struct {
	// Queued ranges. Pops the highest priority, then the longest queued.
	queue heap.Set[*workItem]
	// Every held range, queued or in flight, ordered by start.
	ranges *btree.BTreeG[*workItem]
	closed bool
}

func newWorkHeap() *workHeap {
	return &workHeap{
		queue: heap.NewSet[*workItem](func(a, b *workItem) bool {
			if a.priority != b.priority {
				return a.priority > b.priority
			}
			return a.queueTime.Before(b.queueTime)
		}),
		ranges: btree.NewG(2, func(a, b *workItem) bool {
			return compareStart(a.start, b.start) < 0
		}),
	}
}

// compareStart orders range starts. Nothing is the smallest start.
func compareStart(a, b maybe.Maybe[[]byte]) int {
	switch {
	case a.IsNothing() && b.IsNothing():
		return 0
	case a.IsNothing():
		return -1
	case b.IsNothing():
		return 1
	default:
		return bytes.Compare(a.Value(), b.Value())
	}
}

// endsBefore returns true if a range ending at [end] holds no key at or after
// [start].
func endsBefore(end, start maybe.Maybe[[]byte]) bool {
	return end.HasValue() && start.HasValue() && bytes.Compare(end.Value(), start.Value()) < 0
}

// adjacent returns true if [start] is the first key after [end], that is
// [end] followed by a 0 byte.
func adjacent(end, start maybe.Maybe[[]byte]) bool {
	if end.IsNothing() || start.IsNothing() {
		return false
	}
	e, s := end.Value(), start.Value()
	return len(s) == len(e)+1 && s[len(e)] == 0 && bytes.HasPrefix(s, e)
}

func overlaps(a, b *workItem) bool {
	return !endsBefore(a.end, b.start) && !endsBefore(b.end, a.start)
}

// Close drops every later insert and empties GetWork.
func (wh *workHeap) Close() {
	wh.closed = true
}

// neighbors returns the held ranges with the greatest start not after
// [item.start] and the smallest start after it.
func (wh *workHeap) neighbors(item *workItem) (before, after *workItem) {
	search := &workItem{start: item.start}
	wh.ranges.DescendLessOrEqual(search, func(i *workItem) bool {
		before = i
		return false
	})
	wh.ranges.AscendGreaterOrEqual(search, func(i *workItem) bool {
		if i == before {
			return true
		}
		after = i
		return false
	})
	return before, after
}

func (wh *workHeap) checkOverlap(item *workItem) error {
	before, after := wh.neighbors(item)
	for _, held := range []*workItem{before, after} {
		if held != nil && overlaps(held, item) {
			return fmt.Errorf("%w: [%s, %s] holds keys of [%s, %s] (%s)",
				errOverlappingRange,
				held.start,
				held.end,
				item.start,
				item.end,
				held.state,
			)
		}
	}
	return nil
}

// Insert queues [item] without merging it into adjacent ranges.
func (wh *workHeap) Insert(item *workItem) error {
	if wh.closed {
		return nil
	}
	if err := wh.checkOverlap(item); err != nil {
		return err
	}
	wh.queue.Push(item)
	wh.ranges.ReplaceOrInsert(item)
	return nil
}

// GetWork pops the next queued range. The range stays held until it is
// released or requeued.
// Returns nil if nothing is queued or the heap is closed.
func (wh *workHeap) GetWork() *workItem {
	if wh.closed {
		return nil
	}
	item, ok := wh.queue.Pop()
	if !ok {
		return nil
	}
	return item
}

// Requeue queues an in-flight [item] again.
func (wh *workHeap) Requeue(item *workItem) {
	if wh.closed || wh.queue.Contains(item) {
		return
	}
	wh.queue.Push(item)
}

// Release frees the keys of an in-flight [item].
func (wh *workHeap) Release(item *workItem) {
	if wh.queue.Contains(item) {
		return
	}
	wh.ranges.Delete(item)
}

// mergeable returns true if the queued range [held] can absorb [item]. Both
// must be synced to the same root and be in the same state.
func (wh *workHeap) mergeable(held, item *workItem) bool {
	return held != nil &&
		held.localRootID == item.localRootID &&
		held.state == item.state &&
		wh.queue.Contains(held)
}

// MergeInsert queues [item], merging it with the queued ranges it borders.
// e.g. if [0x01, 0x02] is queued, inserting [0x0200, 0x05] yields the single
// range [0x01, 0x05].
func (wh *workHeap) MergeInsert(item *workItem) error {
	if wh.closed {
		return nil
	}
	if err := wh.checkOverlap(item); err != nil {
		return err
	}

	before, after := wh.neighbors(item)
	mergeBefore := wh.mergeable(before, item) && adjacent(before.end, item.start)
	mergeAfter := wh.mergeable(after, item) && adjacent(item.end, after.start)

	switch {
	case mergeBefore && mergeAfter:
		wh.remove(after)
		before.end = after.end
		absorb(before, item)
		absorb(before, after)
		wh.queue.Fix(before)
	case mergeBefore:
		before.end = item.end
		absorb(before, item)
		wh.queue.Fix(before)
	case mergeAfter:
		// [after] is re-keyed by its new start.
		wh.remove(after)
		after.start = item.start
		absorb(after, item)
		wh.queue.Push(after)
		wh.ranges.ReplaceOrInsert(after)
	default:
		wh.queue.Push(item)
		wh.ranges.ReplaceOrInsert(item)
	}
	return nil
}

// absorb takes the higher priority and the earlier queue time of [from].
func absorb(into, from *workItem) {
	if from.priority > into.priority {
		into.priority = from.priority
	}
	if from.queueTime.Before(into.queueTime) {
		into.queueTime = from.queueTime
	}
}

func (wh *workHeap) remove(item *workItem) {
	wh.queue.Remove(item)
	wh.ranges.Delete(item)
}

// Len returns the number of queued ranges.
func (wh *workHeap) Len() int {
	return wh.queue.Len()
}

// Held returns the number of queued and in-flight ranges.
func (wh *workHeap) Held() int {
	return wh.ranges.Len()
}
