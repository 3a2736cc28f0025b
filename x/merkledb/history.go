// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/utils/set"
)

var (
	ErrInsufficientHistory = errors.New("insufficient history to generate proof")
	ErrNoEndRoot           = fmt.Errorf("%w: end root not found", ErrInsufficientHistory)
)

// stores previous trie states
type trieHistory struct {
	// Root ID --> The most recent change resulting in [rootID].
	lastChanges map[ids.ID]*changeSummaryAndInsertNumber

	// Maximum number of previous roots/changes to store in [history].
	maxHistoryLen int

	// Contains the history.
	// Sorted by increasing order of insertion.
	// Contains at most [maxHistoryLen] values.
	history []*changeSummaryAndInsertNumber

	// Each change is tagged with this monotonic increasing number.
	nextInsertNumber uint64
}

// Tracks the beginning and ending state of a value.
type change[T any] struct {
	before T
	after  T
}

// Wrapper around a changeSummary that allows comparison
// of when the change was made.
type changeSummaryAndInsertNumber struct {
	*changeSummary
	// Another changeSummaryAndInsertNumber with a greater
	// [insertNumber] means that change was after this one.
	insertNumber uint64
}

// Tracks all the value changes that resulted in the rootID.
type changeSummary struct {
	// The ID of the trie after these changes.
	rootID ids.ID
	// The trie after these changes.
	trie   trie
	values map[string]*change[maybe.Maybe[[]byte]]
}

func newChangeSummary(estimatedSize int) *changeSummary {
	return &changeSummary{
		values: make(map[string]*change[maybe.Maybe[[]byte]], estimatedSize),
	}
}

func newTrieHistory(maxHistoryLookback int) *trieHistory {
	return &trieHistory{
		maxHistoryLen: maxHistoryLookback,
		history:       make([]*changeSummaryAndInsertNumber, 0, maxHistoryLookback),
		lastChanges:   make(map[ids.ID]*changeSummaryAndInsertNumber),
	}
}

// getTrie returns the most recent trie with root [rootID].
func (th *trieHistory) getTrie(rootID ids.ID) (trie, bool) {
	changes, ok := th.lastChanges[rootID]
	if !ok {
		return trie{}, false
	}
	return changes.trie, true
}

// Returns up to [maxLength] key-value pair changes with keys in
// [start, end] that occurred between [startRoot] and [endRoot], sorted by
// key.
// If [start] is Nothing, there's no lower bound on the range.
// If [end] is Nothing, there's no upper bound on the range.
// Returns [ErrInsufficientHistory] if the history is insufficient
// to generate the proof.
// Returns [ErrNoEndRoot], which wraps [ErrInsufficientHistory], if
// the [endRoot] isn't in the history.
func (th *trieHistory) getValueChanges(
	startRoot ids.ID,
	endRoot ids.ID,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
	maxLength int,
) ([]KeyChange, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w but was %d", ErrInvalidMaxLength, maxLength)
	}

	// [endRootChanges] is the last change in the history resulting in [endRoot].
	endRootChanges, ok := th.lastChanges[endRoot]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEndRoot, endRoot)
	}

	if startRoot == endRoot {
		return nil, nil
	}

	// Confirm there's a change resulting in [startRoot] before
	// a change resulting in [endRoot] in the history.
	// [startRootChanges] is the last appearance of [startRoot].
	startRootChanges, ok := th.lastChanges[startRoot]
	if !ok {
		return nil, fmt.Errorf("%w: start root %s not found", ErrInsufficientHistory, startRoot)
	}

	endRootIndex := th.index(endRootChanges)
	if startRootChanges.insertNumber > endRootChanges.insertNumber {
		// [startRootChanges] happened after [endRootChanges].
		// However, that is just the *latest* change resulting in [startRoot].
		// Attempt to find a change resulting in [startRoot] before [endRootChanges].
		startRootChanges = nil
		for i := endRootIndex - 1; i >= 0; i-- {
			if th.history[i].rootID == startRoot {
				startRootChanges = th.history[i]
				break
			}
		}
		if startRootChanges == nil {
			return nil, fmt.Errorf(
				"%w: start root %s not found before end root %s",
				ErrInsufficientHistory, startRoot, endRoot,
			)
		}
	}

	var (
		// Keep track of changed keys so the largest can be removed
		// in order to stay within the [maxLength] limit if necessary.
		changedKeys = set.Set[string]{}

		bounds = keyBounds{
			lower: start,
			upper: end,
		}

		// For each element in the history in the range between [startRoot]'s
		// last appearance (exclusive) and [endRoot]'s last appearance (inclusive),
		// add the changes to keys in [start, end] to [combinedChanges].
		combinedChanges = newChangeSummary(maxLength)
	)

	for i := th.index(startRootChanges) + 1; i <= endRootIndex; i++ {
		for key, valueChange := range th.history[i].values {
			if !bounds.contains([]byte(key)) {
				continue
			}

			// A change to this key already exists in [combinedChanges]
			// so update its before value with the earlier before value
			if existing, ok := combinedChanges.values[key]; ok {
				existing.after = valueChange.after
				if maybe.Equal(existing.before, existing.after, bytes.Equal) {
					// The change to this key is a no-op, so remove it from [combinedChanges].
					delete(combinedChanges.values, key)
					changedKeys.Remove(key)
				}
			} else {
				combinedChanges.values[key] = &change[maybe.Maybe[[]byte]]{
					before: valueChange.before,
					after:  valueChange.after,
				}
				changedKeys.Add(key)
			}
		}
	}

	// Keep only the smallest [maxLength] keys.
	sortedChangedKeys := changedKeys.List()
	slices.Sort(sortedChangedKeys)
	if len(sortedChangedKeys) > maxLength {
		sortedChangedKeys = sortedChangedKeys[:maxLength]
	}

	result := make([]KeyChange, len(sortedChangedKeys))
	for i, key := range sortedChangedKeys {
		result[i] = KeyChange{
			Key:   []byte(key),
			Value: maybe.Bind(combinedChanges.values[key].after, slices.Clone[[]byte]),
		}
	}
	return result, nil
}

// index returns the position of [changes] in [th.history].
//
// Assumes [changes] is in [th.history].
func (th *trieHistory) index(changes *changeSummaryAndInsertNumber) int {
	return int(changes.insertNumber - th.history[0].insertNumber)
}

// record the provided set of changes in the history
func (th *trieHistory) record(changes *changeSummary) {
	// we aren't recording history so noop
	if th.maxHistoryLen == 0 {
		return
	}

	if len(th.history) == th.maxHistoryLen {
		// This change causes us to go over our lookback limit.
		// Remove the oldest set of changes.
		oldestEntry := th.history[0]
		th.history[0] = nil
		th.history = th.history[1:]

		latestChange := th.lastChanges[oldestEntry.rootID]
		if latestChange == oldestEntry {
			// The removed change was the most recent resulting in this root ID.
			delete(th.lastChanges, oldestEntry.rootID)
		}
	}

	changesAndIndex := &changeSummaryAndInsertNumber{
		changeSummary: changes,
		insertNumber:  th.nextInsertNumber,
	}
	th.nextInsertNumber++

	// Add [changes] to the sorted change list.
	th.history = append(th.history, changesAndIndex)

	// Mark that this is the most recent change resulting in [changes.rootID].
	th.lastChanges[changes.rootID] = changesAndIndex
}
