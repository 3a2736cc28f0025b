// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"go.uber.org/zap"

	"golang.org/x/exp/slices"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/snow/choices"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/wrappers"
)

const namespace = "chain"

var (
	ErrDuplicateBlock = errors.New("block already submitted")
	ErrInvalidHeight  = errors.New("block height is not parent height + 1")
	ErrNotProcessing  = errors.New("block is not processing")
	ErrUnknownBlock   = errors.New("unknown block")
	ErrPreferRejected = errors.New("cannot prefer a rejected block")
	ErrOrphanAccept   = errors.New("accepted block's parent is not the last accepted block")

	errNoExecutor     = errors.New("no executor provided")
	errNoStore        = errors.New("no block store provided")
	errNoLog          = errors.New("no logger provided")
	errNoLastAccepted = errors.New("no last accepted block provided")
)

type Config struct {
	Executor Executor
	Store    BlockStore
	// The most recently accepted block. It is treated as accepted regardless
	// of its status.
	LastAccepted *Block
	Log          logging.Logger
	// If nil, metrics are not registered.
	Registerer prometheus.Registerer
}

type blockEntry struct {
	// Held for the duration of every transition of [blk].
	lock sync.Mutex
	blk  *Block
}

// State tracks the status of every block between the last accepted block and
// the processing frontier.
//
// A block's status is only modified while holding both its entry lock and
// [graphLock]. Entry locks are always acquired before [graphLock] and, when
// more than one is needed, ancestors before descendants.
type State struct {
	executor Executor
	store    BlockStore
	log      logging.Logger
	metrics  *metrics

	// Serializes calls to Accept so the last accepted block can't change
	// between checking it and advancing it.
	acceptLock sync.Mutex

	graphLock sync.RWMutex
	blocks    map[ids.ID]*blockEntry
	// parent ID -> IDs of the tracked blocks that build on it
	children     map[ids.ID][]ids.ID
	preferred    ids.ID
	lastAccepted ids.ID
	// If non-nil, the state machine halted and every mutation returns it.
	fatalError error
}

func New(config Config) (*State, error) {
	switch {
	case config.Executor == nil:
		return nil, errNoExecutor
	case config.Store == nil:
		return nil, errNoStore
	case config.Log == nil:
		return nil, errNoLog
	case config.LastAccepted == nil:
		return nil, errNoLastAccepted
	}

	m, err := newMetrics(namespace, config.Registerer)
	if err != nil {
		return nil, err
	}

	lastAccepted := config.LastAccepted.clone()
	lastAccepted.Status = choices.Accepted
	return &State{
		executor: config.Executor,
		store:    config.Store,
		log:      config.Log,
		metrics:  m,
		blocks: map[ids.ID]*blockEntry{
			lastAccepted.ID: {blk: lastAccepted},
		},
		children:     make(map[ids.ID][]ids.ID),
		preferred:    lastAccepted.ID,
		lastAccepted: lastAccepted.ID,
	}, nil
}

// Submit starts tracking [blk] as processing.
//
// If the parent of [blk] was rejected, [blk] can never be accepted and is
// rejected immediately without being passed to the executor.
func (s *State) Submit(_ context.Context, blk *Block) error {
	s.graphLock.Lock()
	defer s.graphLock.Unlock()

	if s.fatalError != nil {
		return s.fatalError
	}
	if _, ok := s.blocks[blk.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, blk.ID)
	}
	switch _, err := s.store.GetBlock(blk.ID); {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, blk.ID)
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	blk = blk.clone()
	blk.Status = choices.Processing
	if parent, ok := s.blocks[blk.Parent]; ok {
		if blk.Height != parent.blk.Height+1 {
			return fmt.Errorf("%w: block %s has height %d but parent %s has height %d",
				ErrInvalidHeight,
				blk.ID,
				blk.Height,
				parent.blk.ID,
				parent.blk.Height,
			)
		}
		if parent.blk.Status == choices.Rejected {
			blk.Status = choices.Rejected
		}
	}

	s.blocks[blk.ID] = &blockEntry{blk: blk}
	s.children[blk.Parent] = append(s.children[blk.Parent], blk.ID)

	if blk.Status == choices.Rejected {
		s.metrics.rejected.Inc()
		s.log.Debug("rejected block with rejected parent",
			zap.Stringer("blkID", blk.ID),
			zap.Stringer("parentID", blk.Parent),
		)
		return nil
	}
	s.metrics.processing.Inc()
	s.log.Debug("submitted block",
		zap.Stringer("blkID", blk.ID),
		zap.Uint64("height", blk.Height),
	)
	return nil
}

// Verify passes the processing block [blkID] to the executor. The status of
// the block is not changed.
func (s *State) Verify(ctx context.Context, blkID ids.ID) error {
	entry, err := s.getEntry(blkID)
	if err != nil {
		return err
	}

	entry.lock.Lock()
	defer entry.lock.Unlock()

	if entry.blk.Status != choices.Processing {
		return fmt.Errorf("%w: %s is %s", ErrNotProcessing, blkID, entry.blk.Status)
	}
	return s.executor.Verify(ctx, entry.blk.clone())
}

// Accept marks the processing block [blkID] as accepted. Its parent must be
// the last accepted block. Violating this, or failing to persist the block,
// halts the state machine.
func (s *State) Accept(ctx context.Context, blkID ids.ID) error {
	s.acceptLock.Lock()
	defer s.acceptLock.Unlock()

	entry, err := s.getEntry(blkID)
	if err != nil {
		return err
	}

	entry.lock.Lock()
	defer entry.lock.Unlock()

	s.graphLock.RLock()
	status := entry.blk.Status
	lastAccepted := s.lastAccepted
	s.graphLock.RUnlock()

	if status != choices.Processing {
		return fmt.Errorf("%w: %s is %s", ErrNotProcessing, blkID, status)
	}
	if entry.blk.Parent != lastAccepted {
		return s.setError(fmt.Errorf("%w: block %s has parent %s but last accepted is %s",
			ErrOrphanAccept,
			blkID,
			entry.blk.Parent,
			lastAccepted,
		))
	}

	accepted := entry.blk.clone()
	accepted.Status = choices.Accepted
	if err := s.store.PutBlock(accepted); err != nil {
		return s.setError(fmt.Errorf("failed to persist accepted block %s: %w", blkID, err))
	}
	if err := s.executor.Accept(ctx, accepted.clone()); err != nil {
		return s.setError(fmt.Errorf("failed to accept block %s: %w", blkID, err))
	}

	s.graphLock.Lock()
	entry.blk.Status = choices.Accepted
	s.lastAccepted = blkID
	s.graphLock.Unlock()

	s.metrics.processing.Dec()
	s.metrics.accepted.Inc()
	s.log.Debug("accepted block",
		zap.Stringer("blkID", blkID),
		zap.Uint64("height", accepted.Height),
	)
	return nil
}

// Reject marks the processing block [blkID] and all of its processing
// descendants as rejected. The executor is notified breadth first, starting
// with [blkID].
func (s *State) Reject(ctx context.Context, blkID ids.ID) error {
	entries, err := s.lockRejectSet(blkID)
	if err != nil {
		return err
	}
	defer func() {
		for _, entry := range entries {
			entry.lock.Unlock()
		}
	}()
	// [s.graphLock] is held.

	root := entries[0].blk
	if root.Status != choices.Processing {
		s.graphLock.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotProcessing, blkID, root.Status)
	}

	resetPreference := false
	for _, entry := range entries {
		entry.blk.Status = choices.Rejected
		if entry.blk.ID == s.preferred {
			resetPreference = true
		}
	}
	if resetPreference {
		s.preferred = s.lastAccepted
	}
	preferred := s.preferred
	s.graphLock.Unlock()

	s.metrics.processing.Sub(float64(len(entries)))
	s.metrics.rejected.Add(float64(len(entries)))

	errs := wrappers.Errs{}
	for _, entry := range entries {
		s.log.Debug("rejected block",
			zap.Stringer("blkID", entry.blk.ID),
			zap.Stringer("rejectedAncestorID", blkID),
		)
		errs.Add(s.executor.Reject(ctx, entry.blk.clone()))
	}
	if resetPreference {
		errs.Add(s.executor.SetPreference(ctx, preferred))
	}
	return errs.Err
}

// lockRejectSet returns the entry of [blkID] followed by the entries of its
// processing descendants in breadth first order. On success, every returned
// entry lock and [s.graphLock] are held.
func (s *State) lockRejectSet(blkID ids.ID) ([]*blockEntry, error) {
	for {
		s.graphLock.RLock()
		if s.fatalError != nil {
			s.graphLock.RUnlock()
			return nil, s.fatalError
		}
		entries, err := s.rejectSet(blkID)
		s.graphLock.RUnlock()
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			entry.lock.Lock()
		}
		s.graphLock.Lock()

		// A child may have been submitted, or a descendant decided, before
		// the locks were acquired.
		current, err := s.rejectSet(blkID)
		if err == nil && slices.Equal(entries, current) {
			return entries, nil
		}

		s.graphLock.Unlock()
		for _, entry := range entries {
			entry.lock.Unlock()
		}
		if err != nil {
			return nil, err
		}
	}
}

// rejectSet assumes [s.graphLock] is held.
func (s *State) rejectSet(blkID ids.ID) ([]*blockEntry, error) {
	root, ok := s.blocks[blkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, blkID)
	}

	entries := []*blockEntry{root}
	for i := 0; i < len(entries); i++ {
		for _, childID := range s.children[entries[i].blk.ID] {
			child, ok := s.blocks[childID]
			if ok && child.blk.Status == choices.Processing {
				entries = append(entries, child)
			}
		}
	}
	return entries, nil
}

// SetPreference sets the preferred block to [blkID] after notifying the
// executor.
func (s *State) SetPreference(ctx context.Context, blkID ids.ID) error {
	entry, err := s.getEntry(blkID)
	if err != nil {
		return err
	}

	// Holding the entry lock prevents the block from being rejected until the
	// preference is updated.
	entry.lock.Lock()
	defer entry.lock.Unlock()

	if entry.blk.Status == choices.Rejected {
		return fmt.Errorf("%w: %s", ErrPreferRejected, blkID)
	}
	if err := s.executor.SetPreference(ctx, blkID); err != nil {
		return err
	}

	s.graphLock.Lock()
	s.preferred = blkID
	s.graphLock.Unlock()
	return nil
}

// Status returns Unknown for blocks that were never submitted or that were
// rejected and pruned.
func (s *State) Status(blkID ids.ID) choices.Status {
	s.graphLock.RLock()
	entry, ok := s.blocks[blkID]
	if ok {
		status := entry.blk.Status
		s.graphLock.RUnlock()
		return status
	}
	s.graphLock.RUnlock()

	blk, err := s.store.GetBlock(blkID)
	if err != nil {
		return choices.Unknown
	}
	return blk.Status
}

// Get returns a copy of the block [blkID].
func (s *State) Get(blkID ids.ID) (*Block, error) {
	s.graphLock.RLock()
	entry, ok := s.blocks[blkID]
	if ok {
		blk := entry.blk.clone()
		s.graphLock.RUnlock()
		return blk, nil
	}
	s.graphLock.RUnlock()

	blk, err := s.store.GetBlock(blkID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, blkID)
	}
	return blk, err
}

func (s *State) Preferred() ids.ID {
	s.graphLock.RLock()
	defer s.graphLock.RUnlock()

	return s.preferred
}

func (s *State) LastAccepted() ids.ID {
	s.graphLock.RLock()
	defer s.graphLock.RUnlock()

	return s.lastAccepted
}

// Processing returns the IDs of every processing block in ascending order.
func (s *State) Processing() []ids.ID {
	s.graphLock.RLock()
	defer s.graphLock.RUnlock()

	processing := make([]ids.ID, 0, len(s.blocks))
	for blkID, entry := range s.blocks {
		if entry.blk.Status == choices.Processing {
			processing = append(processing, blkID)
		}
	}
	slices.SortFunc(processing, func(a, b ids.ID) bool {
		return a.Compare(b) < 0
	})
	return processing
}

// Prune stops tracking the decided blocks with a height below [height]. The
// last accepted block is never pruned. Returns the number of pruned blocks.
func (s *State) Prune(height uint64) int {
	s.graphLock.Lock()
	defer s.graphLock.Unlock()

	pruned := 0
	for blkID, entry := range s.blocks {
		blk := entry.blk
		if blkID == s.lastAccepted || !blk.Status.Decided() || blk.Height >= height {
			continue
		}

		delete(s.blocks, blkID)
		siblings := s.children[blk.Parent]
		if i := slices.Index(siblings, blkID); i >= 0 {
			siblings = slices.Delete(siblings, i, i+1)
		}
		if len(siblings) == 0 {
			delete(s.children, blk.Parent)
		} else {
			s.children[blk.Parent] = siblings
		}
		pruned++
	}
	if pruned > 0 {
		s.log.Debug("pruned blocks",
			zap.Uint64("height", height),
			zap.Int("numPruned", pruned),
		)
	}
	return pruned
}

// Error returns the error that halted the state machine, if any.
func (s *State) Error() error {
	s.graphLock.RLock()
	defer s.graphLock.RUnlock()

	return s.fatalError
}

func (s *State) getEntry(blkID ids.ID) (*blockEntry, error) {
	s.graphLock.RLock()
	defer s.graphLock.RUnlock()

	if s.fatalError != nil {
		return nil, s.fatalError
	}
	entry, ok := s.blocks[blkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, blkID)
	}
	return entry, nil
}

// setError halts the state machine. The first error is kept and returned.
func (s *State) setError(err error) error {
	s.graphLock.Lock()
	defer s.graphLock.Unlock()

	s.log.Fatal("block state machine halted", zap.Error(err))
	if s.fatalError == nil {
		s.fatalError = err
	}
	return s.fatalError
}
