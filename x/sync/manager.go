// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/trace"
	"github.com/ava-labs/vmsync/utils/constants"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/x/merkledb"
)

const (
	DefaultMaxAttempts    = 8
	DefaultRequestTimeout = constants.DefaultRequestTimeout

	initialRetryWait = 10 * time.Millisecond
	maxRetryWait     = time.Second
	retryWaitFactor  = 1.5 // Larger --> timeout grows more quickly
)

var (
	_ proof = (*rangeProof)(nil)
	_ proof = (*changeProof)(nil)

	ErrAlreadyStarted   = errors.New("cannot start a Manager that has already been started")
	ErrAlreadyClosed    = errors.New("Manager is closed")
	ErrNoClientProvided = errors.New("at least one client is required")
	ErrNoDBProvided     = errors.New("database is a required field of the sync config")
	ErrNoLogProvided    = errors.New("log is a required field of the sync config")
	ErrZeroWorkLimit    = errors.New("simultaneous work limit must be greater than 0")
	ErrSyncRangeFailed  = errors.New("failed to sync range")
	ErrSyncRootMismatch = errors.New("synced root doesn't match the target root")

	errInvalidRangeProof  = errors.New("failed to verify range proof")
	errInvalidChangeProof = errors.New("failed to verify change proof")
	errUnexpectedResponse = errors.New("unexpected response type")
	errIncompleteSync     = errors.New("synced ranges don't cover the key space")
)

type priority byte

// Note that [highPriority] > [medPriority] > [lowPriority].
const (
	lowPriority priority = iota + 1
	medPriority
	highPriority
	retryPriority
)

// workState is the progress of a single range.
//
//	pending -> awaitingProof -> verifying -> applied
//	                  |              |
//	                  +--> retrying <+--> failed
type workState byte

const (
	workPending workState = iota
	workAwaitingProof
	workVerifying
	workApplied
	workRetrying
	workFailed
)

func (s workState) String() string {
	switch s {
	case workPending:
		return "pending"
	case workAwaitingProof:
		return "awaiting_proof"
	case workVerifying:
		return "verifying"
	case workApplied:
		return "applied"
	case workRetrying:
		return "retrying"
	case workFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Target is the state the Manager syncs to. A new target replaces the
// previous one.
type Target struct {
	Root   ids.ID
	Height uint64
}

// Signifies that we should sync the range [start, end].
// nil [start] means there is no lower bound.
// nil [end] means there is no upper bound.
// [localRootID] is the ID of the root of this range in our database.
// If we have no local root for this range, [localRootID] is ids.Empty.
type workItem struct {
	start       maybe.Maybe[[]byte]
	end         maybe.Maybe[[]byte]
	priority    priority
	localRootID ids.ID
	attempt     int
	queueTime   time.Time
	state       workState
	// Peer that failed the last attempt. -1 if no attempt failed.
	lastPeer int
}

func newWorkItem(localRootID ids.ID, start maybe.Maybe[[]byte], end maybe.Maybe[[]byte], priority priority, queueTime time.Time) *workItem {
	return &workItem{
		localRootID: localRootID,
		start:       start,
		end:         end,
		priority:    priority,
		queueTime:   queueTime,
		lastPeer:    -1,
	}
}

func (w *workItem) requestFailed() {
	attempt := w.attempt + 1

	// Overflow check
	if attempt > w.attempt {
		w.attempt = attempt
	}
}

func (w *workItem) setState(log logging.Logger, state workState) {
	log.Verbo("range changed state",
		zap.Stringer("start", w.start),
		zap.Stringer("end", w.end),
		zap.Stringer("from", w.state),
		zap.Stringer("to", state),
		zap.Int("attempt", w.attempt),
	)
	w.state = state
}

type ManagerConfig struct {
	DB DB
	// Peers to fetch proofs from.
	Clients               []Client
	SimultaneousWorkLimit int
	// Limits of every request. Zero means the message defaults.
	KeyLimit   uint32
	BytesLimit uint32
	// Number of attempts made to sync a range before the sync fails.
	// Zero means [DefaultMaxAttempts].
	MaxAttempts int
	// Zero means [DefaultRequestTimeout].
	RequestTimeout time.Duration
	Target         Target
	Log            logging.Logger
	// Nil means [trace.Noop].
	Tracer trace.Tracer
}

type Manager struct {
	config ManagerConfig

	workLock sync.Mutex
	// [workLock] must be held when accessing [target].
	target Target
	// The number of work items currently being processed.
	// Namely, the number of goroutines executing [doWork].
	// [workLock] must be held when accessing [processingWorkItems].
	processingWorkItems int
	// [workLock] must be held while accessing [unprocessedWork].
	unprocessedWork *workHeap
	// Signalled when:
	// - An item is added to [unprocessedWork].
	// - An item is added to [processedWork].
	// - Close() is called.
	// [workLock] is its inner lock.
	unprocessedWorkCond sync.Cond
	// [workLock] must be held while accessing [processedWork].
	processedWork *workHeap
	// Cancelled when the sync stops.
	// [workLock] must be held while accessing [syncCtx].
	syncCtx context.Context
	// Cancelled when [target] changes. Work for [target] runs in [targetCtx].
	// [workLock] must be held while accessing [targetCtx] and [cancelTarget].
	targetCtx    context.Context
	cancelTarget context.CancelFunc
	// True iff the local root was verified to be [target.Root] after all the
	// ranges were synced.
	// [workLock] must be held while accessing [completed].
	completed bool

	peerLock sync.Mutex
	peers    *peerTracker

	// When this is closed:
	// - [cancelCtx] was called.
	// - [unprocessedWork] and [processedWork] are closed.
	doneChan chan struct{}

	errLock sync.Mutex
	// If non-nil, there was a fatal error.
	// [errLock] must be held when accessing [fatalError].
	fatalError error

	// Cancels all currently processing work items.
	cancelCtx context.CancelFunc

	// Set to true when Start is called.
	syncing   bool
	closeOnce sync.Once

	metrics *metrics
}

func NewManager(config ManagerConfig, registerer prometheus.Registerer) (*Manager, error) {
	switch {
	case config.DB == nil:
		return nil, ErrNoDBProvided
	case len(config.Clients) == 0:
		return nil, ErrNoClientProvided
	case config.Log == nil:
		return nil, ErrNoLogProvided
	case config.SimultaneousWorkLimit <= 0:
		return nil, ErrZeroWorkLimit
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.Tracer == nil {
		config.Tracer = trace.Noop
	}

	metrics, err := newMetrics("sync", registerer)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:          config,
		target:          config.Target,
		doneChan:        make(chan struct{}),
		unprocessedWork: newWorkHeap(),
		processedWork:   newWorkHeap(),
		peers:           newPeerTracker(len(config.Clients), config.Log),
		metrics:         metrics,
	}
	m.unprocessedWorkCond.L = &m.workLock

	return m, nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.workLock.Lock()
	defer m.workLock.Unlock()

	if m.syncing {
		return ErrAlreadyStarted
	}
	select {
	case <-m.doneChan:
		return ErrAlreadyClosed
	default:
	}

	localRootID, err := m.config.DB.GetMerkleRoot(ctx)
	if err != nil {
		return err
	}

	m.config.Log.Info("starting sync",
		zap.Stringer("targetRoot", m.target.Root),
		zap.Uint64("targetHeight", m.target.Height),
		zap.Stringer("localRoot", localRootID),
	)

	// Add work item to fetch the entire key range.
	// Note that this will be the first work item to be processed.
	// If the database has a root from a previous sync, only the changes
	// since that root are fetched.
	if err := m.unprocessedWork.Insert(newWorkItem(localRootID, maybe.Nothing[[]byte](), maybe.Nothing[[]byte](), lowPriority, time.Now())); err != nil {
		return err
	}

	m.syncing = true
	m.syncCtx, m.cancelCtx = context.WithCancel(ctx)
	m.targetCtx, m.cancelTarget = context.WithCancel(m.syncCtx)

	go m.sync()
	return nil
}

// sync awaits signal on [m.unprocessedWorkCond], which indicates that there
// is work to do or syncing completes. If there is work, sync will dispatch a
// goroutine to do the work.
func (m *Manager) sync() {
	defer func() {
		// Invariant: [m.workLock] is held when this goroutine begins.
		m.close()
		m.workLock.Unlock()
	}()

	// Keep doing work until we're closed, done or [ctx] is canceled.
	m.workLock.Lock()
	for {
		// Invariant: [m.workLock] is held here.
		switch {
		case m.syncCtx.Err() != nil:
			return // [m.workLock] released by defer.
		case m.processingWorkItems >= m.config.SimultaneousWorkLimit:
			// We're already processing the maximum number of work items.
			// Wait until one of them finishes.
			m.unprocessedWorkCond.Wait()
		case m.unprocessedWork.Len() == 0:
			if m.processingWorkItems == 0 {
				// There's no work to do, and there are no work items being processed
				// which could cause work to be added, so we're done.
				m.finish()
				return // [m.workLock] released by defer.
			}
			// There's no work to do.
			// Note that if [m].Close() is called, or [ctx] is canceled,
			// Close() will be called, which will broadcast on [m.unprocessedWorkCond],
			// which will cause Wait() to return, and this goroutine to exit.
			m.unprocessedWorkCond.Wait()
		default:
			m.processingWorkItems++
			m.metrics.processingRequests.Inc()
			work := m.unprocessedWork.GetWork()
			go m.doWork(m.targetCtx, m.target, work)
		}
	}
}

// finish verifies that the synced ranges cover the key space and that the
// local root is the target root.
//
// Assumes [m.workLock] is held.
func (m *Manager) finish() {
	if m.Error() != nil {
		return
	}
	if numRanges := m.processedWork.Len(); numRanges != 1 {
		m.setError(fmt.Errorf("%w: %d disjoint ranges", errIncompleteSync, numRanges))
		return
	}
	synced := m.processedWork.GetWork()
	m.processedWork.Release(synced)
	if synced.start.HasValue() || synced.end.HasValue() {
		m.setError(fmt.Errorf("%w: synced [%s, %s]", errIncompleteSync, synced.start, synced.end))
		return
	}

	localRootID, err := m.config.DB.GetMerkleRoot(m.syncCtx)
	if err != nil {
		m.setError(err)
		return
	}
	if localRootID != m.target.Root {
		m.setError(fmt.Errorf("%w: expected %s, got %s", ErrSyncRootMismatch, m.target.Root, localRootID))
		return
	}
	m.completed = true
}

// Close will stop the syncing process
func (m *Manager) Close() {
	m.workLock.Lock()
	defer m.workLock.Unlock()

	m.close()
}

// close is called when there is a fatal error or sync is complete.
// [workLock] must be held
func (m *Manager) close() {
	m.closeOnce.Do(func() {
		// Don't process any more work items.
		// Drop currently processing work items.
		if m.cancelCtx != nil {
			m.cancelCtx()
		}

		// ensure any goroutines waiting for work from the heaps gets released
		m.unprocessedWork.Close()
		m.unprocessedWorkCond.Signal()
		m.processedWork.Close()

		// signal all code waiting on the sync to complete
		close(m.doneChan)
	})
}

func (m *Manager) finishWorkItem() {
	m.workLock.Lock()
	defer m.workLock.Unlock()

	m.processingWorkItems--
	m.metrics.processingRequests.Dec()
	m.unprocessedWorkCond.Signal()
}

// Processes [work] by fetching, verifying and applying a proof of its range
// in the trie with root [target.Root].
// [ctx] is cancelled if [target] is replaced.
func (m *Manager) doWork(ctx context.Context, target Target, work *workItem) {
	defer m.finishWorkItem()

	// Backoff for failed requests accounting for time this job has already
	// spent waiting in the unprocessed queue
	if waitTime := calculateBackoff(work.attempt) - time.Since(work.queueTime); waitTime > 0 {
		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.requeueWork(work)
			return
		case <-timer.C:
		}
	}

	switch {
	case work.localRootID == target.Root:
		// Start root is the same as the end root, so we're done.
		m.completeWorkItem(work, maybe.Nothing[[]byte](), target.Root)
		return
	case target.Root == ids.Empty:
		// The target has no keys. Clear the range without asking a peer.
		if err := m.config.DB.CommitRangeProof(ctx, work.start, work.end, &merkledb.RangeProof{}); err != nil {
			m.setError(err)
			return
		}
		m.completeWorkItem(work, maybe.Nothing[[]byte](), target.Root)
		return
	}

	peer := m.selectPeer(work.lastPeer)
	work.setState(m.config.Log, workAwaitingProof)
	verifiedProof, err := m.requestProof(ctx, peer, target.Root, work)
	if err != nil {
		if ctx.Err() != nil {
			// The target changed or the sync is stopping. The peer isn't at
			// fault.
			m.requeueWork(work)
			return
		}

		m.config.Log.Debug("dropping response",
			zap.Int("peer", peer),
			zap.Stringer("start", work.start),
			zap.Stringer("end", work.end),
			zap.Stringer("localRoot", work.localRootID),
			zap.Stringer("targetRoot", target.Root),
			zap.Error(err),
		)
		m.retryWork(work, peer, target.Root, err)
		return
	}

	// Replace all the key-value pairs in the DB from start to the end of
	// the proof with values from the response.
	nextKey, err := verifiedProof.commit(ctx, m.config.DB)
	if err != nil {
		m.setError(err)
		return
	}
	work.setState(m.config.Log, workApplied)
	m.completeWorkItem(work, nextKey, target.Root)
}

// requestProof fetches and verifies a proof of [work]'s range from [peer].
// Errors are attributed to the peer.
func (m *Manager) requestProof(ctx context.Context, peer int, targetRootID ids.ID, work *workItem) (proof, error) {
	ctx, span := m.config.Tracer.Start(ctx, "Manager.requestProof", oteltrace.WithAttributes(
		attribute.Int("peer", peer),
		attribute.String("targetRoot", targetRootID.String()),
		attribute.Int("attempt", work.attempt),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.config.RequestTimeout)
	defer cancel()

	var (
		client    = m.config.Clients[peer]
		startTime = time.Now()
		p         proof
		err       error
	)
	m.metrics.requestsMade.Inc()
	if work.localRootID == ids.Empty {
		// the keys in this range have not been downloaded, so get all key/values
		p, err = m.requestRangeProof(ctx, client, targetRootID, work)
	} else {
		// the keys in this range have already been downloaded, but the root changed, so get all changes
		p, err = m.requestChangeProof(ctx, client, targetRootID, work)
	}

	bandwidth := 0.0
	if err == nil {
		bandwidth = float64(p.size()) / math.Max(time.Since(startTime).Seconds(), 1e-9)
	}
	m.peerLock.Lock()
	m.peers.TrackBandwidth(peer, bandwidth)
	m.peerLock.Unlock()
	return p, err
}

func (m *Manager) requestRangeProof(ctx context.Context, client Client, targetRootID ids.ID, work *workItem) (proof, error) {
	request := &message.RangeProofRequest{
		RootHash:   targetRootID,
		StartKey:   work.start,
		EndKey:     work.end,
		KeyLimit:   m.config.KeyLimit,
		BytesLimit: m.config.BytesLimit,
	}
	response, err := client.GetRangeProof(ctx, request)
	if err != nil {
		m.metrics.requestsFailed.Inc()
		return nil, err
	}
	m.metrics.requestsSucceeded.Inc()
	if response == nil || response.Proof == nil {
		return nil, errUnexpectedResponse
	}

	work.setState(m.config.Log, workVerifying)
	return m.verifyRangeProof(ctx, response.Proof, targetRootID, work.start, work.end)
}

func (m *Manager) verifyRangeProof(
	ctx context.Context,
	rangeProofResponse *merkledb.RangeProof,
	rootID ids.ID,
	start maybe.Maybe[[]byte],
	end maybe.Maybe[[]byte],
) (proof, error) {
	err := rangeProofResponse.Verify(
		ctx,
		start,
		end,
		rootID,
		message.EffectiveKeyLimit(m.config.KeyLimit),
		message.EffectiveBytesLimit(m.config.BytesLimit),
	)
	if err != nil {
		m.metrics.invalidProofs.Inc()
		return nil, fmt.Errorf("%w: %s", errInvalidRangeProof, err)
	}
	return &rangeProof{
		proof: rangeProofResponse,
		start: start,
		end:   end,
	}, nil
}

func (m *Manager) requestChangeProof(ctx context.Context, client Client, targetRootID ids.ID, work *workItem) (proof, error) {
	request := &message.ChangeProofRequest{
		StartRootHash: work.localRootID,
		EndRootHash:   targetRootID,
		StartKey:      work.start,
		EndKey:        work.end,
		KeyLimit:      m.config.KeyLimit,
		BytesLimit:    m.config.BytesLimit,
	}
	response, err := client.GetChangeProof(ctx, request)
	if err != nil {
		m.metrics.requestsFailed.Inc()
		return nil, err
	}
	m.metrics.requestsSucceeded.Inc()

	work.setState(m.config.Log, workVerifying)
	switch {
	case response == nil:
		return nil, errUnexpectedResponse
	case response.ChangeProof != nil && response.RangeProof == nil:
		// The server had enough history to send us a change proof
		err := m.config.DB.VerifyChangeProof(
			ctx,
			response.ChangeProof,
			work.start,
			work.end,
			targetRootID,
			request.EffectiveKeyLimit(),
			request.EffectiveBytesLimit(),
		)
		if err != nil {
			m.metrics.invalidProofs.Inc()
			return nil, fmt.Errorf("%w: %s", errInvalidChangeProof, err)
		}
		return &changeProof{
			proof: response.ChangeProof,
			end:   work.end,
		}, nil
	case response.RangeProof != nil && response.ChangeProof == nil:
		// The server didn't have the history, so it sent the range at the
		// target root instead.
		return m.verifyRangeProof(ctx, response.RangeProof, targetRootID, work.start, work.end)
	default:
		return nil, errUnexpectedResponse
	}
}

func (m *Manager) selectPeer(exclude int) int {
	m.peerLock.Lock()
	defer m.peerLock.Unlock()

	peer := m.peers.getPeer(exclude)
	m.peers.TrackPeer(peer)
	return peer
}

// retryWork queues [work] to be retried against another peer, or fails the
// sync if [work] has no attempts left.
func (m *Manager) retryWork(work *workItem, peer int, targetRootID ids.ID, cause error) {
	work.requestFailed()
	work.lastPeer = peer
	if work.attempt >= m.config.MaxAttempts {
		work.setState(m.config.Log, workFailed)
		m.setError(fmt.Errorf(
			"%w: start=%s end=%s root=%s after %d attempts: %s",
			ErrSyncRangeFailed,
			work.start,
			work.end,
			targetRootID,
			work.attempt,
			cause,
		))
		return
	}

	work.setState(m.config.Log, workRetrying)
	m.metrics.retries.Inc()
	work.priority = retryPriority
	work.queueTime = time.Now()

	m.workLock.Lock()
	m.unprocessedWork.Requeue(work)
	m.workLock.Unlock()
	m.unprocessedWorkCond.Signal()
}

// requeueWork queues [work] again without counting an attempt.
func (m *Manager) requeueWork(work *workItem) {
	work.setState(m.config.Log, workPending)
	work.queueTime = time.Now()

	m.workLock.Lock()
	m.unprocessedWork.Requeue(work)
	m.workLock.Unlock()
	m.unprocessedWorkCond.Signal()
}

func (m *Manager) Error() error {
	m.errLock.Lock()
	defer m.errLock.Unlock()

	return m.fatalError
}

// Wait blocks until one of the following occurs:
// - sync is complete.
// - sync fatally errored.
// - sync was closed.
// - [ctx] is canceled.
// If [ctx] is canceled, returns [ctx].Err().
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.doneChan:
	case <-ctx.Done():
		return ctx.Err()
	}

	// There was a fatal error.
	if err := m.Error(); err != nil {
		return err
	}

	m.workLock.Lock()
	completed := m.completed
	target := m.target
	m.workLock.Unlock()

	if !completed {
		return ErrAlreadyClosed
	}
	m.config.Log.Info("completed",
		zap.Stringer("root", target.Root),
		zap.Uint64("height", target.Height),
	)
	return nil
}

// UpdateSyncTarget replaces the target of the sync. Work in flight for the
// previous target is cancelled and every synced range is checked against the
// new target.
func (m *Manager) UpdateSyncTarget(target Target) error {
	m.workLock.Lock()
	defer m.workLock.Unlock()

	select {
	case <-m.doneChan:
		return ErrAlreadyClosed
	default:
	}

	if m.target.Root == target.Root {
		// the root hasn't changed, so there is nothing to sync
		m.target = target
		return nil
	}

	m.config.Log.Debug("updated sync target",
		zap.Stringer("previousRoot", m.target.Root),
		zap.Stringer("root", target.Root),
		zap.Uint64("height", target.Height),
	)
	m.metrics.targetUpdates.Inc()
	m.target = target

	if m.cancelTarget != nil {
		m.cancelTarget()
		m.targetCtx, m.cancelTarget = context.WithCancel(m.syncCtx)
	}

	// move all completed ranges into the work heap with high priority
	shouldSignal := m.processedWork.Len() > 0
	for m.processedWork.Len() > 0 {
		// Note that [m.processedWork].Close() hasn't
		// been called because we have [m.workLock]
		// and we checked that [m.doneChan] isn't closed.
		currentItem := m.processedWork.GetWork()
		m.processedWork.Release(currentItem)
		currentItem.priority = highPriority
		currentItem.state = workPending
		currentItem.queueTime = time.Now()
		if err := m.unprocessedWork.Insert(currentItem); err != nil {
			m.setError(err)
			return err
		}
	}
	if shouldSignal {
		// Only signal once because we only have 1 goroutine
		// waiting on [m.unprocessedWorkCond].
		m.unprocessedWorkCond.Signal()
	}
	return nil
}

// Record that there was a fatal error and begin shutting down.
func (m *Manager) setError(err error) {
	m.errLock.Lock()
	defer m.errLock.Unlock()

	m.config.Log.Error("sync errored", zap.Error(err))
	if m.fatalError == nil {
		m.fatalError = err
	}
	// Call in goroutine because we might be holding [m.workLock]
	// which [m.Close] will try to acquire.
	go m.Close()
}

// Mark that we've fetched all the key-value pairs of the trie with root
// [rootID] in [work.start, work.end] that are before [nextKey].
//
// [nextKey] is Nothing if the whole range was fetched. Otherwise it is the
// largest fetched key followed by a 0 byte.
//
// Assumes [m.workLock] is not held.
func (m *Manager) completeWorkItem(work *workItem, nextKey maybe.Maybe[[]byte], rootID ids.ID) {
	m.workLock.Lock()
	defer func() {
		m.workLock.Unlock()
		m.unprocessedWorkCond.Signal()
	}()

	m.unprocessedWork.Release(work)

	end := work.end
	if nextKey.HasValue() {
		// The range [nextKey, work.end] is left to fetch.
		m.enqueueWork(newWorkItem(work.localRootID, nextKey, work.end, work.priority, time.Now()))
		largest := nextKey.Value()
		end = maybe.Some(largest[:len(largest)-1])
	}

	stale := m.target.Root != rootID
	if stale {
		// the root has changed, so reinsert with high priority
		// Use root from proof as old root.
		m.enqueueWork(newWorkItem(rootID, work.start, end, highPriority, time.Now()))
	} else {
		synced := newWorkItem(rootID, work.start, end, work.priority, time.Now())
		synced.state = workApplied
		if err := m.processedWork.MergeInsert(synced); err != nil {
			m.setError(err)
			return
		}
		m.metrics.rangesCompleted.Inc()
	}

	// completed the range [work.start, end], log and record in the completed work heap
	m.config.Log.Debug("completed range",
		zap.Stringer("start", work.start),
		zap.Stringer("end", end),
		zap.Stringer("rootID", rootID),
		zap.Bool("stale", stale),
	)
}

// Queue the given key range to be fetched and applied.
// If there are sufficiently few unprocessed/processing work items,
// splits the range into [start, mid] and [mid||0, end] and queues both.
// Assumes [m.workLock] is held.
func (m *Manager) enqueueWork(work *workItem) {
	for _, item := range m.splitWork(work) {
		if err := m.unprocessedWork.Insert(item); err != nil {
			m.setError(err)
			return
		}
	}
}

// splitWork returns the ranges [work] is queued as.
// Assumes [m.workLock] is held.
func (m *Manager) splitWork(work *workItem) []*workItem {
	if m.processingWorkItems+m.unprocessedWork.Len() > 2*m.config.SimultaneousWorkLimit {
		// There are too many work items already, don't split the range
		return []*workItem{work}
	}

	// Split the remaining range into to 2.
	// Find the middle point.
	mid := midPoint(work.start, work.end)

	if mid.IsNothing() ||
		(work.start.HasValue() && bytes.Compare(work.start.Value(), mid.Value()) >= 0) ||
		(work.end.HasValue() && bytes.Compare(mid.Value(), work.end.Value()) >= 0) {
		// The range is too small to split.
		return []*workItem{work}
	}

	// The second half starts at the first key after [mid], so no key is in
	// both halves. [mid] < [work.end] implies [mid||0] <= [work.end].
	secondStart := make([]byte, len(mid.Value())+1)
	copy(secondStart, mid.Value())

	// first item gets higher priority than the second to encourage finished ranges to grow
	// rather than start a new range that is not contiguous with existing completed ranges
	return []*workItem{
		newWorkItem(work.localRootID, work.start, mid, medPriority, time.Now()),
		newWorkItem(work.localRootID, maybe.Some(secondStart), work.end, lowPriority, time.Now()),
	}
}

// find the midpoint between two keys
// start is expected to be less than end
// Nothing/nil [start] is treated as all 0's
// Nothing/nil [end] is treated as all 255's
func midPoint(startMaybe, endMaybe maybe.Maybe[[]byte]) maybe.Maybe[[]byte] {
	start := startMaybe.Value()
	end := endMaybe.Value()
	length := len(start)
	if len(end) > length {
		length = len(end)
	}

	if length == 0 {
		if endMaybe.IsNothing() {
			return maybe.Some([]byte{127})
		} else if len(end) == 0 {
			return maybe.Nothing[[]byte]()
		}
	}

	// This check deals with cases where the end has a 255(or is nothing which is treated as all 255s) and the start key ends 255.
	// For example, midPoint([255], nothing) should be [255, 127], not [255].
	// The result needs the extra byte added on to the end to deal with the fact that the naive midpoint between 255 and 255 would be 255
	if (len(start) > 0 && start[len(start)-1] == 255) && (len(end) == 0 || end[len(end)-1] == 255) {
		length++
	}

	leftover := 0
	midpoint := make([]byte, length+1)
	for i := 0; i < length; i++ {
		startVal := 0
		if i < len(start) {
			startVal = int(start[i])
		}

		endVal := 0
		if endMaybe.IsNothing() {
			endVal = 255
		}
		if i < len(end) {
			endVal = int(end[i])
		}

		total := startVal + endVal + leftover
		leftover = 0
		// if total is odd, when we divide, we will lose the .5,
		// record that in the leftover for the next digits
		if total%2 == 1 {
			leftover = 256
		}

		// find the midpoint between the start and the end
		total /= 2

		// larger than byte can hold, so carry over to previous byte
		if total >= 256 {
			total -= 256
			index := i - 1
			for index > 0 && midpoint[index] == 255 {
				midpoint[index] = 0
				index--
			}
			midpoint[index]++
		}
		midpoint[i] = byte(total)
	}
	if leftover > 0 {
		midpoint[length] = 127
	} else {
		midpoint = midpoint[0:length]
	}
	return maybe.Some(midpoint)
}

func calculateBackoff(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}

	retryWait := float64(initialRetryWait) * math.Pow(retryWaitFactor, float64(attempt))
	if retryWait > float64(maxRetryWait) {
		return maxRetryWait
	}
	return time.Duration(retryWait)
}
