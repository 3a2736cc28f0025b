// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/memdb"
	"github.com/ava-labs/vmsync/ids"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/snow/choices"
	"github.com/ava-labs/vmsync/snow/consensus/snowman"
	"github.com/ava-labs/vmsync/snow/engine/snowman/block"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/maybe"
	"github.com/ava-labs/vmsync/vms/components/chain"
	"github.com/ava-labs/vmsync/x/merkledb"

	syncpkg "github.com/ava-labs/vmsync/x/sync"
)

func newTestMerkleDB(t *testing.T) merkledb.MerkleDB {
	t.Helper()

	db, err := merkledb.New(context.Background(), memdb.New(), merkledb.NewConfig())
	require.NoError(t, err)
	return db
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectedErr error
	}{
		{
			name: "no vm",
			config: ServerConfig{
				Log: logging.NoLog{},
			},
			expectedErr: errNoVM,
		},
		{
			name: "no log",
			config: ServerConfig{
				VM: &block.TestVM{},
			},
			expectedErr: errNoLog,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewServer(test.config)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestNewServerInvalidMessageConfig(t *testing.T) {
	require := require.New(t)

	server, err := NewServer(ServerConfig{
		VM: newTestVM(t),
		Message: message.Config{
			MaxMessageSize: -1,
		},
		Log: logging.NoLog{},
	})
	require.ErrorContains(err, "max message size")
	require.Nil(server)
}

func TestServerNotifyWithoutConnection(t *testing.T) {
	server := newTestServer(t, newTestVM(t), nil)
	err := server.Notify(context.Background(), message.PendingTxs)
	require.ErrorIs(t, err, errNotServing)
}

func TestServerServeTwice(t *testing.T) {
	require := require.New(t)

	_, server := newTestSession(t, newTestVM(t), nil, newTestConfig())
	_, vmConn := newPipe()
	err := server.Serve(context.Background(), vmConn)
	require.ErrorIs(err, errAlreadyServing)
}

func TestServerShutsDownVM(t *testing.T) {
	require := require.New(t)

	var shutdowns int
	vm := newTestVM(t)
	vm.ShutdownF = func(context.Context) error {
		shutdowns++
		return nil
	}

	hostConn, vmConn := newPipe()
	server := newTestServer(t, vm, nil)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(context.Background(), vmConn)
	}()

	s, err := NewSession(context.Background(), hostConn, newTestConfig())
	require.NoError(err)
	require.NoError(s.Close())
	require.NoError(<-serveErr)
	require.Equal(1, shutdowns)
}

func TestServerHealthDetails(t *testing.T) {
	tests := []struct {
		name     string
		details  interface{}
		expected []byte
	}{
		{
			name:     "nil",
			details:  nil,
			expected: nil,
		},
		{
			name:     "bytes",
			details:  []byte("healthy"),
			expected: []byte("healthy"),
		},
		{
			name:     "string",
			details:  "healthy",
			expected: []byte("healthy"),
		},
		{
			name:     "struct",
			details:  struct{ Height uint64 }{Height: 5},
			expected: []byte(`{"Height":5}`),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			vm := newTestVM(t)
			vm.HealthCheckF = func(context.Context) (interface{}, error) {
				return test.details, nil
			}
			server := newTestServer(t, vm, nil)

			response := server.handle(context.Background(), &message.HealthRequest{})
			require.IsType(&message.HealthResponse{}, response)
			require.Equal(test.expected, response.(*message.HealthResponse).Details)
		})
	}
}

func TestServerDatabaseWithoutConnection(t *testing.T) {
	server := newTestServer(t, newTestVM(t), nil)
	err := server.Database().Put([]byte("key"), []byte("value"))
	require.ErrorIs(t, err, errNotServing)
}

// testDatabaseVM keeps its state in a merkledb on the database of the host.
type testDatabaseVM struct {
	*block.TestVM

	state merkledb.MerkleDB
}

func (vm *testDatabaseVM) Initialize(ctx context.Context, db database.Database) error {
	state, err := merkledb.New(ctx, db, merkledb.NewConfig())
	if err != nil {
		return err
	}
	vm.state = state
	return state.Put([]byte("initialized"), []byte{1})
}

func TestVMStateOnHostDatabase(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// The host already holds state from an earlier session.
	hostDB := memdb.New()
	earlier, err := merkledb.New(ctx, hostDB, merkledb.NewConfig())
	require.NoError(err)
	require.NoError(earlier.Put([]byte("earlier"), []byte{2}))

	vm := &testDatabaseVM{TestVM: newTestVM(t)}
	vm.SetPreferenceF = func(_ context.Context, blkID ids.ID) error {
		return vm.state.Put([]byte("preferred"), blkID[:])
	}

	config := newTestConfig()
	config.DB = hostDB
	s, _ := newTestSession(t, vm, nil, config)

	// The state is loaded from the host while the session is established.
	value, err := vm.state.Get([]byte("earlier"))
	require.NoError(err)
	require.Equal([]byte{2}, value)

	// The VM writes to the host after the session is established.
	blkID := ids.GenerateTestID()
	require.NoError(s.SetPreference(ctx, blkID))

	hostState, err := merkledb.New(ctx, hostDB, merkledb.NewConfig())
	require.NoError(err)
	for key, expected := range map[string][]byte{
		"earlier":     {2},
		"initialized": {1},
		"preferred":   blkID[:],
	} {
		value, err := hostState.Get([]byte(key))
		require.NoError(err)
		require.Equal(expected, value)
	}

	vmRoot, err := vm.state.GetMerkleRoot(ctx)
	require.NoError(err)
	hostRoot, err := hostState.GetMerkleRoot(ctx)
	require.NoError(err)
	require.Equal(vmRoot, hostRoot)

	writes := testutil.ToFloat64(s.metrics.databaseRequests.WithLabelValues(message.DatabaseWriteBatch.String()))
	require.Equal(float64(2), writes)
}

func TestVMStateWithoutHostDatabase(t *testing.T) {
	require := require.New(t)

	hostConn, vmConn := newPipe()
	server := newTestServer(t, &testDatabaseVM{TestVM: newTestVM(t)}, nil)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(context.Background(), vmConn)
	}()

	_, err := NewSession(context.Background(), hostConn, newTestConfig())
	require.ErrorIs(err, errNoDatabase)
	require.NoError(<-serveErr)
}

func TestServerUnexpectedRequest(t *testing.T) {
	require := require.New(t)

	server := newTestServer(t, newTestVM(t), nil)
	response := server.handle(context.Background(), &message.Empty{})
	require.IsType(&message.ErrorResponse{}, response)
	require.ErrorIs(responseToError(response.(*message.ErrorResponse)), errUnexpectedRequest)
}

// testChain is a VM whose blocks are held in memory.
type testChain struct {
	blocks       map[ids.ID]*snowman.TestBlock
	lastAccepted ids.ID
	preferred    ids.ID
}

func newTestChain(length int) (*testChain, []*snowman.TestBlock) {
	genesis := &snowman.TestBlock{
		TestDecidable: choices.TestDecidable{
			IDV:     ids.GenerateTestID(),
			StatusV: choices.Accepted,
		},
		TimestampV: time.Unix(1, 0),
		BytesV:     []byte{0},
	}
	c := &testChain{
		blocks: map[ids.ID]*snowman.TestBlock{
			genesis.ID(): genesis,
		},
		lastAccepted: genesis.ID(),
	}

	blks := []*snowman.TestBlock{genesis}
	for i := 1; i <= length; i++ {
		parent := blks[i-1]
		blk := &snowman.TestBlock{
			TestDecidable: choices.TestDecidable{
				IDV:     ids.GenerateTestID(),
				StatusV: choices.Processing,
			},
			ParentV:    parent.ID(),
			HeightV:    parent.HeightV + 1,
			TimestampV: parent.TimestampV.Add(time.Second),
			BytesV:     []byte{byte(i)},
		}
		c.blocks[blk.ID()] = blk
		blks = append(blks, blk)
	}
	return c, blks
}

func (c *testChain) vm(t *testing.T) *block.TestVM {
	vm := newTestVM(t)
	vm.GetBlockF = func(_ context.Context, blkID ids.ID) (snowman.Block, error) {
		blk, ok := c.blocks[blkID]
		if !ok {
			return nil, errTest
		}
		return blk, nil
	}
	vm.ParseBlockF = func(_ context.Context, b []byte) (snowman.Block, error) {
		for _, blk := range c.blocks {
			if bytes.Equal(blk.BytesV, b) {
				return blk, nil
			}
		}
		return nil, errTest
	}
	vm.LastAcceptedF = func(context.Context) (ids.ID, error) {
		return c.lastAccepted, nil
	}
	vm.SetPreferenceF = func(_ context.Context, blkID ids.ID) error {
		c.preferred = blkID
		return nil
	}
	return vm
}

func TestSessionDrivesChainState(t *testing.T) {
	require := require.New(t)

	c, blks := newTestChain(2)
	s, _ := newTestSession(t, c.vm(t), nil, newTestConfig())
	ctx := context.Background()

	lastAccepted, err := s.LastAccepted(ctx)
	require.NoError(err)
	require.Equal(blks[0].ID(), lastAccepted.ID)
	require.Equal(choices.Accepted, lastAccepted.Status)

	state, err := chain.New(chain.Config{
		Executor:     NewExecutor(s),
		Store:        chain.NewDBStore(memdb.New()),
		LastAccepted: lastAccepted,
		Log:          logging.NoLog{},
	})
	require.NoError(err)

	for _, blk := range blks[1:] {
		parsed, err := s.ParseBlock(ctx, blk.Bytes())
		require.NoError(err)
		require.Equal(blk.ID(), parsed.ID)
		require.Equal(blk.Parent(), parsed.Parent)
		require.Equal(blk.Height(), parsed.Height)
		require.Equal(choices.Processing, parsed.Status)

		require.NoError(state.Submit(ctx, parsed))
		require.NoError(state.Verify(ctx, parsed.ID))
		require.NoError(state.SetPreference(ctx, parsed.ID))
	}
	require.Equal(blks[2].ID(), c.preferred)

	require.NoError(state.Accept(ctx, blks[1].ID()))
	require.Equal(choices.Accepted, blks[1].Status())
	require.NoError(state.Reject(ctx, blks[2].ID()))
	require.Equal(choices.Rejected, blks[2].Status())
	require.Equal(blks[1].ID(), state.LastAccepted())

	fetched, err := s.GetBlock(ctx, blks[1].ID())
	require.NoError(err)
	require.Equal(choices.Accepted, fetched.Status)
	require.Equal(blks[1].Timestamp().Unix(), fetched.Timestamp.Unix())
}

func TestSessionServesProofs(t *testing.T) {
	require := require.New(t)

	r := rand.New(rand.NewSource(0)) // #nosec G404
	source := newTestMerkleDB(t)
	for i := 0; i < 500; i++ {
		key := make([]byte, 1+r.Intn(16))
		_, _ = r.Read(key)
		require.NoError(source.Put(key, key))
	}
	root, err := source.GetMerkleRoot(context.Background())
	require.NoError(err)

	syncServer := syncpkg.NewNetworkServer(source, logging.NoLog{})
	s, _ := newTestSession(t, newTestVM(t), syncServer, newTestConfig())

	response, err := s.GetRangeProof(context.Background(), &message.RangeProofRequest{
		RootHash: root,
		KeyLimit: 50,
	})
	require.NoError(err)
	require.Len(response.Proof.KeyChanges, 50)
	require.NoError(response.Proof.Verify(
		context.Background(),
		maybe.Nothing[[]byte](),
		maybe.Nothing[[]byte](),
		root,
		50,
		0,
	))

	// A database synced through the session ends at the same root.
	db := newTestMerkleDB(t)
	m, err := syncpkg.NewManager(syncpkg.ManagerConfig{
		DB:                    db,
		Clients:               []syncpkg.Client{s},
		SimultaneousWorkLimit: 4,
		KeyLimit:              64,
		Target:                syncpkg.Target{Root: root, Height: 1},
		Log:                   logging.NoLog{},
	}, nil)
	require.NoError(err)
	require.NoError(m.Start(context.Background()))
	require.NoError(m.Wait(context.Background()))

	syncedRoot, err := db.GetMerkleRoot(context.Background())
	require.NoError(err)
	require.Equal(root, syncedRoot)
}
