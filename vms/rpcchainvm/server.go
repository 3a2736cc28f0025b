// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/rpcdb"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/snow/consensus/snowman"
	"github.com/ava-labs/vmsync/snow/engine/snowman/block"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/version"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/gconn"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime/subprocess"

	syncpkg "github.com/ava-labs/vmsync/x/sync"
)

// Maximum number of requests a Server handles at once. Frames are still read
// while the limit is reached, so that the host's responses to requests of the
// VM are delivered.
const maxConcurrentRequests = 64

var (
	errProofsNotSupported = errors.New("vm doesn't serve proofs")
	errUnexpectedRequest  = errors.New("unexpected request")
	errNotServing         = errors.New("server isn't serving a connection")
	errAlreadyServing     = errors.New("server is already serving a connection")
	errNoVM               = errors.New("no vm provided")
)

type ServerConfig struct {
	VM block.ChainVM
	// Answers proof requests. nil if the VM doesn't serve proofs.
	SyncServer *syncpkg.NetworkServer
	Message    message.Config
	// Maximum time to wait for the response to a request sent to the host.
	RequestTimeout time.Duration
	Log            logging.Logger
}

// Server answers the requests of a host on behalf of a VM. It also sends
// the database requests of the VM to the host.
type Server struct {
	config ServerConfig
	codec  *message.Codec
	db     *rpcdb.Client

	initOnce sync.Once
	initErr  error

	// [connLock] must be held when accessing [conn] and while writing to it.
	connLock sync.Mutex
	conn     Conn

	lastRequestID atomic.Uint32

	// [lock] must be held when accessing [serving] or [pending].
	lock    sync.Mutex
	serving bool
	// Request ID -> channel the response is delivered on. The channel is
	// closed if the connection ends before the response arrives.
	pending map[uint32]chan message.Message
}

func NewServer(config ServerConfig) (*Server, error) {
	switch {
	case config.VM == nil:
		return nil, errNoVM
	case config.Log == nil:
		return nil, errNoLog
	}
	if config.Message.MaxMessageSize == 0 {
		config.Message = message.DefaultConfig()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	codec, err := message.NewCodec(config.Message)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  config,
		codec:   codec,
		pending: make(map[uint32]chan message.Message),
	}
	s.db = rpcdb.NewClient(s)
	return s, nil
}

// Database returns the database of the host. It can only be used while the
// Server is serving a connection.
func (s *Server) Database() database.Database {
	return s.db
}

// Serve answers the requests received on [conn] until the host closes it or
// [ctx] is cancelled. Requests are handled concurrently. The VM is shut down
// before Serve returns.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	s.connLock.Lock()
	if s.conn != nil {
		s.connLock.Unlock()
		return errAlreadyServing
	}
	s.conn = conn
	s.connLock.Unlock()

	s.lock.Lock()
	s.serving = true
	s.lock.Unlock()

	err := s.serve(ctx, conn)

	s.connLock.Lock()
	s.conn = nil
	s.connLock.Unlock()

	if shutdownErr := s.config.VM.Shutdown(context.Background()); shutdownErr != nil {
		s.config.Log.Error("failed to shutdown vm",
			zap.Error(shutdownErr),
		)
		if err == nil {
			err = shutdownErr
		}
	}
	return err
}

func (s *Server) serve(ctx context.Context, conn Conn) error {
	var (
		eg, egCtx = errgroup.WithContext(ctx)
		sem       = semaphore.NewWeighted(maxConcurrentRequests)
	)

	var receiveErr error
	for {
		b, err := conn.Receive(egCtx)
		if err != nil {
			receiveErr = err
			break
		}

		frame, err := s.codec.DecodeFrame(b)
		if err != nil {
			s.config.Log.Debug("dropping malformed frame",
				zap.Error(err),
			)
			continue
		}
		if frame.Response {
			s.deliver(frame)
			continue
		}

		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			return s.respond(egCtx, frame.RequestID, s.handle(egCtx, frame.Message))
		})
	}

	// Handlers waiting on the host must not wait for their timeout.
	s.failPending()

	if err := eg.Wait(); err != nil {
		return err
	}
	if errors.Is(receiveErr, io.EOF) {
		s.config.Log.Info("host closed the connection")
		return nil
	}
	return receiveErr
}

// Request sends [msg] to the host and waits for the response. If the host
// answers with an error, the error is returned.
func (s *Server) Request(ctx context.Context, msg message.Message) (message.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	requestID := s.lastRequestID.Add(1)
	b, err := s.codec.EncodeFrame(&message.Frame{
		RequestID: requestID,
		Message:   msg,
	})
	if err != nil {
		return nil, err
	}

	responseChan := make(chan message.Message, 1)
	s.lock.Lock()
	if !s.serving {
		s.lock.Unlock()
		return nil, errNotServing
	}
	s.pending[requestID] = responseChan
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		delete(s.pending, requestID)
		s.lock.Unlock()
	}()

	if err := s.send(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to send %s request %d: %w", msg.Op(), requestID, err)
	}

	select {
	case response, ok := <-responseChan:
		if !ok {
			return nil, errNotServing
		}
		if errResponse, ok := response.(*message.ErrorResponse); ok {
			return nil, responseToError(errResponse)
		}
		return response, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s request %d: %w", msg.Op(), requestID, ctx.Err())
	}
}

func (s *Server) deliver(frame *message.Frame) {
	s.lock.Lock()
	responseChan, ok := s.pending[frame.RequestID]
	delete(s.pending, frame.RequestID)
	s.lock.Unlock()

	if !ok {
		s.config.Log.Debug("dropping unexpected response",
			zap.Stringer("op", frame.Message.Op()),
			zap.Uint32("requestID", frame.RequestID),
		)
		return
	}
	responseChan <- frame.Message
}

// failPending fails every pending request and prevents new requests until
// the next connection is served.
func (s *Server) failPending() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.serving = false
	for requestID, responseChan := range s.pending {
		close(responseChan)
		delete(s.pending, requestID)
	}
}

func (s *Server) send(ctx context.Context, b []byte) error {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.conn == nil {
		return errNotServing
	}
	return s.conn.Send(ctx, b)
}

// Notify reports [kind] to the host.
func (s *Server) Notify(ctx context.Context, kind message.NotificationKind) error {
	b, err := s.codec.EncodeFrame(&message.Frame{
		Message: &message.Notification{
			Kind: kind,
		},
	})
	if err != nil {
		return err
	}
	return s.send(ctx, b)
}

func (s *Server) respond(ctx context.Context, requestID uint32, response message.Message) error {
	frame := &message.Frame{
		RequestID: requestID,
		Response:  true,
		Message:   response,
	}
	b, err := s.codec.EncodeFrame(frame)
	if err != nil {
		s.config.Log.Warn("failed to encode response",
			zap.Stringer("op", response.Op()),
			zap.Uint32("requestID", requestID),
			zap.Error(err),
		)
		frame.Message = errorToResponse(err)
		b, err = s.codec.EncodeFrame(frame)
		if err != nil {
			return err
		}
	}

	return s.send(ctx, b)
}

// handle returns the response to [request]. Failures are reported with an
// ErrorResponse.
func (s *Server) handle(ctx context.Context, request message.Message) message.Message {
	response, err := s.dispatch(ctx, request)
	if err != nil {
		s.config.Log.Debug("request failed",
			zap.Stringer("op", request.Op()),
			zap.Error(err),
		)
		return errorToResponse(err)
	}
	return response
}

func (s *Server) dispatch(ctx context.Context, request message.Message) (message.Message, error) {
	switch request := request.(type) {
	case *message.VersionRequest:
		if err := s.initialize(ctx); err != nil {
			return nil, err
		}
		appVersion, err := s.config.VM.Version(ctx)
		if err != nil {
			return nil, err
		}
		return &message.VersionResponse{
			ProtocolVersion: version.RPCChainVMProtocol,
			AppVersion:      appVersion,
		}, nil
	case *message.HealthRequest:
		return s.health(ctx)
	case *message.BlockRequest:
		return s.block(ctx, request)
	case *message.SetPreferenceRequest:
		if err := s.config.VM.SetPreference(ctx, request.BlockID); err != nil {
			return nil, err
		}
		return &message.Empty{}, nil
	case *message.RangeProofRequest:
		if s.config.SyncServer == nil {
			return nil, errProofsNotSupported
		}
		return s.config.SyncServer.HandleRangeProofRequest(ctx, request)
	case *message.ChangeProofRequest:
		if s.config.SyncServer == nil {
			return nil, errProofsNotSupported
		}
		return s.config.SyncServer.HandleChangeProofRequest(ctx, request)
	default:
		return nil, fmt.Errorf("%w: %s", errUnexpectedRequest, request.Op())
	}
}

// initialize hands the database of the host to the VM if the VM keeps its
// state there. The host serves database requests until it received the
// version response.
func (s *Server) initialize(ctx context.Context) error {
	vm, ok := s.config.VM.(block.DatabaseVM)
	if !ok {
		return nil
	}
	s.initOnce.Do(func() {
		s.initErr = vm.Initialize(ctx, s.db)
		if s.initErr != nil {
			s.config.Log.Error("failed to initialize vm",
				zap.Error(s.initErr),
			)
		}
	})
	return s.initErr
}

func (s *Server) health(ctx context.Context) (message.Message, error) {
	details, err := s.config.VM.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}

	response := &message.HealthResponse{}
	switch details := details.(type) {
	case nil:
	case []byte:
		response.Details = details
	case string:
		response.Details = []byte(details)
	default:
		response.Details, err = json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("couldn't marshal health details: %w", err)
		}
	}
	return response, nil
}

func (s *Server) block(ctx context.Context, request *message.BlockRequest) (message.Message, error) {
	switch request.Action {
	case message.BlockParse:
		blk, err := s.config.VM.ParseBlock(ctx, request.Bytes)
		if err != nil {
			return nil, err
		}
		return blockResponse(blk), nil
	case message.BlockGet:
		blk, err := s.config.VM.GetBlock(ctx, request.BlockID)
		if err != nil {
			return nil, err
		}
		return blockResponse(blk), nil
	case message.BlockLastAccepted:
		blkID, err := s.config.VM.LastAccepted(ctx)
		if err != nil {
			return nil, err
		}
		blk, err := s.config.VM.GetBlock(ctx, blkID)
		if err != nil {
			return nil, err
		}
		return blockResponse(blk), nil
	}

	blk, err := s.config.VM.GetBlock(ctx, request.BlockID)
	if err != nil {
		return nil, err
	}
	switch request.Action {
	case message.BlockVerify:
		err = blk.Verify(ctx)
	case message.BlockAccept:
		err = blk.Accept(ctx)
	case message.BlockReject:
		err = blk.Reject(ctx)
	default:
		err = fmt.Errorf("%w: block action %s", errUnexpectedRequest, request.Action)
	}
	if err != nil {
		return nil, err
	}
	return &message.Empty{}, nil
}

func blockResponse(blk snowman.Block) *message.BlockResponse {
	return &message.BlockResponse{
		ID:        blk.ID(),
		ParentID:  blk.Parent(),
		Height:    blk.Height(),
		Timestamp: blk.Timestamp(),
		Bytes:     blk.Bytes(),
		Status:    blk.Status(),
	}
}

// Serve runs the VM of [config] as a plugin of a host that started this
// process with subprocess.Bootstrap. Every connection from the host is served
// by a new Server. Serve blocks until the host stops the process.
func Serve(config ServerConfig) error {
	if _, err := NewServer(config); err != nil {
		return err
	}
	subprocess.Serve(func(ctx context.Context, conn *gconn.Conn) error {
		server, err := NewServer(config)
		if err != nil {
			return err
		}
		return server.Serve(ctx, conn)
	})
	return nil
}
