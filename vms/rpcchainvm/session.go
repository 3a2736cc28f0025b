// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.opentelemetry.io/otel/attribute"

	"go.uber.org/zap"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ava-labs/vmsync/database"
	"github.com/ava-labs/vmsync/database/rpcdb"
	"github.com/ava-labs/vmsync/health"
	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/trace"
	"github.com/ava-labs/vmsync/utils/constants"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/wrappers"
	"github.com/ava-labs/vmsync/version"
	"github.com/ava-labs/vmsync/vms/rpcchainvm/runtime"
)

const (
	namespace = "rpcchainvm"

	DefaultRequestTimeout         = constants.DefaultRequestTimeout
	DefaultHealthInterval         = constants.DefaultHealthCheckInterval
	DefaultHealthTimeout          = constants.DefaultHealthCheckTimeout
	DefaultHealthFailureThreshold = constants.DefaultHealthFailureLimit
	DefaultNotificationBufferSize = 64

	// The version request is the only request sent before the session is
	// established. Later requests start at 1.
	handshakeRequestID uint32 = 0
)

var (
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
	ErrSessionClosed       = errors.New("session closed")
	ErrUnhealthy           = errors.New("vm is unhealthy")

	errNoLog              = errors.New("no logger provided")
	errInvalidThreshold   = errors.New("health failure threshold must be > 0")
	errUnexpectedResponse = errors.New("unexpected response")
	errNoDatabase         = errors.New("host doesn't serve a database")

	_ health.Checkable = (*Session)(nil)
)

type Config struct {
	// Protocol versions the host accepts from the VM.
	ProtocolRange version.ProtocolRange
	// Version of the host, reported to the VM.
	AppVersion string
	// Maximum time to wait for the response to a request.
	RequestTimeout time.Duration
	// Time between health checks of the VM.
	HealthInterval time.Duration
	// Maximum time to wait for the response to a health check.
	HealthTimeout time.Duration
	// Number of consecutive failed health checks after which the VM is
	// reported unhealthy.
	HealthFailureThreshold int
	// Number of notifications buffered for Notifications. Notifications that
	// don't fit are dropped.
	NotificationBufferSize int
	Message                message.Config
	Log                    logging.Logger
	// If nil, metrics are not registered.
	Registerer prometheus.Registerer
	// If nil, trace.Noop is used.
	Tracer trace.Tracer
	// Stopped when the session is closed. May be nil.
	Stopper runtime.Stopper
	// Served to the VM. If nil, the database requests of the VM fail.
	DB database.Database
}

// DefaultConfig returns a Config using [log] with every other field set to
// its default.
func DefaultConfig(log logging.Logger) Config {
	return Config{
		ProtocolRange:          version.DefaultProtocolRange,
		AppVersion:             version.Current.String(),
		RequestTimeout:         DefaultRequestTimeout,
		HealthInterval:         DefaultHealthInterval,
		HealthTimeout:          DefaultHealthTimeout,
		HealthFailureThreshold: DefaultHealthFailureThreshold,
		NotificationBufferSize: DefaultNotificationBufferSize,
		Message:                message.DefaultConfig(),
		Log:                    log,
		Tracer:                 trace.Noop,
	}
}

func (c *Config) verify() error {
	switch {
	case c.Log == nil:
		return errNoLog
	case c.HealthFailureThreshold < 0:
		return errInvalidThreshold
	}
	if c.ProtocolRange == (version.ProtocolRange{}) {
		c.ProtocolRange = version.DefaultProtocolRange
	}
	if c.AppVersion == "" {
		c.AppVersion = version.Current.String()
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	if c.HealthFailureThreshold == 0 {
		c.HealthFailureThreshold = DefaultHealthFailureThreshold
	}
	if c.NotificationBufferSize == 0 {
		c.NotificationBufferSize = DefaultNotificationBufferSize
	}
	if c.Message.MaxMessageSize == 0 {
		c.Message = message.DefaultConfig()
	}
	if c.Tracer == nil {
		c.Tracer = trace.Noop
	}
	return c.ProtocolRange.Verify()
}

// Session is an established connection to a VM. Requests may be issued
// concurrently and are answered in any order.
type Session struct {
	config  Config
	conn    Conn
	codec   *message.Codec
	metrics *metrics
	// nil if the host doesn't serve a database.
	dbServer *rpcdb.Server

	// Set during the handshake.
	protocolVersion uint32
	vmVersion       string

	lastRequestID atomic.Uint32

	// [lock] must be held when accessing [pending], [closed] or [closeErr].
	lock sync.Mutex
	// Request ID -> channel the response is delivered on. The channel is
	// closed if the session closes before the response arrives.
	pending  map[uint32]chan message.Message
	closed   bool
	closeErr error

	// Closed when the connection fails or the session is closed.
	notifications chan message.NotificationKind

	healthLock          sync.RWMutex
	consecutiveFailures int
	lastHealthErr       error

	// Stops the read and health loops.
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeRes  error
}

// NewSession performs the handshake with the VM on the other end of [conn].
// The session owns [conn] and the Stopper of [config]. Both are released if
// NewSession fails.
func NewSession(ctx context.Context, conn Conn, config Config) (*Session, error) {
	s, err := newSession(ctx, conn, config)
	if err != nil {
		errs := wrappers.Errs{}
		errs.Add(conn.Close())
		if config.Stopper != nil {
			config.Stopper.Stop(ctx)
		}
		if errs.Errored() && config.Log != nil {
			config.Log.Debug("failed to close connection", zap.Error(errs.Err))
		}
		return nil, err
	}
	return s, nil
}

func newSession(ctx context.Context, conn Conn, config Config) (*Session, error) {
	if err := config.verify(); err != nil {
		return nil, err
	}
	codec, err := message.NewCodec(config.Message)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(namespace, config.Registerer)
	if err != nil {
		return nil, err
	}

	s := &Session{
		config:        config,
		conn:          conn,
		codec:         codec,
		metrics:       m,
		pending:       make(map[uint32]chan message.Message),
		notifications: make(chan message.NotificationKind, config.NotificationBufferSize),
	}
	if config.DB != nil {
		s.dbServer = rpcdb.NewServer(config.DB)
	}
	if err := s.handshake(ctx); err != nil {
		if s.dbServer != nil {
			s.dbServer.ReleaseIterators()
		}
		return nil, err
	}

	s.config.Log.Info("established session",
		zap.Uint32("protocolVersion", s.protocolVersion),
		zap.String("vmVersion", s.vmVersion),
	)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.readLoop(loopCtx)
	go s.healthLoop(loopCtx)
	return s, nil
}

type receiveResult struct {
	frame []byte
	err   error
}

func (s *Session) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	request, err := s.codec.EncodeFrame(&message.Frame{
		RequestID: handshakeRequestID,
		Message: &message.VersionRequest{
			ProtocolVersion: s.config.ProtocolRange.Max,
			AppVersion:      s.config.AppVersion,
		},
	})
	if err != nil {
		return err
	}
	if err := s.conn.Send(ctx, request); err != nil {
		return fmt.Errorf("failed to send version request: %w", err)
	}

	// The VM may use the database of the host before it answers.
	var frame *message.Frame
	for {
		frame, err = s.receive(ctx)
		if err != nil {
			return err
		}
		if request, ok := frame.Message.(*message.DatabaseRequest); ok && !frame.Response {
			s.serveDatabase(ctx, frame.RequestID, request)
			continue
		}
		break
	}
	if !frame.Response || frame.RequestID != handshakeRequestID {
		return fmt.Errorf("%w: expected version response but got %s request %d",
			errUnexpectedResponse,
			frame.Message.Op(),
			frame.RequestID,
		)
	}

	switch response := frame.Message.(type) {
	case *message.VersionResponse:
		if err := s.config.ProtocolRange.Check(response.ProtocolVersion); err != nil {
			return fmt.Errorf("%w: vm %q: %s", ErrIncompatibleVersion, response.AppVersion, err)
		}
		s.protocolVersion = response.ProtocolVersion
		s.vmVersion = response.AppVersion
		return nil
	case *message.ErrorResponse:
		return responseToError(response)
	default:
		return fmt.Errorf("%w: expected version response but got %s",
			errUnexpectedResponse,
			response.Op(),
		)
	}
}

// receive returns the next frame sent by the VM. The receive is abandoned
// when [ctx] is done. It returns once the connection is closed.
func (s *Session) receive(ctx context.Context) (*message.Frame, error) {
	received := make(chan receiveResult, 1)
	go func() {
		frame, err := s.conn.Receive(ctx)
		received <- receiveResult{
			frame: frame,
			err:   err,
		}
	}()

	var result receiveResult
	select {
	case result = <-received:
	case <-ctx.Done():
		return nil, fmt.Errorf("no version response: %w", ctx.Err())
	}
	if result.err != nil {
		return nil, fmt.Errorf("failed to receive version response: %w", result.err)
	}
	return s.codec.DecodeFrame(result.frame)
}

// ProtocolVersion returns the protocol version negotiated with the VM.
func (s *Session) ProtocolVersion() uint32 {
	return s.protocolVersion
}

// Request sends [msg] to the VM and waits for the response. If the VM
// answers with an error, the error is returned.
func (s *Session) Request(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil request", message.ErrInvalidRequest)
	}

	op := msg.Op()
	requestID := s.lastRequestID.Add(1)
	ctx, span := s.config.Tracer.Start(ctx, "Session.Request", oteltrace.WithAttributes(
		attribute.Stringer("op", op),
		attribute.Int64("requestID", int64(requestID)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	s.metrics.requests.WithLabelValues(op.String()).Inc()
	response, err := s.request(ctx, requestID, msg)
	if err != nil {
		s.metrics.requestFailures.WithLabelValues(op.String()).Inc()
		s.config.Log.Debug("request failed",
			zap.Stringer("op", op),
			zap.Uint32("requestID", requestID),
			zap.Error(err),
		)
		return nil, err
	}
	return response, nil
}

func (s *Session) request(ctx context.Context, requestID uint32, msg message.Message) (message.Message, error) {
	frame, err := s.codec.EncodeFrame(&message.Frame{
		RequestID: requestID,
		Message:   msg,
	})
	if err != nil {
		return nil, err
	}

	responseChan := make(chan message.Message, 1)
	s.lock.Lock()
	if s.closed {
		err := s.closeErr
		s.lock.Unlock()
		return nil, err
	}
	s.pending[requestID] = responseChan
	s.lock.Unlock()

	s.metrics.inFlight.Inc()
	defer func() {
		s.lock.Lock()
		delete(s.pending, requestID)
		s.lock.Unlock()
		s.metrics.inFlight.Dec()
	}()

	if err := s.conn.Send(ctx, frame); err != nil {
		return nil, fmt.Errorf("failed to send %s request %d: %w", msg.Op(), requestID, err)
	}

	select {
	case response, ok := <-responseChan:
		if !ok {
			s.lock.Lock()
			err := s.closeErr
			s.lock.Unlock()
			return nil, err
		}
		if errResponse, ok := response.(*message.ErrorResponse); ok {
			return nil, responseToError(errResponse)
		}
		return response, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s request %d: %w", msg.Op(), requestID, ctx.Err())
	}
}

// Notifications returns the events the VM reported without being asked. The
// channel is closed when the session ends.
func (s *Session) Notifications() <-chan message.NotificationKind {
	return s.notifications
}

func (s *Session) readLoop(ctx context.Context) {
	defer func() {
		close(s.notifications)
		s.wg.Done()
	}()

	for {
		b, err := s.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.config.Log.Warn("connection to vm failed",
					zap.Error(err),
				)
			}
			s.markClosed(fmt.Errorf("%w: %s", ErrSessionClosed, err))
			return
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

		switch msg := frame.Message.(type) {
		case *message.Notification:
			s.notify(msg.Kind)
		case *message.DatabaseRequest:
			s.serveDatabase(ctx, frame.RequestID, msg)
		default:
			s.config.Log.Debug("dropping unexpected request",
				zap.Stringer("op", frame.Message.Op()),
				zap.Uint32("requestID", frame.RequestID),
			)
		}
	}
}

func (s *Session) notify(kind message.NotificationKind) {
	select {
	case s.notifications <- kind:
	default:
		s.metrics.droppedNotifications.Inc()
		s.config.Log.Warn("dropping notification",
			zap.Stringer("kind", kind),
		)
	}
}

// serveDatabase answers a database request of the VM. Requests are answered
// in the order they are received.
func (s *Session) serveDatabase(ctx context.Context, requestID uint32, request *message.DatabaseRequest) {
	s.metrics.databaseRequests.WithLabelValues(request.Action.String()).Inc()

	var response message.Message
	if s.dbServer == nil {
		response = errorToResponse(errNoDatabase)
	} else if dbResponse, err := s.dbServer.Handle(ctx, request); err != nil {
		s.config.Log.Debug("database request failed",
			zap.Stringer("action", request.Action),
			zap.Uint32("requestID", requestID),
			zap.Error(err),
		)
		response = errorToResponse(err)
	} else {
		response = dbResponse
	}

	frame := &message.Frame{
		RequestID: requestID,
		Response:  true,
		Message:   response,
	}
	b, err := s.codec.EncodeFrame(frame)
	if err != nil {
		s.config.Log.Warn("failed to encode database response",
			zap.Stringer("action", request.Action),
			zap.Uint32("requestID", requestID),
			zap.Error(err),
		)
		frame.Message = errorToResponse(err)
		if b, err = s.codec.EncodeFrame(frame); err != nil {
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if err := s.conn.Send(ctx, b); err != nil {
		s.config.Log.Debug("failed to send database response",
			zap.Uint32("requestID", requestID),
			zap.Error(err),
		)
	}
}

func (s *Session) deliver(frame *message.Frame) {
	s.lock.Lock()
	responseChan, ok := s.pending[frame.RequestID]
	delete(s.pending, frame.RequestID)
	s.lock.Unlock()

	if !ok {
		// The request timed out or was never made.
		s.config.Log.Debug("dropping unexpected response",
			zap.Stringer("op", frame.Message.Op()),
			zap.Uint32("requestID", frame.RequestID),
		)
		return
	}
	responseChan <- frame.Message
}

// markClosed fails every pending request with [err] and prevents new
// requests. Only the first call has an effect.
func (s *Session) markClosed(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = err
	for requestID, responseChan := range s.pending {
		close(responseChan)
		delete(s.pending, requestID)
	}
}

func (s *Session) healthLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.checkHealth(ctx)
	}
}

// checkHealth records the result of a single health check of the VM.
func (s *Session) checkHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.HealthTimeout)
	defer cancel()

	_, err := s.Health(ctx)

	s.healthLock.Lock()
	defer s.healthLock.Unlock()

	if err == nil {
		if s.consecutiveFailures >= s.config.HealthFailureThreshold {
			s.config.Log.Info("vm is healthy again")
		}
		s.consecutiveFailures = 0
		s.lastHealthErr = nil
		return
	}

	s.metrics.healthFailures.Inc()
	s.consecutiveFailures++
	s.lastHealthErr = err
	if s.consecutiveFailures == s.config.HealthFailureThreshold {
		s.config.Log.Warn("vm is unhealthy",
			zap.Int("consecutiveFailures", s.consecutiveFailures),
			zap.Error(err),
		)
	}
}

type healthDetails struct {
	ProtocolVersion     uint32 `json:"protocolVersion"`
	VMVersion           string `json:"vmVersion"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

// HealthCheck reports the VM unhealthy once the configured number of
// consecutive health checks failed. It doesn't contact the VM.
func (s *Session) HealthCheck(context.Context) (interface{}, error) {
	s.healthLock.RLock()
	details := healthDetails{
		ProtocolVersion:     s.protocolVersion,
		VMVersion:           s.vmVersion,
		ConsecutiveFailures: s.consecutiveFailures,
	}
	lastErr := s.lastHealthErr
	s.healthLock.RUnlock()

	s.lock.Lock()
	closed, closeErr := s.closed, s.closeErr
	s.lock.Unlock()

	switch {
	case closed:
		return details, closeErr
	case details.ConsecutiveFailures >= s.config.HealthFailureThreshold:
		return details, fmt.Errorf("%w: %d consecutive failed health checks: %s",
			ErrUnhealthy,
			details.ConsecutiveFailures,
			lastErr,
		)
	default:
		return details, nil
	}
}

// Close fails every pending request with ErrSessionClosed, closes the
// connection and stops the VM runtime. Later calls return the result of the
// first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.markClosed(ErrSessionClosed)
		s.cancel()

		s.closeRes = s.conn.Close()
		s.wg.Wait()
		if s.dbServer != nil {
			s.dbServer.ReleaseIterators()
		}
		if s.config.Stopper != nil {
			s.config.Stopper.Stop(context.Background())
		}
		s.config.Log.Info("closed session")
	})
	return s.closeRes
}

// WithSession dials a VM, establishes a session with it and calls [f]. The
// session, its connection and the VM runtime are released when [f] returns
// or panics. The Stopper returned by [dial] replaces the Stopper of
// [config].
func WithSession(
	ctx context.Context,
	dial DialFunc,
	config Config,
	f func(context.Context, *Session) error,
) (err error) {
	conn, stopper, err := dial(ctx)
	if err != nil {
		return err
	}
	config.Stopper = stopper

	s, err := NewSession(ctx, conn, config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); err == nil {
			err = closeErr
		}
	}()
	return f(ctx, s)
}
