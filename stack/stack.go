// Package stack runs a single Diameter peer connection in server or client
// mode and dispatches decoded messages to an Application.
package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/pkg/capture"
	"github.com/hsdfat/diam-stack/pkg/connection"
	"github.com/hsdfat/diam-stack/pkg/logger"
	"github.com/hsdfat/diam-stack/pkg/metrics"
)

// Stack owns at most one listener and one live connection
type Stack struct {
	config  *Config
	app     Application
	factory *diam.Factory
	capture *capture.Writer

	logMu  sync.RWMutex
	logger logger.Logger

	mu          sync.Mutex
	state       State
	mode        Mode
	listener    net.Listener
	current     *Connection
	middlewares []Middleware
	handler     Handler
	nextConnID  uint64

	pendingMu sync.Mutex
	pending   map[uint32]*pendingRequest

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	stats          stackStats
	received       *metrics.MessageTypeMetrics
	sent           *metrics.MessageTypeMetrics
	handled        *metrics.MessageTypeMetrics
	latency        *metrics.LatencyTracker
	handlerLatency *metrics.LatencyTracker
}

type stackStats struct {
	TotalConnections atomic.Uint64
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	BytesSent        atomic.Uint64
	BytesReceived    atomic.Uint64
	DecodeErrors     atomic.Uint64
	Errors           atomic.Uint64
}

// Stats is a snapshot of stack statistics
type Stats struct {
	State            State
	Mode             Mode
	TotalConnections uint64
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	DecodeErrors     uint64
	Errors           uint64
	Pending          int
	Sent             map[uint32]uint64
	Received         map[uint32]uint64
	RequestLatency   metrics.LatencySnapshot
	HandlerLatency   metrics.LatencySnapshot
}

type pendingRequest struct {
	conn   *Connection
	answer chan *diam.Message
}

// New creates a stack. A nil config uses DefaultConfig, a nil factory the
// base dictionary and a nil app drops every callback.
func New(config *Config, app Application, factory *diam.Factory) (*Stack, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stack config: %w", err)
	}
	if config.ConnectionConfig == nil {
		config.ConnectionConfig = connection.DefaultConnectionConfig()
	}
	if app == nil {
		app = BaseApplication{}
	}
	if factory == nil {
		factory = diam.DefaultFactory()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Stack{
		config:         config,
		app:            app,
		factory:        factory,
		logger:         logger.New("diameter-stack", ""),
		pending:        make(map[uint32]*pendingRequest),
		ctx:            ctx,
		cancel:         cancel,
		received:       metrics.NewMessageTypeMetrics(),
		sent:           metrics.NewMessageTypeMetrics(),
		handled:        metrics.NewMessageTypeMetrics(),
		latency:        metrics.NewLatencyTracker(),
		handlerLatency: metrics.NewLatencyTracker(),
	}, nil
}

// SetLogger replaces the stack logger. It is safe to call while loops run.
func (s *Stack) SetLogger(l logger.Logger) {
	if l == nil {
		return
	}
	s.logMu.Lock()
	s.logger = l
	s.logMu.Unlock()
}

func (s *Stack) log() logger.Logger {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.logger
}

// SetCapture mirrors every frame sent and received into w
func (s *Stack) SetCapture(w *capture.Writer) {
	s.mu.Lock()
	s.capture = w
	s.mu.Unlock()
}

// Use appends middlewares around Application.ReceiveMessage. Middlewares
// added after the first message was dispatched are ignored.
func (s *Stack) Use(mw ...Middleware) {
	s.mu.Lock()
	s.middlewares = append(s.middlewares, mw...)
	s.mu.Unlock()
}

func (s *Stack) Factory() *diam.Factory { return s.factory }
func (s *Stack) Config() *Config        { return s.config }

func (s *Stack) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stack) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Connection returns the live connection or nil
func (s *Stack) Connection() *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Addr returns the listener address, or nil when not listening
func (s *Stack) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen binds ListenAddress and accepts peers in the background. Each
// accepted peer replaces the current connection.
func (s *Stack) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.listener != nil || s.mode == ModeClient {
		s.mu.Unlock()
		return fmt.Errorf("%w: listen in %s mode, state %s", ErrInvalidState, s.mode, s.state)
	}
	s.mu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.ListenAddress)
	if err != nil {
		s.stats.Errors.Add(1)
		return &ConnectionError{Op: "listen", Addr: s.config.ListenAddress, Result: ResultIOError, Err: err}
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		ln.Close()
		return ErrClosed
	}
	// lost a race with another Listen while binding
	if s.listener != nil {
		bound := s.listener.Addr()
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("%w: already listening on %s", ErrInvalidState, bound)
	}
	s.listener = ln
	s.mode = ModeServer
	if s.current == nil {
		s.state = StateListening
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log().Infow("Stack listening", "address", ln.Addr().String())
	go s.acceptLoop(ln)
	return nil
}

// acceptLoop accepts incoming connections
func (s *Stack) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	defer s.log().Debugw("Accept loop exited", "address", ln.Addr().String())

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log().Errorw("Failed to accept connection", "error", err)
			s.stats.Errors.Add(1)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.log().Infow("Accepted connection", "remote_addr", nc.RemoteAddr().String())
		if _, err := s.adopt(nc); err != nil {
			return
		}
	}
}

// Connect dials RemoteAddress. It is a no-op when a connection exists.
func (s *Stack) Connect(ctx context.Context) error {
	_, err := s.connect(ctx)
	return err
}

func (s *Stack) connect(ctx context.Context) (*Connection, error) {
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.mode == ModeServer:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: connect in %s mode", ErrInvalidState, s.mode)
	case s.current != nil:
		c := s.current
		s.mu.Unlock()
		return c, nil
	case s.state == StateConnecting:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: connect already in progress", ErrInvalidState)
	}
	s.mode = ModeClient
	s.state = StateConnecting
	s.mu.Unlock()

	remote := s.config.RemoteAddress
	dialer := net.Dialer{Timeout: s.config.ConnectTimeout}
	if s.config.LocalAddress != "" {
		local, err := net.ResolveTCPAddr("tcp", s.config.LocalAddress)
		if err != nil {
			return nil, s.connectFailed(remote, ResultUnknownHost, err)
		}
		dialer.LocalAddr = local
	}

	s.log().Infow("Connecting", "remote_addr", remote, "timeout", s.config.ConnectTimeout.String())
	nc, err := dialer.DialContext(ctx, "tcp", remote)
	if err != nil {
		return nil, s.connectFailed(remote, classify(err), err)
	}
	return s.adopt(nc)
}

func (s *Stack) connectFailed(remote string, result ResultCode, err error) error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.stats.Errors.Add(1)
	s.log().Warnw("Connect failed", "remote_addr", remote, "result", result.String(), "error", err)
	s.app.OnConnectionFail(remote, result)
	return &ConnectionError{Op: "connect", Addr: remote, Result: result, Err: err}
}

// adopt makes nc the current connection and starts its reader
func (s *Stack) adopt(nc net.Conn) (*Connection, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		nc.Close()
		return nil, ErrClosed
	}
	s.nextConnID++
	c := newConnection(s.nextConnID, nc, s.config.ConnectionConfig)
	old := s.current
	s.current = c
	s.state = StateConnected
	if s.handler == nil {
		s.handler = Chain(s.middlewares...)(s.app.ReceiveMessage)
	}
	// counted before unlocking so a concurrent Shutdown's Wait sees the reader
	s.wg.Add(1)
	s.mu.Unlock()

	if old != nil {
		s.log().Infow("Replacing connection",
			"old_remote_addr", old.RemoteAddr().String(),
			"new_remote_addr", c.RemoteAddr().String())
		old.Close()
	}

	s.stats.TotalConnections.Add(1)
	s.log().Infow("Connection established",
		"conn_id", c.id,
		"local_addr", c.LocalAddr().String(),
		"remote_addr", c.RemoteAddr().String())
	s.app.OnConnectionSuccess(c.LocalAddr(), c.RemoteAddr())
	go s.readLoop(c)
	return c, nil
}

// readLoop dispatches frames until the connection fails
func (s *Stack) readLoop(c *Connection) {
	defer s.wg.Done()
	err := c.conn.ReadFrames(func(frame []byte) {
		s.handleFrame(c, frame)
	})
	s.connectionLost(c, err)
}

func (s *Stack) handleFrame(c *Connection, frame []byte) {
	s.stats.MessagesReceived.Add(1)
	s.stats.BytesReceived.Add(uint64(len(frame)))
	c.inbound(s.captureWriter(), frame)

	msg, err := diam.DecodeMessage(frame, s.factory)
	if err != nil {
		s.stats.DecodeErrors.Add(1)
		s.log().Warnw("Failed to decode message",
			"remote_addr", c.RemoteAddr().String(),
			"length", len(frame),
			"error", err)
		s.app.OnDecodeError(c, frame, err)
		return
	}
	s.received.Increment(msg.Header.CommandCode)

	if !msg.Header.IsRequest() && s.deliver(msg) {
		return
	}

	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h(&MessageContext{
		Message:    msg,
		Raw:        frame,
		Connection: c,
		Stack:      s,
		ReceivedAt: time.Now(),
	})
}

// deliver hands an answer to the SendRequest waiting on its hop-by-hop id
func (s *Stack) deliver(ans *diam.Message) bool {
	s.pendingMu.Lock()
	p, ok := s.pending[ans.Header.HopByHopID]
	if ok {
		delete(s.pending, ans.Header.HopByHopID)
	}
	s.pendingMu.Unlock()
	if ok {
		p.answer <- ans
	}
	return ok
}

func (s *Stack) connectionLost(c *Connection, err error) {
	s.mu.Lock()
	wasCurrent := s.current == c
	if wasCurrent {
		s.current = nil
		if s.state != StateClosed {
			if s.listener != nil {
				s.state = StateListening
			} else {
				s.state = StateIdle
			}
		}
	}
	s.mu.Unlock()

	s.pendingMu.Lock()
	for id, p := range s.pending {
		if p.conn == c {
			close(p.answer)
			delete(s.pending, id)
		}
	}
	s.pendingMu.Unlock()

	result := ResultSuccess
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, connection.ErrClosed) {
		result = ResultIOError
		s.stats.Errors.Add(1)
	}
	s.log().Infow("Connection closed",
		"conn_id", c.id,
		"remote_addr", c.RemoteAddr().String(),
		"result", result.String(),
		"error", err,
		"replaced", !wasCurrent)
	s.app.OnDisconnect(result)
}

// Send encodes msg and writes it to the peer, connecting first in client
// mode when no connection exists.
func (s *Stack) Send(ctx context.Context, msg *diam.Message) error {
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.SendBytes(ctx, b)
}

// SendBytes writes an already encoded message
func (s *Stack) SendBytes(ctx context.Context, b []byte) error {
	c, err := s.active(ctx)
	if err != nil {
		return err
	}
	return s.write(c, b)
}

// SendRequest sends a request and waits for the answer carrying the same
// hop-by-hop id. Without a deadline on ctx RequestTimeout applies.
func (s *Stack) SendRequest(ctx context.Context, req *diam.Message) (*diam.Message, error) {
	if !req.Header.IsRequest() {
		return nil, fmt.Errorf("SendRequest: %s is not a request", req.CommandName())
	}
	if req.Header.HopByHopID == 0 {
		req.Header.HopByHopID = diam.NextHopByHopID()
	}
	if req.Header.EndToEndID == 0 {
		req.Header.EndToEndID = diam.NextEndToEndID()
	}
	b, err := req.Encode()
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	c, err := s.active(ctx)
	if err != nil {
		return nil, err
	}

	id := req.Header.HopByHopID
	p := &pendingRequest{conn: c, answer: make(chan *diam.Message, 1)}
	s.pendingMu.Lock()
	if _, dup := s.pending[id]; dup {
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("SendRequest: hop-by-hop id %d already pending", id)
	}
	s.pending[id] = p
	s.pendingMu.Unlock()
	defer s.forget(id, p)

	start := time.Now()
	if err := s.write(c, b); err != nil {
		return nil, err
	}

	select {
	case ans, ok := <-p.answer:
		if !ok {
			return nil, &ConnectionError{Op: "read", Addr: c.RemoteAddr().String(), Result: ResultIOError, Err: io.ErrUnexpectedEOF}
		}
		s.latency.Observe(time.Since(start))
		return ans, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, ErrClosed
	}
}

func (s *Stack) forget(id uint32, p *pendingRequest) {
	s.pendingMu.Lock()
	if s.pending[id] == p {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
}

// active returns the live connection, dialing in client mode
func (s *Stack) active(ctx context.Context) (*Connection, error) {
	s.mu.Lock()
	c, state, mode := s.current, s.state, s.mode
	s.mu.Unlock()
	switch {
	case state == StateClosed:
		return nil, ErrClosed
	case c != nil:
		return c, nil
	case mode != ModeServer && s.config.RemoteAddress != "":
		return s.connect(ctx)
	}
	return nil, ErrNotConnected
}

func (s *Stack) write(c *Connection, b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		s.stats.Errors.Add(1)
		s.log().Errorw("Failed to send message", "remote_addr", c.RemoteAddr().String(), "error", err)
		if errors.Is(err, connection.ErrClosed) {
			return ErrNotConnected
		}
		return &ConnectionError{Op: "write", Addr: c.RemoteAddr().String(), Result: ResultIOError, Err: err}
	}

	s.stats.MessagesSent.Add(1)
	s.stats.BytesSent.Add(uint64(len(b)))
	if cmd, err := connection.ParseCommand(b); err == nil {
		s.sent.Increment(cmd.Code)
		s.log().Debugw("Message sent", "command", cmd.String(), "length", len(b))
	}
	c.outbound(s.captureWriter(), b)
	s.app.OnSendMessage(b)
	return nil
}

func (s *Stack) captureWriter() *capture.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Shutdown closes the listener and the connection. It does not wait for the
// background goroutines, use Wait for that. Calling it again is a no-op.
func (s *Stack) Shutdown() {
	s.closeOnce.Do(func() {
		s.log().Infow("Stopping stack...")
		s.cancel()

		s.mu.Lock()
		s.state = StateClosed
		ln, c := s.listener, s.current
		s.listener = nil
		s.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil {
				s.log().Errorw("Failed to close listener", "error", err)
			}
		}
		if c != nil {
			c.Close()
		}
	})
}

// Wait blocks until the accept and read loops have exited
func (s *Stack) Wait() {
	s.wg.Wait()
}

// Stats returns a snapshot of the stack statistics
func (s *Stack) Stats() Stats {
	s.mu.Lock()
	state, mode := s.state, s.mode
	s.mu.Unlock()
	s.pendingMu.Lock()
	pending := len(s.pending)
	s.pendingMu.Unlock()

	return Stats{
		State:            state,
		Mode:             mode,
		TotalConnections: s.stats.TotalConnections.Load(),
		MessagesSent:     s.stats.MessagesSent.Load(),
		MessagesReceived: s.stats.MessagesReceived.Load(),
		BytesSent:        s.stats.BytesSent.Load(),
		BytesReceived:    s.stats.BytesReceived.Load(),
		DecodeErrors:     s.stats.DecodeErrors.Load(),
		Errors:           s.stats.Errors.Load(),
		Pending:          pending,
		Sent:             s.sent.GetAll(),
		Received:         s.received.GetAll(),
		RequestLatency:   s.latency.Snapshot(),
		HandlerLatency:   s.handlerLatency.Snapshot(),
	}
}

// MetricsSummary returns one line per direction, e.g.
// "Sent: [CER/CEA=1] (Total=1)"
func (s *Stack) MetricsSummary() string {
	return metrics.CompactMetrics("Sent", s.sent) + "\n" + metrics.CompactMetrics("Received", s.received)
}

// MetricsReport renders per-command tables for both directions
func (s *Stack) MetricsReport() string {
	return metrics.FormatMetrics("Sent", s.sent) + metrics.FormatMetrics("Received", s.received)
}
