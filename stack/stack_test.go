package stack

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/models_base"
	"github.com/hsdfat/diam-stack/pkg/capture"
	"github.com/hsdfat/diam-stack/pkg/connection"
	"github.com/hsdfat/diam-stack/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// recorder collects application callbacks on buffered channels
type recorder struct {
	BaseApplication
	onReceive    func(ctx *MessageContext)
	received     chan *diam.Message
	connected    chan net.Addr
	failed       chan ResultCode
	disconnected chan ResultCode
	decodeErrors chan error
	sends        chan int
}

func newRecorder() *recorder {
	return &recorder{
		received:     make(chan *diam.Message, 16),
		connected:    make(chan net.Addr, 16),
		failed:       make(chan ResultCode, 16),
		disconnected: make(chan ResultCode, 16),
		decodeErrors: make(chan error, 16),
		sends:        make(chan int, 16),
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (r *recorder) ReceiveMessage(ctx *MessageContext) {
	offer(r.received, ctx.Message)
	if r.onReceive != nil {
		r.onReceive(ctx)
	}
}

func (r *recorder) OnConnectionSuccess(_, remote net.Addr)   { offer(r.connected, remote) }
func (r *recorder) OnConnectionFail(_ string, rc ResultCode) { offer(r.failed, rc) }
func (r *recorder) OnSendMessage(b []byte)                   { offer(r.sends, len(b)) }
func (r *recorder) OnDisconnect(rc ResultCode)               { offer(r.disconnected, rc) }
func (r *recorder) OnDecodeError(_ *Connection, _ []byte, err error) {
	offer(r.decodeErrors, err)
}

func recv[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// answering replies to every request with Result-Code 2001
func answering(ctx *MessageContext) {
	if !ctx.Message.Header.IsRequest() {
		return
	}
	ans := ctx.Message.Answer()
	ans.AddUnsigned32(268, diam.AVPFlagMandatory, 0, 2001)
	_ = ctx.Reply(ans)
}

func newServer(t *testing.T, app Application) *Stack {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	s, err := New(cfg, app, nil)
	require.NoError(t, err)
	require.NoError(t, s.Listen(context.Background()))
	t.Cleanup(func() {
		s.Shutdown()
		s.Wait()
	})
	return s
}

func newClient(t *testing.T, server *Stack, app Application) *Stack {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddress = ""
	cfg.RemoteAddress = server.Addr().String()
	c, err := New(cfg, app, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Shutdown()
		c.Wait()
	})
	return c
}

func cer() *diam.Message {
	m := diam.NewRequest(diam.FlagsNone, 257, 0)
	m.AddIdentity(264, diam.AVPFlagMandatory, 0, "client.example.com")
	m.AddIdentity(296, diam.AVPFlagMandatory, 0, "example.com")
	return m
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "LISTENING", StateListening.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN(9)", State(9).String())
	assert.Equal(t, "CLIENT", ModeClient.String())
	assert.Equal(t, "CONNECT_TIMEOUT", ResultConnectTimeout.String())
	assert.Equal(t, 3, int(ResultIOError))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"client only", func(c *Config) { c.ListenAddress = ""; c.RemoteAddress = "peer:3868" }, false},
		{"no address", func(c *Config) { c.ListenAddress = "" }, true},
		{"bad listen address", func(c *Config) { c.ListenAddress = "3868" }, true},
		{"bad local address", func(c *Config) { c.LocalAddress = "host" }, true},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, true},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"negative buffer", func(c *Config) { c.ConnectionConfig.BufferSize = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{}, nil, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ResultConnectTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, ResultUnknownHost, classify(&net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", IsNotFound: true}}))
	assert.Equal(t, ResultConnectTimeout, classify(&net.DNSError{Err: "timeout", IsTimeout: true}))
	assert.Equal(t, ResultIOError, classify(errors.New("connection refused")))
}

func TestRequestAnswerExchange(t *testing.T) {
	srvApp := newRecorder()
	srvApp.onReceive = answering
	server := newServer(t, srvApp)
	assert.Equal(t, StateListening, server.State())
	assert.Equal(t, ModeServer, server.Mode())

	cliApp := newRecorder()
	client := newClient(t, server, cliApp)
	assert.Equal(t, StateIdle, client.State())

	// no explicit Connect: the first request dials the peer
	req := cer()
	ans, err := client.SendRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ModeClient, client.Mode())
	assert.Equal(t, StateConnected, client.State())

	assert.False(t, ans.Header.IsRequest())
	assert.Equal(t, req.Header.HopByHopID, ans.Header.HopByHopID)
	assert.Equal(t, req.Header.EndToEndID, ans.Header.EndToEndID)
	rc := ans.Find(268, 0)
	require.NotNil(t, rc)
	assert.Equal(t, models_base.Unsigned32(2001), rc.Data)

	got := recv(t, srvApp.received, "server receive")
	assert.Equal(t, uint32(257), got.Header.CommandCode)
	assert.Equal(t, "Capabilities-Exchange-Request", got.CommandName())
	recv(t, srvApp.connected, "server connection callback")
	recv(t, cliApp.connected, "client connection callback")
	assert.Equal(t, int(req.Header.Length), recv(t, cliApp.sends, "client send callback"))

	// the answer is consumed by SendRequest, not the application
	select {
	case m := <-cliApp.received:
		t.Fatalf("answer also delivered to the application: %v", m)
	default:
	}

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(1), stats.MessagesReceived)
	assert.Equal(t, uint64(1), stats.Sent[257])
	assert.Equal(t, uint64(1), stats.RequestLatency.Count)
	assert.Equal(t, 0, stats.Pending)
	assert.Contains(t, client.MetricsSummary(), "Sent: [CER/CEA=1]")
	assert.Contains(t, client.MetricsReport(), "Received Metrics by Message Type")

	require.Eventually(t, func() bool { return server.Stats().MessagesSent == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, uint64(1), server.Stats().Received[257])
}

func TestSendWithoutConnection(t *testing.T) {
	server := newServer(t, nil)
	err := server.Send(context.Background(), cer())
	assert.ErrorIs(t, err, ErrNotConnected)

	cfg := DefaultConfig()
	idle, err := New(cfg, nil, nil)
	require.NoError(t, err)
	defer idle.Shutdown()
	assert.ErrorIs(t, idle.SendBytes(context.Background(), []byte{1}), ErrNotConnected)
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	app := newRecorder()
	cfg := DefaultConfig()
	cfg.RemoteAddress = addr
	c, err := New(cfg, app, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.Equal(t, addr, connErr.Addr)
	assert.Equal(t, connErr.Result, recv(t, app.failed, "connection fail callback"))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, uint64(1), c.Stats().Errors)
}

func TestListenAfterConnectIsRejected(t *testing.T) {
	server := newServer(t, nil)
	client := newClient(t, server, nil)
	require.NoError(t, client.Connect(context.Background()))
	// connecting again is a no-op
	require.NoError(t, client.Connect(context.Background()))

	client.config.ListenAddress = "127.0.0.1:0"
	assert.ErrorIs(t, client.Listen(context.Background()), ErrInvalidState)
	assert.ErrorIs(t, server.Connect(context.Background()), ErrInvalidState)
}

func TestShutdown(t *testing.T) {
	srvApp := newRecorder()
	server := newServer(t, srvApp)
	cliApp := newRecorder()
	client := newClient(t, server, cliApp)
	require.NoError(t, client.Connect(context.Background()))
	recv(t, srvApp.connected, "server connection callback")

	client.Shutdown()
	client.Shutdown()

	done := make(chan struct{})
	go func() {
		client.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Wait did not return after Shutdown")
	}

	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, ResultSuccess, recv(t, cliApp.disconnected, "client disconnect"))
	assert.ErrorIs(t, client.Send(context.Background(), cer()), ErrClosed)
	assert.ErrorIs(t, client.Connect(context.Background()), ErrClosed)
	assert.ErrorIs(t, client.Listen(context.Background()), ErrClosed)

	// the server notices the peer going away and keeps listening
	assert.Equal(t, ResultSuccess, recv(t, srvApp.disconnected, "server disconnect"))
	require.Eventually(t, func() bool { return server.State() == StateListening }, waitFor, 10*time.Millisecond)
	assert.Nil(t, server.Connection())
}

func TestConcurrentListen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	s, err := New(cfg, nil, nil)
	require.NoError(t, err)

	const callers = 32
	start := make(chan struct{})
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- s.Listen(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	bound := 0
	for err := range errs {
		if err == nil {
			bound++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, bound)

	s.Shutdown()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Wait did not return after Shutdown")
	}
}

func TestSetLoggerWhileRunning(t *testing.T) {
	srvApp := newRecorder()
	srvApp.onReceive = answering
	server := newServer(t, srvApp)
	client := newClient(t, server, nil)

	stop := make(chan struct{})
	swapped := make(chan struct{})
	go func() {
		defer close(swapped)
		for {
			select {
			case <-stop:
				return
			default:
				server.SetLogger(logger.New("swap", ""))
				client.SetLogger(logger.New("swap", ""))
				time.Sleep(time.Millisecond)
			}
		}
	}()

	for range 5 {
		_, err := client.SendRequest(context.Background(), cer())
		require.NoError(t, err)
	}
	close(stop)
	<-swapped
}

func TestNewPeerSupersedesConnection(t *testing.T) {
	srvApp := newRecorder()
	server := newServer(t, srvApp)

	firstApp := newRecorder()
	first := newClient(t, server, firstApp)
	require.NoError(t, first.Connect(context.Background()))
	recv(t, srvApp.connected, "first accept")

	second := newClient(t, server, nil)
	require.NoError(t, second.Connect(context.Background()))
	secondRemote := recv(t, srvApp.connected, "second accept")
	assert.Equal(t, second.Connection().LocalAddr().String(), secondRemote.String())

	// the replaced connection is closed by the server
	recv(t, firstApp.disconnected, "first client disconnect")
	require.Eventually(t, func() bool { return first.State() == StateIdle }, waitFor, 10*time.Millisecond)

	assert.Equal(t, StateConnected, server.State())
	assert.Equal(t, secondRemote.String(), server.Connection().RemoteAddr().String())
	assert.Equal(t, uint64(2), server.Connection().ID())
	assert.Equal(t, uint64(2), server.Stats().TotalConnections)
}

func TestDecodeErrorKeepsConnection(t *testing.T) {
	srvApp := newRecorder()
	server := newServer(t, srvApp)
	var pcap bytes.Buffer
	w, err := capture.NewWriter(&pcap)
	require.NoError(t, err)
	server.SetCapture(w)

	client := newClient(t, server, nil)

	bad := diam.NewRequest(diam.FlagsNone, 280, 0)
	bad.AddIdentity(264, diam.AVPFlagMandatory, 0, "client.example.com")
	b, err := bad.Encode()
	require.NoError(t, err)
	b[diam.HeaderLength+4] |= 0x01 // reserved AVP flag bit

	require.NoError(t, client.SendBytes(context.Background(), b))
	decodeErr := recv(t, srvApp.decodeErrors, "decode error callback")
	assert.ErrorIs(t, decodeErr, diam.ErrInvalidAvpBits)

	require.NoError(t, client.Send(context.Background(), cer()))
	got := recv(t, srvApp.received, "message after decode error")
	assert.Equal(t, uint32(257), got.Header.CommandCode)

	stats := server.Stats()
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(2), stats.MessagesReceived)
	assert.Equal(t, StateConnected, stats.State)
	assert.Equal(t, 2, w.Packets())
}

func TestSendRequestTimeout(t *testing.T) {
	server := newServer(t, newRecorder())
	client := newClient(t, server, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.SendRequest(ctx, cer())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, client.Stats().Pending)
}

func TestSendRequestConnectionLost(t *testing.T) {
	srvApp := newRecorder()
	srvApp.onReceive = func(ctx *MessageContext) { ctx.Connection.Close() }
	server := newServer(t, srvApp)
	client := newClient(t, server, nil)

	_, err := client.SendRequest(context.Background(), cer())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 0, client.Stats().Pending)
}

func TestSendRequestRejectsAnswer(t *testing.T) {
	client, err := New(nil, nil, nil)
	require.NoError(t, err)
	defer client.Shutdown()
	_, err = client.SendRequest(context.Background(), cer().Answer())
	assert.Error(t, err)
}

func TestMiddlewareChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx *MessageContext) {
				order = append(order, name+"-before")
				next(ctx)
				order = append(order, name+"-after")
			}
		}
	}

	h := Chain(mark("a"), mark("b"))(func(*MessageContext) { order = append(order, "handler") })
	h(&MessageContext{})
	assert.Equal(t, []string{"a-before", "b-before", "handler", "b-after", "a-after"}, order)
}

func TestRecoveryAndMetricsMiddleware(t *testing.T) {
	s, err := New(nil, nil, nil)
	require.NoError(t, err)
	defer s.Shutdown()

	p1, p2 := net.Pipe()
	defer p2.Close()
	c := newConnection(1, p1, connection.DefaultConnectionConfig())
	defer c.Close()

	h := Chain(RecoveryMiddleware(s), MetricsMiddleware(s), LoggingMiddleware(s))(func(*MessageContext) {
		panic("boom")
	})
	msg := diam.NewRequest(diam.FlagsNone, 280, 0)
	assert.NotPanics(t, func() {
		h(&MessageContext{Message: msg, Connection: c, Stack: s})
	})
	assert.Equal(t, uint64(1), s.Stats().Errors)
	// the panic skips the metrics recorded after the handler returns
	assert.Equal(t, uint64(0), s.handled.Get(280))

	ok := Chain(MetricsMiddleware(s))(func(*MessageContext) {})
	ok(&MessageContext{Message: msg, Connection: c, Stack: s})
	assert.Equal(t, uint64(1), s.handled.Get(280))
	assert.Equal(t, uint64(1), s.Stats().HandlerLatency.Count)
}

func TestStackUsesMiddlewares(t *testing.T) {
	srvApp := newRecorder()
	srvApp.onReceive = answering
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	server, err := New(cfg, srvApp, nil)
	require.NoError(t, err)
	server.Use(RecoveryMiddleware(server), MetricsMiddleware(server))
	require.NoError(t, server.Listen(context.Background()))
	defer func() {
		server.Shutdown()
		server.Wait()
	}()

	client := newClient(t, server, nil)
	_, err = client.SendRequest(context.Background(), cer())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return server.handled.Get(257) == 1 }, waitFor, 10*time.Millisecond)
}
