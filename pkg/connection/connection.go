package connection

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by ReadFrames and Write once the connection was closed locally
var ErrClosed = errors.New("connection closed")

// ConnectionConfig tunes transport reads and writes
type ConnectionConfig struct {
	ReadTimeout  time.Duration // idle time before a read fails, 0 waits forever
	WriteTimeout time.Duration
	BufferSize   int // bytes per transport read
	MaxFrameSize int // 0 accepts up to the 24-bit header maximum
}

func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		WriteTimeout: 30 * time.Second,
		BufferSize:   defaultBufferSize,
	}
}

// Stats is a snapshot of connection counters
type Stats struct {
	BytesRead    int64
	BytesWritten int64
	FramesRead   int64
	FramesWrite  int64
	DroppedBytes int64
}

type streamConn struct {
	nc    net.Conn
	cfg   *ConnectionConfig
	reasm *Reassembler

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	framesRead   atomic.Int64
	framesWrite  atomic.Int64
	dropped      atomic.Int64
}

// NewConn wraps nc. A nil cfg uses DefaultConnectionConfig.
func NewConn(nc net.Conn, cfg *ConnectionConfig) Conn {
	if cfg == nil {
		cfg = DefaultConnectionConfig()
	}
	return &streamConn{
		nc:    nc,
		cfg:   cfg,
		reasm: NewReassembler(cfg.MaxFrameSize),
		done:  make(chan struct{}),
	}
}

func (c *streamConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed() {
		return 0, ErrClosed
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}

	n, err := c.nc.Write(b)
	c.bytesWritten.Add(int64(n))
	if err == nil {
		c.framesWrite.Add(1)
	}
	return n, err
}

// ReadFrames returns ErrClosed after a local Close and the transport error
// (io.EOF when the peer hangs up) otherwise. emit runs on the calling
// goroutine and must not retain the frame.
func (c *streamConn) ReadFrames(emit func([]byte)) error {
	buf := getReadBuffer(c.cfg.BufferSize)
	defer putReadBuffer(buf)

	for {
		if c.cfg.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		n, err := c.nc.Read(buf)
		// Close from another goroutine is what unblocks the read
		if c.closed() {
			return ErrClosed
		}
		if n > 0 {
			c.bytesRead.Add(int64(n))
			before := c.reasm.Dropped()
			c.framesRead.Add(int64(c.reasm.Feed(buf[:n], emit)))
			c.dropped.Add(c.reasm.Dropped() - before)
		}
		if err != nil {
			c.Close()
			return err
		}
	}
}

// Close is idempotent
func (c *streamConn) Close() (err error) {
	c.once.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

func (c *streamConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *streamConn) CloseNotify() <-chan struct{} { return c.done }
func (c *streamConn) LocalAddr() net.Addr          { return c.nc.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr         { return c.nc.RemoteAddr() }

func (c *streamConn) Stats() Stats {
	return Stats{
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		FramesRead:   c.framesRead.Load(),
		FramesWrite:  c.framesWrite.Load(),
		DroppedBytes: c.dropped.Load(),
	}
}
