package stack

import (
	"net"
	"time"

	"github.com/hsdfat/diam-stack/pkg/capture"
	"github.com/hsdfat/diam-stack/pkg/connection"
)

// Connection is the transport connection currently owned by a Stack
type Connection struct {
	id        uint64
	conn      connection.Conn
	createdAt time.Time
}

func newConnection(id uint64, nc net.Conn, cfg *connection.ConnectionConfig) *Connection {
	return &Connection{
		id:        id,
		conn:      connection.NewConn(nc, cfg),
		createdAt: time.Now(),
	}
}

// ID returns the sequence number of the connection within its stack
func (c *Connection) ID() uint64 { return c.id }

func (c *Connection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Uptime returns the time since the connection was established
func (c *Connection) Uptime() time.Duration { return time.Since(c.createdAt) }

// Stats returns byte and frame counters of the connection
func (c *Connection) Stats() connection.Stats { return c.conn.Stats() }

// Close closes the connection. The stack notices through its reader.
func (c *Connection) Close() error { return c.conn.Close() }

// Done is closed once the connection is gone
func (c *Connection) Done() <-chan struct{} {
	if n, ok := c.conn.(connection.CloseNotifier); ok {
		return n.CloseNotify()
	}
	return nil
}

func (c *Connection) inbound(w *capture.Writer, frame []byte) {
	if w == nil {
		return
	}
	_ = w.WriteFrame(time.Now(), capture.AddrPort(c.RemoteAddr()), capture.AddrPort(c.LocalAddr()), frame)
}

func (c *Connection) outbound(w *capture.Writer, frame []byte) {
	if w == nil {
		return
	}
	_ = w.WriteFrame(time.Now(), capture.AddrPort(c.LocalAddr()), capture.AddrPort(c.RemoteAddr()), frame)
}
