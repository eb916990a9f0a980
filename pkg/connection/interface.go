package connection

import "net"

// Conn carries framed Diameter messages over one stream transport.
type Conn interface {
	// Write sends one encoded message. Concurrent calls never interleave.
	Write(b []byte) (int, error)
	// ReadFrames blocks, handing each complete frame to emit, until the
	// transport fails or Close is called.
	ReadFrames(emit func([]byte)) error
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Stats() Stats
}

// CloseNotifier is implemented by Conns that can report when they go away.
type CloseNotifier interface {
	// CloseNotify returns a channel closed once the connection is closed
	// locally or by the peer.
	CloseNotify() <-chan struct{}
}
