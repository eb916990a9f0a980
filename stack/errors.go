package stack

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrConnection matches every *ConnectionError
	ErrConnection = errors.New("connection error")
	// ErrNotConnected is returned by Send when no connection exists and none can be opened
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once Shutdown has been called
	ErrClosed = errors.New("stack closed")
	// ErrInvalidState is returned by Listen or Connect in a state that does not allow them
	ErrInvalidState = errors.New("invalid stack state")
)

// ConnectionError describes a bind, connect, read or write failure
type ConnectionError struct {
	Op     string // "listen", "connect", "read" or "write"
	Addr   string
	Result ResultCode
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Addr, e.Result, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// classify maps a dial error to the result reported to the application
func classify(err error) ResultCode {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ResultConnectTimeout
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		return ResultUnknownHost
	case errors.As(err, &netErr) && netErr.Timeout():
		return ResultConnectTimeout
	}
	return ResultIOError
}
