package stack

import "fmt"

// State is the lifecycle state of a stack
type State int32

const (
	// StateIdle has no listener and no connection
	StateIdle State = iota
	// StateListening has a live listener waiting for a peer
	StateListening
	// StateConnecting is dialing the remote peer
	StateConnecting
	// StateConnected owns one live transport connection
	StateConnected
	// StateClosed is terminal, entered by Shutdown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Mode is the working mode chosen by the first Listen or Connect
type Mode int32

const (
	ModeIdle Mode = iota
	ModeServer
	ModeClient
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeServer:
		return "SERVER"
	case ModeClient:
		return "CLIENT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// ResultCode reports the outcome of a transport operation to the application
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultConnectTimeout
	ResultUnknownHost
	ResultIOError
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultConnectTimeout:
		return "CONNECT_TIMEOUT"
	case ResultUnknownHost:
		return "UNKNOWN_HOST"
	case ResultIOError:
		return "IO_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}
