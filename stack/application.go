package stack

import (
	"net"
	"time"

	"github.com/hsdfat/diam-stack/diam"
)

// Application receives messages and transport events from a Stack.
// Callbacks run on the stack's goroutines and must not block for long.
type Application interface {
	// ReceiveMessage is called for every decoded message that is not the
	// answer to a pending SendRequest.
	ReceiveMessage(ctx *MessageContext)
	OnConnectionSuccess(local, remote net.Addr)
	// OnConnectionFail is called when a connect attempt to remote fails
	OnConnectionFail(remote string, result ResultCode)
	OnSendMessage(b []byte)
	OnDisconnect(result ResultCode)
	// OnDecodeError receives frames that do not decode. The frame is skipped
	// and the connection stays up.
	OnDecodeError(conn *Connection, frame []byte, err error)
}

// BaseApplication implements Application with no-op callbacks. Embed it to
// override only the callbacks of interest.
type BaseApplication struct{}

func (BaseApplication) ReceiveMessage(*MessageContext)           {}
func (BaseApplication) OnConnectionSuccess(net.Addr, net.Addr)   {}
func (BaseApplication) OnConnectionFail(string, ResultCode)      {}
func (BaseApplication) OnSendMessage([]byte)                     {}
func (BaseApplication) OnDisconnect(ResultCode)                  {}
func (BaseApplication) OnDecodeError(*Connection, []byte, error) {}

// MessageContext wraps a received message with its connection
type MessageContext struct {
	Message    *diam.Message
	Raw        []byte
	Connection *Connection
	Stack      *Stack
	ReceivedAt time.Time
}

// Reply encodes ans and writes it on the connection the message came from
func (m *MessageContext) Reply(ans *diam.Message) error {
	b, err := ans.Encode()
	if err != nil {
		return err
	}
	return m.Stack.write(m.Connection, b)
}
