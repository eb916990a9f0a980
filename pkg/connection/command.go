package connection

import (
	"errors"
	"fmt"

	"github.com/hsdfat/diam-stack/pkg/wire"
)

// Command identifies a message kind for counters and logs
type Command struct {
	ApplicationID uint32
	Code          uint32
	Request       bool
}

// ParseCommand extracts the command information from a frame header
// without decoding the attributes.
func ParseCommand(frame []byte) (Command, error) {
	if len(frame) < 20 {
		return Command{}, errors.New("invalid header length")
	}

	// 4: Command Flags, 5-7: Command Code, 8-11: Application ID
	c := wire.NewCursor(frame)
	flags, _ := c.PeekUint8At(4)
	code, _ := c.PeekUint24At(5)
	app, _ := c.PeekUint32At(8)

	return Command{
		ApplicationID: app,
		Code:          code,
		Request:       flags&0x80 != 0,
	}, nil
}

func (c Command) String() string {
	kind := "A"
	if c.Request {
		kind = "R"
	}
	return fmt.Sprintf("%d:%d%s", c.ApplicationID, c.Code, kind)
}
