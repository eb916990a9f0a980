package diam

import (
	"fmt"
	"strings"

	"github.com/hsdfat/diam-stack/pkg/wire"
)

const (
	// Version is the only protocol version understood
	Version uint8 = 1
	// HeaderLength is the fixed size of the message header
	HeaderLength = 20
	// MaxMessageSize is the largest length the 24-bit length field can carry
	MaxMessageSize = 1<<24 - 1
)

// Command flag bits
const (
	FlagRequest       uint8 = 0x80
	FlagProxiable     uint8 = 0x40
	FlagError         uint8 = 0x20
	FlagRetransmitted uint8 = 0x10
	FlagsReserved     uint8 = 0x0F

	FlagsNone uint8 = 0x00
	FlagsRP         = FlagRequest | FlagProxiable
	FlagsRT         = FlagRequest | FlagRetransmitted
	FlagsRPT        = FlagRequest | FlagProxiable | FlagRetransmitted
	FlagsPE         = FlagProxiable | FlagError
	FlagsPT         = FlagProxiable | FlagRetransmitted
	FlagsET         = FlagError | FlagRetransmitted
)

// Header is the 20-byte Diameter message header
type Header struct {
	Version       uint8
	Length        uint32
	Flags         uint8
	CommandCode   uint32
	ApplicationID uint32
	HopByHopID    uint32
	EndToEndID    uint32
}

func (h Header) IsRequest() bool       { return h.Flags&FlagRequest != 0 }
func (h Header) IsProxiable() bool     { return h.Flags&FlagProxiable != 0 }
func (h Header) IsError() bool         { return h.Flags&FlagError != 0 }
func (h Header) IsRetransmitted() bool { return h.Flags&FlagRetransmitted != 0 }

func (h *Header) SetRequest(v bool)       { h.setFlag(FlagRequest, v) }
func (h *Header) SetProxiable(v bool)     { h.setFlag(FlagProxiable, v) }
func (h *Header) SetError(v bool)         { h.setFlag(FlagError, v) }
func (h *Header) SetRetransmitted(v bool) { h.setFlag(FlagRetransmitted, v) }

func (h *Header) setFlag(bit uint8, v bool) {
	if v {
		h.Flags |= bit
	} else {
		h.Flags &^= bit
	}
}

func (h *Header) encode(c *wire.Cursor) {
	c.WriteUint8(h.Version)
	c.WriteUint24(h.Length)
	c.WriteUint8(h.Flags)
	c.WriteUint24(h.CommandCode)
	c.WriteUint32(h.ApplicationID)
	c.WriteUint32(h.HopByHopID)
	c.WriteUint32(h.EndToEndID)
}

// Bytes returns the 20-byte wire form of the header
func (h Header) Bytes() []byte {
	c := wire.NewWriteCursor(HeaderLength)
	h.encode(c)
	return c.Bytes()
}

// DecodeHeader decodes the header at the start of b. Checks run in order:
// version, declared length against len(b), reserved bits, then the R and E
// combination. On failure the returned header holds the decoded fields.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) == 0 {
		return Header{}, &ParseError{Kind: ErrInvalidMessageLength, Reason: "empty buffer"}
	}
	h := Header{Version: b[0]}
	if h.Version != Version {
		return h, &ParseError{Kind: ErrUnsupportedVersion, Header: h, Reason: fmt.Sprintf("version %d", h.Version)}
	}
	if len(b) < HeaderLength {
		return h, &ParseError{Kind: ErrInvalidMessageLength, Header: h,
			Reason: fmt.Sprintf("%d bytes is shorter than the header", len(b))}
	}

	c := wire.NewCursor(b)
	_ = c.Skip(1)
	h.Length, _ = c.ReadUint24()
	h.Flags, _ = c.ReadUint8()
	h.CommandCode, _ = c.ReadUint24()
	h.ApplicationID, _ = c.ReadUint32()
	h.HopByHopID, _ = c.ReadUint32()
	h.EndToEndID, _ = c.ReadUint32()

	if h.Length < HeaderLength || int(h.Length) > len(b) {
		return h, &ParseError{Kind: ErrInvalidMessageLength, Header: h,
			Reason: fmt.Sprintf("declared length %d, have %d bytes", h.Length, len(b))}
	}
	if h.Flags&FlagsReserved != 0 {
		return h, &ParseError{Kind: ErrInvalidHeaderBits, Header: h, Reason: fmt.Sprintf("reserved bits set in flags 0x%02x", h.Flags)}
	}
	if h.IsRequest() && h.IsError() {
		return h, &ParseError{Kind: ErrInvalidHeaderBits, Header: h, Reason: "error bit set on a request"}
	}
	return h, nil
}

// FlagString renders command flags as letters, "RP" for a proxiable request
func FlagString(flags uint8) string {
	var sb strings.Builder
	for _, f := range []struct {
		bit  uint8
		name byte
	}{{FlagRequest, 'R'}, {FlagProxiable, 'P'}, {FlagError, 'E'}, {FlagRetransmitted, 'T'}} {
		if flags&f.bit != 0 {
			sb.WriteByte(f.name)
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

func (h Header) String() string {
	return fmt.Sprintf("Header{Version:%d,Length:%d,Flags:%s,Code:%d,AppID:%d,HbH:0x%08x,E2E:0x%08x}",
		h.Version, h.Length, FlagString(h.Flags), h.CommandCode, h.ApplicationID, h.HopByHopID, h.EndToEndID)
}
