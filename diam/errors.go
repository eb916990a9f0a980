package diam

import (
	"errors"
	"fmt"
)

// Parse failure kinds, matched with errors.Is
var (
	ErrUnsupportedVersion   = errors.New("unsupported version")
	ErrInvalidMessageLength = errors.New("invalid message length")
	ErrInvalidHeaderBits    = errors.New("invalid header bits")
	ErrInvalidAvpBits       = errors.New("invalid avp bits")
	ErrInvalidAvpLength     = errors.New("invalid avp length")
	ErrInvalidAvpValue      = errors.New("invalid avp value")
	ErrUnknownAttribute     = errors.New("unknown attribute")
)

// Result-Code values (RFC 6733 section 7.1)
const (
	ResultSuccess              uint32 = 2001
	ResultCommandUnsupported   uint32 = 3001
	ResultUnableToDeliver      uint32 = 3002
	ResultInvalidHeaderBits    uint32 = 3008
	ResultInvalidAvpBits       uint32 = 3009
	ResultAvpUnsupported       uint32 = 5001
	ResultInvalidAvpValue      uint32 = 5004
	ResultMissingAvp           uint32 = 5005
	ResultUnsupportedVersion   uint32 = 5011
	ResultUnableToComply       uint32 = 5012
	ResultInvalidAvpLength     uint32 = 5014
	ResultInvalidMessageLength uint32 = 5015
)

// ParseError describes a decode failure. Header and Message hold whatever was
// decoded before the failure; FailedAVP holds the raw bytes of the offending
// attribute when one is known.
type ParseError struct {
	Kind      error
	Header    Header
	Message   *Message
	FailedAVP []byte
	Reason    string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("diameter: %v", e.Kind)
	}
	return fmt.Sprintf("diameter: %v: %s", e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// ResultCode maps the failure kind to the Result-Code an answer should carry
func (e *ParseError) ResultCode() uint32 {
	return resultCodeOf(e.Kind)
}

// ResultCodeOf returns the Result-Code for a decode error, or
// ResultUnableToComply when err carries no protocol meaning.
func ResultCodeOf(err error) uint32 {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.ResultCode()
	}
	return resultCodeOf(err)
}

func resultCodeOf(err error) uint32 {
	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		return ResultUnsupportedVersion
	case errors.Is(err, ErrInvalidMessageLength):
		return ResultInvalidMessageLength
	case errors.Is(err, ErrInvalidHeaderBits):
		return ResultInvalidHeaderBits
	case errors.Is(err, ErrInvalidAvpBits):
		return ResultInvalidAvpBits
	case errors.Is(err, ErrInvalidAvpLength):
		return ResultInvalidAvpLength
	case errors.Is(err, ErrInvalidAvpValue):
		return ResultInvalidAvpValue
	case errors.Is(err, ErrUnknownAttribute):
		return ResultAvpUnsupported
	}
	return ResultUnableToComply
}
