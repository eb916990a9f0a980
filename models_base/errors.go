package models_base

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLength matches payloads whose size does not fit their type
	ErrInvalidLength = errors.New("invalid avp length")
	// ErrInvalidValue matches payloads that fail type-specific validation
	ErrInvalidValue = errors.New("invalid avp value")
)

// LengthError reports a payload size mismatch for a fixed-width type
type LengthError struct {
	Type TypeID
	Want int
	Have int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s payload must be %d bytes, have %d", e.Type, e.Want, e.Have)
}

func (e *LengthError) Unwrap() error { return ErrInvalidLength }

// ValueError reports a payload or textual value that is not valid for its type
type ValueError struct {
	Type   TypeID
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s value: %s", e.Type, e.Reason)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

func checkLen(t TypeID, b []byte) error {
	if len(b) != t.FixedSize() {
		return &LengthError{Type: t, Want: t.FixedSize(), Have: len(b)}
	}
	return nil
}
