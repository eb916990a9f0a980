package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEncoding is returned for malformed textual input
var ErrInvalidEncoding = errors.New("invalid encoding")

// EncodingError describes where a hex string failed to decode
type EncodingError struct {
	Input  string
	Offset int
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid encoding at offset %d: %s", e.Offset, e.Reason)
}

func (e *EncodingError) Unwrap() error {
	return ErrInvalidEncoding
}

// HexToBytes decodes a hex string. Any byte that is not a hex digit,
// whitespace included, fails with ErrInvalidEncoding.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, &EncodingError{Input: s, Offset: len(s), Reason: "odd length hex string"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		var invalid hex.InvalidByteError
		if errors.As(err, &invalid) {
			return nil, &EncodingError{Input: s, Offset: strings.IndexByte(s, byte(invalid)), Reason: err.Error()}
		}
		return nil, &EncodingError{Input: s, Reason: err.Error()}
	}
	return b, nil
}

// BytesToHex encodes b as lower-case hex
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
