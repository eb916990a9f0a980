package models_base

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Fixed-width numeric types, big-endian on the wire with no padding
type (
	Integer32  int32
	Integer64  int64
	Unsigned32 uint32
	Unsigned64 uint64
	Float32    float32
	Float64    float64
	// Enumerated is an Integer32 whose values are named by the dictionary
	Enumerated int32
)

func word32(t TypeID, b []byte) (uint32, error) {
	if err := checkLen(t, b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func word64(t TypeID, b []byte) (uint64, error) {
	if err := checkLen(t, b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func put32(v uint32) []byte { return binary.BigEndian.AppendUint32(make([]byte, 0, 4), v) }
func put64(v uint64) []byte { return binary.BigEndian.AppendUint64(make([]byte, 0, 8), v) }

func DecodeInteger32(b []byte) (Type, error) {
	v, err := word32(Integer32Type, b)
	if err != nil {
		return nil, err
	}
	return Integer32(v), nil
}

func DecodeInteger64(b []byte) (Type, error) {
	v, err := word64(Integer64Type, b)
	if err != nil {
		return nil, err
	}
	return Integer64(v), nil
}

func DecodeUnsigned32(b []byte) (Type, error) {
	v, err := word32(Unsigned32Type, b)
	if err != nil {
		return nil, err
	}
	return Unsigned32(v), nil
}

func DecodeUnsigned64(b []byte) (Type, error) {
	v, err := word64(Unsigned64Type, b)
	if err != nil {
		return nil, err
	}
	return Unsigned64(v), nil
}

func DecodeFloat32(b []byte) (Type, error) {
	v, err := word32(Float32Type, b)
	if err != nil {
		return nil, err
	}
	return Float32(math.Float32frombits(v)), nil
}

func DecodeFloat64(b []byte) (Type, error) {
	v, err := word64(Float64Type, b)
	if err != nil {
		return nil, err
	}
	return Float64(math.Float64frombits(v)), nil
}

func DecodeEnumerated(b []byte) (Type, error) {
	v, err := word32(EnumeratedType, b)
	if err != nil {
		return nil, err
	}
	return Enumerated(v), nil
}

// parseErr wraps a strconv failure for type t
func parseErr(t TypeID, err error) error {
	return &ValueError{Type: t, Reason: err.Error()}
}

func ParseInteger32(s string) (Type, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, parseErr(Integer32Type, err)
	}
	return Integer32(v), nil
}

func ParseInteger64(s string) (Type, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, parseErr(Integer64Type, err)
	}
	return Integer64(v), nil
}

func ParseUnsigned32(s string) (Type, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, parseErr(Unsigned32Type, err)
	}
	return Unsigned32(v), nil
}

func ParseUnsigned64(s string) (Type, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, parseErr(Unsigned64Type, err)
	}
	return Unsigned64(v), nil
}

func ParseFloat32(s string) (Type, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, parseErr(Float32Type, err)
	}
	return Float32(v), nil
}

func ParseFloat64(s string) (Type, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, parseErr(Float64Type, err)
	}
	return Float64(v), nil
}

// ParseEnumerated takes the numeric value. Symbolic names are resolved by
// the dictionary before they reach here.
func ParseEnumerated(s string) (Type, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, parseErr(EnumeratedType, err)
	}
	return Enumerated(v), nil
}

func (n Integer32) Serialize() []byte { return put32(uint32(n)) }
func (n Integer32) Len() int          { return 4 }
func (n Integer32) Padding() int      { return 0 }
func (n Integer32) Type() TypeID      { return Integer32Type }
func (n Integer32) Text() string      { return strconv.FormatInt(int64(n), 10) }
func (n Integer32) String() string    { return fmt.Sprintf("Integer32{%d}", n) }

func (n Integer64) Serialize() []byte { return put64(uint64(n)) }
func (n Integer64) Len() int          { return 8 }
func (n Integer64) Padding() int      { return 0 }
func (n Integer64) Type() TypeID      { return Integer64Type }
func (n Integer64) Text() string      { return strconv.FormatInt(int64(n), 10) }
func (n Integer64) String() string    { return fmt.Sprintf("Integer64{%d}", n) }

func (n Unsigned32) Serialize() []byte { return put32(uint32(n)) }
func (n Unsigned32) Len() int          { return 4 }
func (n Unsigned32) Padding() int      { return 0 }
func (n Unsigned32) Type() TypeID      { return Unsigned32Type }
func (n Unsigned32) Text() string      { return strconv.FormatUint(uint64(n), 10) }
func (n Unsigned32) String() string    { return fmt.Sprintf("Unsigned32{%d}", n) }

func (n Unsigned64) Serialize() []byte { return put64(uint64(n)) }
func (n Unsigned64) Len() int          { return 8 }
func (n Unsigned64) Padding() int      { return 0 }
func (n Unsigned64) Type() TypeID      { return Unsigned64Type }
func (n Unsigned64) Text() string      { return strconv.FormatUint(uint64(n), 10) }
func (n Unsigned64) String() string    { return fmt.Sprintf("Unsigned64{%d}", n) }

// Text of the float types uses the shortest form that parses back to the same bits
func (n Float32) Serialize() []byte { return put32(math.Float32bits(float32(n))) }
func (n Float32) Len() int          { return 4 }
func (n Float32) Padding() int      { return 0 }
func (n Float32) Type() TypeID      { return Float32Type }
func (n Float32) Text() string      { return strconv.FormatFloat(float64(n), 'g', -1, 32) }
func (n Float32) String() string    { return fmt.Sprintf("Float32{%0.4f}", float32(n)) }

func (n Float64) Serialize() []byte { return put64(math.Float64bits(float64(n))) }
func (n Float64) Len() int          { return 8 }
func (n Float64) Padding() int      { return 0 }
func (n Float64) Type() TypeID      { return Float64Type }
func (n Float64) Text() string      { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (n Float64) String() string    { return fmt.Sprintf("Float64{%0.4f}", float64(n)) }

func (n Enumerated) Serialize() []byte { return put32(uint32(n)) }
func (n Enumerated) Len() int          { return 4 }
func (n Enumerated) Padding() int      { return 0 }
func (n Enumerated) Type() TypeID      { return EnumeratedType }
func (n Enumerated) Text() string      { return strconv.FormatInt(int64(n), 10) }
func (n Enumerated) String() string    { return fmt.Sprintf("Enumerated{%d}", n) }
