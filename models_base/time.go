package models_base

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// Time is a 4-byte NTP seconds timestamp. Values with the top bit set count
// from 1900 (era 0), values with it clear count from 2036-02-07T06:28:16Z
// (era 1), so the representable window is 1968-01-20T03:14:08Z up to but
// excluding 2104-02-26T09:42:24Z.
type Time time.Time

const (
	rfc868offset  = 2208988800
	rfc2030offset = 2085978496

	minUnix = 1<<31 - rfc868offset
	maxUnix = rfc2030offset + 1<<31
)

func DecodeTime(b []byte) (Type, error) {
	if err := checkLen(TimeType, b); err != nil {
		return nil, err
	}
	ts := int64(binary.BigEndian.Uint32(b))
	if (b[0] >> 7) == 0 {
		ts += rfc2030offset
	} else {
		ts -= rfc868offset
	}
	return Time(time.Unix(ts, 0).UTC()), nil
}

// NewTime checks that t falls inside the NTP window before converting it
func NewTime(t time.Time) (Time, error) {
	if err := Time(t).Validate(); err != nil {
		return Time{}, err
	}
	return Time(t.Truncate(time.Second).UTC()), nil
}

// Validate rejects times outside the window a 32-bit NTP count can express,
// the zero time.Time included.
func (t Time) Validate() error {
	unix := time.Time(t).Unix()
	if unix < minUnix || unix >= maxUnix {
		return &ValueError{Type: TimeType, Reason: fmt.Sprintf("%s outside NTP window", time.Time(t).UTC().Format(time.RFC3339))}
	}
	return nil
}

// ParseTime accepts RFC 3339 text or decimal Unix seconds
func ParseTime(s string) (Type, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NewTime(time.Unix(secs, 0))
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, &ValueError{Type: TimeType, Reason: err.Error()}
	}
	return NewTime(t)
}

func (t Time) Serialize() []byte {
	b := make([]byte, 4)
	unix := time.Time(t).Unix()
	if unix < rfc2030offset {
		binary.BigEndian.PutUint32(b, uint32(unix+rfc868offset))
	} else {
		binary.BigEndian.PutUint32(b, uint32(unix-rfc2030offset))
	}
	return b
}

func (t Time) Len() int {
	return 4
}

func (t Time) Padding() int {
	return 0
}

func (t Time) Type() TypeID {
	return TimeType
}

func (t Time) Text() string {
	return time.Time(t).UTC().Format(time.RFC3339)
}

func (t Time) String() string {
	return fmt.Sprintf("Time{%s}", time.Time(t).UTC())
}
