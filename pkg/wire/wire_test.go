package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadding(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0}, {1, 3}, {2, 2}, {3, 1}, {4, 0}, {13, 3}, {21, 3}, {236, 0},
	}

	for _, tt := range tests {
		if got := Padding(tt.length); got != tt.want {
			t.Errorf("Padding(%d) = %d, want %d", tt.length, got, tt.want)
		}
		if got := Pad4(tt.length); got%4 != 0 || got-tt.length != tt.want {
			t.Errorf("Pad4(%d) = %d", tt.length, got)
		}
	}
}

func TestCursorWriteRead(t *testing.T) {
	c := NewWriteCursor(0)
	c.WriteUint8(0x01)
	c.WriteUint24(0x0000ec)
	c.WriteUint8(0xc0)
	c.WriteUint24(0x1000101) // truncated to 24 bits
	c.WriteUint16(0xbeef)
	c.WriteUint32(0xdeadbeef)
	c.WriteZeros(2)

	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0xec, 0xc0, 0x00, 0x01, 0x01, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x00}, c.Bytes())
	assert.Equal(t, 16, c.Pos())

	r := NewCursor(c.Bytes())
	v8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v8)

	v24, err := r.ReadUint24()
	require.NoError(t, err)
	assert.Equal(t, uint32(236), v24)

	// Look-ahead does not move the cursor
	peek, err := r.PeekUint24At(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x000101), peek)
	assert.Equal(t, 4, r.Pos())

	require.NoError(t, r.Skip(4))
	v16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), v16)

	v32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v32)
	assert.Equal(t, 2, r.Remaining())

	_, err = r.ReadUint32()
	assert.True(t, errors.Is(err, ErrShortBuffer))
	assert.Equal(t, 14, r.Pos(), "failed read must not move the cursor")
}

func TestCursorOverwrite(t *testing.T) {
	buf := make([]byte, 8)
	c := NewCursor(buf)
	require.NoError(t, c.Seek(4))
	c.WriteUint32(0x01020304)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, c.Bytes())
	assert.Error(t, c.Seek(9))
}

func TestHexToBytes(t *testing.T) {
	b, err := HexToBytes("52e636f6d0")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x52, 0xe6, 0x36, 0xf6, 0xd0}, b)
	assert.Equal(t, "52e636f6d0", BytesToHex(b))

	tests := []struct {
		name  string
		input string
	}{
		{"odd length", "abc"},
		{"non hex digit", "zz00"},
		{"non hex later", "00g0"},
		{"embedded space", "0 01"},
		{"line break", "0100\n0f4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HexToBytes(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEncoding))
			var encErr *EncodingError
			assert.True(t, errors.As(err, &encErr))
		})
	}
}
