// Package wire holds the fixed-width big-endian primitives shared by the
// Diameter header and AVP codecs.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a read runs past the end of the cursor buffer.
var ErrShortBuffer = errors.New("short buffer")

// Cursor is a positioned view over a byte slice. Writes past the end grow the
// underlying buffer; reads past the end fail with ErrShortBuffer.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a cursor positioned at the start of buf
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewWriteCursor returns an empty cursor with room for size bytes
func NewWriteCursor(size int) *Cursor {
	return &Cursor{buf: make([]byte, 0, size)}
}

// Bytes returns the underlying buffer
func (c *Cursor) Bytes() []byte { return c.buf }

// Pos returns the current position
func (c *Cursor) Pos() int { return c.pos }

// Len returns the buffer length
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of bytes between the position and the end
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Seek moves the cursor to an absolute position
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return fmt.Errorf("seek to %d of %d: %w", pos, len(c.buf), ErrShortBuffer)
	}
	c.pos = pos
	return nil
}

// Skip advances the cursor by n bytes
func (c *Cursor) Skip(n int) error {
	return c.Seek(c.pos + n)
}

// ensure makes room for n bytes at the current position
func (c *Cursor) ensure(n int) []byte {
	end := c.pos + n
	if end > len(c.buf) {
		if end > cap(c.buf) {
			grown := make([]byte, end, max(end, 2*cap(c.buf)))
			copy(grown, c.buf)
			c.buf = grown
		} else {
			c.buf = c.buf[:end]
		}
	}
	b := c.buf[c.pos:end]
	c.pos = end
	return b
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, c.pos, len(c.buf), ErrShortBuffer)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) at(off, n int) ([]byte, error) {
	if off < 0 || off+n > len(c.buf) {
		return nil, fmt.Errorf("read %d bytes at %d of %d: %w", n, off, len(c.buf), ErrShortBuffer)
	}
	return c.buf[off : off+n], nil
}

// WriteUint8 writes one byte
func (c *Cursor) WriteUint8(v uint8) {
	c.ensure(1)[0] = v
}

// WriteUint16 writes v big-endian
func (c *Cursor) WriteUint16(v uint16) {
	binary.BigEndian.PutUint16(c.ensure(2), v)
}

// WriteUint24 writes the low 24 bits of v big-endian
func (c *Cursor) WriteUint24(v uint32) {
	PutUint24(c.ensure(3), v)
}

// WriteUint32 writes v big-endian
func (c *Cursor) WriteUint32(v uint32) {
	binary.BigEndian.PutUint32(c.ensure(4), v)
}

// WriteUint64 writes v big-endian
func (c *Cursor) WriteUint64(v uint64) {
	binary.BigEndian.PutUint64(c.ensure(8), v)
}

// WriteBytes copies b at the current position
func (c *Cursor) WriteBytes(b []byte) {
	copy(c.ensure(len(b)), b)
}

// WriteZeros writes n zero bytes
func (c *Cursor) WriteZeros(n int) {
	clear(c.ensure(n))
}

// ReadUint8 reads one byte
func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian uint16
func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint24 reads a big-endian 24-bit value
func (c *Cursor) ReadUint24() (uint32, error) {
	b, err := c.take(3)
	if err != nil {
		return 0, err
	}
	return Uint24(b), nil
}

// ReadUint32 reads a big-endian uint32
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 reads a big-endian uint64
func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBytes returns the next n bytes. The result aliases the cursor buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

// PeekUint8At reads a byte at off without moving the cursor
func (c *Cursor) PeekUint8At(off int) (uint8, error) {
	b, err := c.at(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PeekUint16At reads a big-endian uint16 at off without moving the cursor
func (c *Cursor) PeekUint16At(off int) (uint16, error) {
	b, err := c.at(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// PeekUint24At reads a 24-bit value at off without moving the cursor
func (c *Cursor) PeekUint24At(off int) (uint32, error) {
	b, err := c.at(off, 3)
	if err != nil {
		return 0, err
	}
	return Uint24(b), nil
}

// PeekUint32At reads a big-endian uint32 at off without moving the cursor
func (c *Cursor) PeekUint32At(off int) (uint32, error) {
	b, err := c.at(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Uint24 decodes the first three bytes of b as a big-endian value
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint24 encodes the low 24 bits of v into b
func PutUint24(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// Padding returns the number of bytes needed to bring length to a 32-bit boundary
func Padding(length int) int {
	return (4 - length%4) % 4
}

// Pad4 returns length rounded up to a multiple of four
func Pad4(length int) int {
	return length + Padding(length)
}
