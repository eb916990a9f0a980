package connection

import (
	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

// Reassembler turns arbitrarily chunked stream reads into complete Diameter
// frames. It is driven by a single reader and never blocks.
//
// A leading byte that is not the supported version, or a declared length
// outside [20, max], is dropped one byte at a time until a plausible header
// start is found. That resync has no look-ahead and is only a best effort:
// a stray 0x01 inside garbage can still be taken as a header.
type Reassembler struct {
	buf      []byte
	maxFrame int
	dropped  int64
	frames   int64
}

// NewReassembler returns a reassembler accepting frames up to maxFrame bytes.
// A maxFrame of zero or above diam.MaxMessageSize means diam.MaxMessageSize.
func NewReassembler(maxFrame int) *Reassembler {
	if maxFrame <= 0 || maxFrame > diam.MaxMessageSize {
		maxFrame = diam.MaxMessageSize
	}
	return &Reassembler{maxFrame: maxFrame}
}

// Feed appends data to the pending bytes and calls emit once per complete
// frame, in stream order. Frames passed to emit are copies the callee may keep.
// It returns the number of frames emitted.
func (r *Reassembler) Feed(data []byte, emit func(frame []byte)) int {
	r.buf = append(r.buf, data...)

	n := 0
	off := 0
	for off < len(r.buf) {
		rest := r.buf[off:]
		if rest[0] != diam.Version {
			off++
			r.dropped++
			continue
		}
		if len(rest) < diam.HeaderLength {
			break
		}
		length := int(wire.Uint24(rest[1:4]))
		if length < diam.HeaderLength || length > r.maxFrame {
			off++
			r.dropped++
			continue
		}
		if len(rest) < length {
			break
		}

		frame := make([]byte, length)
		copy(frame, rest[:length])
		off += length
		n++
		r.frames++
		emit(frame)
	}

	// keep exactly the bytes not consumed
	r.buf = append(r.buf[:0], r.buf[off:]...)
	return n
}

// Pending returns the number of buffered bytes waiting for more data
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Dropped returns the number of bytes discarded while resynchronizing
func (r *Reassembler) Dropped() int64 {
	return r.dropped
}

// Frames returns the number of frames emitted
func (r *Reassembler) Frames() int64 {
	return r.frames
}

// Reset discards pending bytes
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
