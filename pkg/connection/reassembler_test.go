package connection

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hsdfat/diam-stack/diam"
)

// frame builds a message of exactly size bytes with one opaque attribute
func frame(t *testing.T, size int, fill byte) []byte {
	t.Helper()
	m := diam.NewMessage(diam.FlagsRP, 257, 0)
	m.AddOctetString(999, diam.AVPFlagsNone, 0, bytes.Repeat([]byte{fill}, size-diam.HeaderLength-8))
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != size {
		t.Fatalf("frame size = %d, want %d", len(b), size)
	}
	return b
}

func twoFrameStream(t *testing.T) (stream []byte, first, second []byte) {
	first = frame(t, 236, 0xAA)
	second = frame(t, 232, 0xBB)
	stream = append(append([]byte{}, first...), second...)
	return stream, first, second
}

func feedChunks(r *Reassembler, stream []byte, cuts []int) [][]byte {
	var out [][]byte
	emit := func(f []byte) { out = append(out, f) }
	prev := 0
	for _, cut := range cuts {
		r.Feed(stream[prev:cut], emit)
		prev = cut
	}
	r.Feed(stream[prev:], emit)
	return out
}

// TestReassemblerSplits checks that chunk boundaries never change the frames produced
func TestReassemblerSplits(t *testing.T) {
	stream, first, second := twoFrameStream(t)

	tests := []struct {
		name string
		cuts []int
	}{
		{"single read", nil},
		{"offset 1", []int{1}},
		{"offset 50", []int{50}},
		{"offset 235", []int{235}},
		{"offset 236", []int{236}},
		{"offset 467", []int{467}},
		{"all offsets", []int{1, 50, 235, 236, 467}},
		{"inside second header", []int{240, 250}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler(0)
			got := feedChunks(r, stream, tt.cuts)
			if len(got) != 2 {
				t.Fatalf("got %d frames, want 2", len(got))
			}
			if !bytes.Equal(got[0], first) || !bytes.Equal(got[1], second) {
				t.Error("frame content differs from the unsplit stream")
			}
			if r.Pending() != 0 {
				t.Errorf("Pending() = %d, want 0", r.Pending())
			}
			if r.Dropped() != 0 {
				t.Errorf("Dropped() = %d, want 0", r.Dropped())
			}
		})
	}
}

// TestReassemblerByteAtATime feeds one byte per call
func TestReassemblerByteAtATime(t *testing.T) {
	stream, _, _ := twoFrameStream(t)
	r := NewReassembler(0)
	frames := 0
	for i := range stream {
		frames += r.Feed(stream[i:i+1], func([]byte) {})
	}
	if frames != 2 || r.Frames() != 2 {
		t.Errorf("frames = %d (%d counted), want 2", frames, r.Frames())
	}
}

// TestReassemblerPending checks that a partial frame is kept for the next read
func TestReassemblerPending(t *testing.T) {
	stream, _, _ := twoFrameStream(t)
	r := NewReassembler(0)

	n := r.Feed(stream[:300], func([]byte) {})
	if n != 1 {
		t.Fatalf("emitted %d frames, want 1", n)
	}
	if r.Pending() != 300-236 {
		t.Errorf("Pending() = %d, want %d", r.Pending(), 300-236)
	}

	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("Pending() after Reset = %d", r.Pending())
	}
}

// TestReassemblerResync checks the one-byte drop on a bad leading octet
func TestReassemblerResync(t *testing.T) {
	_, first, _ := twoFrameStream(t)

	tests := []struct {
		name    string
		garbage []byte
	}{
		{"bad version bytes", []byte{0xFF, 0x00, 0x02}},
		{"version with short length", []byte{0x01, 0x00, 0x00, 0x05}},
		{"version with zero length", []byte{0x01, 0x00, 0x00, 0x00, 0x7F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler(0)
			var got [][]byte
			r.Feed(append(append([]byte{}, tt.garbage...), first...), func(f []byte) { got = append(got, f) })
			if len(got) != 1 || !bytes.Equal(got[0], first) {
				t.Fatalf("got %d frames, want the original frame", len(got))
			}
			if r.Dropped() != int64(len(tt.garbage)) {
				t.Errorf("Dropped() = %d, want %d", r.Dropped(), len(tt.garbage))
			}
		})
	}
}

// TestReassemblerMaxFrame checks that oversize declared lengths are skipped
func TestReassemblerMaxFrame(t *testing.T) {
	stream, _, second := twoFrameStream(t)
	r := NewReassembler(233)

	var got [][]byte
	r.Feed(stream, func(f []byte) { got = append(got, f) })
	if len(got) != 1 || !bytes.Equal(got[0], second) {
		t.Fatalf("got %d frames, want only the 232-byte frame", len(got))
	}
	if r.Dropped() == 0 {
		t.Error("expected dropped bytes for the oversize frame")
	}
}

// TestReassemblerFrameCopies checks emitted frames survive later feeds
func TestReassemblerFrameCopies(t *testing.T) {
	stream, first, _ := twoFrameStream(t)
	r := NewReassembler(0)

	var kept []byte
	r.Feed(stream[:236], func(f []byte) { kept = f })
	r.Feed(stream[236:], func([]byte) {})
	if !bytes.Equal(kept, first) {
		t.Error("emitted frame was overwritten by a later Feed")
	}
}

// TestParseCommand checks header-only command extraction
func TestParseCommand(t *testing.T) {
	m := diam.NewMessage(diam.FlagsRP, 272, 4)
	b, _ := m.Encode()
	cmd, err := ParseCommand(b)
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd != (Command{ApplicationID: 4, Code: 272, Request: true}) {
		t.Errorf("ParseCommand = %+v", cmd)
	}
	if cmd.String() != "4:272R" {
		t.Errorf("String() = %q", cmd.String())
	}
	if _, err := ParseCommand(b[:10]); err == nil {
		t.Error("expected error for short header")
	}
}

// TestConnReadFrames runs a connection over an in-memory pipe
func TestConnReadFrames(t *testing.T) {
	stream, first, second := twoFrameStream(t)
	client, server := net.Pipe()

	c := NewConn(server, &ConnectionConfig{BufferSize: 64})

	var mu sync.Mutex
	var got [][]byte
	done := make(chan error, 1)
	go func() {
		done <- c.ReadFrames(func(f []byte) {
			mu.Lock()
			got = append(got, f)
			mu.Unlock()
		})
	}()

	for _, chunk := range [][]byte{stream[:50], stream[50:235], stream[235:]} {
		if _, err := client.Write(chunk); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("ReadFrames returned %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrames did not return after peer close")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || !bytes.Equal(got[0], first) || !bytes.Equal(got[1], second) {
		t.Fatalf("got %d frames", len(got))
	}
	st := c.Stats()
	if st.BytesRead != int64(len(stream)) || st.FramesRead != 2 {
		t.Errorf("Stats() = %+v", st)
	}
}

// TestConnCloseUnblocksRead checks a local Close ends a blocked ReadFrames
func TestConnCloseUnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := NewConn(server, nil)
	done := make(chan error, 1)
	go func() {
		done <- c.ReadFrames(func([]byte) {})
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("ReadFrames returned %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock ReadFrames")
	}

	if _, err := c.Write([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close returned %v", err)
	}
	select {
	case <-c.(CloseNotifier).CloseNotify():
	default:
		t.Error("CloseNotify channel not closed")
	}
}
