package scs

import (
	"time"
)

// DefaultGapTimeout is the inter-byte gap after which buffered partial
// data is treated as desynchronized and discarded.
const DefaultGapTimeout = 100 * time.Millisecond

// framerBufferSize bounds the reassembly buffer. Four packets of
// headroom is enough to ride out a burst while staying O(1) memory.
const framerBufferSize = 4 * PacketSize

// Framer reconstructs packets from a raw byte stream. The protocol has
// no delimiter byte: a 4-byte window is accepted when its first byte
// decodes to in-range phase/role/substate fields, and a long inter-byte
// gap flushes any partial window. Corruption is never reported upward;
// the framer silently drops bytes until it locks on again.
//
// Framer is not safe for concurrent use; each channel owns one and
// feeds it from a single goroutine.
type Framer struct {
	// GapTimeout overrides DefaultGapTimeout when non-zero.
	GapTimeout time.Duration

	buf      [framerBufferSize]byte
	n        int
	lastByte time.Time
	synced   bool
	dropped  uint64
}

// Feed appends one received byte, stamped with its arrival time.
func (f *Framer) Feed(now time.Time, b byte) {
	timeout := f.GapTimeout
	if timeout == 0 {
		timeout = DefaultGapTimeout
	}
	if f.n > 0 && now.Sub(f.lastByte) > timeout {
		f.dropped += uint64(f.n)
		f.n = 0
		f.synced = false
	}
	f.lastByte = now
	if f.n == len(f.buf) {
		f.dropOldest(1)
	}
	f.buf[f.n] = b
	f.n++
}

// TryExtract scans for the first valid 4-byte window. On a match the
// window and every byte preceding it are removed from the buffer; the
// remainder is retained for future calls.
func (f *Framer) TryExtract() (Packet, bool) {
	for start := 0; start+PacketSize <= f.n; start++ {
		if !validControl(f.buf[start]) {
			continue
		}
		pkt := PacketFrom(f.buf[start : start+PacketSize])
		f.dropped += uint64(start)
		remain := f.n - (start + PacketSize)
		copy(f.buf[:], f.buf[start+PacketSize:f.n])
		f.n = remain
		f.synced = true
		return pkt, true
	}
	// No window matched. Shedding the oldest byte bounds memory and
	// guarantees forward progress on a stream of garbage.
	if f.n == len(f.buf) {
		f.dropOldest(1)
	}
	return Packet{}, false
}

// Synced reports whether the last extraction locked onto the stream.
func (f *Framer) Synced() bool {
	return f.synced
}

// Pending returns the number of buffered bytes awaiting a window.
func (f *Framer) Pending() int {
	return f.n
}

// Dropped returns the total bytes discarded during resynchronization.
func (f *Framer) Dropped() uint64 {
	return f.dropped
}

// Reset discards all buffered bytes.
func (f *Framer) Reset() {
	f.n = 0
	f.synced = false
}

func (f *Framer) dropOldest(k int) {
	copy(f.buf[:], f.buf[k:f.n])
	f.n -= k
	f.dropped += uint64(k)
	f.synced = false
}

// validControl checks the decoded control fields are in range. This is
// the frame-sync predicate: field validity substitutes for a sync byte.
func validControl(b byte) bool {
	phase, role, sub := DecodeControl(b)
	return phase <= PhaseSos && role <= RoleSense && sub <= MaxSub
}
