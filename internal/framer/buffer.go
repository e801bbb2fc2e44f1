package framer

import "github.com/Barracuda09/satip-client/internal/liberrors"

// Buffer is the session's rx_buf (§3 Data model): a contiguous byte area
// with a write position, sized 2 KiB for UDP-signalling mode or 256 KiB for
// TCP-interleaved mode, per spec.md §3.
type Buffer struct {
	data []byte
	wpos int
}

// NewBuffer allocates a buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Capacity returns the fixed buffer size.
func (b *Buffer) Capacity() int { return len(b.data) }

// Len returns the number of valid bytes currently buffered.
func (b *Buffer) Len() int { return b.wpos }

// Bytes returns the valid (written) portion of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.wpos] }

// Free returns the writable tail of the buffer, for a direct Read() call.
// An empty slice means the buffer is full.
func (b *Buffer) Free() []byte { return b.data[b.wpos:] }

// Commit advances the write position after bytes have been written directly
// into the slice returned by Free. Returns ErrBufferOverrun if n would
// exceed capacity.
func (b *Buffer) Commit(n int) error {
	if b.wpos+n > len(b.data) {
		return liberrors.ErrBufferOverrun{Capacity: len(b.data)}
	}
	b.wpos += n
	return nil
}

// Remove deletes the byte range [begin, end) from the buffer, shifting any
// bytes after end left to close the gap. This is what lets the framer pull
// a response out of the middle of the stream while leaving interleaved
// media that arrived before or after it untouched (§4.F item 2).
func (b *Buffer) Remove(begin, end int) {
	n := copy(b.data[begin:], b.data[end:b.wpos])
	b.wpos = begin + n
}

// Reset clears the buffer, zeroing its contents so no media from a prior
// channel or session leaks into the next one (§12 supplemented features:
// full reset zeroes rx_buf, not just truncates it).
func (b *Buffer) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.wpos = 0
}
