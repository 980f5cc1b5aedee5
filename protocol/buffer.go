package protocol

import "fmt"

const (
	// DefaultBufferSize is the initial size of session buffers and the
	// increment they grow by.
	DefaultBufferSize = 8192

	// DefaultMaxBufferSize bounds how large a single buffer may grow.
	DefaultMaxBufferSize = 512 << 20
)

// Buffer is a growable byte container. Offsets into a Buffer are always
// relative to its start, so growing never invalidates data that was already
// written: the bytes in [0, Len()) are identical before and after a grow.
type Buffer struct {
	buf       []byte
	n         int
	increment int
	max       int
}

// NewBuffer allocates a Buffer of the given size that grows by increment
// bytes at a time and never beyond max bytes. Non-positive values fall back
// to the defaults.
func NewBuffer(size, increment, max int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if increment <= 0 {
		increment = size
	}
	if max <= 0 {
		max = DefaultMaxBufferSize
	}
	if size > max {
		size = max
	}

	return &Buffer{
		buf:       make([]byte, size),
		increment: increment,
		max:       max,
	}
}

// Len is the number of bytes filled.
func (b *Buffer) Len() int { return b.n }

// Cap is the currently allocated size.
func (b *Buffer) Cap() int { return len(b.buf) }

// Available is the number of bytes that can be written without growing.
func (b *Buffer) Available() int { return len(b.buf) - b.n }

// Bytes returns the filled part of the buffer. The slice is only valid until
// the next call that may grow the buffer.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n] }

// Free returns the unfilled tail of the buffer for a reader to fill. Call
// Advance with the number of bytes written into it.
func (b *Buffer) Free() []byte { return b.buf[b.n:] }

// Advance marks k more bytes of Free() as filled.
func (b *Buffer) Advance(k int) {
	if k < 0 || b.n+k > len(b.buf) {
		panic(fmt.Sprintf("protocol: advance %d out of range (len %d, cap %d)", k, b.n, len(b.buf)))
	}
	b.n += k
}

// Reset empties the buffer without releasing its storage.
func (b *Buffer) Reset() { b.n = 0 }

// Truncate drops every filled byte past n.
func (b *Buffer) Truncate(n int) {
	if n >= 0 && n < b.n {
		b.n = n
	}
}

// Discard drops the first k filled bytes and moves the remainder to the
// front of the buffer.
func (b *Buffer) Discard(k int) {
	if k >= b.n {
		b.n = 0
		return
	}
	copy(b.buf, b.buf[k:b.n])
	b.n -= k
}

// Grow enlarges the buffer by one increment.
func (b *Buffer) Grow() error {
	return b.resize(len(b.buf) + b.increment)
}

// Ensure makes room for at least need more bytes, growing by whole
// increments.
func (b *Buffer) Ensure(need int) error {
	if need <= b.Available() {
		return nil
	}

	size := len(b.buf)
	for size-b.n < need {
		size += b.increment
	}

	return b.resize(size)
}

func (b *Buffer) resize(size int) error {
	if size > b.max {
		return fmt.Errorf("growing buffer to %d bytes (limit %d): %w", size, b.max, ErrBufferLimit)
	}

	grown := make([]byte, size)
	copy(grown, b.buf[:b.n])
	b.buf = grown

	return nil
}

// Write appends p, growing as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Ensure(len(p)); err != nil {
		return 0, err
	}
	b.n += copy(b.buf[b.n:], p)
	return len(p), nil
}

// WriteString appends s, growing as needed.
func (b *Buffer) WriteString(s string) (int, error) {
	if err := b.Ensure(len(s)); err != nil {
		return 0, err
	}
	b.n += copy(b.buf[b.n:], s)
	return len(s), nil
}

// WriteByte appends c, growing as needed.
func (b *Buffer) WriteByte(c byte) error {
	if err := b.Ensure(1); err != nil {
		return err
	}
	b.buf[b.n] = c
	b.n++
	return nil
}
