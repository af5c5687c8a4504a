// ABOUTME: Fixed-capacity circular buffer with mutex-guarded cursors
// ABOUTME: Backs both the byte-granular input buffer and the frame-granular output buffer
package ring

import (
	"fmt"
	"sync"
)

// MaxChunk bounds how many units a single self-locking Read or Write copies
// while holding the lock.
const MaxChunk = 4096

// Buffer is a fixed-capacity circular store of T.
//
// Used, Space, the Contiguous* queries, the Region accessors and the Advance
// methods all expect the caller to hold the lock (Lock/Unlock). Read and Write
// take the lock themselves.
type Buffer[T any] struct {
	mu     sync.Mutex
	buf    []T
	readp  int
	writep int
	used   int
}

// New allocates a buffer of the given capacity. The capacity never changes.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ring: invalid capacity %d", capacity))
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// NewBytes creates a byte-granular buffer.
func NewBytes(capacity int) *Buffer[byte] {
	return New[byte](capacity)
}

// Lock acquires the buffer's lock.
func (b *Buffer[T]) Lock() { b.mu.Lock() }

// Unlock releases the buffer's lock.
func (b *Buffer[T]) Unlock() { b.mu.Unlock() }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.buf) }

// Used returns the number of units available to read.
func (b *Buffer[T]) Used() int { return b.used }

// Space returns the number of units that can be written.
func (b *Buffer[T]) Space() int { return len(b.buf) - b.used }

// ContiguousReadable returns how many units can be read before the read
// cursor wraps.
func (b *Buffer[T]) ContiguousReadable() int {
	if b.used == 0 {
		return 0
	}
	if b.writep > b.readp {
		return b.writep - b.readp
	}
	return len(b.buf) - b.readp
}

// ContiguousWritable returns how many units can be written before the write
// cursor wraps.
func (b *Buffer[T]) ContiguousWritable() int {
	if b.used == len(b.buf) {
		return 0
	}
	if b.readp > b.writep {
		return b.readp - b.writep
	}
	return len(b.buf) - b.writep
}

// ReadRegion returns the contiguous readable slice starting at the read cursor.
func (b *Buffer[T]) ReadRegion() []T {
	return b.buf[b.readp : b.readp+b.ContiguousReadable()]
}

// WriteRegion returns the contiguous writable slice starting at the write cursor.
func (b *Buffer[T]) WriteRegion() []T {
	return b.buf[b.writep : b.writep+b.ContiguousWritable()]
}

// ReadPos returns the read cursor.
func (b *Buffer[T]) ReadPos() int { return b.readp }

// WritePos returns the write cursor.
func (b *Buffer[T]) WritePos() int { return b.writep }

// AdvanceRead consumes n units. Consuming more than Used is a programming error.
func (b *Buffer[T]) AdvanceRead(n int) {
	if n < 0 || n > b.used {
		panic(fmt.Sprintf("ring: advance read %d with %d used", n, b.used))
	}
	b.readp = (b.readp + n) % len(b.buf)
	b.used -= n
}

// AdvanceWrite commits n written units. Committing more than Space is a
// programming error.
func (b *Buffer[T]) AdvanceWrite(n int) {
	if n < 0 || n > len(b.buf)-b.used {
		panic(fmt.Sprintf("ring: advance write %d with %d free", n, len(b.buf)-b.used))
	}
	b.writep = (b.writep + n) % len(b.buf)
	b.used += n
}

// Flush discards all buffered units by moving the read cursor onto the write
// cursor. Storage is kept.
func (b *Buffer[T]) Flush() {
	b.readp = b.writep
	b.used = 0
}

// Write copies up to MaxChunk units of p into the buffer and returns how many
// were accepted. It never blocks beyond acquiring the lock.
func (b *Buffer[T]) Write(p []T) int {
	if len(p) > MaxChunk {
		p = p[:MaxChunk]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		region := b.WriteRegion()
		if len(region) == 0 {
			break
		}
		n := copy(region, p[written:])
		b.AdvanceWrite(n)
		written += n
	}
	return written
}

// Read copies up to MaxChunk units into p and returns how many were read.
func (b *Buffer[T]) Read(p []T) int {
	if len(p) > MaxChunk {
		p = p[:MaxChunk]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	read := 0
	for read < len(p) {
		region := b.ReadRegion()
		if len(region) == 0 {
			break
		}
		n := copy(p[read:], region)
		b.AdvanceRead(n)
		read += n
	}
	return read
}

// Peek copies up to len(p) units from the read cursor without consuming them.
func (b *Buffer[T]) Peek(p []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(p, b.buf[b.readp:b.readp+b.ContiguousReadable()])
	if n < len(p) && n < b.used {
		n += copy(p[n:], b.buf[:b.used-n])
	}
	return n
}

// Discard consumes up to n units without copying them and returns the count.
func (b *Buffer[T]) Discard(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.used {
		n = b.used
	}
	b.AdvanceRead(n)
	return n
}

// Stats returns used and capacity under the lock, for monitoring.
func (b *Buffer[T]) Stats() (used, capacity int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used, len(b.buf)
}
