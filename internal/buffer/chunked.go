// Package buffer implements a bounded-latency, append-mostly byte
// container shared between a single network producer and a single
// seekable consumer (see internal/stream.Reader).
package buffer

import "sync"

// DefaultChunkSize is the reference chunk size used when streaming
// compressed audio: large enough to keep per-chunk overhead low,
// small enough to bound the re-allocation cost of a single append.
const DefaultChunkSize = 256 * 1024

// ChunkedBuffer is an append-only, chunked byte container. A single
// producer appends bytes with Append and, once the source is
// exhausted, calls Complete. ReadAt gives a consumer synchronous,
// blocking, random-access reads over the logical stream.
//
// Only frozen chunks are visible to readers; the in-progress tail is
// never exposed until it is frozen (by filling exactly to chunkSize,
// or by Complete freezing a short final chunk). That means a chunk,
// once readable, is never mutated again, so ReadAt can hand out chunk
// references under the lock and copy from them after releasing it.
type ChunkedBuffer struct {
	chunkSize int

	mu        sync.Mutex
	cond      *sync.Cond
	chunks    [][]byte // frozen, immutable chunks, each exactly chunkSize bytes (last one may be shorter, iff completed)
	tail      []byte   // mutable chunk being filled, invisible to readers
	tailBytes int64    // len(tail), tracked for Downloaded() without racing on tail's backing array
	completed bool
}

// New creates an empty ChunkedBuffer that freezes chunks of chunkSize
// bytes. A chunkSize <= 0 falls back to DefaultChunkSize.
func New(chunkSize int) *ChunkedBuffer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	b := &ChunkedBuffer{
		chunkSize: chunkSize,
		tail:      make([]byte, 0, chunkSize),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// ChunkSize returns the configured chunk size.
func (b *ChunkedBuffer) ChunkSize() int { return b.chunkSize }

// Lock and Unlock expose the chunk-list mutex so a Reader can wake
// ReadAt waiters (via Cond) as part of its own cancellation signal,
// without the buffer needing to know about cancellation at all.
func (b *ChunkedBuffer) Lock()   { b.mu.Lock() }
func (b *ChunkedBuffer) Unlock() { b.mu.Unlock() }

// Cond returns the condition variable ReadAt waits on, so a caller
// holding the lock (via Lock) can Broadcast an out-of-band wakeup.
func (b *ChunkedBuffer) Cond() *sync.Cond { return b.cond }

// Reserve preallocates chunk slots for totalBytes so streaming the
// body doesn't repeatedly grow the chunk slice. It is a producer hint,
// safe to call any time before Complete; typically called once HTTP
// headers carrying Content-Length arrive.
func (b *ChunkedBuffer) Reserve(totalBytes int64) {
	if totalBytes <= 0 {
		return
	}
	want := int(totalBytes/int64(b.chunkSize)) + 1

	b.mu.Lock()
	defer b.mu.Unlock()
	if cap(b.chunks) < want {
		grown := make([][]byte, len(b.chunks), want)
		copy(grown, b.chunks)
		b.chunks = grown
	}
}

// Append writes slice into the tail, freezing and pushing full chunks
// as the tail fills. It is a no-op once Complete has been called.
// Producer-only: must not be called concurrently with itself.
func (b *ChunkedBuffer) Append(slice []byte) {
	if len(slice) == 0 {
		return
	}

	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return
	}

	for len(slice) > 0 {
		room := b.chunkSize - len(b.tail)
		n := room
		if n > len(slice) {
			n = len(slice)
		}
		b.tail = append(b.tail, slice[:n]...)
		slice = slice[n:]
		b.tailBytes = int64(len(b.tail))

		if len(b.tail) == b.chunkSize {
			b.chunks = append(b.chunks, b.tail)
			b.tail = make([]byte, 0, b.chunkSize)
			b.tailBytes = 0
		}
	}
	b.mu.Unlock()

	b.cond.Broadcast()
}

// Complete freezes any partial tail as the final (possibly short)
// chunk, marks the buffer completed, and wakes every waiter. It is a
// no-op if already completed.
func (b *ChunkedBuffer) Complete() {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return
	}
	if len(b.tail) > 0 {
		b.chunks = append(b.chunks, b.tail)
		b.tail = nil
		b.tailBytes = 0
	}
	b.completed = true
	b.mu.Unlock()

	b.cond.Broadcast()
}

// Completed reports whether Complete has been called.
func (b *ChunkedBuffer) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Downloaded returns the total number of bytes appended so far,
// including the not-yet-frozen tail. Intended for progress reporting,
// not for gating reads (see ReadAt, which only sees frozen chunks).
func (b *ChunkedBuffer) Downloaded() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozenBytesLocked() + b.tailBytes
}

// Available returns the number of bytes currently safe to read
// (i.e. held in frozen chunks).
func (b *ChunkedBuffer) Available() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozenBytesLocked()
}

// frozenBytesLocked returns the number of bytes held in frozen chunks:
// every chunk is chunkSize bytes except possibly the last. b.mu must
// be held.
func (b *ChunkedBuffer) frozenBytesLocked() int64 {
	n := len(b.chunks)
	if n == 0 {
		return 0
	}
	return int64(n-1)*int64(b.chunkSize) + int64(len(b.chunks[n-1]))
}

// ReadAt blocks until the logical stream has data at pos, the buffer
// is completed, or cancelled reports true, then copies up to len(p)
// bytes starting at pos into p and returns the number of bytes copied.
// It returns 0 (without error — EOF and cancellation are both
// represented by a zero count, per spec) once the buffer is completed
// and pos has reached the end, or as soon as cancelled() is observed
// true while blocked.
//
// cancelled may be nil, in which case the read can only ever be
// unblocked by data arriving or the buffer completing.
func (b *ChunkedBuffer) ReadAt(pos int64, p []byte, cancelled func() bool) int {
	if len(p) == 0 {
		return 0
	}

	chunkSize := int64(b.chunkSize)

	b.mu.Lock()
	for {
		available := b.frozenBytesLocked()
		if pos < available {
			break
		}
		if b.completed {
			b.mu.Unlock()
			return 0
		}
		if cancelled != nil && cancelled() {
			b.mu.Unlock()
			return 0
		}
		b.cond.Wait()
	}

	numFrozen := len(b.chunks)
	startIdx := int(pos / chunkSize)
	startOffset := int(pos % chunkSize)

	endAbs := pos + int64(len(p))
	endIdx := int(endAbs / chunkSize)
	endOffset := int(endAbs % chunkSize)
	if endIdx >= numFrozen {
		endIdx = numFrozen
		endOffset = 0
	}

	startChunk := b.chunks[startIdx]
	var middleChunks [][]byte
	if endIdx-startIdx > 1 {
		middleChunks = append(middleChunks, b.chunks[startIdx+1:endIdx]...)
	}
	var endChunk []byte
	hasEndChunk := endIdx > startIdx && endOffset > 0
	if hasEndChunk {
		endChunk = b.chunks[endIdx]
	}
	b.mu.Unlock()

	offset := 0
	if startIdx == endIdx {
		n := endOffset
		if n > len(startChunk) {
			n = len(startChunk)
		}
		n -= startOffset
		copy(p[:n], startChunk[startOffset:startOffset+n])
		offset += n
	} else {
		n := len(startChunk) - startOffset
		copy(p[:n], startChunk[startOffset:])
		offset += n

		for _, chunk := range middleChunks {
			copy(p[offset:offset+len(chunk)], chunk)
			offset += len(chunk)
		}

		if hasEndChunk {
			n := endOffset
			if n > len(endChunk) {
				n = len(endChunk)
			}
			copy(p[offset:offset+n], endChunk[:n])
			offset += n
		}
	}

	return offset
}
