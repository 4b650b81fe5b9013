// Package stream adapts a buffer.ChunkedBuffer into the synchronous,
// seekable io.Reader the decoder requires, bridging the downloader's
// asynchronous world to the audio thread's synchronous one.
package stream

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/ravel-player/ravel/internal/buffer"
)

// ErrSeekUnsupported is returned by Seek for io.SeekEnd: the total
// length of a streaming source is not always known, and the decoders
// in scope never need an end-relative seek.
var ErrSeekUnsupported = errors.New("stream: SeekFromEnd is not supported")

// Reader presents a buffer.ChunkedBuffer as an io.ReadSeeker. Reads
// block while the position has outrun the buffer's frozen data; a
// one-shot Cancel unblocks a reader parked in Read, same as a fresh
// chunk arriving or the buffer completing, so teardown can never
// leave a reader blocked on a source that will never produce again.
type Reader struct {
	buf       *buffer.ChunkedBuffer
	pos       int64
	cancelled atomic.Bool
}

// New wraps buf for sequential or seeking reads starting at offset 0.
func New(buf *buffer.ChunkedBuffer) *Reader {
	return &Reader{buf: buf}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n := r.buf.ReadAt(r.pos, p, r.isCancelled)
	r.pos += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *Reader) isCancelled() bool { return r.cancelled.Load() }

// Cancel unblocks a Read currently parked waiting for data, and makes
// every later Read that would otherwise wait for data return EOF
// instead; data already frozen in the buffer is still returned. It is
// idempotent and safe to call from any goroutine, any number of times.
func (r *Reader) Cancel() {
	r.cancelled.Store(true)
	r.buf.Lock()
	r.buf.Cond().Broadcast()
	r.buf.Unlock()
}

// Position returns the current read cursor.
func (r *Reader) Position() int64 { return r.pos }

// Close satisfies io.Closer for codecs that require a ReadSeekCloser
// source (github.com/gopxl/beep/mp3.Decode does). It does not cancel
// the underlying download or buffer — that stays the Player's call via
// Cancel, kept independent so a codec's own Close doesn't race source
// teardown.
func (r *Reader) Close() error { return nil }

// Seek implements io.Seeker. SeekEnd fails with ErrSeekUnsupported;
// Seek never blocks and never waits for data to reach the new
// position — the next Read blocks if it must.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.pos = offset
	case io.SeekCurrent:
		r.pos += offset
	case io.SeekEnd:
		return r.pos, ErrSeekUnsupported
	default:
		return r.pos, errors.New("stream: invalid whence")
	}
	if r.pos < 0 {
		r.pos = 0
	}
	return r.pos, nil
}
