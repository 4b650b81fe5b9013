// Package decode adapts an io.ReadSeeker byte source into the lazy,
// seekable sample sequence the Player needs, wrapping github.com/gopxl/beep's
// MP3 codec — the external demuxer/codec library spec.md §4.4 and §6
// treat as a collaborator the core does not implement itself.
package decode

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
)

// Error categories surfaced by New, matching spec.md §7's source-open
// taxonomy. They wrap the underlying beep/mp3 error via %w so callers
// can still inspect the original cause.
var (
	ErrUnrecognizedFormat = errors.New("decode: unrecognized format")
	ErrNoStreams          = errors.New("decode: no usable audio stream")
	ErrIO                 = errors.New("decode: io error")
)

// ErrRandomAccessUnsupported is returned by TrySeek when the
// underlying stream only supports forward seeks and the requested
// target lies before the current position. Folded in from the Rust
// original's SeekError::RandomAccessNotSupported (original_source
// decoder/mod.rs).
var ErrRandomAccessUnsupported = errors.New("decode: seek target precedes current position on a forward-only stream")

// Options mirrors the Rust original's DecoderBuilder knobs
// (with_byte_len, with_seekable, with_hint, with_gapless). None of the
// fields affects today's MP3 path; they are kept so callers and future
// codec backends share one construction contract, per spec.md §6.
type Options struct {
	// ByteLen is the total byte length of the source, when known
	// (e.g. a local file's size). The MP3 backend does not use it: the
	// total duration comes only from the stream's indexed sample count,
	// and no bitrate-based estimate is made from the byte length.
	ByteLen int64
	// Seekable indicates the underlying source supports efficient
	// backward seeks (a local file or a fully-downloaded buffer).
	Seekable bool
	// Hint is an optional format hint (e.g. "mp3"); unused by the
	// current MP3-only backend but preserved for interface parity.
	Hint string
	// MimeType is an optional MIME hint; unused today, same rationale
	// as Hint.
	MimeType string
}

// Decoder turns a Read+Seek byte source into a lazy sample sequence
// with channel count, sample rate, total duration (when derivable),
// and time-based seeking.
type Decoder struct {
	stream   beep.StreamSeekCloser
	format   beep.Format
	opts     Options
	duration time.Duration
}

// New decodes r as MP3, the only format this engine's codec stack
// (github.com/gopxl/beep/mp3) supports. r must also implement
// io.Closer; internal/stream.Reader and *os.File both do.
func New(r interface {
	io.Reader
	io.Seeker
	io.Closer
}, opts Options) (*Decoder, error) {
	stream, format, err := mp3.Decode(r)
	if err != nil {
		return nil, classifyDecodeError(err)
	}
	if format.NumChannels == 0 {
		return nil, fmt.Errorf("%w: decoded format has no channels", ErrNoStreams)
	}

	d := &Decoder{stream: stream, format: format, opts: opts}
	d.duration = computeDuration(stream, format, opts)
	return d, nil
}

// classifyDecodeError sorts an mp3.Decode failure into the source-open
// taxonomy spec.md §7 calls for. gopxl/beep/mp3 has no typed error of
// its own to switch on, but it propagates whatever the underlying
// Reader/Seeker returned (minimp3 reads through r without wrapping),
// so an error chain rooted in a filesystem or network failure means
// the source itself is bad, not the format: that classifies as
// ErrIO. Anything else — a header minimp3 couldn't parse, garbage
// bytes, a truncated-but-readable file — is the common case and
// classifies as ErrUnrecognizedFormat.
func classifyDecodeError(err error) error {
	var pathErr *fs.PathError
	var netErr net.Error
	if errors.As(err, &pathErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
}

// computeDuration derives total duration from the decoded sample count:
// gopxl/beep's mp3 decoder exposes Len() in samples once it has indexed
// frames. When Len() is 0 the duration is reported as 0 (unknown);
// opts.ByteLen is not used for a byte-length or bitrate estimate.
func computeDuration(stream beep.StreamSeekCloser, format beep.Format, opts Options) time.Duration {
	if n := stream.Len(); n > 0 {
		return format.SampleRate.D(n)
	}
	// Without an indexed sample count (streaming, incompletely
	// buffered source), duration stays unknown; it is computed once,
	// here, and not re-queried later.
	_ = opts.ByteLen
	return 0
}

// Channels returns the number of interleaved audio channels.
func (d *Decoder) Channels() int { return d.format.NumChannels }

// SampleRate returns the decoder's native sample rate.
func (d *Decoder) SampleRate() beep.SampleRate { return d.format.SampleRate }

// TotalDuration returns the duration computed at construction time, or
// zero if it could not be determined (e.g. still-streaming source with
// no indexed frame count yet).
func (d *Decoder) TotalDuration() time.Duration { return d.duration }

// Stream returns the underlying beep.StreamSeekCloser for splicing
// into a PlaybackControl sink.
func (d *Decoder) Stream() beep.StreamSeekCloser { return d.stream }

// Looped wraps the decoder's stream so that reaching the end seeks
// back to the start instead of stopping, matching the Rust original's
// LoopedDecoder (original_source decoder/mod.rs): looping stops only
// if the seek-to-start itself fails.
func (d *Decoder) Looped() beep.Streamer {
	return &loopedStreamer{stream: d.stream}
}

type loopedStreamer struct {
	stream beep.StreamSeekCloser
}

func (l *loopedStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := l.stream.Stream(samples)
	if ok {
		return n, true
	}
	if err := l.stream.Seek(0); err != nil {
		return n, n > 0
	}
	more, ok2 := l.stream.Stream(samples[n:])
	return n + more, ok2 || n > 0
}

func (l *loopedStreamer) Err() error { return l.stream.Err() }

// TrySeek performs a saturating seek: targets beyond TotalDuration
// clamp to the end, and targets before 0 clamp to the start. If the
// underlying stream cannot seek backward (Len() == 0, meaning frames
// haven't been indexed yet — true for a partially buffered stream),
// seeking to an earlier position than the current one fails with
// ErrRandomAccessUnsupported rather than silently doing nothing.
func (d *Decoder) TrySeek(target time.Duration) error {
	if target < 0 {
		target = 0
	}
	if d.duration > 0 && target > d.duration {
		target = d.duration
	}

	targetSample := d.format.SampleRate.N(target)
	if targetSample < 0 {
		targetSample = 0
	}

	if l := d.stream.Len(); l > 0 {
		if targetSample >= l {
			targetSample = l - 1
		}
	} else if targetSample < d.stream.Position() {
		return ErrRandomAccessUnsupported
	}

	if err := d.stream.Seek(targetSample); err != nil {
		return fmt.Errorf("decode: seek: %w", err)
	}
	return nil
}

// Position returns the current playback position as a duration.
func (d *Decoder) Position() time.Duration {
	return d.format.SampleRate.D(d.stream.Position())
}

// Close releases the decoder's resources. It does not close the
// underlying reader's network connection or cancel any in-flight
// download — source cancellation is the Player's responsibility
// (spec.md §4.6 clear()), kept independent so a decoder can be torn
// down without racing the stream reader's own lifecycle.
func (d *Decoder) Close() error {
	return d.stream.Close()
}
