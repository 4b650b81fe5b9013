package decode

import (
	"errors"
	"io"
	stdfs "io/fs"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gopxl/beep"
)

// fakeStream is a minimal beep.StreamSeekCloser double used to exercise
// Decoder's seek-clamping and position logic without depending on a
// real MP3 fixture.
type fakeStream struct {
	len      int
	pos      int
	seekErr  error
	closed   bool
	seekCall int
}

func (f *fakeStream) Stream(samples [][2]float64) (int, bool) { return 0, false }
func (f *fakeStream) Err() error                               { return nil }
func (f *fakeStream) Len() int                                 { return f.len }
func (f *fakeStream) Position() int                            { return f.pos }
func (f *fakeStream) Seek(p int) error {
	f.seekCall++
	if f.seekErr != nil {
		return f.seekErr
	}
	f.pos = p
	return nil
}
func (f *fakeStream) Close() error { f.closed = true; return nil }

func newTestDecoder(fs *fakeStream, sampleRate beep.SampleRate) *Decoder {
	format := beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2}
	d := &Decoder{stream: fs, format: format}
	d.duration = computeDuration(fs, format, Options{})
	return d
}

func TestTrySeekClampsToDuration(t *testing.T) {
	fs := &fakeStream{len: 44100 * 10}
	d := newTestDecoder(fs, 44100)

	require := assert.New(t)
	require.Equal(10*time.Second, d.TotalDuration())

	err := d.TrySeek(1 * time.Hour)
	require.NoError(err)
	require.Equal(fs.len-1, fs.pos)
}

func TestTrySeekClampsNegativeToZero(t *testing.T) {
	fs := &fakeStream{len: 44100 * 10}
	d := newTestDecoder(fs, 44100)

	assert.NoError(t, d.TrySeek(-5*time.Second))
	assert.Equal(t, 0, fs.pos)
}

func TestTrySeekBackwardFailsWithoutIndexedLength(t *testing.T) {
	fs := &fakeStream{len: 0, pos: 44100 * 5}
	d := newTestDecoder(fs, 44100)

	err := d.TrySeek(1 * time.Second)
	assert.ErrorIs(t, err, ErrRandomAccessUnsupported)
	assert.Equal(t, 0, fs.seekCall)
}

func TestTrySeekForwardSucceedsWithoutIndexedLength(t *testing.T) {
	fs := &fakeStream{len: 0, pos: 0}
	d := newTestDecoder(fs, 44100)

	err := d.TrySeek(2 * time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 1, fs.seekCall)
}

func TestTrySeekPropagatesStreamError(t *testing.T) {
	fs := &fakeStream{len: 44100 * 10, seekErr: errors.New("boom")}
	d := newTestDecoder(fs, 44100)

	err := d.TrySeek(1 * time.Second)
	assert.Error(t, err)
}

func TestPositionReflectsSampleRate(t *testing.T) {
	fs := &fakeStream{len: 44100 * 10, pos: 44100 * 3}
	d := newTestDecoder(fs, 44100)
	assert.Equal(t, 3*time.Second, d.Position())
}

func TestCloseClosesUnderlyingStream(t *testing.T) {
	fs := &fakeStream{}
	d := newTestDecoder(fs, 44100)
	assert.NoError(t, d.Close())
	assert.True(t, fs.closed)
}

func TestDurationZeroWithoutIndexedLength(t *testing.T) {
	fs := &fakeStream{len: 0}
	d := newTestDecoder(fs, 44100)
	assert.Zero(t, d.TotalDuration())
}

func TestClassifyDecodeErrorPathErrorIsIO(t *testing.T) {
	err := classifyDecodeError(&stdfs.PathError{Op: "read", Path: "x.mp3", Err: errors.New("disk gone")})
	assert.ErrorIs(t, err, ErrIO)
}

func TestClassifyDecodeErrorNetErrorIsIO(t *testing.T) {
	err := classifyDecodeError(&net.OpError{Op: "read", Err: errors.New("connection reset")})
	assert.ErrorIs(t, err, ErrIO)
}

func TestClassifyDecodeErrorUnexpectedEOFIsIO(t *testing.T) {
	err := classifyDecodeError(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrIO)
}

func TestClassifyDecodeErrorGarbageIsUnrecognizedFormat(t *testing.T) {
	err := classifyDecodeError(errors.New("no mp3 frame sync found"))
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}
