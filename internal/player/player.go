package player

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"

	"github.com/ravel-player/ravel/internal/buffer"
	"github.com/ravel-player/ravel/internal/decode"
	"github.com/ravel-player/ravel/internal/download"
	"github.com/ravel-player/ravel/internal/playback"
	"github.com/ravel-player/ravel/internal/stream"
)

// Options configures a Player at construction time.
type Options struct {
	// SampleRate is the speaker's fixed output rate; every loaded
	// source is resampled to it if it differs.
	SampleRate int
	// DefaultVolume is the initial volume, in [0, 1], applied to loaded
	// sources until SetVolume changes it. Zero selects 1.
	DefaultVolume float64
	// ChunkSize sizes the chunked buffer backing LoadURL, in bytes.
	ChunkSize int
	Debug     bool
}

func (o Options) withDefaults() Options {
	if o.SampleRate == 0 {
		o.SampleRate = 44100
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = buffer.DefaultChunkSize
	}
	if o.DefaultVolume == 0 {
		o.DefaultVolume = 1
	}
	return o
}

// Player is the top-level orchestrator: it owns the active decoder and
// its source-specific teardown state, translates control calls into
// playback.Control operations, and emits the Event stream. One loaded
// source is active at a time; loading a new one runs the same teardown
// sequence Stop does.
type Player struct {
	mu sync.RWMutex

	opts    Options
	control *playback.Control

	dec        *decode.Decoder
	reader     *stream.Reader
	downloader *download.Downloader
	closer     func() error // closes the current source's underlying handle (file, decoder)

	duration time.Duration
	volume   float64
	loop     atomic.Bool

	empty    atomic.Bool
	ended    atomic.Bool
	autoplay atomic.Bool

	callbackMu sync.RWMutex
	callback   func(Event)

	loaderCallbackMu sync.RWMutex
	loaderCallback   func(LoaderEvent)
}

// New constructs a Player and initializes the shared speaker output at
// opts.SampleRate. It returns an error if the speaker is already
// initialized at a different rate, or the audio backend can't open.
func New(opts Options) (*Player, error) {
	opts = opts.withDefaults()
	rate := beep.SampleRate(opts.SampleRate)

	if err := playback.Init(rate, opts.Debug); err != nil {
		return nil, fmt.Errorf("player: init speaker: %w", err)
	}

	p := &Player{
		opts:    opts,
		control: playback.New(rate, opts.Debug),
		volume:  opts.DefaultVolume,
	}
	p.empty.Store(true)
	return p, nil
}

// --- PlaybackControl surface -------------------------------------------------

// Play starts or resumes playback of the current source and marks the
// player as wanting autoplay (a subsequently loaded source starts
// playing immediately instead of paused).
func (p *Player) Play() {
	p.control.Play()
	p.autoplay.Store(true)
	p.emit(playEvent(EventPlay))
}

// Pause pauses the current source.
func (p *Player) Pause() {
	p.control.Pause()
	p.autoplay.Store(false)
	p.emit(playEvent(EventPause))
}

// Seek seeks the current source to position, saturating at the known
// duration. Seeking with no source loaded returns an error.
func (p *Player) Seek(position time.Duration) error {
	p.emit(playEvent(EventSeeking))
	if err := p.control.Seek(position); err != nil {
		return err
	}
	p.emit(playEvent(EventSeeked))
	return nil
}

// SetVolume sets playback volume in [0, 1].
func (p *Player) SetVolume(level float64) {
	p.mu.Lock()
	p.volume = level
	p.mu.Unlock()
	p.control.SetVolume(level)
	p.emit(playEvent(EventVolumeChange))
}

// Paused reports whether the current source is paused.
func (p *Player) Paused() bool { return p.control.Paused() }

// Position returns the current source's playback position.
func (p *Player) Position() time.Duration { return p.control.Position() }

// Volume returns the last volume set via SetVolume or the
// configuration default.
func (p *Player) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Duration returns the current source's known total duration, or zero
// if unknown or nothing is loaded.
func (p *Player) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration
}

// Ended reports whether the current source has played to completion.
func (p *Player) Ended() bool { return p.ended.Load() }

// SetLoop toggles looped playback: when enabled, a source that reaches
// its end seeks back to the start instead of emitting Ended. The flag
// is read when a source is loaded, so it applies from the next load
// on and does not change the source already loaded. Supplements
// the core spec, grounded in the Rust original's LoopedDecoder
// (original_source decoder/mod.rs).
func (p *Player) SetLoop(enabled bool) { p.loop.Store(enabled) }

// --- loading ------------------------------------------------------------

// LoadFile loads a local audio file by path.
func (p *Player) LoadFile(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.empty.Load() {
		p.clearLocked()
	}

	f, err := os.Open(path)
	if err != nil {
		p.emit(errorEvent(fmt.Sprintf("open %s: %v", path, err)))
		return fmt.Errorf("player: open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		p.emit(errorEvent(fmt.Sprintf("stat %s: %v", path, err)))
		return fmt.Errorf("player: stat file: %w", err)
	}

	dec, err := decode.New(f, decode.Options{ByteLen: info.Size(), Seekable: true})
	if err != nil {
		f.Close()
		p.emit(errorEvent(fmt.Sprintf("decode %s: %v", path, err)))
		return fmt.Errorf("player: decode file: %w", err)
	}

	p.closer = f.Close
	return p.loadLocked(dec)
}

// LoadURL streams a remote file through a internal/download.Downloader
// and internal/stream.Reader into the decoder, so playback can begin
// before the download finishes.
func (p *Player) LoadURL(ctx context.Context, url string, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.empty.Load() {
		p.clearLocked()
	}

	buf := buffer.New(p.opts.ChunkSize)
	dl := download.New(buf, p.opts.Debug)

	loaderCb := func(e download.Event) {
		switch e {
		case download.EventCompleted:
			p.emitLoader(LoaderEvent{Kind: LoaderCompleted})
		case download.EventAborted:
			p.emitLoader(LoaderEvent{Kind: LoaderAborted})
		}
	}
	dl.OnEvent(loaderCb)

	if err := dl.Download(ctx, url, headers); err != nil {
		p.emit(errorEvent(fmt.Sprintf("download %s: %v", url, err)))
		return fmt.Errorf("player: download: %w", err)
	}

	rd := stream.New(buf)
	dec, err := decode.New(rd, decode.Options{Seekable: false})
	if err != nil {
		rd.Cancel()
		dl.Close()
		p.emit(errorEvent(fmt.Sprintf("decode %s: %v", url, err)))
		return fmt.Errorf("player: decode stream: %w", err)
	}

	p.reader = rd
	p.downloader = dl
	p.closer = nil
	return p.loadLocked(dec)
}

// LoadReader loads audio from an already-open, seekable byte source.
// The caller retains ownership of r; Player never closes it.
func (p *Player) LoadReader(r interface {
	Read([]byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.empty.Load() {
		p.clearLocked()
	}

	dec, err := decode.New(nopCloser{r}, decode.Options{Seekable: true})
	if err != nil {
		p.emit(errorEvent(fmt.Sprintf("decode reader: %v", err)))
		return fmt.Errorf("player: decode reader: %w", err)
	}

	p.closer = nil
	return p.loadLocked(dec)
}

// LoadSource loads an already-constructed decoder directly, the
// lowest-level entry point for callers (or future codec backends)
// supplying their own decode.Decoder instead of going through
// LoadFile/LoadURL/LoadReader.
func (p *Player) LoadSource(dec *decode.Decoder) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.empty.Load() {
		p.clearLocked()
	}
	p.emit(playEvent(EventLoadStart))
	p.closer = nil
	return p.loadLocked(dec)
}

type nopCloser struct {
	r interface {
		Read([]byte) (int, error)
		Seek(offset int64, whence int) (int64, error)
	}
}

func (n nopCloser) Read(p []byte) (int, error) { return n.r.Read(p) }
func (n nopCloser) Seek(offset int64, whence int) (int64, error) {
	return n.r.Seek(offset, whence)
}
func (n nopCloser) Close() error { return nil }

// loadLocked is the Go equivalent of the Rust original's generic
// load<S>: it assumes clearLocked has already run for any previous
// source, publishes the duration/metadata events, and splices dec into
// the speaker pipeline. p.mu must be held.
func (p *Player) loadLocked(dec *decode.Decoder) error {
	p.empty.Store(false)
	p.ended.Store(false)

	p.duration = dec.TotalDuration()
	p.emit(playEvent(EventDurationChange))
	p.emit(playEvent(EventLoadedMetadata))
	p.emit(playEvent(EventLoadedData))

	p.dec = dec
	loop := p.loop.Load()

	onDone := func() {
		if loop {
			return
		}
		p.ended.Store(true)
		p.emit(playEvent(EventEnded))
	}

	if err := p.control.Load(dec, p.volume, loop, onDone); err != nil {
		p.emit(errorEvent(err.Error()))
		return fmt.Errorf("player: load into speaker: %w", err)
	}

	if p.autoplay.Load() {
		p.control.Play()
	}

	if p.opts.Debug {
		log.Printf("[PLAYER] loaded source: channels=%d rate=%d duration=%v",
			dec.Channels(), dec.SampleRate(), p.duration)
	}
	return nil
}

// Stop clears the current source, same teardown as loading a new one.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

// clearLocked mirrors the Rust original's Player::clear: stop the
// sink, drop the decoder/downloader/reader, unblock any reader parked
// waiting for data, and emit Emptied/DurationChange as appropriate.
// p.mu must be held.
func (p *Player) clearLocked() {
	p.control.Stop()

	previousDuration := p.duration
	p.duration = 0

	if p.closer != nil {
		_ = p.closer()
		p.closer = nil
	}
	p.dec = nil

	if p.downloader != nil {
		p.downloader.Close()
		p.downloader = nil
	}

	if p.reader != nil {
		p.reader.Cancel()
		p.reader = nil
	}

	p.ended.Store(false)

	if !p.empty.Load() {
		p.empty.Store(true)
		p.emit(playEvent(EventEmptied))
	}

	if previousDuration != 0 {
		p.emit(playEvent(EventDurationChange))
	}
}

// --- callbacks ------------------------------------------------------------

// SetCallback installs the Event callback, replacing any previous one.
func (p *Player) SetCallback(cb func(Event)) {
	p.callbackMu.Lock()
	p.callback = cb
	p.callbackMu.Unlock()
}

// SetLoaderCallback installs the LoaderEvent callback, replacing any
// previous one.
func (p *Player) SetLoaderCallback(cb func(LoaderEvent)) {
	p.loaderCallbackMu.Lock()
	p.loaderCallback = cb
	p.loaderCallbackMu.Unlock()
}

func (p *Player) emit(e Event) {
	p.callbackMu.RLock()
	cb := p.callback
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(e)
	}
}

func (p *Player) emitLoader(e LoaderEvent) {
	p.loaderCallbackMu.RLock()
	cb := p.loaderCallback
	p.loaderCallbackMu.RUnlock()
	if cb != nil {
		cb(e)
	}
}

// Close releases the player's resources, equivalent to the Rust
// original's Drop impl calling clear().
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	return nil
}
