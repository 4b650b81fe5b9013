// Package playback drives github.com/gopxl/beep's global speaker with a
// single active decode.Decoder, exposing the play/pause/seek/volume
// facade the Player needs without leaking beep's package-level globals
// into the rest of the engine. Grounded in the teacher's
// amp/internal/audio/player.go speaker-pipeline plumbing (mkVolume,
// Ctrl, speaker.Play/Clear/Lock), adapted to a single-purpose control
// surface instead of a whole Player.
package playback

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"github.com/ravel-player/ravel/internal/decode"
)

// bufferDuration is the speaker's internal buffer size, matching the
// teacher's 200ms figure (amp/internal/audio/player.go
// initializeSpeaker).
const bufferDuration = 200 * time.Millisecond

var (
	speakerOnce  sync.Once
	speakerErr   error
	speakerRate  beep.SampleRate
	speakerMu    sync.Mutex
	speakerReady bool
)

// Init initializes beep's package-level speaker output at rate, once
// per process. beep has no API to reinitialize the speaker, so the
// first call wins: calling it again with the same rate is a no-op, and
// with a different rate returns an error.
func Init(rate beep.SampleRate, debug bool) error {
	speakerOnce.Do(func() {
		n := rate.N(bufferDuration)
		speakerErr = speaker.Init(rate, n)
		if speakerErr == nil {
			speakerMu.Lock()
			speakerRate = rate
			speakerReady = true
			speakerMu.Unlock()
		}
		if debug {
			log.Printf("[PLAYBACK] speaker.Init(%d, %d): %v", rate, n, speakerErr)
		}
	})
	if speakerErr != nil {
		return speakerErr
	}
	speakerMu.Lock()
	current := speakerRate
	speakerMu.Unlock()
	if current != rate {
		return fmt.Errorf("playback: speaker already initialized at %d Hz, not %d Hz", current, rate)
	}
	return nil
}

// Control owns the beep.Ctrl/effects.Volume pipeline for one decoded
// source at a time. Load replaces whatever was previously playing;
// Stop tears the pipeline down and clears the speaker.
type Control struct {
	mu      sync.Mutex
	dec     *decode.Decoder
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	outRate beep.SampleRate
	debug   bool
	onDone  func()
	stop    chan struct{} // closed by clearLocked to release the done-waiter goroutine below
}

// New returns a Control that resamples every loaded source to outRate.
// Init must have been called with the same rate before any Load.
func New(outRate beep.SampleRate, debug bool) *Control {
	return &Control{outRate: outRate, debug: debug}
}

// Load splices dec into the speaker pipeline, replacing any source
// currently playing. The new source starts paused; call Play to start
// audible output. onDone, if non-nil, fires once after the source
// streams to completion (not on an explicit Stop; when loop is true it
// fires only if the looped stream stops because seeking back to the
// start failed).
func (c *Control) Load(dec *decode.Decoder, volume float64, loop bool, onDone func()) error {
	speakerMu.Lock()
	ready := speakerReady
	speakerMu.Unlock()
	if !ready {
		return fmt.Errorf("playback: speaker not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()

	var base beep.Streamer = dec.Stream()
	if loop {
		base = dec.Looped()
	}
	var source beep.Streamer = base
	if dec.SampleRate() != c.outRate {
		source = beep.Resample(4, dec.SampleRate(), c.outRate, base)
	}

	ctrl := &beep.Ctrl{Streamer: source, Paused: true}
	vol := mkVolume(ctrl, volume)

	c.dec = dec
	c.ctrl = ctrl
	c.volume = vol
	c.onDone = onDone

	stop := make(chan struct{})
	c.stop = stop

	done := make(chan struct{})
	seq := beep.Seq(vol, beep.Callback(func() { close(done) }))
	speaker.Play(seq)

	// clearLocked tears a source down with speaker.Clear(), which drops
	// seq (and its trailing Callback) from the mixer without ever
	// streaming it, so done never closes on that path. Without the
	// stop arm below this goroutine would park forever on every
	// source switch, Stop, and Close — select on both so teardown
	// releases it the same way internal/stream.Reader's Cancel does.
	go func() {
		select {
		case <-done:
			c.mu.Lock()
			cb := c.onDone
			// Only fire if this Control wasn't replaced/stopped in the meantime.
			stillCurrent := c.ctrl == ctrl
			c.mu.Unlock()
			if stillCurrent && cb != nil {
				cb()
			}
		case <-stop:
		}
	}()

	if c.debug {
		log.Printf("[PLAYBACK] loaded source, channels=%d rate=%d", dec.Channels(), dec.SampleRate())
	}
	return nil
}

func mkVolume(ctrl *beep.Ctrl, vol float64) *effects.Volume {
	v := &effects.Volume{Streamer: ctrl, Base: 2}
	if vol <= 0 {
		v.Silent = true
	} else {
		v.Volume = (vol - 1) * 5
	}
	return v
}

// Play unpauses the current source. It is a no-op if nothing is loaded.
func (c *Control) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl == nil {
		return
	}
	speaker.Lock()
	c.ctrl.Paused = false
	speaker.Unlock()
}

// Pause pauses the current source. It is a no-op if nothing is loaded.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl == nil {
		return
	}
	speaker.Lock()
	c.ctrl.Paused = true
	speaker.Unlock()
}

// Paused reports whether the current source is paused. It returns true
// (matching the idle/no-source state being non-playing) when nothing
// is loaded.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctrl == nil {
		return true
	}
	speaker.Lock()
	defer speaker.Unlock()
	return c.ctrl.Paused
}

// Seek delegates to the decoder's saturating TrySeek, taking the
// speaker lock so the swap is atomic with respect to the mixing
// goroutine.
func (c *Control) Seek(target time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dec == nil {
		return fmt.Errorf("playback: no active source")
	}
	speaker.Lock()
	defer speaker.Unlock()
	return c.dec.TrySeek(target)
}

// Position returns the current position of the active source, or zero
// if nothing is loaded.
func (c *Control) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dec == nil {
		return 0
	}
	return c.dec.Position()
}

// Duration returns the active source's total duration, or zero if
// nothing is loaded or the duration is still unknown.
func (c *Control) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dec == nil {
		return 0
	}
	return c.dec.TotalDuration()
}

// SetVolume sets the output volume in [0, 1], 0 being silent.
func (c *Control) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.volume == nil {
		return
	}
	speaker.Lock()
	if level == 0 {
		c.volume.Silent = true
	} else {
		c.volume.Silent = false
		c.volume.Volume = (level - 1) * 5
	}
	speaker.Unlock()
}

// Stop clears the speaker pipeline and releases the active decoder.
// The Player, not Control, owns closing the decoder's underlying
// source; Stop only detaches it from the mixer.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Control) clearLocked() {
	if c.ctrl != nil {
		speaker.Clear()
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.dec = nil
	c.ctrl = nil
	c.volume = nil
	c.onDone = nil
}
