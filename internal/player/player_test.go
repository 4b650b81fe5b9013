package player

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ravel-player/ravel/internal/buffer"
)

// Player.New opens a real speaker backend (github.com/gopxl/beep/speaker),
// which isn't available in a headless test run, so these tests cover the
// pure logic around it: event labeling, option defaults, and the small
// nopCloser adapter LoadReader builds on.

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 44100, o.SampleRate)
	assert.Equal(t, buffer.DefaultChunkSize, o.ChunkSize)
	assert.Equal(t, 1.0, o.DefaultVolume)
}

func TestOptionsDefaultsPreservesExplicitValues(t *testing.T) {
	o := Options{SampleRate: 48000, ChunkSize: 4096, DefaultVolume: 0.25}.withDefaults()
	assert.Equal(t, 48000, o.SampleRate)
	assert.Equal(t, 4096, o.ChunkSize)
	assert.Equal(t, 0.25, o.DefaultVolume)
}

func TestEventKindStrings(t *testing.T) {
	cases := map[EventKind]string{
		EventPlay:           "play",
		EventPause:          "pause",
		EventWaiting:        "waiting",
		EventPlaying:        "playing",
		EventEnded:          "ended",
		EventEmptied:        "emptied",
		EventDurationChange: "durationchange",
		EventVolumeChange:   "volumechange",
		EventSeeking:        "seeking",
		EventSeeked:         "seeked",
		EventLoadStart:      "loadstart",
		EventLoadedData:     "loadeddata",
		EventLoadedMetadata: "loadedmetadata",
		EventError:          "error",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestLoaderEventKindStrings(t *testing.T) {
	assert.Equal(t, "completed", LoaderCompleted.String())
	assert.Equal(t, "aborted", LoaderAborted.String())
}

func TestErrorEventCarriesMessage(t *testing.T) {
	e := errorEvent("boom")
	assert.Equal(t, EventError, e.Kind)
	assert.Equal(t, "boom", e.Message)
}

func TestNopCloserForwardsReadSeekAndNoopsClose(t *testing.T) {
	r := bytes.NewReader([]byte("hello world"))
	n := nopCloser{r: r}

	buf := make([]byte, 5)
	cnt, err := n.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:cnt]))

	pos, err := n.Seek(0, 0)
	assert.NoError(t, err)
	assert.Zero(t, pos)

	assert.NoError(t, n.Close())
}
