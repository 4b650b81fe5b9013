package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravel-player/ravel/internal/buffer"
)

func TestDownloadStreamsIntoBufferAndCompletes(t *testing.T) {
	body := make([]byte, 300*1024)
	for i := range body {
		body[i] = byte(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "307200")
		w.Write(body)
	}))
	defer srv.Close()

	buf := buffer.New(64 * 1024)
	d := New(buf, false)

	events := make(chan Event, 8)
	d.OnEvent(func(e Event) { events <- e })

	require.NoError(t, d.Download(context.Background(), srv.URL, nil))
	assert.Equal(t, eventHeaderReceived, <-events)

	select {
	case e := <-events:
		assert.Equal(t, EventCompleted, e)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not complete")
	}

	assert.Equal(t, Completed, d.Status())
	assert.True(t, buf.Completed())
	assert.EqualValues(t, len(body), buf.Downloaded())
	assert.EqualValues(t, 307200, d.TotalBytes())
}

func TestDownloadCalledTwicePanics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	buf := buffer.New(1024)
	d := New(buf, false)
	require.NoError(t, d.Download(context.Background(), srv.URL, nil))

	assert.Panics(t, func() {
		_ = d.Download(context.Background(), srv.URL, nil)
	})
}

func TestAbortStopsBeforeCompletion(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.Write(make([]byte, 1024))
		if flusher != nil {
			flusher.Flush()
		}
		<-block
	}))
	defer srv.Close()
	defer close(block)

	buf := buffer.New(64)
	d := New(buf, false)

	events := make(chan Event, 8)
	d.OnEvent(func(e Event) { events <- e })

	require.NoError(t, d.Download(context.Background(), srv.URL, nil))
	assert.Equal(t, eventHeaderReceived, <-events)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, d.Abort())

	select {
	case e := <-events:
		assert.Equal(t, EventAborted, e)
	case <-time.After(5 * time.Second):
		t.Fatal("downloader did not report aborted")
	}
	assert.Equal(t, Aborted, d.Status())
}

func TestAbortWhenNotDownloadingErrors(t *testing.T) {
	buf := buffer.New(1024)
	d := New(buf, false)
	assert.Error(t, d.Abort())
}
