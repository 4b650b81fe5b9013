package buffer

import (
	"bytes"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkingLaw(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	slices := make([][]byte, 0, 20)
	var want bytes.Buffer
	for i := 0; i < 20; i++ {
		n := r.Intn(500) + 1
		s := make([]byte, n)
		r.Read(s)
		slices = append(slices, s)
		want.Write(s)
	}

	b := New(128)
	for _, s := range slices {
		b.Append(s)
	}
	b.Complete()

	var got bytes.Buffer
	for i, chunk := range b.chunks {
		if i != len(b.chunks)-1 {
			require.Len(t, chunk, 128, "non-final chunk must be exactly chunkSize")
		} else {
			require.LessOrEqual(t, len(chunk), 128)
		}
		got.Write(chunk)
	}
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestReaderFidelity(t *testing.T) {
	b := New(16)
	data := make([]byte, 16*10+5)
	for i := range data {
		data[i] = byte(i)
	}
	b.Append(data)
	b.Complete()

	for _, tc := range []struct{ pos, n int }{
		{0, 10}, {5, 20}, {100, 4}, {160, 10}, {163, 10}, {0, 200},
	} {
		buf := make([]byte, tc.n)
		got := b.ReadAt(int64(tc.pos), buf, nil)
		end := tc.pos + got
		if end > len(data) {
			end = len(data)
		}
		assert.Equal(t, data[tc.pos:end], buf[:got], "pos=%d n=%d", tc.pos, tc.n)
	}
}

func TestReaderEOFWithoutBlocking(t *testing.T) {
	b := New(16)
	b.Append([]byte("hello world"))
	b.Complete()

	buf := make([]byte, 4)
	n := b.ReadAt(11, buf, nil)
	assert.Zero(t, n)
}

func TestReaderCancellation(t *testing.T) {
	b := New(16)

	done := make(chan int, 1)
	var cancelled atomic.Bool
	go func() {
		buf := make([]byte, 4)
		n := b.ReadAt(0, buf, cancelled.Load)
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	cancelled.Store(true)
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()

	select {
	case n := <-done:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAt did not unblock on cancellation")
	}
}

func TestBlocksThenResumes(t *testing.T) {
	b := New(1024)
	b.Append(make([]byte, 512)) // not yet a full chunk

	readDone := make(chan int, 1)
	go func() {
		buf := make([]byte, 4096)
		readDone <- b.ReadAt(0, buf, nil)
	}()

	select {
	case <-readDone:
		t.Fatal("ReadAt should have blocked with no frozen chunk available")
	case <-time.After(50 * time.Millisecond):
	}

	b.Append(make([]byte, 1024)) // completes the first chunk

	select {
	case n := <-readDone:
		assert.Greater(t, n, 0)
		assert.LessOrEqual(t, n, 1024)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAt did not resume once a chunk froze")
	}

	b.Complete()
	buf := make([]byte, 4096)
	n := b.ReadAt(1024, buf, nil)
	assert.Equal(t, 512, n)

	n = b.ReadAt(1536, buf, nil)
	assert.Zero(t, n)
}

func TestReserveGrowsCapacityWithoutChangingContent(t *testing.T) {
	b := New(64)
	b.Reserve(1 << 20)
	b.Append(bytes.Repeat([]byte{0xAB}, 200))
	b.Complete()
	assert.Equal(t, int64(200), b.Downloaded())
}
