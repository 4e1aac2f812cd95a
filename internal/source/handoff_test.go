package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBatch = 1000

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func filled(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestHandoff_FirstBatchHasNeutralTail(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 200)))

	out, err := h.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, out, TailBytes+testBatch)
	assert.Equal(t, filled(TailBytes, zeroLevel), out[:TailBytes])
	assert.Equal(t, filled(testBatch, 200), out[TailBytes:])
}

func TestHandoff_CarriesTail(t *testing.T) {
	h := NewHandoff(testBatch)
	first := ramp(testBatch)

	require.NoError(t, h.Publish(first))
	_, err := h.Next(context.Background())
	require.NoError(t, err)
	h.Done()

	require.NoError(t, h.Publish(filled(testBatch, 9)))
	out, err := h.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first[testBatch-TailBytes:], out[:TailBytes])
	assert.Equal(t, filled(testBatch, 9), out[TailBytes:])
}

func TestHandoff_PadsShortBatch(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(10, 1)))

	out, err := h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filled(10, 1), out[TailBytes:TailBytes+10])
	assert.Equal(t, filled(testBatch-10, zeroLevel), out[TailBytes+10:])
}

func TestHandoff_OverwriteCountsDrop(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 1)))
	require.NoError(t, h.Publish(filled(testBatch, 2)))

	published, dropped := h.Counters()
	assert.Equal(t, uint64(2), published)
	assert.Equal(t, uint64(1), dropped)

	out, err := h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filled(testBatch, 2), out[TailBytes:])
}

func TestHandoff_NextBlocksUntilPublish(t *testing.T) {
	h := NewHandoff(testBatch)
	got := make(chan []byte, 1)

	go func() {
		out, err := h.Next(context.Background())
		assert.NoError(t, err)
		got <- out
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any batch was published")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, h.Publish(filled(testBatch, 5)))
	select {
	case out := <-got:
		assert.Equal(t, byte(5), out[TailBytes])
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestHandoff_NextHonoursContext(t *testing.T) {
	h := NewHandoff(testBatch)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandoff_Close(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 3)))
	h.Close()

	assert.True(t, h.Closed())
	assert.ErrorIs(t, h.Publish(filled(testBatch, 4)), ErrClosed)

	out, err := h.Next(context.Background())
	require.NoError(t, err, "pending batch is delivered after close")
	assert.Equal(t, byte(3), out[TailBytes])

	_, err = h.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandoff_PublishWaitBlocksUntilDrained(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.PublishWait(context.Background(), filled(testBatch, 1)))

	done := make(chan error, 1)
	go func() {
		done <- h.PublishWait(context.Background(), filled(testBatch, 2))
	}()

	select {
	case <-done:
		t.Fatal("PublishWait returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	out, err := h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(1), out[TailBytes])

	select {
	case <-done:
		t.Fatal("PublishWait returned while the consumer still held the batch")
	case <-time.After(50 * time.Millisecond):
	}

	h.Done()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("PublishWait did not wake up")
	}

	out, err = h.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(2), out[TailBytes])

	_, dropped := h.Counters()
	assert.Zero(t, dropped)
}

func TestHandoff_PublishWaitUnblockedByClose(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 1)))

	done := make(chan error, 1)
	go func() {
		done <- h.PublishWait(context.Background(), filled(testBatch, 2))
	}()

	time.Sleep(20 * time.Millisecond)
	h.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("PublishWait did not observe Close")
	}
}

func TestHandoff_NextWaitsForDone(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 1)))
	_, err := h.Next(context.Background())
	require.NoError(t, err)

	// a device producer overwrites while the consumer is busy
	require.NoError(t, h.Publish(filled(testBatch, 2)))
	require.NoError(t, h.Publish(filled(testBatch, 3)))
	_, dropped := h.Counters()
	assert.Equal(t, uint64(1), dropped)

	got := make(chan []byte, 1)
	go func() {
		out, err := h.Next(context.Background())
		assert.NoError(t, err)
		got <- out
	}()

	select {
	case <-got:
		t.Fatal("Next returned before the previous batch was done")
	case <-time.After(50 * time.Millisecond):
	}

	h.Done()
	select {
	case out := <-got:
		assert.Equal(t, byte(3), out[TailBytes])
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after Done")
	}
}

func TestHandoff_NextWhileBusyHonoursContext(t *testing.T) {
	h := NewHandoff(testBatch)
	require.NoError(t, h.Publish(filled(testBatch, 1)))
	_, err := h.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Publish(filled(testBatch, 2)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = h.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func drain(t *testing.T, h *Handoff) [][]byte {
	t.Helper()
	var batches [][]byte
	for {
		out, err := h.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			return batches
		}
		batches = append(batches, out[TailBytes:])
		h.Done()
	}
}

func TestFileSource_ReadsWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.bin")
	data := ramp(testBatch*2 + testBatch/2)
	require.NoError(t, os.WriteFile(path, data, 0644))

	src, err := OpenFile(path, false, testLogger())
	require.NoError(t, err)
	defer src.Close()

	h := NewHandoff(testBatch)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(context.Background(), h) }()

	batches := drain(t, h)
	require.NoError(t, <-errc)

	require.Len(t, batches, 3)
	assert.Equal(t, data[:testBatch], batches[0])
	assert.Equal(t, data[testBatch:2*testBatch], batches[1])
	assert.Equal(t, data[2*testBatch:], batches[2][:testBatch/2])
	assert.Equal(t, filled(testBatch/2, zeroLevel), batches[2][testBatch/2:])
}

func TestFileSource_Loop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.bin")
	require.NoError(t, os.WriteFile(path, filled(testBatch, 42), 0644))

	src, err := OpenFile(path, true, testLogger())
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandoff(testBatch)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, h) }()

	for i := 0; i < 5; i++ {
		out, err := h.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, byte(42), out[TailBytes])
		h.Done()
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("looping source did not stop")
	}
	assert.True(t, h.Closed())
}

func TestFileSource_Reader(t *testing.T) {
	src := NewReaderSource("buffer", bytes.NewReader(filled(testBatch, 7)), testLogger())
	h := NewHandoff(testBatch)

	errc := make(chan error, 1)
	go func() { errc <- src.Run(context.Background(), h) }()

	batches := drain(t, h)
	require.NoError(t, <-errc)
	require.Len(t, batches, 1)
	assert.NoError(t, src.Close())
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.bin"), false, testLogger())
	assert.Error(t, err)
}
