package source

import (
	"context"
	"errors"
	"sync"

	"modes1090/internal/modes"
)

const (
	// DefaultBatchSize is the number of I/Q bytes per sample batch.
	DefaultBatchSize = 16 * 16384

	// TailBytes is the part of the previous batch kept in front of the next
	// one. It covers every start position the demodulator cannot scan at the
	// end of a buffer (FullLen*2 samples of two bytes each), so a frame
	// straddling two batches is seen whole in the second.
	TailBytes = modes.FullLen * 4

	// zeroLevel is the DC bias of an unsigned 8-bit sample.
	zeroLevel = 127
)

// ErrClosed is returned once the handoff has been closed.
var ErrClosed = errors.New("sample handoff closed")

// Producer fills a Handoff with I/Q sample batches until ctx is done or its
// input is exhausted.
type Producer interface {
	Run(ctx context.Context, h *Handoff) error
}

// Handoff passes sample batches from one producer to one consumer through a
// single buffer. A producer that gets ahead overwrites the pending batch
// instead of queueing. The consumer takes a batch with Next and returns it
// with Done once it has been decoded.
type Handoff struct {
	mu   sync.Mutex
	cond *sync.Cond

	batchSize int
	buf       []byte // tail followed by the current batch
	full      bool
	busy      bool // consumer holds a batch
	closed    bool

	published uint64
	dropped   uint64
}

// NewHandoff creates a handoff for batches of batchSize bytes; zero means
// DefaultBatchSize.
func NewHandoff(batchSize int) *Handoff {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	h := &Handoff{
		batchSize: batchSize,
		buf:       make([]byte, TailBytes+batchSize),
	}
	for i := range h.buf {
		h.buf[i] = zeroLevel
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// BatchSize returns the size of one batch in bytes.
func (h *Handoff) BatchSize() int {
	return h.batchSize
}

// Publish stores a batch for the consumer without waiting. A batch still
// pending is overwritten and counted as dropped.
func (h *Handoff) Publish(batch []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.full {
		h.dropped++
	}
	h.storeLocked(batch)
	return nil
}

// PublishWait stores a batch once the consumer has taken the previous one
// and finished with it.
func (h *Handoff) PublishWait(ctx context.Context, batch []byte) error {
	stop := context.AfterFunc(ctx, h.wake)
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	for (h.full || h.busy) && !h.closed && ctx.Err() == nil {
		h.cond.Wait()
	}
	if h.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.storeLocked(batch)
	return nil
}

func (h *Handoff) storeLocked(batch []byte) {
	// carry the end of the previous batch forward
	copy(h.buf, h.buf[h.batchSize:])

	n := copy(h.buf[TailBytes:], batch)
	for i := TailBytes + n; i < len(h.buf); i++ {
		h.buf[i] = zeroLevel
	}

	h.full = true
	h.published++
	h.cond.Broadcast()
}

// Next blocks until a batch is available and the previous one has been
// returned with Done, then hands out a private copy preceded by the retained
// tail. After Close, a pending batch is still delivered before ErrClosed.
func (h *Handoff) Next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, h.wake)
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	for ctx.Err() == nil && !(h.full && !h.busy) && !(h.closed && !h.full) {
		h.cond.Wait()
	}
	if !h.full || h.busy {
		if h.closed && !h.full {
			return nil, ErrClosed
		}
		return nil, ctx.Err()
	}

	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	h.full = false
	h.busy = true
	h.cond.Broadcast()
	return out, nil
}

// Done tells the handoff the consumer has finished with the batch returned by
// the last Next.
func (h *Handoff) Done() {
	h.mu.Lock()
	h.busy = false
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Close marks the end of input and wakes both sides.
func (h *Handoff) Close() {
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Closed reports whether Close has been called.
func (h *Handoff) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Counters returns how many batches were published and how many of those
// were overwritten before the consumer took them.
func (h *Handoff) Counters() (published, dropped uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published, h.dropped
}

func (h *Handoff) wake() {
	h.mu.Lock()
	h.cond.Broadcast()
	h.mu.Unlock()
}
