package feeder

import (
	"errors"

	"code.hybscloud.com/lfq"
)

// HandshakeBuffer is the lock-free ring between a feeder-side producer
// goroutine and the oracle's consumer side, built directly on
// hayabusa-cloud-lfq's SPSC queue: the one legitimate concurrency seam
// in an otherwise cooperatively single-threaded core. The feeder may be
// reading a trace file or replaying a live process on its own goroutine
// while the core steps cycles.
type HandshakeBuffer struct {
	q *lfq.SPSC[Record]
}

// NewHandshakeBuffer builds a buffer of the given depth (rounded up to a
// power of 2 by lfq.NewSPSC).
func NewHandshakeBuffer(depth int) *HandshakeBuffer {
	return &HandshakeBuffer{q: lfq.NewSPSC[Record](depth)}
}

// Produce is called from the feeder's own goroutine.
func (b *HandshakeBuffer) Produce(r Record) error {
	err := b.q.Enqueue(&r)
	if errors.Is(err, lfq.ErrWouldBlock) {
		return ErrBufferFull
	}
	return err
}

// Consume is called from the core's cycle loop; ErrBufferEmpty signals
// the feeder hasn't produced a record yet this cycle — the caller should
// treat that exactly like a HandshakeNotConsumed retry next cycle.
func (b *HandshakeBuffer) Consume() (Record, error) {
	r, err := b.q.Dequeue()
	if errors.Is(err, lfq.ErrWouldBlock) {
		return Record{}, ErrBufferEmpty
	}
	return r, err
}

var (
	ErrBufferFull  = errors.New("feeder: handshake buffer full")
	ErrBufferEmpty = errors.New("feeder: handshake buffer empty")
)

// BufferedFeeder adapts a HandshakeBuffer's consumer side to the Feeder
// interface, so the oracle can treat a threaded trace replay exactly like
// any other Feeder implementation.
type BufferedFeeder struct {
	buf *HandshakeBuffer
}

func NewBufferedFeeder(buf *HandshakeBuffer) *BufferedFeeder {
	return &BufferedFeeder{buf: buf}
}

func (f *BufferedFeeder) Next(wantSpeculative bool) (Record, error) {
	return f.buf.Consume()
}
