package oracle

import "github.com/supracore/xsim/internal/uop"

// ShadowRecord is the raw feeder record buffered behind the MopQ so that
// speculation can be rolled back without re-consulting the feeder.
type ShadowRecord struct {
	PC, NPC, TPC uint64
	BrTaken      bool
	Speculative  bool
	Real         bool
	Valid        bool
	Asid         uint32
	Ins          [uop.MaxILen]byte
	InsLen       int
}

// MopQueue is a fixed-size ring of in-flight Mops, sized to cover every
// uop across every live pipeline stage (Design Note "Arena for Mops").
// Indices, not pointers, are used for ring positions so a slot is trivial
// to move or snapshot.
type MopQueue struct {
	slots []*uop.Mop
	head  int // oldest live Mop
	tail  int // next free slot
	num   int
	spec  int // MopQNumSpec: count of speculative Mops currently live

	shadow     []ShadowRecord
	shadowHead int
	shadowTail int
	shadowNum  int
}

func NewMopQueue(capacity int) *MopQueue {
	return &MopQueue{
		slots:  make([]*uop.Mop, capacity),
		shadow: make([]ShadowRecord, capacity),
	}
}

func (q *MopQueue) Cap() int { return len(q.slots) }
func (q *MopQueue) Num() int { return q.num }
func (q *MopQueue) SpecNum() int { return q.spec }
func (q *MopQueue) Full() bool { return q.num == len(q.slots) }
func (q *MopQueue) Empty() bool { return q.num == 0 }

// Push enqueues a newly-fetched Mop at the tail. Returns false if the
// MopQ is full (structural overflow — caller must stall fetch).
func (q *MopQueue) Push(m *uop.Mop, speculative bool) bool {
	if q.Full() {
		return false
	}
	q.slots[q.tail] = m
	q.tail = (q.tail + 1) % len(q.slots)
	q.num++
	if speculative {
		q.spec++
	}
	return true
}

// Head returns the oldest live Mop, or nil if empty.
func (q *MopQueue) Head() *uop.Mop {
	if q.Empty() {
		return nil
	}
	return q.slots[q.head]
}

// PopHead frees the MopQ head — called once its last uop has committed.
func (q *MopQueue) PopHead(wasSpeculative bool) {
	if q.Empty() {
		return
	}
	q.slots[q.head] = nil
	q.head = (q.head + 1) % len(q.slots)
	q.num--
	if wasSpeculative {
		q.spec--
	}
}

// Tail returns the youngest live Mop without removing it, or nil if
// empty — used by the oracle's squash walks to test a cutoff before
// popping.
func (q *MopQueue) Tail() *uop.Mop {
	if q.Empty() {
		return nil
	}
	idx := (q.tail - 1 + len(q.slots)) % len(q.slots)
	return q.slots[idx]
}

// PopTail removes the youngest live Mop — used by the oracle's squash
// walks going backwards through the queue.
func (q *MopQueue) PopTail(wasSpeculative bool) *uop.Mop {
	if q.Empty() {
		return nil
	}
	q.tail = (q.tail - 1 + len(q.slots)) % len(q.slots)
	m := q.slots[q.tail]
	q.slots[q.tail] = nil
	q.num--
	if wasSpeculative {
		q.spec--
	}
	return m
}

// Each calls fn(mop) from head to tail in program order.
func (q *MopQueue) Each(fn func(*uop.Mop)) {
	idx := q.head
	for i := 0; i < q.num; i++ {
		fn(q.slots[idx])
		idx = (idx + 1) % len(q.slots)
	}
}

// EachFrom calls fn on every Mop strictly younger than seq, oldest-first.
func (q *MopQueue) EachFrom(seq uint64, fn func(*uop.Mop)) {
	q.Each(func(m *uop.Mop) {
		if m.Seq > seq {
			fn(m)
		}
	})
}

// --- shadow queue -----------------------------------------------------

func (q *MopQueue) ShadowFull() bool { return q.shadowNum == len(q.shadow) }
func (q *MopQueue) ShadowEmpty() bool { return q.shadowNum == 0 }

func (q *MopQueue) PushShadow(r ShadowRecord) bool {
	if q.ShadowFull() {
		return false
	}
	q.shadow[q.shadowTail] = r
	q.shadowTail = (q.shadowTail + 1) % len(q.shadow)
	q.shadowNum++
	return true
}

func (q *MopQueue) ShadowHead() (ShadowRecord, bool) {
	if q.ShadowEmpty() {
		return ShadowRecord{}, false
	}
	return q.shadow[q.shadowHead], true
}

func (q *MopQueue) PopShadowHead() {
	if q.ShadowEmpty() {
		return
	}
	q.shadowHead = (q.shadowHead + 1) % len(q.shadow)
	q.shadowNum--
}

func (q *MopQueue) PopShadowTail() {
	if q.ShadowEmpty() {
		return
	}
	q.shadowTail = (q.shadowTail - 1 + len(q.shadow)) % len(q.shadow)
	q.shadowNum--
}
