package oracle

import (
	"math/bits"

	"github.com/supracore/xsim/internal/uop"
)

// FreePool hands out *uop.OdepNode values from a backing arena, tracking
// occupancy with a bitmap instead of a GC free-list — the same
// CTZ-on-inverted-occupancy-bitmap trick a reservation-station scheduler
// uses to find a free slot. Odep edges are created at uop-install and
// destroyed at
// uop-commit or uop-squash (Design Note "Cyclic dependency graph"); this
// pool is what "destroyed" means in Go terms — the node is returned here,
// not garbage collected, so a long-running core doesn't churn the
// allocator once steady state is reached.
// nodes holds *uop.OdepNode, not uop.OdepNode, so growing the pool
// (appending to the outer slice) never relocates an already-handed-out
// node: only the slice of pointers can move, never the pointed-to
// structs other nodes' Next/Child.ODeps fields reference.
type FreePool struct {
	nodes    []*uop.OdepNode
	occupied []uint64 // bit i set = nodes[i] in use
}

const wordBits = 64

// NewFreePool preallocates capacity nodes. capacity should cover every
// odep edge that can be live at once: at most MaxODeps fanout per uop
// times the number of uops that can be in flight (ROB size * average
// flow length), rounded up generously — growth is handled, but sized
// right this allocates once at startup.
func NewFreePool(capacity int) *FreePool {
	words := (capacity + wordBits - 1) / wordBits
	if words == 0 {
		words = 1
	}
	p := &FreePool{
		nodes:    make([]*uop.OdepNode, words*wordBits),
		occupied: make([]uint64, words),
	}
	for i := range p.nodes {
		p.nodes[i] = &uop.OdepNode{}
	}
	return p
}

// Get returns a zeroed node and its index. Grows the arena if every slot
// is occupied — this is the "structural overflow never happens for
// internal bookkeeping" case: odep edges aren't a hardware resource the
// spec bounds, so unlike ROB/LDQ/STQ we grow rather than stall.
func (p *FreePool) Get() (*uop.OdepNode, int) {
	for w := range p.occupied {
		if p.occupied[w] != ^uint64(0) {
			bit := bits.TrailingZeros64(^p.occupied[w])
			idx := w*wordBits + bit
			p.occupied[w] |= 1 << uint(bit)
			*p.nodes[idx] = uop.OdepNode{}
			return p.nodes[idx], idx
		}
	}
	return p.grow()
}

func (p *FreePool) grow() (*uop.OdepNode, int) {
	oldWords := len(p.occupied)
	fresh := make([]*uop.OdepNode, wordBits)
	for i := range fresh {
		fresh[i] = &uop.OdepNode{}
	}
	p.nodes = append(p.nodes, fresh...)
	p.occupied = append(p.occupied, 0)
	idx := oldWords * wordBits
	p.occupied[oldWords] |= 1
	return p.nodes[idx], idx
}

// Put returns a node to the pool by index.
func (p *FreePool) Put(idx int) {
	w, bit := idx/wordBits, idx%wordBits
	p.occupied[w] &^= 1 << uint(bit)
	*p.nodes[idx] = uop.OdepNode{}
}

// InUse reports the number of currently allocated nodes, used by tests
// asserting that install/undo and install/commit are fully symmetric.
func (p *FreePool) InUse() int {
	n := 0
	for _, w := range p.occupied {
		n += bits.OnesCount64(w)
	}
	return n
}
