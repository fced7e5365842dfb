// Package ldqstq is the load queue / store queue: per-load forwarding
// search against older in-flight stores, and the memory-order nuke
// check a late-resolving store address runs against younger loads that
// already executed without seeing it.
//
// Entries live in fixed-capacity rings sized from config, mirroring
// internal/oracle's MopQueue ring shape; age is the ring's program
// order, so a forwarding search always walks from the youngest store
// older than the load back toward the oldest live store.
package ldqstq

import (
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/uop"
)

// Overlap classifies how a load's address range relates to a store's.
type Overlap int

const (
	OverlapNone Overlap = iota
	OverlapExact
	OverlapPartial
	OverlapUnknown // one side's address isn't resolved yet
)

func classify(loadAddr uint64, loadSize int, storeAddr uint64, storeSize int, storeAddrValid bool) Overlap {
	if !storeAddrValid {
		return OverlapUnknown
	}
	lo, lend := loadAddr, loadAddr+uint64(loadSize)
	so, send := storeAddr, storeAddr+uint64(storeSize)
	if lend <= so || send <= lo {
		return OverlapNone
	}
	if lo == so && loadSize == storeSize {
		return OverlapExact
	}
	return OverlapPartial
}

// LDEntry is one live load-queue entry.
type LDEntry struct {
	U         *uop.Uop
	Addr      uint64
	Size      int
	AddrValid bool
	Issued    bool // sent to the cache hierarchy (or forwarded) at least once
	Split     bool // crosses a cache-line boundary
	age       uint64
}

// STEntry is one live store-queue entry, split into its STA (address)
// and STD (data) halves, each independently resolved.
type STEntry struct {
	U          *uop.Uop
	Addr       uint64
	Size       int
	AddrValid  bool // STA resolved
	DataValid  bool // STD resolved
	Senior     bool // retired, now draining to the cache hierarchy
	age        uint64
}

// Queue holds one core's LDQ and STQ.
type Queue struct {
	loads  []*LDEntry
	ldHead, ldTail, ldNum int

	stores []*STEntry
	stHead, stTail, stNum int

	policy   config.MemDepPolicy
	ageClock uint64
}

func New(cfg *config.Config) *Queue {
	return &Queue{
		loads:  make([]*LDEntry, cfg.LDQSize),
		stores: make([]*STEntry, cfg.STQSize),
		policy: cfg.MemDep,
	}
}

func (q *Queue) LDFull() bool { return q.ldNum == len(q.loads) }
func (q *Queue) STFull() bool { return q.stNum == len(q.stores) }
func (q *Queue) LDNum() int   { return q.ldNum }
func (q *Queue) STNum() int   { return q.stNum }

// AllocateLoad admits a load uop into the LDQ, returning its index, or
// false on structural overflow.
func (q *Queue) AllocateLoad(u *uop.Uop, addr uint64, size int, split bool) (int, bool) {
	if q.LDFull() {
		return -1, false
	}
	idx := q.ldTail
	q.ageClock++
	q.loads[idx] = &LDEntry{U: u, Addr: addr, Size: size, AddrValid: addr != 0, Split: split, age: q.ageClock}
	q.ldTail = (q.ldTail + 1) % len(q.loads)
	q.ldNum++
	u.LDQIndex = idx
	return idx, true
}

// AllocateStore admits a store's STA/STD pair into the STQ.
func (q *Queue) AllocateStore(u *uop.Uop, size int) (int, bool) {
	if q.STFull() {
		return -1, false
	}
	idx := q.stTail
	q.ageClock++
	q.stores[idx] = &STEntry{U: u, Size: size, age: q.ageClock}
	q.stTail = (q.stTail + 1) % len(q.stores)
	q.stNum++
	u.STQIndex = idx
	return idx, true
}

func (q *Queue) Load(idx int) *LDEntry  { return q.loads[idx] }
func (q *Queue) Store(idx int) *STEntry { return q.stores[idx] }

// ResolveSTA records a store's computed address. It only updates the
// entry: loads older than this store are never at risk, and the younger
// loads (allocated after it) that may have executed without seeing it
// are found by DetectNukes below.
func (q *Queue) ResolveSTA(idx int, addr uint64) {
	q.stores[idx].Addr = addr
	q.stores[idx].AddrValid = true
}

func (q *Queue) ResolveSTD(idx int) { q.stores[idx].DataValid = true }

func (q *Queue) MarkSenior(idx int) { q.stores[idx].Senior = true }

// CheckLoadIssueConditions walks the STQ from the youngest store older
// than ld back to the oldest live store. It returns whether the load
// may issue this cycle, and if a store can fully forward its data,
// that store's entry.
func (q *Queue) CheckLoadIssueConditions(ld *LDEntry) (canIssue bool, forwardFrom *STEntry, block Overlap) {
	var candidates []*STEntry
	q.eachStore(func(st *STEntry) {
		if st.age < ld.age {
			candidates = append(candidates, st)
		}
	})
	// Walk youngest-first: candidates was built oldest-first, so scan
	// backwards.
	for i := len(candidates) - 1; i >= 0; i-- {
		st := candidates[i]
		ov := classify(ld.Addr, ld.Size, st.Addr, st.Size, st.AddrValid)
		switch ov {
		case OverlapNone:
			continue
		case OverlapExact:
			if st.DataValid {
				return true, st, OverlapNone
			}
			return false, nil, OverlapExact // data not ready yet, load must wait
		case OverlapPartial:
			return false, nil, OverlapPartial // never speculate past a partial overlap
		case OverlapUnknown:
			switch q.policy {
			case config.MemDepAlwaysWait:
				return false, nil, OverlapUnknown
			case config.MemDepAlwaysSpec, config.MemDepStoreSetPred:
				continue // keep scanning older stores; may still nuke later
			}
		}
	}
	return true, nil, OverlapNone
}

// DetectNukes is called after a store's address resolves (ResolveSTA):
// it scans every already-issued younger load for an overlap the load
// executed without seeing, returning the Mop sequence numbers that must
// be squashed via a memory-order nuke. Nuking from the oldest offending
// load is sufficient since a flush squashes everything younger too.
func (q *Queue) DetectNukes(storeIdx int) []uint64 {
	st := q.stores[storeIdx]
	var seqs []uint64
	q.eachLoad(func(ld *LDEntry) {
		if ld.age <= st.age || !ld.Issued {
			return
		}
		if classify(ld.Addr, ld.Size, st.Addr, st.Size, st.AddrValid) != OverlapNone {
			seqs = append(seqs, ld.U.Mop.Seq)
		}
	})
	return seqs
}

// DeallocateLoad frees an LDQ slot; must be the oldest live load, since
// the LDQ drains in commit order.
func (q *Queue) DeallocateLoad() {
	if q.ldNum == 0 {
		return
	}
	q.loads[q.ldHead] = nil
	q.ldHead = (q.ldHead + 1) % len(q.loads)
	q.ldNum--
}

// DeallocateStore frees an STQ slot once its write has drained to the
// cache hierarchy; must be the oldest live, Senior store.
func (q *Queue) DeallocateStore() {
	if q.stNum == 0 {
		return
	}
	q.stores[q.stHead] = nil
	q.stHead = (q.stHead + 1) % len(q.stores)
	q.stNum--
}

// DropYoungerThan discards every LDQ/STQ entry whose uop's Mop sequence
// is greater than seq — used by PipeRecover/PipeFlush.
func (q *Queue) DropYoungerThan(seq uint64) {
	newLoads := make([]*LDEntry, 0, q.ldNum)
	q.eachLoad(func(ld *LDEntry) {
		if ld.U.Mop.Seq <= seq {
			newLoads = append(newLoads, ld)
		}
	})
	q.resetLoads(newLoads)

	newStores := make([]*STEntry, 0, q.stNum)
	q.eachStore(func(st *STEntry) {
		if st.U.Mop.Seq <= seq {
			newStores = append(newStores, st)
		}
	})
	q.resetStores(newStores)
}

func (q *Queue) resetLoads(kept []*LDEntry) {
	for i := range q.loads {
		q.loads[i] = nil
	}
	q.ldHead, q.ldTail, q.ldNum = 0, 0, 0
	for _, ld := range kept {
		q.loads[q.ldTail] = ld
		q.ldTail = (q.ldTail + 1) % len(q.loads)
		q.ldNum++
	}
}

func (q *Queue) resetStores(kept []*STEntry) {
	for i := range q.stores {
		q.stores[i] = nil
	}
	q.stHead, q.stTail, q.stNum = 0, 0, 0
	for _, st := range kept {
		q.stores[q.stTail] = st
		q.stTail = (q.stTail + 1) % len(q.stores)
		q.stNum++
	}
}

func (q *Queue) eachLoad(fn func(*LDEntry)) {
	idx := q.ldHead
	for i := 0; i < q.ldNum; i++ {
		fn(q.loads[idx])
		idx = (idx + 1) % len(q.loads)
	}
}

func (q *Queue) eachStore(fn func(*STEntry)) {
	idx := q.stHead
	for i := 0; i < q.stNum; i++ {
		fn(q.stores[idx])
		idx = (idx + 1) % len(q.stores)
	}
}

// Repeater is the optional helix/critical-section load-forwarding fast
// path: a producer-side cache that can answer a load before the normal
// cache hierarchy does, raced against DL1 when RepeaterParallelDL1 is
// set.
type Repeater interface {
	Enqueuable(addr uint64) bool
	Enqueue(addr uint64, actionID uint64, done func(data []byte, actionID uint64)) bool
}

// NoopRepeater is the default Repeater when the RepeaterEnabled knob is
// off: nothing is ever enqueuable, so callers always fall back to the
// normal cache path.
type NoopRepeater struct{}

func (NoopRepeater) Enqueuable(uint64) bool { return false }
func (NoopRepeater) Enqueue(uint64, uint64, func([]byte, uint64)) bool { return false }
