// Package stm is the Simplified Timing Model back-end: a
// reservation-station-per-port out-of-order scheduler. Each port holds a
// bounded set of dispatched-but-not-yet-issued uops; every cycle it
// picks the oldest uop whose operands are all valid and issues it to
// that port's functional unit.
//
// The occupied-slot bitmap and CTZ-driven allocation are the same idiom
// internal/oracle/freepool.go uses; age-based oldest-wins selection
// generalizes an "Age = slot index, producer.Age > consumer.Age" rule
// from a fixed-depth window to a per-port station sized from config. A
// port's in-flight ops are kept in a completion-time-ordered binary
// min-heap, not a linear scan, so Tick only ever looks at the soonest
// completion.
package stm

import (
	"container/heap"
	"math/bits"

	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/exec"
	"github.com/supracore/xsim/internal/recovery"
	"github.com/supracore/xsim/internal/uop"
)

var _ exec.Backend = (*Backend)(nil)

const stationCapacity = 64

// Port is one execution port's reservation station plus its in-flight
// completion list.
type Port struct {
	classes []uop.FUClass

	occupied uint64
	slots    [stationCapacity]*uop.Uop
	ages     [stationCapacity]uint64

	latency   map[uop.FUClass]int
	issueRate map[uop.FUClass]int
	busyUntil uop.Tick

	inflight inflightHeap
}

type inflightOp struct {
	u        *uop.Uop
	actionID uint64
	fireAt   uop.Tick // pipe_exit_time: the cycle this op completes
}

// inflightHeap orders a port's in-flight ops by fireAt, keyed as a
// binary min-heap via container/heap so the soonest completion is
// always the root.
type inflightHeap []inflightOp

func (h inflightHeap) Len() int            { return len(h) }
func (h inflightHeap) Less(i, j int) bool  { return h[i].fireAt < h[j].fireAt }
func (h inflightHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *inflightHeap) Push(x any)          { *h = append(*h, x.(inflightOp)) }
func (h *inflightHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// insert pushes a newly-issued op in heap order; remove pops and
// returns the root, the completion due soonest.
func (h *inflightHeap) insert(op inflightOp) { heap.Push(h, op) }
func (h *inflightHeap) remove() inflightOp   { return heap.Pop(h).(inflightOp) }

// Backend is the full set of execution ports for one core.
type Backend struct {
	ports    []*Port
	ageClock uint64
}

// New builds a Backend from cfg.PortFUs/cfg.FUs.
func New(cfg *config.Config) *Backend {
	fuInfo := make(map[uop.FUClass]config.FUConfig, len(cfg.FUs))
	for _, fu := range cfg.FUs {
		fuInfo[uop.FUClass(fu.Class)] = fu
	}
	b := &Backend{ports: make([]*Port, len(cfg.PortFUs))}
	for i, classes := range cfg.PortFUs {
		p := &Port{
			latency:   make(map[uop.FUClass]int),
			issueRate: make(map[uop.FUClass]int),
		}
		for _, c := range classes {
			uc := uop.FUClass(c)
			p.classes = append(p.classes, uc)
			if info, ok := fuInfo[uc]; ok {
				p.latency[uc] = info.Latency
				p.issueRate[uc] = info.IssueRate
			} else {
				p.latency[uc] = 1
				p.issueRate[uc] = 1
			}
		}
		b.ports[i] = p
	}
	return b
}

// Dispatchable reports whether some port able to run u's FU class has a
// free reservation-station slot.
func (b *Backend) Dispatchable(u *uop.Uop) bool {
	for _, p := range b.ports {
		if p.accepts(u.FU) && p.occupied != ^uint64(0) {
			return true
		}
	}
	return false
}

// Dispatch places u into the first port able to execute its FU class
// with a free slot, returning false if none currently has room.
func (b *Backend) Dispatch(u *uop.Uop, cycle uop.Tick) bool {
	for portIdx, p := range b.ports {
		if !p.accepts(u.FU) || p.occupied == ^uint64(0) {
			continue
		}
		idx := bits.TrailingZeros64(^p.occupied)
		p.occupied |= 1 << uint(idx)
		p.slots[idx] = u
		b.ageClock++
		p.ages[idx] = b.ageClock
		u.Port = portIdx
		u.Timing.WhenAllocated = cycle
		return true
	}
	return false
}

func (p *Port) accepts(fu uop.FUClass) bool {
	for _, c := range p.classes {
		if c == fu {
			return true
		}
	}
	return false
}

// operandsReady reports whether every input value of u that has a live
// producer has been produced.
func operandsReady(u *uop.Uop) bool {
	for i := 0; i < u.NumIDeps; i++ {
		if u.IDeps[i] != nil && !u.IValueValid[i] {
			return false
		}
	}
	return true
}

// Tick advances every port by one cycle: first it drains completions
// (propagating values to dependents and discarding stale, squashed
// ones), then it issues at most one new uop per port from among the
// ready, oldest-first candidates in that port's station.
func (b *Backend) Tick(cycle uop.Tick, currentActionID func() uint64) []exec.Complete {
	var done []exec.Complete
	for _, p := range b.ports {
		for len(p.inflight) > 0 && p.inflight[0].fireAt <= cycle {
			op := p.inflight.remove()
			if recovery.Stale(op.actionID, currentActionID()) {
				continue
			}
			op.u.Timing.WhenCompleted = cycle
			op.u.OValueValid = true
			propagate(op.u)
			done = append(done, exec.Complete{Uop: op.u, Cycle: cycle})
		}

		if cycle < p.busyUntil {
			continue
		}
		idx, ok := p.selectOldestReady()
		if !ok {
			continue
		}
		u := p.slots[idx]
		p.occupied &^= 1 << uint(idx)
		p.slots[idx] = nil

		lat := p.latency[u.FU]
		if lat <= 0 {
			lat = 1
		}
		rate := p.issueRate[u.FU]
		if rate <= 0 {
			rate = 1
		}
		u.Timing.WhenIssued = cycle
		u.Timing.WhenExec = cycle
		u.InReadyQ = false
		p.busyUntil = cycle + uop.Tick(rate)
		p.inflight.insert(inflightOp{u: u, actionID: u.ActionID, fireAt: cycle + uop.Tick(lat)})
	}
	return done
}

// selectOldestReady scans this port's occupied slots for the oldest one
// whose operands are all ready, returning its slot index.
func (p *Port) selectOldestReady() (int, bool) {
	best := -1
	var bestAge uint64
	occ := p.occupied
	for occ != 0 {
		idx := bits.TrailingZeros64(occ)
		occ &^= 1 << uint(idx)
		u := p.slots[idx]
		if u == nil || !operandsReady(u) {
			continue
		}
		if best == -1 || p.ages[idx] < bestAge {
			best = idx
			bestAge = p.ages[idx]
		}
	}
	return best, best != -1
}

// propagate pushes a completed uop's output value to every dependent
// uop's matching input slot (odep-edge wakeup).
func propagate(u *uop.Uop) {
	for node := u.ODeps; node != nil; node = node.Next {
		if node.Child == nil || node.OpNum >= uop.MaxIDeps {
			continue
		}
		node.Child.IValues[node.OpNum] = u.OValue
		node.Child.IValueValid[node.OpNum] = true
		if node.Child.Timing.WhenIValReady[node.OpNum] == uop.TickMax {
			node.Child.Timing.WhenIValReady[node.OpNum] = u.Timing.WhenCompleted
		}
	}
}
