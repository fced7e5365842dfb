// Package memsim is a deterministic in-memory stand-in for the opaque
// cache.Controller/cache.TLB contract: fake the opaque external
// dependency with a small RAM-backed model, used for unit tests and the
// cmd/xsim-core demo rather than a production cache hierarchy.
package memsim

import (
	"github.com/supracore/xsim/internal/cache"
)

const LineSize = 64

// Controller is a fixed-latency, fixed-MSHR-count cache level over a flat
// byte array. Every access completes exactly Latency cycles after it is
// enqueued; there is no notion of hit/miss beyond that fixed latency,
// which is enough to drive the execute stage's split-access and
// action_id-mismatch paths without modeling real cache behavior.
type Controller struct {
	Latency  int
	MSHRSlots int

	mem []byte

	inflight []pending
}

type pending struct {
	op          cache.Op
	addr        uint64
	actionID    uint64
	uopToken    interface{}
	isSplit     bool
	done        cache.Callback
	getActionID cache.ActionIDFunc
	fireAt      int // cycles remaining
}

func New(sizeBytes int, latency, mshrSlots int) *Controller {
	return &Controller{
		Latency:   latency,
		MSHRSlots: mshrSlots,
		mem:       make([]byte, sizeBytes),
	}
}

func (c *Controller) Enqueuable(op cache.Op, asid uint32, addr uint64) bool {
	return len(c.inflight) < c.MSHRSlots
}

func (c *Controller) Enqueue(op cache.Op, asid uint32, pc, addr uint64, actionID uint64, uopToken interface{}, isSplit bool, done cache.Callback, getActionID cache.ActionIDFunc) bool {
	if !c.Enqueuable(op, asid, addr) {
		return false
	}
	c.inflight = append(c.inflight, pending{
		op: op, addr: addr, actionID: actionID, uopToken: uopToken,
		isSplit: isSplit, done: done, getActionID: getActionID,
		fireAt: c.Latency,
	})
	return true
}

// Process advances every in-flight access by one cycle, firing callbacks
// whose latency has elapsed. A callback whose uop's current action_id no
// longer matches the tag it was issued under is still invoked: discarding
// is the callback's job (action_id mismatch means silent discard), not
// the controller's.
func (c *Controller) Process() {
	remaining := c.inflight[:0]
	for _, p := range c.inflight {
		p.fireAt--
		if p.fireAt > 0 {
			remaining = append(remaining, p)
			continue
		}
		cur := p.getActionID(p.uopToken)
		p.done(p.uopToken, p.actionID, c.Latency)
		_ = cur // the callback itself compares cur vs p.actionID; see exec package
	}
	c.inflight = remaining
}

// Read/Write give the demo CLI and tests a way to seed/inspect memory
// state directly, bypassing the timing model.
func (c *Controller) Read(addr uint64, size int) []byte {
	if int(addr)+size > len(c.mem) {
		return make([]byte, size)
	}
	out := make([]byte, size)
	copy(out, c.mem[addr:int(addr)+size])
	return out
}

func (c *Controller) Write(addr uint64, data []byte) {
	if int(addr)+len(data) > len(c.mem) {
		return
	}
	copy(c.mem[addr:], data)
}

// TLB is a fixed-latency translation stand-in: every lookup succeeds
// after Latency cycles by firing its callback. No physical address is
// computed or returned; this is enough to exercise the DTLB
// enqueue/callback contract.
type TLB struct {
	Latency   int
	MSHRSlots int
	inflight  []tlbPending
}

type tlbPending struct {
	addr        uint64
	actionID    uint64
	uopToken    interface{}
	done        cache.Callback
	getActionID cache.ActionIDFunc
	fireAt      int
}

func NewTLB(latency, mshrSlots int) *TLB {
	return &TLB{Latency: latency, MSHRSlots: mshrSlots}
}

func (t *TLB) Enqueuable(asid uint32, addr uint64) bool {
	return len(t.inflight) < t.MSHRSlots
}

func (t *TLB) Enqueue(asid uint32, addr uint64, actionID uint64, uopToken interface{}, done cache.Callback, getActionID cache.ActionIDFunc) bool {
	if !t.Enqueuable(asid, addr) {
		return false
	}
	t.inflight = append(t.inflight, tlbPending{addr: addr, actionID: actionID, uopToken: uopToken, done: done, getActionID: getActionID, fireAt: t.Latency})
	return true
}

func (t *TLB) Process() {
	remaining := t.inflight[:0]
	for _, p := range t.inflight {
		p.fireAt--
		if p.fireAt > 0 {
			remaining = append(remaining, p)
			continue
		}
		p.done(p.uopToken, p.actionID, t.Latency)
	}
	t.inflight = remaining
}
