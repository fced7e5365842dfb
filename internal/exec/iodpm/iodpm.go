// Package iodpm is the In-Order Detailed Pipeline Model back-end: uops
// issue strictly in program order into fixed-depth payload pipes, one
// per execution port. Unlike stm's reservation stations, a uop here can
// only issue once every uop dispatched before it has already issued, so
// a single long-latency stall at the head blocks everything behind it,
// matching a real in-order core's front-end/back-end coupling.
//
// The fixed-depth shift-register pipe is a bounded array walked every
// cycle, generalized from a combinational one-shot selection to a
// multi-stage AGEN/DL1/WB pipeline sized by the PayloadDepth knob.
package iodpm

import (
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/exec"
	"github.com/supracore/xsim/internal/recovery"
	"github.com/supracore/xsim/internal/uop"
)

var _ exec.Backend = (*Backend)(nil)

// payloadPipe is one port's fixed-depth shift register of in-flight
// uops, indexed by stage: 0 is the entry stage, depth-1 the last.
type payloadPipe struct {
	depth int
	stages []*payloadEntry
}

type payloadEntry struct {
	u        *uop.Uop
	actionID uint64
}

func newPayloadPipe(depth int) *payloadPipe {
	if depth < 1 {
		depth = 1
	}
	return &payloadPipe{depth: depth, stages: make([]*payloadEntry, depth)}
}

func (p *payloadPipe) full() bool { return p.stages[0] != nil }

func (p *payloadPipe) push(e *payloadEntry) { p.stages[0] = e }

// advance shifts every stage toward completion by one slot, returning
// whatever fell off the far end (nil if the pipe was empty there).
func (p *payloadPipe) advance() *payloadEntry {
	out := p.stages[p.depth-1]
	for i := p.depth - 1; i > 0; i-- {
		p.stages[i] = p.stages[i-1]
	}
	p.stages[0] = nil
	return out
}

// Port binds a set of FU classes to one payload pipe.
type Port struct {
	classes []uop.FUClass
	latency map[uop.FUClass]int
	pipe    *payloadPipe
}

func (p *Port) accepts(fu uop.FUClass) bool {
	for _, c := range p.classes {
		if c == fu {
			return true
		}
	}
	return false
}

// Backend is the full in-order back-end: one program-order issue queue
// feeding the ports' payload pipes.
type Backend struct {
	ports []*Port
	queue []*uop.Uop
}

// New builds a Backend. Every port gets a pipe cfg.PayloadDepth deep.
func New(cfg *config.Config) *Backend {
	fuInfo := make(map[uop.FUClass]config.FUConfig, len(cfg.FUs))
	for _, fu := range cfg.FUs {
		fuInfo[uop.FUClass(fu.Class)] = fu
	}
	b := &Backend{}
	for _, classes := range cfg.PortFUs {
		p := &Port{latency: make(map[uop.FUClass]int), pipe: newPayloadPipe(cfg.PayloadDepth)}
		for _, c := range classes {
			uc := uop.FUClass(c)
			p.classes = append(p.classes, uc)
			if info, ok := fuInfo[uc]; ok {
				p.latency[uc] = info.Latency
			} else {
				p.latency[uc] = 1
			}
		}
		b.ports = append(b.ports, p)
	}
	return b
}

// Dispatch appends u to the in-order issue queue; the caller (the
// timing model's allocate stage) is responsible for ROB/LDQ/STQ
// admission before calling this — iodpm's queue is unbounded, so
// Dispatch always succeeds; structural capacity is the caller's
// problem, not the back-end's.
func (b *Backend) Dispatch(u *uop.Uop, cycle uop.Tick) bool {
	u.Timing.WhenAllocated = cycle
	b.queue = append(b.queue, u)
	return true
}

var _ exec.FusedStoreDispatcher = (*Backend)(nil)

// DispatchFusedST injects a fused store-address/store-data pair straight
// into their respective ports' payload pipes, bypassing the program-order
// issue queue entirely. It fails, injecting neither half, unless both
// target ports currently have a free pipe slot — a fused pair must enter
// together or not at all, since issuing only the STA would let the STD
// fall out of fusion's shared-STQ-slot lockstep with it.
func (b *Backend) DispatchFusedST(sta, std *uop.Uop, cycle uop.Tick) bool {
	staIdx, staPort := b.portIndexFor(sta.FU)
	stdIdx, stdPort := b.portIndexFor(std.FU)
	if staPort == nil || stdPort == nil || staPort.pipe.full() || stdPort.pipe.full() {
		return false
	}
	for _, u := range [2]*uop.Uop{sta, std} {
		u.Timing.WhenAllocated = cycle
		u.Timing.WhenIssued = cycle
		u.Timing.WhenExec = cycle
	}
	sta.Port = staIdx
	std.Port = stdIdx
	staPort.pipe.push(&payloadEntry{u: sta, actionID: sta.ActionID})
	stdPort.pipe.push(&payloadEntry{u: std, actionID: std.ActionID})
	return true
}

func (b *Backend) portIndexFor(fu uop.FUClass) (int, *Port) {
	for i, p := range b.ports {
		if p.accepts(fu) {
			return i, p
		}
	}
	return -1, nil
}

func (b *Backend) portFor(fu uop.FUClass) *Port {
	_, p := b.portIndexFor(fu)
	return p
}

// Tick advances every port's pipe by one stage, then tries to issue the
// queue head: the in-order check succeeds only when the head's operands
// are ready and its target port's pipe has a free entry stage; on
// failure, every uop behind it stalls too, per the package's in-order
// contract.
func (b *Backend) Tick(cycle uop.Tick, currentActionID func() uint64) []exec.Complete {
	var done []exec.Complete
	for _, p := range b.ports {
		if out := p.pipe.advance(); out != nil {
			if recovery.Stale(out.actionID, currentActionID()) {
				continue
			}
			out.u.Timing.WhenCompleted = cycle
			out.u.OValueValid = true
			propagate(out.u)
			done = append(done, exec.Complete{Uop: out.u, Cycle: cycle})
		}
	}

	if len(b.queue) == 0 {
		return done
	}
	head := b.queue[0]
	port := b.portFor(head.FU)
	if port == nil || port.pipe.full() || !operandsReady(head) {
		return done
	}
	b.queue = b.queue[1:]
	head.Timing.WhenIssued = cycle
	head.Timing.WhenExec = cycle
	port.pipe.push(&payloadEntry{u: head, actionID: head.ActionID})
	return done
}

// DrainYoungerThan removes every queued-but-not-yet-issued uop whose
// owning Mop sequence is strictly greater than seq, for PipeRecover/
// PipeFlush — uops already inside a payload pipe are left for Tick's
// normal action_id staleness check to discard.
func (b *Backend) DrainYoungerThan(seq uint64) {
	kept := b.queue[:0]
	for _, u := range b.queue {
		if u.Mop.Seq <= seq {
			kept = append(kept, u)
		}
	}
	b.queue = kept
}

func operandsReady(u *uop.Uop) bool {
	for i := 0; i < u.NumIDeps; i++ {
		if u.IDeps[i] != nil && !u.IValueValid[i] {
			return false
		}
	}
	return true
}

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
