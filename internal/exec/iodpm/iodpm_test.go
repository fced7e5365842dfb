package iodpm

// ═══════════════════════════════════════════════════════════════════════
// In-Order Detailed Pipeline Model back-end
// ───────────────────────────────────────────────────────────────────────
// WHAT WE'RE TESTING:
// Strict program-order issue: a uop whose operands aren't ready blocks
// everything dispatched after it, even a younger uop that's otherwise
// ready to go — the defining difference from stm's out-of-order
// reservation stations. DrainYoungerThan must also proactively remove
// not-yet-issued uops on recovery, since the in-order queue would
// otherwise deadlock behind one whose producer was undone.
// ═══════════════════════════════════════════════════════════════════════

import (
	"testing"

	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/uop"
)

func currentID(id uint64) func() uint64 { return func() uint64 { return id } }

func newCfg(payloadDepth int) *config.Config {
	cfg := config.Default()
	cfg.PayloadDepth = payloadDepth
	return cfg
}

func TestDispatch_AlwaysSucceeds(t *testing.T) {
	b := New(newCfg(1))
	u := uop.NewUop(&uop.Mop{Seq: 1})
	u.FU = uop.FUClass(config.FUInt)
	if !b.Dispatch(u, 0) {
		t.Fatal("iodpm Dispatch must always accept: structural limits are the caller's problem")
	}
}

func TestTick_IssuesHeadAfterPayloadDepthCycles(t *testing.T) {
	b := New(newCfg(1))
	u := uop.NewUop(&uop.Mop{Seq: 1})
	u.FU = uop.FUClass(config.FUInt)
	b.Dispatch(u, 0)

	b.Tick(0, currentID(0)) // issues into the 1-deep pipe
	done := b.Tick(1, currentID(0))
	if len(done) != 1 || done[0].Uop != u {
		t.Fatalf("Tick(1) with PayloadDepth=1: want u to complete, got %+v", done)
	}
}

func TestTick_BlockedHeadStallsYoungerQueuedUop(t *testing.T) {
	b := New(newCfg(1))

	blocked := uop.NewUop(&uop.Mop{Seq: 1})
	blocked.FU = uop.FUClass(config.FUInt)
	blocked.NumIDeps = 1
	blocked.IDeps[0] = uop.NewUop(&uop.Mop{Seq: 0})
	blocked.IValueValid[0] = false

	ready := uop.NewUop(&uop.Mop{Seq: 2})
	ready.FU = uop.FUClass(config.FUInt)

	b.Dispatch(blocked, 0)
	b.Dispatch(ready, 0)

	done := b.Tick(0, currentID(0))
	if len(done) != 0 {
		t.Fatalf("Tick(0): want no completions yet, got %d", len(done))
	}
	if len(b.queue) != 2 {
		t.Fatalf("queue len = %d, want 2: the blocked head must stall the ready uop behind it", len(b.queue))
	}

	// Even once the port's pipe would otherwise have room, the blocked
	// head never issues until its operand resolves, so the ready uop
	// stays stuck behind it.
	done = b.Tick(1, currentID(0))
	if len(done) != 0 || len(b.queue) != 2 {
		t.Fatalf("Tick(1): head still blocked, want queue untouched, got done=%d queue=%d", len(done), len(b.queue))
	}

	blocked.IValueValid[0] = true
	b.Tick(2, currentID(0)) // now the head issues
	if len(b.queue) != 1 || b.queue[0] != ready {
		t.Fatalf("after head unblocks: want only the ready uop left queued, got %d entries", len(b.queue))
	}
}

func TestTick_IssuesAtMostOneUopPerCycle(t *testing.T) {
	b := New(newCfg(1))

	first := uop.NewUop(&uop.Mop{Seq: 1})
	first.FU = uop.FUClass(config.FUInt)
	second := uop.NewUop(&uop.Mop{Seq: 2})
	second.FU = uop.FUClass(config.FUInt)

	b.Dispatch(first, 0)
	b.Dispatch(second, 0)

	b.Tick(0, currentID(0)) // only the head (first) issues this cycle
	if len(b.queue) != 1 || b.queue[0] != second {
		t.Fatalf("after Tick(0): want only second left queued, got %d entries", len(b.queue))
	}
}

func TestDispatchFusedST_InjectsBothHalvesBypassingQueue(t *testing.T) {
	b := New(newCfg(2))

	m := &uop.Mop{Seq: 1}
	sta := uop.NewUop(m)
	sta.FU = uop.FUClass(config.FUStoreAddr)
	std := uop.NewUop(m)
	std.FU = uop.FUClass(config.FUStoreData)
	sta.FusionHead, sta.FusionNext = sta, std
	std.FusionHead = sta

	if !b.DispatchFusedST(sta, std, 0) {
		t.Fatal("DispatchFusedST: want success, both ports empty")
	}
	if len(b.queue) != 0 {
		t.Fatalf("queue len = %d, want 0: a fused pair must never touch the program-order queue", len(b.queue))
	}
	if sta.Port < 0 || std.Port < 0 {
		t.Fatal("DispatchFusedST: want both halves stamped with their port index")
	}

	// PayloadDepth=2: two Ticks should drain both halves.
	done := b.Tick(0, currentID(0))
	if len(done) != 0 {
		t.Fatalf("Tick(0): want no completions yet, got %d", len(done))
	}
	done = b.Tick(1, currentID(0))
	if len(done) != 2 {
		t.Fatalf("Tick(1): want both STA and STD complete, got %d", len(done))
	}
}

func TestDispatchFusedST_FailsWhenEitherPortHasNoRoom(t *testing.T) {
	b := New(newCfg(1))

	m := &uop.Mop{Seq: 1}
	blockerSTA := uop.NewUop(m)
	blockerSTA.FU = uop.FUClass(config.FUStoreAddr)
	b.Dispatch(blockerSTA, 0)
	b.Tick(0, currentID(0)) // occupies the StoreAddr port's one-deep pipe

	sta := uop.NewUop(m)
	sta.FU = uop.FUClass(config.FUStoreAddr)
	std := uop.NewUop(m)
	std.FU = uop.FUClass(config.FUStoreData)
	sta.FusionHead, sta.FusionNext = sta, std
	std.FusionHead = sta

	if b.DispatchFusedST(sta, std, 1) {
		t.Fatal("DispatchFusedST: want failure, StoreAddr port's pipe is still full")
	}
	if sta.Port >= 0 || std.Port >= 0 {
		t.Fatal("DispatchFusedST: a failed injection must leave neither half marked dispatched")
	}
}

func TestDrainYoungerThan_RemovesOnlyQueuedNotYetIssued(t *testing.T) {
	b := New(newCfg(3))

	keep := uop.NewUop(&uop.Mop{Seq: 1})
	keep.FU = uop.FUClass(config.FUInt)
	drop := uop.NewUop(&uop.Mop{Seq: 5})
	drop.FU = uop.FUClass(config.FUInt)

	b.Dispatch(keep, 0)
	b.Dispatch(drop, 0)

	b.DrainYoungerThan(2)

	if len(b.queue) != 1 || b.queue[0] != keep {
		t.Fatalf("DrainYoungerThan(2): want only seq<=2 uops left queued, got %d entries", len(b.queue))
	}
}
