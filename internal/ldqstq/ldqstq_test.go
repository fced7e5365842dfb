package ldqstq

// ═══════════════════════════════════════════════════════════════════════
// Load queue / store queue
// ───────────────────────────────────────────────────────────────────────
// WHAT WE'RE TESTING:
// Store-to-load forwarding (exact overlap, data not ready yet, partial
// overlap never speculated past) and the memory-order nuke: a store
// resolving its address after a younger load already executed without
// seeing it must be caught and reported for a pipe flush.
// ═══════════════════════════════════════════════════════════════════════

import (
	"testing"

	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/uop"
)

func newMop(seq uint64) *uop.Mop { return &uop.Mop{Seq: seq} }

func TestCheckLoadIssueConditions_ExactOverlap_DataReady_Forwards(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	stIdx, ok := q.AllocateStore(stU, 8)
	if !ok {
		t.Fatal("AllocateStore failed")
	}
	q.ResolveSTA(stIdx, 0x1000)
	q.ResolveSTD(stIdx)

	ldU := uop.NewUop(newMop(2))
	ldIdx, ok := q.AllocateLoad(ldU, 0x1000, 8, false)
	if !ok {
		t.Fatal("AllocateLoad failed")
	}

	canIssue, fwd, block := q.CheckLoadIssueConditions(q.Load(ldIdx))
	if !canIssue || fwd == nil || fwd != q.Store(stIdx) {
		t.Fatalf("canIssue=%v fwd=%v block=%v, want forward from store", canIssue, fwd, block)
	}
}

func TestCheckLoadIssueConditions_ExactOverlap_DataNotReady_Stalls(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	stIdx, _ := q.AllocateStore(stU, 8)
	q.ResolveSTA(stIdx, 0x2000)
	// STD left unresolved.

	ldU := uop.NewUop(newMop(2))
	ldIdx, _ := q.AllocateLoad(ldU, 0x2000, 8, false)

	canIssue, fwd, block := q.CheckLoadIssueConditions(q.Load(ldIdx))
	if canIssue || fwd != nil || block != OverlapExact {
		t.Fatalf("canIssue=%v fwd=%v block=%v, want (false, nil, OverlapExact)", canIssue, fwd, block)
	}
}

func TestCheckLoadIssueConditions_PartialOverlap_NeverSpeculates(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	stIdx, _ := q.AllocateStore(stU, 8)
	q.ResolveSTA(stIdx, 0x3000)
	q.ResolveSTD(stIdx)

	ldU := uop.NewUop(newMop(2))
	ldIdx, _ := q.AllocateLoad(ldU, 0x3004, 8, false) // overlaps only the tail half

	canIssue, fwd, block := q.CheckLoadIssueConditions(q.Load(ldIdx))
	if canIssue || fwd != nil || block != OverlapPartial {
		t.Fatalf("canIssue=%v fwd=%v block=%v, want (false, nil, OverlapPartial)", canIssue, fwd, block)
	}
}

func TestCheckLoadIssueConditions_UnknownAddr_AlwaysWaitBlocks(t *testing.T) {
	cfg := config.Default()
	cfg.MemDep = config.MemDepAlwaysWait
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	q.AllocateStore(stU, 8) // address never resolved

	ldU := uop.NewUop(newMop(2))
	ldIdx, _ := q.AllocateLoad(ldU, 0x4000, 8, false)

	canIssue, _, block := q.CheckLoadIssueConditions(q.Load(ldIdx))
	if canIssue || block != OverlapUnknown {
		t.Fatalf("canIssue=%v block=%v, want (false, OverlapUnknown) under always-wait", canIssue, block)
	}
}

func TestCheckLoadIssueConditions_UnknownAddr_AlwaysSpecProceeds(t *testing.T) {
	cfg := config.Default()
	cfg.MemDep = config.MemDepAlwaysSpec
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	q.AllocateStore(stU, 8) // address never resolved

	ldU := uop.NewUop(newMop(2))
	ldIdx, _ := q.AllocateLoad(ldU, 0x4000, 8, false)

	canIssue, _, _ := q.CheckLoadIssueConditions(q.Load(ldIdx))
	if !canIssue {
		t.Fatal("always-spec must let the load issue speculatively past an unresolved store address")
	}
}

func TestDetectNukes_YoungerIssuedLoadOverlapsLateResolvedStore(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	stU := uop.NewUop(newMop(5))
	stIdx, _ := q.AllocateStore(stU, 8) // store allocated first, address unresolved

	ldU := uop.NewUop(newMop(6))
	ldIdx, _ := q.AllocateLoad(ldU, 0x5000, 8, false) // younger load, speculatively issues
	q.Load(ldIdx).Issued = true

	q.ResolveSTA(stIdx, 0x5000) // now resolves to the same address

	nukes := q.DetectNukes(stIdx)
	if len(nukes) != 1 || nukes[0] != 6 {
		t.Fatalf("DetectNukes = %v, want [6]", nukes)
	}
}

func TestDetectNukes_OlderLoadNeverFlagged(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	ldU := uop.NewUop(newMop(1))
	ldIdx, _ := q.AllocateLoad(ldU, 0x6000, 8, false)
	q.Load(ldIdx).Issued = true

	stU := uop.NewUop(newMop(2))
	stIdx, _ := q.AllocateStore(stU, 8) // younger store
	q.ResolveSTA(stIdx, 0x6000)

	nukes := q.DetectNukes(stIdx)
	if len(nukes) != 0 {
		t.Fatalf("DetectNukes = %v, want none: the load is older than the store", nukes)
	}
}

func TestDetectNukes_NotIssuedLoadNeverFlagged(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	stU := uop.NewUop(newMop(1))
	stIdx, _ := q.AllocateStore(stU, 8)

	ldU := uop.NewUop(newMop(2))
	ldIdx, _ := q.AllocateLoad(ldU, 0x7000, 8, false)
	_ = ldIdx // deliberately left Issued=false: hasn't executed yet, nothing to nuke

	q.ResolveSTA(stIdx, 0x7000)

	if nukes := q.DetectNukes(stIdx); len(nukes) != 0 {
		t.Fatalf("DetectNukes = %v, want none: load never issued", nukes)
	}
}

func TestDropYoungerThan_PurgesBothQueuesAndPreservesOrder(t *testing.T) {
	cfg := config.Default()
	q := New(cfg)

	for seq := uint64(1); seq <= 4; seq++ {
		u := uop.NewUop(newMop(seq))
		q.AllocateLoad(u, 0x1000*seq, 8, false)
	}
	q.DropYoungerThan(2)

	if q.LDNum() != 2 {
		t.Fatalf("LDNum after drop = %d, want 2", q.LDNum())
	}
	var seqs []uint64
	q.eachLoad(func(ld *LDEntry) { seqs = append(seqs, ld.U.Mop.Seq) })
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("surviving load seqs = %v, want [1 2] in order", seqs)
	}
}

func TestAllocateLoad_StructuralOverflow(t *testing.T) {
	cfg := config.Default()
	cfg.LDQSize = 2
	q := New(cfg)

	for i := 0; i < 2; i++ {
		if _, ok := q.AllocateLoad(uop.NewUop(newMop(uint64(i))), 0x100, 4, false); !ok {
			t.Fatalf("AllocateLoad %d: want success before LDQ is full", i)
		}
	}
	if _, ok := q.AllocateLoad(uop.NewUop(newMop(9)), 0x100, 4, false); ok {
		t.Fatal("AllocateLoad on a full LDQ must report structural overflow")
	}
}

func TestNoopRepeater_NeverEnqueuable(t *testing.T) {
	var r Repeater = NoopRepeater{}
	if r.Enqueuable(0x1000) {
		t.Fatal("NoopRepeater must never claim an address is enqueuable")
	}
	if r.Enqueue(0x1000, 1, nil) {
		t.Fatal("NoopRepeater.Enqueue must always fail")
	}
}
