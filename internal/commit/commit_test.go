package commit

// ═══════════════════════════════════════════════════════════════════════
// Commit stage
// ───────────────────────────────────────────────────────────────────────
// WHAT WE'RE TESTING:
// The in-order retirement state machine: a Mop only retires once every
// uop has completed, a store holds the ROB slot open until its STQ entry
// has its data resolved, and a branch mispredict's jeclear_delay blocks
// commit entirely until it elapses.
// ═══════════════════════════════════════════════════════════════════════

import (
	"testing"

	"github.com/supracore/xsim/internal/bpred"
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/feeder"
	"github.com/supracore/xsim/internal/feeder/fake"
	"github.com/supracore/xsim/internal/ldqstq"
	"github.com/supracore/xsim/internal/oracle"
	"github.com/supracore/xsim/internal/uop"
	"github.com/supracore/xsim/internal/v2p"
)

func mkRecord(pc, npc uint64, taken bool, tpc uint64) feeder.Record {
	r := feeder.Record{PC: pc, NPC: npc, TPC: tpc, BrTaken: taken, Real: true, Valid: true}
	r.InsLen = copy(r.Ins[:], []byte{0x90})
	return r
}

func newOracleWithRecords(t *testing.T, recs ...feeder.Record) *oracle.Oracle {
	t.Helper()
	feed := fake.New(recs...)
	pred := bpred.NewStatic()
	space := v2p.New(1 << 10)
	return oracle.New(feed, pred, space, 0, 32, 128, config.Default())
}

// completeAllReady marks every uop of the MopQ head as completed, as if
// the execution back-end finished them all instantly — commit tests
// don't need a real back-end, only Mops that are ready to retire.
func completeAllReady(o *oracle.Oracle) {
	m := o.MopQ().Head()
	for m != nil {
		m.CompleteIndex = m.FlowLength
		// MopQueue has no "next" walk exposed beyond Head/Tail, and
		// commit only ever looks at Head, so marking Head alone per
		// Tick call is sufficient for these single/few-Mop scenarios.
		break
	}
}

func TestTick_RetiresNonControlMop(t *testing.T) {
	cfg := config.Default()
	o := newOracleWithRecords(t, mkRecord(0x1000, 0x1004, false, 0))
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	if _, _, err := o.Exec(0, false); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	completeAllReady(o)

	retired, reason, err := s.Tick(o, 0)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(retired) != 1 {
		t.Fatalf("retired = %d, want 1 (reason=%v)", len(retired), reason)
	}
}

func TestTick_NotCompleteBlocksRetirement(t *testing.T) {
	cfg := config.Default()
	o := newOracleWithRecords(t, mkRecord(0x1000, 0x1004, false, 0))
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	o.Exec(0, false)
	// Deliberately do not mark CompleteIndex == FlowLength.

	retired, reason, err := s.Tick(o, 0)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(retired) != 0 || reason != ReasonNotComplete {
		t.Fatalf("retired=%d reason=%v, want (0, ReasonNotComplete)", len(retired), reason)
	}
}

func TestTick_EmptyMopQ(t *testing.T) {
	cfg := config.Default()
	o := newOracleWithRecords(t)
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	retired, reason, err := s.Tick(o, 0)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(retired) != 0 || reason != ReasonEmpty {
		t.Fatalf("retired=%d reason=%v, want (0, ReasonEmpty)", len(retired), reason)
	}
}

func TestTick_JeclearInflightBlocksCommitEntirely(t *testing.T) {
	cfg := config.Default()
	cfg.JeclearDelay = 3
	o := newOracleWithRecords(t, mkRecord(0x1000, 0x1004, false, 0))
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	o.Exec(0, false)
	completeAllReady(o)
	s.NoteRecovery(0) // jeclearUntil = 3

	retired, reason, err := s.Tick(o, 1)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(retired) != 0 || reason != ReasonJeclearInflight {
		t.Fatalf("retired=%d reason=%v, want (0, ReasonJeclearInflight) at cycle 1 < jeclearUntil 3", len(retired), reason)
	}

	retired, _, err = s.Tick(o, 3)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(retired) != 1 {
		t.Fatalf("retired at cycle 3 (== jeclearUntil) = %d, want 1", len(retired))
	}
}

func TestTick_BlockedOnSeniorStore(t *testing.T) {
	cfg := config.Default()
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	m := &uop.Mop{Seq: 1, FlowLength: 1, CompleteIndex: 1}
	st := uop.NewUop(m)
	st.Flags |= uop.FlagIsSTA
	m.Uops = []*uop.Uop{st}

	idx, ok := ldq.AllocateStore(st, 8)
	if !ok {
		t.Fatal("AllocateStore failed")
	}
	st.STQIndex = idx
	// STD deliberately left unresolved (DataValid == false).

	if !blockedOnSeniorStore(m, ldq) {
		t.Fatal("blockedOnSeniorStore: want true when the STQ entry's data hasn't resolved")
	}

	ldq.ResolveSTD(idx)
	if blockedOnSeniorStore(m, ldq) {
		t.Fatal("blockedOnSeniorStore: want false once STD resolves")
	}
}

func TestWatchdog_FiresPastDeadlockThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.DeadlockThreshold = 10
	ldq := ldqstq.New(cfg)
	s := New(cfg, ldq)

	if err := s.Watchdog(5); err != nil {
		t.Fatalf("Watchdog at cycle 5 (within threshold of 0): %v", err)
	}
	if err := s.Watchdog(11); err == nil {
		t.Fatal("Watchdog at cycle 11 (past threshold of 0+10): want deadlock error")
	}
}

func TestReason_String(t *testing.T) {
	cases := map[Reason]string{
		ReasonNone:           "NONE",
		ReasonEmpty:          "EMPTY",
		ReasonNotComplete:    "NOT_COMPLETE",
		ReasonSTQSenior:      "STQ_SENIOR_STALL",
		ReasonWidthExhausted: "WIDTH_EXHAUSTED",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", r, got, want)
		}
	}
}
