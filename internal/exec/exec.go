// Package exec defines the shared contract both back-end designs (stm,
// iodpm) implement, so internal/core can drive either one identically:
// two alternative back-end designs sharing one coupling surface with
// the oracle and the cache hierarchy.
package exec

import "github.com/supracore/xsim/internal/uop"

// Complete is one uop finishing execution this cycle.
type Complete struct {
	Uop   *uop.Uop
	Cycle uop.Tick
}

// Backend is an execution back-end: something that accepts dispatched
// uops and, cycle by cycle, reports which ones finished.
type Backend interface {
	// Dispatch offers u to the back-end, returning false if it has no
	// room (stm: no free reservation-station slot; iodpm: always true,
	// since its issue queue is unbounded and structural limits are the
	// caller's ROB/LDQ/STQ admission check instead).
	Dispatch(u *uop.Uop, cycle uop.Tick) bool

	// Tick advances the back-end by one cycle and returns every uop that
	// completed, after discarding any whose action_id is now stale.
	Tick(cycle uop.Tick, currentActionID func() uint64) []Complete
}

// Drainer is implemented by back-ends whose queued-but-not-yet-issued
// uops must be proactively dropped on recovery rather than left to the
// action_id staleness check — iodpm's strictly in-order issue queue
// would otherwise deadlock behind a squashed uop whose producer was
// undone and can never become ready.
type Drainer interface {
	DrainYoungerThan(seq uint64)
}

// FusedStoreDispatcher is implemented by back-ends that can inject a
// fused store-address/store-data pair directly into their execution
// ports, bypassing whatever ordinary admission the back-end normally
// imposes on Dispatch (iodpm's program-order issue queue, in
// particular) — a fused STA+STD has both halves resolved together at
// rename, so there is nothing left for that admission check to gate.
// DispatchFusedST returns false if either half's target port has no
// room, in which case neither uop is injected and the caller must fall
// back to the ordinary per-uop Dispatch path.
type FusedStoreDispatcher interface {
	DispatchFusedST(sta, std *uop.Uop, cycle uop.Tick) bool
}
