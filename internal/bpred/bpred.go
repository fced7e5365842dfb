// Package bpred defines the branch-predictor interface the oracle talks
// to. The predictor itself — its internal tables, its training
// algorithm — is an opaque external collaborator; only the Predictor
// interface and the StateHandle shuttle matter to the core.
package bpred

// StateHandle is the "side-table token" Design Note: the predictor owns
// whatever bookkeeping a prediction needs to be trained or undone later;
// the core only ever carries this integer handle from fetch through to
// commit/recover.
type StateHandle int

// NoHandle marks "no prediction was made" (e.g. a non-control uop).
const NoHandle StateHandle = -1

// Predictor is the interface every branch predictor implements:
// lookup/update/recover/flush/get_state_cache/return_state_cache.
type Predictor interface {
	// GetStateCache reserves a handle for an upcoming prediction.
	GetStateCache() StateHandle
	// ReturnStateCache releases a handle, e.g. on squash, without
	// training the predictor from it.
	ReturnStateCache(h StateHandle)

	// Lookup predicts the next PC for a control instruction at pc, given
	// its fall-through and (statically known, possibly zero) target.
	// ctx selects a hardware thread context. Returns the predicted NPC.
	Lookup(h StateHandle, ctx uint8, pc, ftPC, target uint64) (predNPC uint64)

	// Update trains the predictor with the oracle's actual outcome for
	// the prediction recorded under h.
	Update(h StateHandle, ctx uint8, pc uint64, taken bool, actualNPC uint64)

	// Recover reverts any speculative training state installed after a
	// misprediction discovered downstream of h (a no-op for predictors
	// with no speculative update path).
	Recover(h StateHandle)

	// Flush drops all predictor training state (context switch).
	Flush()
}

// Static always predicts not-taken (fallthrough). Used by oracle/exec
// unit tests that don't care about prediction accuracy, only about the
// recovery plumbing firing when Lookup and the oracle's actual NPC
// disagree.
type Static struct{ seq int }

func NewStatic() *Static { return &Static{} }

func (s *Static) GetStateCache() StateHandle { s.seq++; return StateHandle(s.seq) }
func (s *Static) ReturnStateCache(StateHandle) {}
func (s *Static) Lookup(_ StateHandle, _ uint8, _, ftPC, _ uint64) uint64 { return ftPC }
func (s *Static) Update(StateHandle, uint8, uint64, bool, uint64)        {}
func (s *Static) Recover(StateHandle)                                    {}
func (s *Static) Flush()                                                 {}
