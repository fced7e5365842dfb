// Package tage implements the oracle's default bpred.Predictor: a TAGE
// (TAgged GEometric history length) direction predictor plus an
// integer-handle state-cache shuttle.
//
// The 8-table geometric-history layout, the per-table valid bitmap, the
// XOR-combined tag+context match, and the CLZ-based longest-match
// selection are the classic TAGE algorithm, generalized from a single
// hardwired context to the oracle's StateHandle/ctx vocabulary and given
// the GetStateCache/Update/Recover wiring a squash-aware core requires.
//
// ═══════════════════════════════════════════════════════════════════════
// DESIGN
// ─────────────────────────────────────────────────────────────────────
//   - Geometric history lengths [0,4,8,12,16,24,32,64]: table 0 is the
//     base (no history) predictor and is always valid; tables 1..7 are
//     tagged and start empty.
//   - Lookup hashes all 8 tables, finds every tag+context hit, and picks
//     the longest-history hit (highest table index) via CLZ over an
//     8-bit hit bitmap — ties never happen because table index IS the
//     priority.
//   - Update re-finds the matching table (or allocates into table 1 on a
//     miss) and does a saturating-counter read-modify-write plus a
//     history-register shift.
// ═══════════════════════════════════════════════════════════════════════
package tage

import (
	"math/bits"

	"github.com/supracore/xsim/internal/bpred"
)

const (
	numTables       = 8
	entriesPerTable = 1024
	tagBits         = 13
	maxCounter      = 7
	neutralCounter  = 4
	takenThreshold  = 4
	validBitmapWords = entriesPerTable / 32
	numContexts     = 8
)

var historyLengths = [numTables]int{0, 4, 8, 12, 16, 24, 32, 64}

type entry struct {
	tag     uint16
	counter uint8
	context uint8
	useful  bool
	taken   bool
}

type table struct {
	entries    [entriesPerTable]entry
	validBits  [validBitmapWords]uint32
	historyLen int
}

func (t *table) valid(idx uint32) bool {
	w, b := idx>>5, idx&31
	return (t.validBits[w]>>b)&1 != 0
}

func (t *table) markValid(idx uint32) {
	w, b := idx>>5, idx&31
	t.validBits[w] |= 1 << b
}

// predictionState is what a StateHandle shuttles from Lookup to Update/
// Recover: which table matched (or -1 for the base fallback) and the
// history snapshot the prediction was made under, so Update doesn't need
// to re-derive a history register that may have moved on.
type predictionState struct {
	inUse        bool
	pc           uint64
	ctx          uint8
	matchedTable int
	matchedIdx   uint32
	historyAtLookup uint64
}

// Predictor is a bpred.Predictor backed by the TAGE tables above.
type Predictor struct {
	tables  [numTables]table
	history [numContexts]uint64

	states   []predictionState
	freeList []bpred.StateHandle
}

func New() *Predictor {
	p := &Predictor{}
	for i := range p.tables {
		p.tables[i].historyLen = historyLengths[i]
	}
	base := &p.tables[0]
	for idx := range base.entries {
		base.entries[idx] = entry{counter: neutralCounter}
		base.markValid(uint32(idx))
	}
	return p
}

// --- state-cache shuttle -----------------------------------------------

func (p *Predictor) GetStateCache() bpred.StateHandle {
	if n := len(p.freeList); n > 0 {
		h := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.states[h].inUse = true
		return h
	}
	p.states = append(p.states, predictionState{inUse: true})
	return bpred.StateHandle(len(p.states) - 1)
}

func (p *Predictor) ReturnStateCache(h bpred.StateHandle) {
	if h < 0 || int(h) >= len(p.states) {
		return
	}
	p.states[h] = predictionState{}
	p.freeList = append(p.freeList, h)
}

// --- hashing -------------------------------------------------------------

func hashIndex(pc, history uint64, historyLen int) uint32 {
	pcBits := uint32((pc >> 12) & 0x3FF)
	if historyLen == 0 {
		return pcBits
	}
	mask := uint64(1)<<uint(historyLen) - 1
	h := uint32(history & mask)
	for h > 0x3FF {
		h = (h & 0x3FF) ^ (h >> 10)
	}
	return (pcBits ^ h) & 0x3FF
}

func hashTag(pc uint64) uint16 {
	return uint16((pc >> 22) & (1<<tagBits - 1))
}

// --- prediction ----------------------------------------------------------

// Lookup implements bpred.Predictor.Lookup: parallel lookup across all 8
// tables, longest-history tag+context hit wins, falling back to the base
// table's saturating counter.
func (p *Predictor) Lookup(h bpred.StateHandle, ctx uint8, pc, ftPC, target uint64) uint64 {
	if ctx >= numContexts {
		ctx = 0
	}
	history := p.history[ctx]
	tag := hashTag(pc)

	var hitBitmap uint8
	var hitTaken [numTables]bool
	var hitIdx [numTables]uint32

	for i := 0; i < numTables; i++ {
		t := &p.tables[i]
		idx := hashIndex(pc, history, t.historyLen)
		if !t.valid(idx) {
			continue
		}
		e := &t.entries[idx]
		if e.tag^tag == 0 && e.context^ctx == 0 {
			hitBitmap |= 1 << uint(i)
			hitTaken[i] = e.taken
			hitIdx[i] = idx
		}
	}

	taken := false
	matched := -1
	var matchedIdx uint32
	if hitBitmap&^1 != 0 {
		winner := 7 - bits.LeadingZeros8(hitBitmap)
		taken = hitTaken[winner]
		matched = winner
		matchedIdx = hitIdx[winner]
	} else {
		baseIdx := hashIndex(pc, 0, 0)
		taken = p.tables[0].entries[baseIdx].counter >= takenThreshold
		matched = 0
		matchedIdx = baseIdx
	}

	if h >= 0 && int(h) < len(p.states) {
		p.states[h] = predictionState{
			inUse: true, pc: pc, ctx: ctx,
			matchedTable: matched, matchedIdx: matchedIdx,
			historyAtLookup: history,
		}
	}

	if taken {
		return target
	}
	return ftPC
}

// Update trains the matched entry (or allocates a new one on table 1)
// via a counter read-modify-write plus a history shift.
func (p *Predictor) Update(h bpred.StateHandle, ctx uint8, pc uint64, taken bool, actualNPC uint64) {
	if ctx >= numContexts {
		ctx = 0
	}
	matched, matchedIdx := -1, uint32(0)
	if h >= 0 && int(h) < len(p.states) && p.states[h].inUse {
		matched, matchedIdx = p.states[h].matchedTable, p.states[h].matchedIdx
	}

	if matched >= 0 {
		e := &p.tables[matched].entries[matchedIdx]
		if taken {
			if e.counter < maxCounter {
				e.counter++
			}
		} else if e.counter > 0 {
			e.counter--
		}
		e.taken = taken
		e.useful = true
	}

	if matched <= 0 {
		// Miss (or only the base table hit): allocate a new
		// tagged entry in table 1, the shortest history-length table
		// that can discriminate beyond the base predictor.
		alloc := &p.tables[1]
		idx := hashIndex(pc, p.history[ctx], alloc.historyLen)
		alloc.entries[idx] = entry{tag: hashTag(pc), counter: neutralCounter, context: ctx, taken: taken}
		alloc.markValid(idx)
	}

	h64 := p.history[ctx] << 1
	if taken {
		h64 |= 1
	}
	p.history[ctx] = h64
}

// Recover reverts history-register speculation: TAGE's direction tables
// are only ever updated from Update (retire-time), so there is no
// speculative table state to unwind — only the history shift register,
// which is restored to its value at the mispredicted lookup.
func (p *Predictor) Recover(h bpred.StateHandle) {
	if h < 0 || int(h) >= len(p.states) || !p.states[h].inUse {
		return
	}
	s := p.states[h]
	p.history[s.ctx] = s.historyAtLookup
}

// Flush clears all training state (context switch / checkpoint restore).
func (p *Predictor) Flush() {
	for i := range p.history {
		p.history[i] = 0
	}
	for t := 1; t < numTables; t++ {
		p.tables[t] = table{historyLen: historyLengths[t]}
	}
}
