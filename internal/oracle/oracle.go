// Package oracle is the functional ground-truth model: it drives the
// feeder, cracks each executed instruction into the uop
// dataflow graph, and is the single authority the timing model consults
// for "what actually happened" — the predicted-vs-actual NPC compare
// that fires a branch-mispredict recovery, and the CommitDependencies/
// UndoDependencies calls that keep the rename map and the odep free pool
// consistent across speculative squash. The timing model (internal/exec,
// internal/ldqstq, internal/commit) decides *when* things happen; the
// oracle decides *what*.
package oracle

import (
	"errors"
	"fmt"
	"io"

	"github.com/supracore/xsim/internal/bpred"
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/feeder"
	"github.com/supracore/xsim/internal/recovery"
	"github.com/supracore/xsim/internal/uop"
	"github.com/supracore/xsim/internal/v2p"
	"github.com/supracore/xsim/internal/xerrors"
)

// Oracle owns one core's feeder handshake, rename map, and odep pool. It
// has no notion of ROB/LDQ/STQ occupancy or port scheduling — those
// structural resources belong to the timing model, which calls back into
// the oracle only to fetch new Mops and to finalize retiring ones.
type Oracle struct {
	feed  feeder.Feeder
	pred  bpred.Predictor
	space *v2p.Space
	asid  uint32
	cfg   *config.Config

	mopq   *MopQueue
	rename *RenameMap
	pool   *FreePool
	ids    recovery.Counter

	seq uint64
}

// New builds an Oracle. mopqCap bounds how many in-flight Mops (real and
// speculative) the shadow queue can hold at once; poolCap seeds the odep
// free pool (see FreePool.NewFreePool). cfg supplies the fusion/magic-FU
// knobs buildMop consults when cracking a record.
func New(feed feeder.Feeder, pred bpred.Predictor, space *v2p.Space, asid uint32, mopqCap, poolCap int, cfg *config.Config) *Oracle {
	return &Oracle{
		feed:   feed,
		pred:   pred,
		space:  space,
		asid:   asid,
		cfg:    cfg,
		mopq:   NewMopQueue(mopqCap),
		rename: NewRenameMap(),
		pool:   NewFreePool(poolCap),
	}
}

// ActionID returns the action_id presently tagging freshly allocated
// uops; every stage that holds a uop across cycles compares its own
// recorded tag against this before acting.
func (o *Oracle) ActionID() uint64 { return o.ids.Current() }

// MopQ exposes the MopQ (with its shadow ring) to the timing model: the
// commit stage retires from its head, and the core checks it for
// emptiness.
func (o *Oracle) MopQ() *MopQueue { return o.mopq }

// Exec pulls the next record off the feeder, cracks it into a Mop and
// its uops, installs the uops into the dataflow graph, and pushes the
// Mop onto the shadow MopQ. wantSpeculative mirrors the feeder's
// buffer_handshake contract: the oracle tells the feeder which path it's
// currently fetching down, and resolves the tri-state result itself
// rather than pushing that logic onto the feeder.
func (o *Oracle) Exec(cycle uop.Tick, wantSpeculative bool) (*uop.Mop, feeder.HandshakeResult, error) {
	rec, err := o.feed.Next(wantSpeculative)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, feeder.ALLGood, io.EOF
		}
		return nil, feeder.ALLGood, xerrors.New("oracle.Exec", uint64(cycle), xerrors.CodeDesync, "feeder error", err)
	}

	result := feeder.ALLGood
	switch {
	case wantSpeculative && rec.Real:
		result = feeder.HandshakeNotConsumed
	case !wantSpeculative && rec.Speculative:
		result = feeder.HandshakeNotNeeded
	}

	if !o.mopq.PushShadow(shadowOf(rec)) {
		return nil, result, xerrors.New("oracle.Exec", uint64(cycle), xerrors.CodeOverflow, "shadow MopQ full", nil)
	}

	m := o.buildMop(rec, cycle)
	if result == feeder.HandshakeNotNeeded {
		// Feeder got ahead of us on a path we already know is correct;
		// the record is buffered in the shadow queue but contributes no
		// uops this call.
		return m, result, nil
	}

	for _, u := range m.Uops {
		u.ActionID = o.ids.Current()
		o.rename.InstallDependencies(o.pool, u)
	}

	if !o.mopq.Push(m, rec.Speculative) {
		o.undoMop(m)
		return nil, result, xerrors.New("oracle.Exec", uint64(cycle), xerrors.CodeOverflow, "MopQ full", nil)
	}

	return m, result, nil
}

func shadowOf(rec feeder.Record) ShadowRecord {
	return ShadowRecord{
		PC: rec.PC, NPC: rec.NPC, TPC: rec.TPC,
		BrTaken: rec.BrTaken, Speculative: rec.Speculative,
		Real: rec.Real, Valid: rec.Valid, Asid: rec.Asid,
		Ins: rec.Ins, InsLen: rec.InsLen,
	}
}

// buildMop cracks a feeder record into a Mop and its uops. The x86
// decoder/cracker itself lives outside this model; what this models is
// the generic shape every crack produces regardless of instruction
// identity:
// zero or more load uops (one per MemBuffer entry, except a trailing
// entry marked IsWrite), a fused store-address/store-data pair when the trailing memref
// is marked IsWrite, and exactly one more uop carrying the Mop's
// control/ALU effect — unless the record is itself a profiling marker,
// in which case the whole Mop collapses to a single 1-byte NOP on the
// magic FU.
func (o *Oracle) buildMop(rec feeder.Record, cycle uop.Tick) *uop.Mop {
	m := &uop.Mop{
		Seq: o.seq, Bytes: rec.Ins, Len: rec.InsLen,
		IsCtrl: rec.TPC != 0 || rec.BrTaken, BrTaken: rec.BrTaken,
		FetchPC: rec.PC, FallthroughPC: rec.NPC,
		ActualNPC: rec.NPC, PredictedNPC: rec.NPC,
		WhenFetched: cycle, WhenDecoded: cycle,
		Speculative: rec.Speculative,
		BPredHandle: int(bpred.NoHandle),
	}
	if m.BrTaken {
		m.ActualNPC = rec.TPC
	}
	o.seq++

	if rec.IsProfilingStart || rec.IsProfilingStop {
		m.Bytes = [uop.MaxILen]byte{0x90}
		m.Len = 1
		m.IsCtrl = false

		magic := uop.NewUop(m)
		magic.FU = uop.FUMagic
		magic.Flags |= uop.FlagIsNop | uop.FlagBOM | uop.FlagEOM
		m.Uops = []*uop.Uop{magic}
		m.FlowLength = 1
		m.NumEffUops = 1
		return m
	}

	var uops []*uop.Uop
	for i, ref := range rec.MemBuffer {
		last := i == len(rec.MemBuffer)-1
		if last && ref.IsWrite {
			sta := uop.NewUop(m)
			sta.FU = uop.FUStoreAddr
			sta.MemSize = ref.Size
			sta.Addr = ref.Vaddr
			sta.Flags |= uop.FlagIsSTA
			sta.NumIDeps = 1
			sta.IDepNames[0] = regOf(rec.PC + 2)
			if i == 0 {
				sta.Flags |= uop.FlagBOM
			}

			std := uop.NewUop(m)
			std.FU = uop.FUStoreData
			std.MemSize = ref.Size
			std.Addr = ref.Vaddr
			std.Flags |= uop.FlagIsSTD
			std.NumIDeps = 1
			std.IDepNames[0] = regOf(rec.PC + 3)

			// FusionHead/FusionNext always link the pair — dispatchUop
			// uses this to give the STD uop its STA sibling's STQIndex
			// regardless of fusion being enabled. FlagIsFusionHead/
			// FlagInFusion, which drive commit-width accounting, are
			// set only when fusion is actually on.
			sta.FusionHead, sta.FusionNext = sta, std
			std.FusionHead = sta
			if o.cfg != nil && o.cfg.FusionEnabled && o.cfg.FusionMaxSize >= 2 {
				sta.Flags |= uop.FlagIsFusionHead
				std.Flags |= uop.FlagInFusion
				sta.FusionSize = 2
			}

			uops = append(uops, sta, std)
			m.NumMemRefs++
			m.NumStores++
			continue
		}

		u := uop.NewUop(m)
		u.FU = uop.FULoad
		u.MemSize = ref.Size
		u.Addr = ref.Vaddr
		u.Flags |= uop.FlagIsLoad
		u.NumIDeps = 0
		if i == 0 {
			u.Flags |= uop.FlagBOM
		}
		uops = append(uops, u)
		m.NumMemRefs++
		m.NumLoads++
	}

	core := uop.NewUop(m)
	core.NumIDeps = 2
	core.IDepNames[0], core.IDepNames[1] = regOf(rec.PC), regOf(rec.PC+1)
	core.NumODeps = 1
	core.ODepNames[0] = regOf(rec.NPC)
	core.Flags |= uop.FlagEOM
	if len(uops) == 0 {
		core.Flags |= uop.FlagBOM
	}
	if m.IsCtrl {
		core.FU = uop.FUBranch
		core.Flags |= uop.FlagIsCtrl
		m.NumBranches++
	} else {
		core.FU = uop.FUInt
	}
	uops = append(uops, core)

	m.Uops = uops
	m.FlowLength = len(uops)
	m.NumEffUops = len(uops)

	if m.IsCtrl {
		h := o.pred.GetStateCache()
		m.BPredHandle = int(h)
		m.PredictedNPC = o.pred.Lookup(h, uint8(rec.Asid%8), rec.PC, rec.NPC, rec.TPC)
	}

	return m
}

// regOf folds an address into the oracle's small architectural-register
// namespace purely so the dataflow graph has something concrete to hang
// edges on; which bits of a real x86 encoding select which register is
// the (out of scope) decoder's concern.
func regOf(addr uint64) uint8 { return uint8(addr % numArchRegs) }

// undoMop reverses InstallDependencies for every uop of a Mop that
// failed to enqueue — the mirror image of the squash path, used only
// for the "structural overflow right after install" case in Exec.
func (o *Oracle) undoMop(m *uop.Mop) {
	for i := len(m.Uops) - 1; i >= 0; i-- {
		o.rename.UndoDependencies(o.pool, m.Uops[i])
	}
	if m.IsCtrl && m.BPredHandle != int(bpred.NoHandle) {
		o.pred.ReturnStateCache(bpred.StateHandle(m.BPredHandle))
	}
}

// CommitUop marks one uop of the MopQ head as retired. Once every uop of
// a Mop has committed, Finalize must be called to train the predictor
// and release the Mop's dataflow edges; CommitUop alone only advances
// the per-Mop commit cursor the commit-stage state machine drives one
// uop (or one fusion group) at a time.
func (o *Oracle) CommitUop(cycle uop.Tick) (*uop.Uop, error) {
	m := o.mopq.Head()
	if m == nil {
		return nil, xerrors.New("oracle.CommitUop", uint64(cycle), xerrors.CodeContract, "commit with empty MopQ", nil)
	}
	if m.CommitIndex >= m.FlowLength {
		return nil, xerrors.New("oracle.CommitUop", uint64(cycle), xerrors.CodeContract, "Mop already fully committed", nil)
	}
	u := m.Uops[m.CommitIndex]
	m.CommitIndex++
	return u, nil
}

// Finalize releases a fully-retired Mop's dataflow edges, trains the
// predictor if it was a control Mop, and pops it off the MopQ head. The
// commit-stage state machine calls this the cycle a Mop's CommitIndex
// reaches FlowLength.
func (o *Oracle) Finalize(m *uop.Mop, cycle uop.Tick) error {
	if !m.Retired() {
		return xerrors.New("oracle.Finalize", uint64(cycle), xerrors.CodeContract, "Finalize on a non-retired Mop", nil)
	}
	if o.mopq.Head() != m {
		return xerrors.New("oracle.Finalize", uint64(cycle), xerrors.CodeContract, "Finalize on a Mop that isn't the MopQ head", nil)
	}
	for _, u := range m.Uops {
		o.rename.CommitDependencies(o.pool, u)
	}
	if m.IsCtrl && m.BPredHandle != int(bpred.NoHandle) {
		h := bpred.StateHandle(m.BPredHandle)
		o.pred.Update(h, uint8(o.asid%8), m.FetchPC, m.BrTaken, m.ActualNPC)
		o.pred.ReturnStateCache(h)
	}
	m.WhenCommitted = cycle
	o.mopq.PopHead(m.Speculative)
	o.mopq.PopShadowHead()
	return nil
}

// Mispredicted reports whether m's predicted and actual next-PC
// disagree — the condition the timing model watches for to fire
// PipeRecover.
func Mispredicted(m *uop.Mop) bool {
	return m.IsCtrl && m.PredictedNPC != m.ActualNPC
}

// PipeRecover squashes every Mop strictly younger than mispredictSeq
// (branch mispredict recovery) and returns the new action_id. Every uop
// downstream holding the old action_id is now stale per recovery.Stale.
func (o *Oracle) PipeRecover(mispredictSeq uint64, cycle uop.Tick) uint64 {
	return o.squashYoungerThan(mispredictSeq, cycle)
}

// PipeFlush squashes nukeSeq's Mop itself and everything younger
// (a memory-order nuke triggered by the LDQ/STQ) — the nuking load/store
// is retried from fetch, not just recovered to.
func (o *Oracle) PipeFlush(nukeSeq uint64, cycle uop.Tick) uint64 {
	return o.squashYoungerThan(nukeSeq-1, cycle)
}

// CompleteFlush discards every in-flight Mop (exception, fault, context
// switch) and returns the new action_id.
func (o *Oracle) CompleteFlush(cycle uop.Tick) uint64 {
	newID := o.ids.Bump()
	for {
		m := o.mopq.Tail()
		if m == nil {
			break
		}
		o.squashOne(m)
		o.mopq.PopTail(m.Speculative)
	}
	for !o.mopq.ShadowEmpty() {
		o.mopq.PopShadowTail()
	}
	return newID
}

func (o *Oracle) squashYoungerThan(seq uint64, cycle uop.Tick) uint64 {
	newID := o.ids.Bump()
	for {
		m := o.mopq.Tail()
		if m == nil || m.Seq <= seq {
			break
		}
		o.squashOne(m)
		o.mopq.PopTail(m.Speculative)
	}
	return newID
}

func (o *Oracle) squashOne(m *uop.Mop) {
	for i := len(m.Uops) - 1; i >= 0; i-- {
		o.rename.UndoDependencies(o.pool, m.Uops[i])
	}
	if m.IsCtrl && m.BPredHandle != int(bpred.NoHandle) {
		h := bpred.StateHandle(m.BPredHandle)
		o.pred.Recover(h)
		o.pred.ReturnStateCache(h)
	}
}

// BufferHandshake resolves the tri-state buffer_handshake outcome into
// what the fetch stage should actually enqueue this cycle: on
// HandshakeNotConsumed the caller must synthesize a NOP Mop instead
// of consuming the real record Exec just buffered, so the feeder's
// unconsumed record is re-offered on the next wantSpeculative=true call.
func (o *Oracle) BufferHandshake(result feeder.HandshakeResult) bool {
	return result != feeder.HandshakeNotConsumed
}

func (o *Oracle) String() string {
	return fmt.Sprintf("oracle{asid=%d seq=%d action_id=%d mopq=%d/%d}", o.asid, o.seq, o.ids.Current(), o.mopq.Num(), o.mopq.Cap())
}
