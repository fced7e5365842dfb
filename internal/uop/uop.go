// Package uop is the data model shared by every stage of the pipeline:
// the macro-op (Mop), the micro-op (Uop) it cracks into, and the fixed
// per-uop timing vector used for both scheduling decisions and tracing.
//
// A Uop is a plain struct with named fields, not a map or a reflective
// "set field by name" bag — see Design Note "Per-uop timing vector vs
// reflective set field".
package uop

import "fmt"

const (
	MaxIDeps = 3  // x86 macro-ops crack to at most 3 register sources per uop
	MaxODeps = 2  // at most 2 register destinations per uop
	MaxILen  = 15 // longest legal x86 instruction encoding
)

// Tick is a cycle count; TickMax marks "never" for a when_* field that
// hasn't happened yet.
type Tick uint64

const TickMax Tick = ^Tick(0)

// FUClass mirrors config.FUClass without importing config, so uop stays a
// leaf package with no dependency on the knob layer. The constants below
// must stay numerically aligned with config.FUClass's own iota order —
// both stm and iodpm build their port tables via a bare FUClass(int)
// conversion between the two.
type FUClass int

const (
	FUInt FUClass = iota
	FUMul
	FUDiv
	FUFPAdd
	FUFPMul
	FUBranch
	FULoad
	FUStoreAddr
	FUStoreData
	FUMagic
)

// Flags is a bitset of the uop decode flags.
type Flags uint32

const (
	FlagIsLoad Flags = 1 << iota
	FlagIsSTA        // store-address half
	FlagIsSTD        // store-data half
	FlagIsCtrl
	FlagIsNop
	FlagIsLFence
	FlagIsLightFence
	FlagIsPrefetch
	FlagInFusion
	FlagIsFusionHead
	FlagBOM // beginning of macro-op
	FlagEOM // end of macro-op
	FlagHasImm
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// OdepNode is one intrusive link in a producer's forward dependency list.
// Allocated from a per-core FreePool (see freepool.go in package oracle)
// and returned to it at commit or squash — never owned by a GC-managed
// slice, per Design Note "Cyclic dependency graph".
type OdepNode struct {
	Child *Uop
	OpNum int // which of Child's idep slots this edge feeds
	Next  *OdepNode
	Idx   int // this node's slot in the owning FreePool, for Put()
}

// Timing is the fixed vector of monotonically-assigned "when_*"
// timestamps. Every field starts at TickMax.
type Timing struct {
	WhenDecoded   Tick
	WhenAllocated Tick
	WhenReady     Tick
	WhenIssued    Tick
	WhenExec      Tick
	WhenCompleted Tick
	WhenOtagReady Tick
	WhenIValReady [MaxIDeps]Tick
}

func NewTiming() Timing {
	t := Timing{
		WhenDecoded:   TickMax,
		WhenAllocated: TickMax,
		WhenReady:     TickMax,
		WhenIssued:    TickMax,
		WhenExec:      TickMax,
		WhenCompleted: TickMax,
		WhenOtagReady: TickMax,
	}
	for i := range t.WhenIValReady {
		t.WhenIValReady[i] = TickMax
	}
	return t
}

// Uop is the scheduling and execution unit produced by cracking a Mop.
type Uop struct {
	Mop *Mop // owning macro-op; uops never outlive their Mop

	IDepNames [MaxIDeps]uint8 // architectural register names read
	NumIDeps  int
	ODepNames [MaxODeps]uint8 // architectural register names written
	NumODeps  int

	FU      FUClass
	MemSize int
	Addr    uint64 // virtual address, valid for load/STA uops only
	Flags   Flags

	FusionNext *Uop // next member of this uop's fusion group; an STA always links its STD here, fused or not
	FusionHead *Uop // group head (self if this uop is the head)
	FusionSize int  // valid on the head only

	// Dataflow graph: back-pointers to parents, forward list of children.
	IDeps [MaxIDeps]*Uop
	ODeps *OdepNode

	ROBIndex int
	LDQIndex int
	STQIndex int
	Port     int

	ActionID    uint64
	OValueValid bool
	IValueValid [MaxIDeps]bool
	OValue      uint64
	IValues     [MaxIDeps]uint64
	NumReplays  int
	InReadyQ    bool

	Timing Timing
}

// NewUop returns a Uop with ROB/LDQ/STQ/Port at the "not allocated"
// sentinel and a fresh Timing vector.
func NewUop(mop *Mop) *Uop {
	return &Uop{
		Mop:      mop,
		ROBIndex: -1,
		LDQIndex: -1,
		STQIndex: -1,
		Port:     -1,
		Timing:   NewTiming(),
	}
}

func (u *Uop) String() string {
	return fmt.Sprintf("uop{seq=%d fu=%d flags=%#x action=%d}", u.Mop.Seq, u.FU, u.Flags, u.ActionID)
}

// Mop is one executed x86 instruction.
type Mop struct {
	Seq   uint64
	Bytes [MaxILen]byte
	Len   int

	IsCtrl    bool
	IsTrap    bool
	IsRep     bool
	BrTaken   bool
	PredictedNPC uint64
	ActualNPC    uint64
	FallthroughPC uint64

	FetchPC  uint64
	WhenFetched  Tick
	WhenDecoded  Tick
	WhenCommitted Tick

	Uops       []*Uop
	FlowLength int

	NumEffUops  int
	NumBranches int
	NumMemRefs  int
	NumLoads    int
	NumStores   int

	CommitIndex   int
	CompleteIndex int

	// BPredHandle is the token returned by bpred.Predictor.GetStateCache,
	// shuttled from fetch to retire (Design Note "Branch-predictor state
	// shuttle").
	BPredHandle int

	Speculative bool
}

// Invariant: 0 <= CommitIndex <= CompleteIndex <= FlowLength.
func (m *Mop) CheckInvariant() bool {
	return 0 <= m.CommitIndex && m.CommitIndex <= m.CompleteIndex && m.CompleteIndex <= m.FlowLength
}

// Retired reports whether every uop of this Mop has committed.
func (m *Mop) Retired() bool { return m.CommitIndex >= m.FlowLength }
