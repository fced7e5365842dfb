// Package config holds every simulator knob, built with a fluent
// Builder (New(capacity).SingleProducer()... style chaining) rather
// than a flag-parsing package; CLI argument parsing is left to a
// wrapping tool, and the demo in cmd/xsim-core only selects which
// Config to build.
package config

import "time"

// FUClass names a functional-unit class a port can be bound to.
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
	FUMagic // profiling markers / sampling NOPs
)

// FUConfig is one functional unit's latency/throughput pair.
type FUConfig struct {
	Class     FUClass
	Latency   int // cycles from issue to completion
	IssueRate int // cycles between successive issues to this FU (1 = fully pipelined)
	Count     int // number of physical copies of this FU
}

// MemDepPolicy selects how check_load_issue_conditions resolves an
// STA-unknown or speculatively-clear case.
type MemDepPolicy string

const (
	MemDepAlwaysWait   MemDepPolicy = "always-wait"   // never speculate past unknown store addr
	MemDepAlwaysSpec   MemDepPolicy = "always-spec"    // always speculate, rely on nuke detection
	MemDepStoreSetPred MemDepPolicy = "store-set-pred" // trust a (stubbed) store-set predictor
)

// Config is the full set of microarchitectural knobs for one core.
type Config struct {
	ROBSize int
	LDQSize int
	STQSize int

	NumExecPorts int
	PortFUs      [][]FUClass // PortFUs[port] = classes that port can issue to
	FUs          []FUConfig

	PayloadDepth int // IO-DPM payload pipe depth (AGEN/DL1-STQ/WB stages)

	CommitWidth    int
	BranchLimit    int // max branches retired per cycle
	JeclearDelay   int // cycles between mispredict detection and recovery firing
	FPPenalty      int // extra cycles added to FU latency after an FP-mode switch
	MemDep         MemDepPolicy
	ThrottlePartial int // cycles a load backs off after a partial-forward stall

	RepeaterEnabled     bool
	RepeaterParallelDL1 bool // race repeater + DL1 instead of falling back serially

	FusionEnabled  bool
	FusionMaxSize  int
	MagicLatency   int

	DeadlockThreshold uint64 // cycles since the last Mop retirement before the watchdog fires; uop completions do not reset it

	TickQuantum time.Duration // wall-clock pacing for the demo CLI; 0 = run flat out
}

// Default returns a reasonable single-core desktop-class configuration.
func Default() *Config {
	return New().Build()
}

// Builder assembles a Config fluently; every setter returns the Builder so
// calls chain, mirroring lfq.Builder.
type Builder struct {
	cfg Config
}

// New seeds a Builder with the baseline knobs, then lets callers override
// just the ones they care about.
func New() *Builder {
	b := &Builder{cfg: Config{
		ROBSize:      128,
		LDQSize:      48,
		STQSize:      32,
		NumExecPorts: 7,
		PayloadDepth: 3,
		CommitWidth:  4,
		BranchLimit:  2,
		JeclearDelay: 5,
		FPPenalty:    2,
		MemDep:       MemDepStoreSetPred,
		ThrottlePartial: 8,
		FusionEnabled: true,
		FusionMaxSize: 3,
		MagicLatency:  1,
		DeadlockThreshold: 1_000_000,
	}}
	b.cfg.FUs = []FUConfig{
		{Class: FUInt, Latency: 1, IssueRate: 1, Count: 4},
		{Class: FUMul, Latency: 3, IssueRate: 1, Count: 1},
		{Class: FUDiv, Latency: 20, IssueRate: 20, Count: 1},
		{Class: FUFPAdd, Latency: 3, IssueRate: 1, Count: 1},
		{Class: FUFPMul, Latency: 5, IssueRate: 1, Count: 1},
		{Class: FUBranch, Latency: 1, IssueRate: 1, Count: 1},
		{Class: FULoad, Latency: 1, IssueRate: 1, Count: 2},
		{Class: FUStoreAddr, Latency: 1, IssueRate: 1, Count: 1},
		{Class: FUStoreData, Latency: 1, IssueRate: 1, Count: 1},
		{Class: FUMagic, Latency: 1, IssueRate: 1, Count: 1},
	}
	b.cfg.PortFUs = [][]FUClass{
		{FUInt, FUBranch},
		{FUInt, FUMul, FUDiv},
		{FUFPAdd, FUFPMul},
		{FULoad},
		{FUStoreAddr},
		{FUStoreData},
		{FUMagic},
	}
	return b
}

func (b *Builder) ROBSize(n int) *Builder { b.cfg.ROBSize = n; return b }
func (b *Builder) LDQSize(n int) *Builder { b.cfg.LDQSize = n; return b }
func (b *Builder) STQSize(n int) *Builder { b.cfg.STQSize = n; return b }
func (b *Builder) CommitWidth(n int) *Builder { b.cfg.CommitWidth = n; return b }
func (b *Builder) BranchLimit(n int) *Builder { b.cfg.BranchLimit = n; return b }
func (b *Builder) JeclearDelay(n int) *Builder { b.cfg.JeclearDelay = n; return b }
func (b *Builder) MemDepPolicy(p MemDepPolicy) *Builder { b.cfg.MemDep = p; return b }
func (b *Builder) Repeater(enabled, parallelDL1 bool) *Builder {
	b.cfg.RepeaterEnabled = enabled
	b.cfg.RepeaterParallelDL1 = parallelDL1
	return b
}
func (b *Builder) Fusion(enabled bool, maxSize int) *Builder {
	b.cfg.FusionEnabled = enabled
	b.cfg.FusionMaxSize = maxSize
	return b
}
func (b *Builder) DeadlockThreshold(n uint64) *Builder { b.cfg.DeadlockThreshold = n; return b }
func (b *Builder) PayloadDepth(n int) *Builder { b.cfg.PayloadDepth = n; return b }

// Build finalizes the Config. Panics on an internally inconsistent
// configuration (e.g. zero ports) the same way lfq.New panics on a bad
// capacity — a config is either well-formed or it's a programmer error.
func (b *Builder) Build() *Config {
	if b.cfg.NumExecPorts <= 0 || len(b.cfg.PortFUs) != b.cfg.NumExecPorts {
		panic("config: NumExecPorts must match len(PortFUs)")
	}
	if b.cfg.ROBSize <= 0 || b.cfg.LDQSize <= 0 || b.cfg.STQSize <= 0 {
		panic("config: ROB/LDQ/STQ sizes must be positive")
	}
	cfg := b.cfg
	return &cfg
}
