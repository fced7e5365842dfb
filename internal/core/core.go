// Package core wires one core's oracle, execution back-end, LDQ/STQ,
// and commit stage into a single Step() that advances the whole
// pipeline by one cycle, driving the stages back-to-front (commit,
// execute, dispatch, fetch) so a given cycle's fetch never observes
// that same cycle's own commit/execute side effects out of order.
package core

import (
	"errors"
	"io"
	"strconv"

	"github.com/supracore/xsim/internal/cache"
	"github.com/supracore/xsim/internal/commit"
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/exec"
	"github.com/supracore/xsim/internal/ldqstq"
	"github.com/supracore/xsim/internal/logx"
	"github.com/supracore/xsim/internal/oracle"
	"github.com/supracore/xsim/internal/recovery"
	"github.com/supracore/xsim/internal/uop"
	"github.com/supracore/xsim/internal/xerrors"
)

// pendingLoad is a load uop whose port execution (address generation)
// has finished but which hasn't yet cleared ldqstq.CheckLoadIssueConditions
// — it is re-checked every cycle until it forwards, issues to the cache,
// or is squashed out from under the check.
type pendingLoad struct {
	u         *uop.Uop
	ld        *ldqstq.LDEntry
	nextCheck uop.Tick
}

// Core is one simulated hardware thread.
type Core struct {
	id      int
	cfg     *config.Config
	oracle  *oracle.Oracle
	backend exec.Backend
	ldq     *ldqstq.Queue
	commit  *commit.Stage
	mem     cache.Controller // optional; nil means loads complete at port latency alone

	pendingLoads []pendingLoad
	speculative  bool

	cycle uop.Tick
	done  bool
}

// SetCache wires a cache hierarchy into the load path: once a load's
// address-generation latency elapses, it is enqueued here, and the
// controller's completion callback advances the Mop's CompleteIndex (a
// load the controller refuses for lack of an MSHR slot completes at
// once instead) — without this, a load "completes" as soon as its port
// latency elapses, which is only realistic for an always-hits model.
func (c *Core) SetCache(ctrl cache.Controller) { c.mem = ctrl }

// New builds a Core around an already-constructed oracle and execution
// back-end (stm.Backend or iodpm.Backend — both satisfy exec.Backend).
func New(id int, cfg *config.Config, o *oracle.Oracle, backend exec.Backend) *Core {
	ldq := ldqstq.New(cfg)
	return &Core{
		id:      id,
		cfg:     cfg,
		oracle:  o,
		backend: backend,
		ldq:     ldq,
		commit:  commit.New(cfg, ldq),
	}
}

// Done reports whether this core's feeder is exhausted and every
// in-flight Mop has retired.
func (c *Core) Done() bool { return c.done && c.oracle.MopQ().Empty() }

// Cycle returns the core's current simulated cycle count.
func (c *Core) Cycle() uop.Tick { return c.cycle }

// Step advances the core by exactly one cycle: retire what's ready,
// drain completions, dispatch one newly fetched Mop, then tick the
// cycle counter.
func (c *Core) Step() error {
	cycle := c.cycle

	retired, reason, err := c.commit.Tick(c.oracle, cycle)
	if err != nil {
		return err
	}
	for _, m := range retired {
		c.onRetire(m)
		if oracle.Mispredicted(m) {
			c.recover(m.Seq, false, cycle)
		}
	}
	_ = reason // exposed via commit.Stage.Histogram() for stats reporting

	if c.mem != nil {
		c.mem.Process()
	}

	for _, comp := range c.backend.Tick(cycle, c.oracle.ActionID) {
		c.onComplete(comp, cycle)
	}
	c.drainPendingLoads(cycle)

	if err := c.commit.Watchdog(cycle); err != nil {
		return err
	}

	if !c.done {
		if err := c.fetchAndDispatch(cycle); err != nil {
			if errors.Is(err, io.EOF) {
				c.done = true
			} else {
				return err
			}
		}
	}

	c.cycle++
	return nil
}

func (c *Core) fetchAndDispatch(cycle uop.Tick) error {
	m, result, err := c.oracle.Exec(cycle, c.speculative)
	if err != nil {
		return err
	}
	if m == nil || !c.oracle.BufferHandshake(result) {
		return nil
	}
	for _, u := range m.Uops {
		c.dispatchUop(u, cycle)
	}
	c.speculative = oracle.Mispredicted(m)
	logx.WithCore(c.id).Debug().Uint64("seq", m.Seq).Int("uops", len(m.Uops)).Msg("fetched Mop")
	return nil
}

func (c *Core) dispatchUop(u *uop.Uop, cycle uop.Tick) {
	switch {
	case u.Flags.Has(uop.FlagIsLoad):
		split := u.Addr%64+uint64(u.MemSize) > 64
		idx, ok := c.ldq.AllocateLoad(u, u.Addr, u.MemSize, split)
		if !ok {
			return
		}
		u.LDQIndex = idx
	case u.Flags.Has(uop.FlagIsSTA):
		idx, ok := c.ldq.AllocateStore(u, u.MemSize)
		if !ok {
			return
		}
		u.STQIndex = idx
		if u.FusionNext != nil {
			u.FusionNext.STQIndex = idx
		}
		if u.Flags.Has(uop.FlagIsFusionHead) && u.FusionNext != nil {
			if fd, ok := c.backend.(exec.FusedStoreDispatcher); ok && fd.DispatchFusedST(u, u.FusionNext, cycle) {
				return
			}
		}
	case u.Flags.Has(uop.FlagIsSTD):
		// STA/STD always share one STQ slot; FusionHead carries it
		// across regardless of whether commit-width fusion is on.
		if u.FusionHead != nil {
			u.STQIndex = u.FusionHead.STQIndex
		}
		if u.Port >= 0 {
			// Already injected alongside its STA half by
			// DispatchFusedST, which stamps Port on both uops.
			return
		}
	}
	c.backend.Dispatch(u, cycle)
}

func (c *Core) onComplete(comp exec.Complete, cycle uop.Tick) {
	u := comp.Uop

	if u.Flags.Has(uop.FlagIsLoad) && u.LDQIndex >= 0 {
		if ld := c.ldq.Load(u.LDQIndex); ld != nil {
			c.pendingLoads = append(c.pendingLoads, pendingLoad{u: u, ld: ld, nextCheck: cycle})
			return
		}
	}
	u.Mop.CompleteIndex++

	switch {
	case u.Flags.Has(uop.FlagIsSTA) && u.STQIndex >= 0:
		c.ldq.ResolveSTA(u.STQIndex, u.Addr)
		for _, seq := range c.ldq.DetectNukes(u.STQIndex) {
			c.recover(seq, true, cycle)
		}
	case u.Flags.Has(uop.FlagIsSTD) && u.STQIndex >= 0:
		c.ldq.ResolveSTD(u.STQIndex)
	}
}

// drainPendingLoads re-runs CheckLoadIssueConditions for every load
// whose address-generation finished but hasn't yet cleared the STQ: a
// forwardable hit is satisfied straight from the store's data, a clean
// miss goes to the cache hierarchy, and a blocked load is re-armed for a
// later cycle (throttled on a partial-overlap stall per cfg.ThrottlePartial).
func (c *Core) drainPendingLoads(cycle uop.Tick) {
	if len(c.pendingLoads) == 0 {
		return
	}
	still := c.pendingLoads[:0]
	for _, pl := range c.pendingLoads {
		if recovery.Stale(pl.u.ActionID, c.oracle.ActionID()) {
			continue
		}
		if cycle < pl.nextCheck {
			still = append(still, pl)
			continue
		}
		canIssue, forwardFrom, block := c.ldq.CheckLoadIssueConditions(pl.ld)
		if !canIssue {
			delay := uop.Tick(1)
			if block == ldqstq.OverlapPartial && c.cfg.ThrottlePartial > 0 {
				delay = uop.Tick(c.cfg.ThrottlePartial)
			}
			pl.nextCheck = cycle + delay
			still = append(still, pl)
			continue
		}

		pl.ld.Issued = true
		switch {
		case forwardFrom != nil:
			// The store's data lives on its STD half, not the STA entry
			// recorded in the STQ; FusionNext always links the two
			// regardless of whether commit-width fusion is enabled.
			if std := forwardFrom.U.FusionNext; std != nil {
				pl.u.OValue = std.OValue
			}
			pl.u.OValueValid = true
			pl.u.Timing.WhenCompleted = cycle
			pl.u.Mop.CompleteIndex++
		case c.mem != nil:
			tag := pl.u.ActionID
			if !c.mem.Enqueue(cache.OpLoad, 0, pl.u.Mop.FetchPC, pl.u.Addr, tag, pl.u, pl.ld.Split, c.loadDone, c.actionIDOf) {
				// No free MSHR slot: fall back to completing now rather
				// than dropping the load — a structural retry queue is
				// out of scope for this simplified model.
				pl.u.Mop.CompleteIndex++
			}
		default:
			pl.u.Mop.CompleteIndex++
		}
	}
	c.pendingLoads = still
}

// loadDone is the cache.Callback a dispatched load is enqueued with: op
// is the *uop.Uop token, actionID is the tag it was enqueued under. A
// stale tag (the uop has since been squashed) is silently discarded.
func (c *Core) loadDone(op interface{}, actionID uint64, latency int) {
	u, ok := op.(*uop.Uop)
	if !ok {
		return
	}
	if u.ActionID != actionID {
		return
	}
	u.Mop.CompleteIndex++
}

func (c *Core) actionIDOf(op interface{}) uint64 {
	if u, ok := op.(*uop.Uop); ok {
		return u.ActionID
	}
	return 0
}

func (c *Core) onRetire(m *uop.Mop) {
	for _, u := range m.Uops {
		switch {
		case u.Flags.Has(uop.FlagIsLoad):
			c.ldq.DeallocateLoad()
		case u.Flags.Has(uop.FlagIsSTA):
			c.ldq.MarkSenior(u.STQIndex)
			c.ldq.DeallocateStore()
		}
	}
}

// recover fires a squash of everything younger than (or, for a nuke,
// including) seq, bumping the action_id and proactively draining any
// back-end stage that would otherwise deadlock on a squashed uop.
func (c *Core) recover(seq uint64, nuke bool, cycle uop.Tick) {
	cutoff := seq
	if nuke {
		c.oracle.PipeFlush(seq, cycle)
		cutoff = seq - 1
	} else {
		c.oracle.PipeRecover(seq, cycle)
	}
	c.ldq.DropYoungerThan(cutoff)
	if d, ok := c.backend.(exec.Drainer); ok {
		d.DrainYoungerThan(cutoff)
	}
	c.commit.NoteRecovery(cycle)
	c.speculative = false
}

// FatalErr wraps a contract-violation error with the core id for the
// harness's error aggregation.
func (c *Core) FatalErr(op string, err error) error {
	return xerrors.New(op, uint64(c.cycle), xerrors.CodeContract, "core "+strconv.Itoa(c.id), err)
}
