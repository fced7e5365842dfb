// Package commit is the in-order retirement state machine: each cycle
// it retires up to CommitWidth uops (fusion groups retiring as one
// unit) off the MopQ head, refusing to retire past a branch limit, a
// store whose data (STD) hasn't resolved in the STQ, or a just-fired
// recovery's drain delay, and
// tracks why it stalled for the demo CLI's stats output.
package commit

import (
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/ldqstq"
	"github.com/supracore/xsim/internal/oracle"
	"github.com/supracore/xsim/internal/uop"
	"github.com/supracore/xsim/internal/xerrors"
)

// Reason names why commit retired fewer than CommitWidth uops this
// cycle.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEmpty
	ReasonNotComplete
	ReasonJeclearInflight
	ReasonMaxBranches
	ReasonSTQSenior
	ReasonWidthExhausted
)

func (r Reason) String() string {
	switch r {
	case ReasonEmpty:
		return "EMPTY"
	case ReasonNotComplete:
		return "NOT_COMPLETE"
	case ReasonJeclearInflight:
		return "JECLEAR_INFLIGHT"
	case ReasonMaxBranches:
		return "MAX_BRANCHES"
	case ReasonSTQSenior:
		return "STQ_SENIOR_STALL"
	case ReasonWidthExhausted:
		return "WIDTH_EXHAUSTED"
	default:
		return "NONE"
	}
}

// Stage is one core's commit logic and stall-reason histogram.
type Stage struct {
	cfg *config.Config
	ldq *ldqstq.Queue

	jeclearUntil uop.Tick

	lastRetireCycle uop.Tick
	histogram       map[Reason]uint64
}

func New(cfg *config.Config, ldq *ldqstq.Queue) *Stage {
	return &Stage{cfg: cfg, ldq: ldq, histogram: make(map[Reason]uint64)}
}

// NoteRecovery records that a recovery just fired, blocking commit for
// cfg.JeclearDelay cycles.
func (s *Stage) NoteRecovery(cycle uop.Tick) {
	s.jeclearUntil = cycle + uop.Tick(s.cfg.JeclearDelay)
}

// Histogram returns a snapshot of accumulated stall reasons.
func (s *Stage) Histogram() map[Reason]uint64 {
	out := make(map[Reason]uint64, len(s.histogram))
	for k, v := range s.histogram {
		out[k] = v
	}
	return out
}

func readyToCommit(m *uop.Mop) bool { return m.CompleteIndex >= m.FlowLength }

// Tick retires up to cfg.CommitWidth uops (fusion groups count as one)
// off o's MopQ head this cycle, returning the Mops fully retired and
// the reason further retirement stopped.
func (s *Stage) Tick(o *oracle.Oracle, cycle uop.Tick) ([]*uop.Mop, Reason, error) {
	if cycle < s.jeclearUntil {
		s.bump(ReasonJeclearInflight)
		return nil, ReasonJeclearInflight, nil
	}

	var retired []*uop.Mop
	branchesThisCycle := 0
	credits := s.cfg.CommitWidth
	if credits <= 0 {
		credits = 1
	}

	for credits > 0 {
		m := o.MopQ().Head()
		if m == nil {
			reason := ReasonEmpty
			if len(retired) == 0 {
				s.bump(reason)
			}
			return retired, reason, nil
		}
		if !readyToCommit(m) {
			reason := ReasonNotComplete
			if len(retired) == 0 {
				s.bump(reason)
			}
			return retired, reason, nil
		}
		if m.IsCtrl && branchesThisCycle >= s.cfg.BranchLimit {
			s.bump(ReasonMaxBranches)
			return retired, ReasonMaxBranches, nil
		}
		if blockedOnSeniorStore(m, s.ldq) {
			s.bump(ReasonSTQSenior)
			return retired, ReasonSTQSenior, nil
		}

		for m.CommitIndex < m.FlowLength && credits > 0 {
			u, err := o.CommitUop(cycle)
			if err != nil {
				return retired, ReasonNone, xerrors.New("commit.Tick", uint64(cycle), xerrors.CodeContract, "commit uop failed", err)
			}
			credits--
			if u.Flags.Has(uop.FlagIsFusionHead) {
				for m.CommitIndex < m.FlowLength && m.Uops[m.CommitIndex].FusionHead == u.FusionHead {
					if _, err := o.CommitUop(cycle); err != nil {
						return retired, ReasonNone, xerrors.New("commit.Tick", uint64(cycle), xerrors.CodeContract, "commit fused uop failed", err)
					}
				}
			}
		}

		if !m.Retired() {
			// Ran out of width credits partway through this Mop; its
			// CommitIndex persists on the MopQ head for the next Tick.
			s.bump(ReasonWidthExhausted)
			return retired, ReasonWidthExhausted, nil
		}

		if err := o.Finalize(m, cycle); err != nil {
			return retired, ReasonNone, xerrors.New("commit.Tick", uint64(cycle), xerrors.CodeContract, "finalize failed", err)
		}
		if m.IsCtrl {
			branchesThisCycle++
		}
		retired = append(retired, m)
		s.lastRetireCycle = cycle
	}
	return retired, ReasonWidthExhausted, nil
}

// blockedOnSeniorStore reports whether m has an STA uop whose STQ entry
// still lacks its data (DataValid false, i.e. the STD half hasn't
// resolved). The Senior mark itself is only set after retirement, so it
// plays no part in this check.
func blockedOnSeniorStore(m *uop.Mop, ldq *ldqstq.Queue) bool {
	for _, u := range m.Uops {
		if u.Flags.Has(uop.FlagIsSTA) && u.STQIndex >= 0 {
			st := ldq.Store(u.STQIndex)
			if st != nil && st.U == u && !st.DataValid {
				return true
			}
		}
	}
	return false
}

// Watchdog reports a deadlock once more than cfg.DeadlockThreshold
// cycles have elapsed since the last successful retirement.
func (s *Stage) Watchdog(cycle uop.Tick) error {
	if cycle > s.lastRetireCycle+uop.Tick(s.cfg.DeadlockThreshold) {
		return xerrors.New("commit.Watchdog", uint64(cycle), xerrors.CodeDeadlock, "no retirement within threshold", nil)
	}
	return nil
}

func (s *Stage) bump(r Reason) { s.histogram[r]++ }
