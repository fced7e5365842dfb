// Command xsim-core is a demo harness: it wires a canned instruction
// trace through one core's oracle, TAGE predictor, in-memory cache
// fake, and STM back-end, and logs the final cycle count. Real CLI
// argument parsing, stats reporting, and trace
// file ingestion are left to a wrapping tool; this only proves the
// pieces fit together.
package main

import (
	"context"
	"os"

	"github.com/supracore/xsim/internal/bpred/tage"
	"github.com/supracore/xsim/internal/cache/memsim"
	"github.com/supracore/xsim/internal/config"
	"github.com/supracore/xsim/internal/core"
	"github.com/supracore/xsim/internal/exec/stm"
	"github.com/supracore/xsim/internal/feeder"
	"github.com/supracore/xsim/internal/feeder/fake"
	"github.com/supracore/xsim/internal/harness"
	"github.com/supracore/xsim/internal/logx"
	"github.com/supracore/xsim/internal/oracle"
	"github.com/supracore/xsim/internal/v2p"
)

func demoTrace() []feeder.Record {
	mk := func(pc, npc uint64, taken bool, tpc uint64, refs ...feeder.MemRef) feeder.Record {
		r := feeder.Record{PC: pc, NPC: npc, TPC: tpc, BrTaken: taken, Real: true, Valid: true, MemBuffer: refs}
		r.InsLen = copy(r.Ins[:], []byte{0x90})
		return r
	}
	return []feeder.Record{
		mk(0x1000, 0x1004, false, 0),
		mk(0x1004, 0x1008, false, 0, feeder.MemRef{Vaddr: 0x7f0000, Size: 8}),
		mk(0x1008, 0x100c, false, 0),
		mk(0x100c, 0x2000, true, 0x2000),
		mk(0x2000, 0x2004, false, 0),
	}
}

func main() {
	cfg := config.Default()
	feed := fake.New(demoTrace()...)
	pred := tage.New()
	space := v2p.New(1 << 20)
	o := oracle.New(feed, pred, space, 0, cfg.ROBSize*2, cfg.ROBSize*4, cfg)
	backend := stm.New(cfg)
	c := core.New(0, cfg, o, backend)
	c.SetCache(memsim.New(1<<24, 4, 8))

	h := harness.New(c)
	if err := h.Run(context.Background()); err != nil {
		logx.Error().Err(err).Msg("xsim-core: run failed")
		os.Exit(1)
	}

	logx.Info().Uint64("cycles", uint64(c.Cycle())).Msg("xsim-core: run complete")
}
