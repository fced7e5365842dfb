// Package harness steps a fleet of cores in lockstep, one global tick at
// a time, behind a shared v2p.Space. Stepping concurrently and joining
// every core's error each tick follows golang.org/x/sync/errgroup's
// fan-out/fan-in pattern.
package harness

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/supracore/xsim/internal/core"
	"github.com/supracore/xsim/internal/logx"
)

// Harness owns a fixed set of cores and advances them together.
type Harness struct {
	cores []*core.Core
}

func New(cores ...*core.Core) *Harness {
	return &Harness{cores: cores}
}

// Run steps every core once per tick, concurrently, until every core is
// Done() or ctx is canceled. A core returning a fatal error aborts the
// whole run: a contract violation is never locally recoverable.
func (h *Harness) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if h.allDone() {
			return nil
		}

		g, _ := errgroup.WithContext(ctx)
		for _, c := range h.cores {
			c := c
			if c.Done() {
				continue
			}
			g.Go(func() error {
				if err := c.Step(); err != nil {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logx.Error().Err(err).Msg("harness: core step failed")
			return err
		}
	}
}

func (h *Harness) allDone() bool {
	for _, c := range h.cores {
		if !c.Done() {
			return false
		}
	}
	return true
}
