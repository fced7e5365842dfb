// Package fake provides an in-memory Feeder for unit tests, grounded on
// ehrlich-b-go-ublk/backend/mem.go's in-memory block-device Backend — the
// same shape of "stand in for the opaque external dependency with a
// deterministic in-memory fake."
package fake

import (
	"fmt"
	"io"

	"github.com/supracore/xsim/internal/feeder"
)

// Feeder replays a fixed, in-memory slice of records in order. Useful for
// driving the oracle/exec/commit unit tests and the end-to-end scenarios
// written directly against this type.
type Feeder struct {
	records []feeder.Record
	pos     int
}

func New(records ...feeder.Record) *Feeder {
	return &Feeder{records: records}
}

func (f *Feeder) Next(wantSpeculative bool) (feeder.Record, error) {
	if f.pos >= len(f.records) {
		return feeder.Record{}, fmt.Errorf("fake feeder exhausted: %w", io.EOF)
	}
	r := f.records[f.pos]
	f.pos++
	return r, nil
}

// Remaining reports how many records are left, used by tests that assert
// every record was eventually consumed.
func (f *Feeder) Remaining() int { return len(f.records) - f.pos }
