// Package trace implements a Feeder backed by a newline-delimited JSON
// trace file. JSON-lines was picked over a binary EIO-style format since
// a real checkpoint/trace format belongs to whatever produces one; this
// exists only so the demo CLI and integration tests have a concrete,
// inspectable trace to run, using nothing beyond the standard library's
// encoding/json.
package trace

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/supracore/xsim/internal/feeder"
)

// line is the on-disk JSON shape; Ins is hex-encoded raw bytes.
type line struct {
	PC, NPC, TPC      uint64
	BrTaken           bool
	Speculative       bool
	Real              bool
	Valid             bool
	HelixOp           bool
	InCriticalSection bool
	ProfilingStart    bool
	ProfilingStop     bool
	Asid              uint32
	Ins               string
	MemRefs           []memRef
	ProfileID         uint64
}

type memRef struct {
	Vaddr   uint64
	Size    int
	IsWrite bool
}

// Feeder reads one feeder.Record per line from r.
type Feeder struct {
	scanner *bufio.Scanner
}

func New(r io.Reader) *Feeder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Feeder{scanner: s}
}

func (f *Feeder) Next(wantSpeculative bool) (feeder.Record, error) {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return feeder.Record{}, fmt.Errorf("trace: scan: %w", err)
		}
		return feeder.Record{}, io.EOF
	}
	var ln line
	if err := json.Unmarshal(f.scanner.Bytes(), &ln); err != nil {
		return feeder.Record{}, fmt.Errorf("trace: decode: %w", err)
	}
	raw, err := hex.DecodeString(ln.Ins)
	if err != nil {
		return feeder.Record{}, fmt.Errorf("trace: decode ins: %w", err)
	}
	rec := feeder.Record{
		PC: ln.PC, NPC: ln.NPC, TPC: ln.TPC,
		BrTaken: ln.BrTaken, Speculative: ln.Speculative,
		Real: ln.Real, Valid: ln.Valid,
		HelixOp: ln.HelixOp, InCriticalSection: ln.InCriticalSection,
		IsProfilingStart: ln.ProfilingStart, IsProfilingStop: ln.ProfilingStop,
		Asid: ln.Asid, ProfileID: ln.ProfileID,
	}
	rec.InsLen = copy(rec.Ins[:], raw)
	for _, m := range ln.MemRefs {
		rec.MemBuffer = append(rec.MemBuffer, feeder.MemRef{Vaddr: m.Vaddr, Size: m.Size, IsWrite: m.IsWrite})
	}
	return rec, nil
}
