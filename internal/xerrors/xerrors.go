// Package xerrors defines the core's structured error type and error
// kinds. Only Code == CodeContract is ever fatal; every other kind is a
// signal the caller is expected to act on (stall, drop, retry next
// cycle), never a panic.
package xerrors

import "fmt"

// Code categorizes a core error.
type Code string

const (
	// CodeContract is an invariant broken inside the core itself. The
	// only fatal kind — callers should dump in-flight Mop history and
	// abort, never attempt recovery.
	CodeContract Code = "contract_violation"
	// CodeOverflow is a structural resource exhaustion (ROB/LDQ/STQ
	// full, port busy). Signaled by a false *_available probe, not by
	// returning this error from the hot path — this Code exists so
	// non-hot-path callers (tests, the demo CLI) can still report it
	// uniformly.
	CodeOverflow Code = "structural_overflow"
	// CodeSquashed marks a callback that discovered, via an action_id
	// mismatch, that its uop no longer exists.
	CodeSquashed Code = "squashed_after_the_fact"
	// CodeDeadlock is raised by the commit-stage watchdog.
	CodeDeadlock Code = "deadlock"
	// CodeDesync marks a feeder/fetch PC disagreement on the
	// non-speculative path.
	CodeDesync Code = "feeder_desync"
)

// CoreError is the structured error type every package in this module
// wraps its failures in.
type CoreError struct {
	Op    string // e.g. "oracle.Exec", "STQ.Deallocate"
	Cycle uint64 // simulated cycle the error occurred on
	Code  Code
	Msg   string
	Inner error
}

func (e *CoreError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("xsim: %s: %s (cycle=%d)", e.Op, msg, e.Cycle)
	}
	return fmt.Sprintf("xsim: %s (cycle=%d)", msg, e.Cycle)
}

func (e *CoreError) Unwrap() error { return e.Inner }

// Is lets errors.Is match on Code alone, so callers can write
// errors.Is(err, xerrors.Contract) without caring about Op/Cycle/Msg.
func (e *CoreError) Is(target error) bool {
	te, ok := target.(*CoreError)
	if !ok {
		return false
	}
	if te.Code == "" {
		return false
	}
	return e.Code == te.Code
}

// Sentinels usable with errors.Is(err, xerrors.Contract).
var (
	Contract = &CoreError{Code: CodeContract}
	Overflow = &CoreError{Code: CodeOverflow}
	Squashed = &CoreError{Code: CodeSquashed}
	Deadlock = &CoreError{Code: CodeDeadlock}
	Desync   = &CoreError{Code: CodeDesync}
)

// New builds a CoreError, wrapping inner if provided.
func New(op string, cycle uint64, code Code, msg string, inner error) *CoreError {
	return &CoreError{Op: op, Cycle: cycle, Code: code, Msg: msg, Inner: inner}
}
