// Package cache defines the opaque cache-hierarchy and TLB interfaces the
// execute stage drives. Cache controllers, prefetchers, TLBs, and DRAM
// controllers live behind this enqueue/callback contract, not inside it.
package cache

// Op distinguishes a load's fill request from a store's writeback.
type Op int

const (
	OpLoad Op = iota
	OpStore
)

// Callback is invoked on completion (or miss resolution) of an enqueued
// access. latency is the number of cycles the access actually took,
// needed by the load-miss reschedule path to recompute a snatched-back
// wakeup time.
type Callback func(op interface{}, actionID uint64, latency int)

// ActionIDFunc resolves an opaque op token back to its uop's current
// action_id — this is how a cache controller's completion callback,
// firing cycles after issue, finds out whether the uop it was servicing
// has since been squashed.
type ActionIDFunc func(op interface{}) uint64

// Controller is one level of the opaque cache/TLB hierarchy.
type Controller interface {
	// Enqueuable reports whether this level has a free MSHR-equivalent
	// slot for the access, without side effects — the execute stage
	// calls this before committing to issue.
	Enqueuable(op Op, asid uint32, addr uint64) bool

	// Enqueue submits an access. done is called on a hit or a
	// fill/writeback completion; isSplit marks the trailing half of a
	// cache-line-crossing access.
	Enqueue(op Op, asid uint32, pc, addr uint64, actionID uint64, uopToken interface{}, isSplit bool, done Callback, getActionID ActionIDFunc) bool

	// Process advances this level by one simulated cycle.
	Process()
}

// TLB is a narrower Controller used for address translation; its
// Callback latency models the walk, not a data transfer.
type TLB interface {
	Enqueuable(asid uint32, addr uint64) bool
	Enqueue(asid uint32, addr uint64, actionID uint64, uopToken interface{}, done Callback, getActionID ActionIDFunc) bool
	Process()
}
