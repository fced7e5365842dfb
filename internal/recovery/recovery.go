// Package recovery holds the one piece of state every squash flavor
// shares: the per-core action_id counter. A uop is
// tagged with the counter's value at allocation time; any stage holding
// onto a uop across cycles (an exec port's in-flight ALU op, a cache
// controller's completion callback, an LDQ/STQ search) re-checks the tag
// against the core's current counter before acting, and silently
// discards on mismatch rather than erroring — squash is the common case,
// not an exception.
//
// Bumping is the only thing the three recovery flavors (branch
// mispredict, memory-order nuke, complete flush) have in common; what
// gets undone differs per flavor and lives in the oracle, the exec
// back-ends, and the LDQ/STQ respectively.
package recovery

// Counter is core-local: a core's stages never share one across
// goroutines, so no lock is needed even though internal/harness steps
// multiple cores concurrently (each core owns its own Counter).
type Counter struct {
	id uint64
}

// Current returns the action_id presently tagging freshly allocated
// uops.
func (c *Counter) Current() uint64 { return c.id }

// Bump advances to a new action_id, invalidating every uop tagged with
// the old one, and returns it.
func (c *Counter) Bump() uint64 {
	c.id++
	return c.id
}

// Stale reports whether tag no longer matches the counter's current
// value — the universal "has this uop been squashed out from under me"
// check used by exec ports, cache callbacks, and LDQ/STQ search alike.
func Stale(tag, current uint64) bool { return tag != current }
