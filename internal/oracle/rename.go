package oracle

import "github.com/supracore/xsim/internal/uop"

const numArchRegs = 64

// RenameMap tracks, per architectural register, the ordered list of live
// producers — youngest at the back. install appends at the producer's
// own creation; commit removes the front (the oldest
// producer must be the one retiring); undo removes the back (the
// youngest producer must be the one being squashed).
type RenameMap struct {
	producers [numArchRegs][]*uop.Uop
}

func NewRenameMap() *RenameMap {
	return &RenameMap{}
}

// InstallDependencies wires a newly created uop into the dataflow graph:
// for each input register it looks up the youngest live producer and adds
// a back-pointer plus a forward odep edge; for each output register it
// appends itself as the new youngest producer. O(MaxIDeps+MaxODeps).
func (r *RenameMap) InstallDependencies(pool *FreePool, u *uop.Uop) {
	for i := 0; i < u.NumIDeps; i++ {
		reg := u.IDepNames[i]
		list := r.producers[reg]
		if len(list) == 0 {
			continue // architectural value already committed; no edge needed
		}
		producer := list[len(list)-1]
		u.IDeps[i] = producer
		node, idx := pool.Get()
		node.Child = u
		node.OpNum = i
		node.Idx = idx
		node.Next = producer.ODeps
		producer.ODeps = node
		u.IValues[i] = 0
		u.IValueValid[i] = false
	}
	for i := 0; i < u.NumODeps; i++ {
		reg := u.ODepNames[i]
		r.producers[reg] = append(r.producers[reg], u)
	}
}

// UndoDependencies reverses InstallDependencies for a uop being squashed.
// It must be the youngest producer of every output it installed — callers
// (the oracle's squash and undo paths) guarantee this by walking the MopQ
// youngest-first.
func (r *RenameMap) UndoDependencies(pool *FreePool, u *uop.Uop) {
	for i := 0; i < u.NumODeps; i++ {
		reg := u.ODepNames[i]
		list := r.producers[reg]
		if n := len(list); n > 0 && list[n-1] == u {
			r.producers[reg] = list[:n-1]
		}
	}
	for i := 0; i < u.NumIDeps; i++ {
		parent := u.IDeps[i]
		if parent == nil {
			continue
		}
		removeOdepFor(pool, parent, u)
		u.IDeps[i] = nil
	}
}

// CommitDependencies removes a retiring uop's outgoing edges and its own
// rename-map entries. It must be the oldest producer of each output.
func (r *RenameMap) CommitDependencies(pool *FreePool, u *uop.Uop) {
	for i := 0; i < u.NumODeps; i++ {
		reg := u.ODepNames[i]
		list := r.producers[reg]
		if len(list) > 0 && list[0] == u {
			r.producers[reg] = list[1:]
		}
	}
	// Return this uop's own odep nodes to the pool and clear the
	// back-pointer each surviving child holds to it.
	for node := u.ODeps; node != nil; {
		next := node.Next
		if node.Child != nil && node.OpNum < uop.MaxIDeps {
			node.Child.IDeps[node.OpNum] = nil
		}
		pool.Put(node.Idx)
		node = next
	}
	u.ODeps = nil
}

// removeOdepFor unlinks child from parent's odep list and returns the node
// to the pool — used when child is squashed but parent (older) survives.
func removeOdepFor(pool *FreePool, parent, child *uop.Uop) {
	var prev *uop.OdepNode
	for node := parent.ODeps; node != nil; node = node.Next {
		if node.Child == child {
			if prev == nil {
				parent.ODeps = node.Next
			} else {
				prev.Next = node.Next
			}
			pool.Put(node.Idx)
			return
		}
		prev = node
	}
}
