// Package v2p implements the virtual-to-physical address space the
// oracle and the cache hierarchy share. It is a first-touch frame
// allocator behind a single lock, not an MMU model: page tables,
// multi-level walks, and TLB fill timing are the opaque cache.TLB's
// job, not this package's.
//
// Grounded on ehrlich-b-go-ublk/backend/mem.go's Memory backend for the
// "flat byte slice behind a lock, sized at construction" shape; v2p
// widens that to per-process (per-asid) address spaces and adds the
// mmap/brk bump-allocator semantics a functional x86 model needs.
package v2p

import (
	"fmt"
	"sync"
)

const PageSize = 4096

// Space is one process's virtual address space: a page table mapping
// virtual page number to physical frame number, shared in one flat
// physical arena across every asid registered with it (simulating a
// single machine's physical memory, not per-asid isolation of frames).
type Space struct {
	mu sync.Mutex

	pageTables map[uint32]map[uint64]uint64 // asid -> vpn -> pfn
	brk        map[uint32]uint64            // asid -> current brk vaddr

	nextFrame uint64
	maxFrames uint64
}

// New creates an address space backed by maxFrames physical frames
// (maxFrames*PageSize bytes total, shared across every asid).
func New(maxFrames uint64) *Space {
	return &Space{
		pageTables: make(map[uint32]map[uint64]uint64),
		brk:        make(map[uint32]uint64),
		maxFrames:  maxFrames,
	}
}

// ErrOOM is returned when the physical frame arena is exhausted.
var ErrOOM = fmt.Errorf("v2p: out of physical frames")

func vpn(vaddr uint64) uint64 { return vaddr / PageSize }

// Translate maps a virtual address to its physical address, first-touch
// allocating a frame if this (asid, page) pair has never been mapped.
func (s *Space) Translate(asid uint32, vaddr uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, ok := s.pageTables[asid]
	if !ok {
		pt = make(map[uint64]uint64)
		s.pageTables[asid] = pt
	}
	page := vpn(vaddr)
	pfn, ok := pt[page]
	if !ok {
		var err error
		pfn, err = s.allocFrame()
		if err != nil {
			return 0, err
		}
		pt[page] = pfn
	}
	offset := vaddr % PageSize
	return pfn*PageSize + offset, nil
}

// Mmap reserves length bytes of virtual address space starting at hint
// (or at the asid's current break if hint is 0), returning the base
// vaddr. It does not eagerly allocate frames; Translate does that on
// first touch.
func (s *Space) Mmap(asid uint32, hint uint64, length uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := hint
	if base == 0 {
		base = s.brk[asid]
	}
	end := base + length
	if end > s.brk[asid] {
		s.brk[asid] = alignUp(end, PageSize)
	}
	return base
}

// Munmap drops the page-table entries covering [vaddr, vaddr+length).
// Returning their frames to a free list is not modeled — frames are
// never reclaimed, since this is a functional model rather than a real
// allocator — but future Translate calls on that range re-fault.
func (s *Space) Munmap(asid uint32, vaddr uint64, length uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pt, ok := s.pageTables[asid]
	if !ok {
		return
	}
	start := vpn(vaddr)
	end := vpn(vaddr + length - 1)
	for p := start; p <= end; p++ {
		delete(pt, p)
	}
}

// Brk grows or shrinks the asid's break to newBrk, returning the
// resulting break (mirroring brk(2): a 0 argument just queries it).
func (s *Space) Brk(asid uint32, newBrk uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newBrk == 0 {
		return s.brk[asid]
	}
	s.brk[asid] = newBrk
	return s.brk[asid]
}

// NotifyWrite records that a store touched [vaddr, vaddr+size), forcing
// the backing frame to be allocated even if no load ever reads it
// first. The LDQ/STQ forwarding path never calls Translate on a pure
// store-to-store-forwarded write, so this keeps the physical arena
// consistent with what a real store would have faulted in.
func (s *Space) NotifyWrite(asid uint32, vaddr uint64, size uint64) error {
	if size == 0 {
		return nil
	}
	for p := vpn(vaddr); p <= vpn(vaddr+size-1); p++ {
		if _, err := s.Translate(asid, p*PageSize); err != nil {
			return err
		}
	}
	return nil
}

func (s *Space) allocFrame() (uint64, error) {
	if s.maxFrames != 0 && s.nextFrame >= s.maxFrames {
		return 0, ErrOOM
	}
	f := s.nextFrame
	s.nextFrame++
	return f, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
