// Package phys is the narrow physical-frame allocator interface
// spec.md §6 names as an external collaborator, plus a bitmap-backed
// implementation suitable for tests and the demo command. The real
// frame allocator (NUMA awareness, zones, reclaim) is out of scope per
// spec.md §1's non-goals; this module only ever needs "give me N
// contiguous pages" and "take them back".
package phys

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize is the platform page size, read once from the host via
// golang.org/x/sys/unix the way a real kernel would read it from the
// boot-time memory map, rather than hardcoding 4096.
var PageSize = unix.Getpagesize()

// Allocator hands out and reclaims contiguous runs of physical pages.
type Allocator interface {
	// Alloc reserves nPages contiguous pages and returns their base
	// physical address.
	Alloc(nPages int) (base uintptr, err error)
	// Free releases nPages contiguous pages starting at base.
	Free(base uintptr, nPages int)
}

// BackingStore is implemented by allocators that can also hand back a
// live view of the bytes a physical range occupies. Real physical
// memory is just an array of bytes a CPU can address; BitmapAllocator
// models that literally so two mappings onto the same object actually
// alias the same storage, the way spec.md §8's "shared ring" scenario
// requires.
type BackingStore interface {
	// Bytes returns a slice aliasing the live storage for the size
	// bytes starting at base. Mutations through the slice are visible to every
	// other view of the same range.
	Bytes(base uintptr, size int) []byte
}

// BitmapAllocator is a first-fit allocator over a fixed arena, tracked
// with a simple free bitmap, backed by a real byte array so mappings
// onto the same allocation alias the same memory. It exists to give
// tests and the demo command something real to allocate shared-memory
// objects against.
type BitmapAllocator struct {
	mu    sync.Mutex
	base  uintptr
	total int
	free  []bool // free[i] is true if page i is unallocated
	arena []byte
}

// NewBitmapAllocator creates an allocator managing totalPages pages
// starting at physical address base.
func NewBitmapAllocator(base uintptr, totalPages int) *BitmapAllocator {
	free := make([]bool, totalPages)
	for i := range free {
		free[i] = true
	}
	return &BitmapAllocator{base: base, total: totalPages, free: free, arena: make([]byte, totalPages*PageSize)}
}

// Bytes returns a slice aliasing the arena's storage for the range
// [base, base+size), satisfying BackingStore.
func (a *BitmapAllocator) Bytes(base uintptr, size int) []byte {
	off := int(base - a.base)
	return a.arena[off : off+size]
}

func (a *BitmapAllocator) Alloc(nPages int) (uintptr, error) {
	if nPages <= 0 {
		return 0, fmt.Errorf("phys: nPages must be positive, got %d", nPages)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	start := -1
	for i := 0; i < a.total; i++ {
		if a.free[i] {
			if run == 0 {
				start = i
			}
			run++
			if run == nPages {
				for j := start; j < start+nPages; j++ {
					a.free[j] = false
				}
				return a.base + uintptr(start*PageSize), nil
			}
		} else {
			run = 0
			start = -1
		}
	}
	return 0, fmt.Errorf("phys: out of physical memory for %d pages", nPages)
}

func (a *BitmapAllocator) Free(base uintptr, nPages int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := int((base - a.base) / uintptr(PageSize))
	for i := start; i < start+nPages && i < a.total; i++ {
		a.free[i] = true
	}
}

// PagesForSize rounds size up to a whole number of pages. A size of
// zero or less counts as one page.
func PagesForSize(size int) int {
	if size <= 0 {
		return 1
	}
	return (size + PageSize - 1) / PageSize
}
