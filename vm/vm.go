// Package vm is the narrow address-space-manager interface spec.md §6
// names as an external collaborator, plus an in-memory fake used by
// tests and the demo command. The real page-table and virtual-memory
// layer is out of scope per spec.md §1's non-goals.
package vm

import (
	"fmt"
	"sync"

	set "github.com/hashicorp/go-set/v3"
)

// Flags controls the protection/visibility of a mapping.
type Flags uint8

const (
	// FlagUser marks a mapping visible to user-mode code.
	FlagUser Flags = 1 << iota
	// FlagClear requests the backing pages be zeroed before use.
	FlagClear
)

// Range is a virtual address range.
type Range struct {
	Base uintptr
	Size int
}

// PhysRange is a physical address range to be mapped into a Space.
type PhysRange struct {
	Base uintptr
	Size int
}

// Space is a single address space: a page-table configuration mapping
// virtual to physical pages, per the glossary in spec.md.
type Space interface {
	// Alloc reserves size bytes of fresh virtual address space backed
	// by newly allocated storage, used for per-task stacks.
	Alloc(size int, flags Flags) (Range, error)
	// Free releases a range obtained from Alloc.
	Free(r Range)
	// Map changes the protection flags of an already-mapped range.
	Map(r Range, flags Flags) error
	// VirtualAlloc reserves virtual address space mapping the given
	// physical range, used for shared-memory mappings.
	VirtualAlloc(phys PhysRange, flags Flags) (Range, error)
	// VirtualFree releases a range obtained from VirtualAlloc.
	VirtualFree(r Range)
}

// Manager creates, destroys and switches between address spaces, and
// exposes the one shared kernel space every kernel task runs in.
type Manager interface {
	KernelSpace() Space
	SpaceCreate() (Space, error)
	SpaceDestroy(Space)
	SpaceSwitch(Space)
}

// FakeSpace is a bump-allocated Space sufficient for tests and the
// demo command: it never reclaims virtual address ranges for reuse,
// trading realism for simplicity, and uses a set to track the bases
// currently considered live so Free/VirtualFree can be asserted for
// double-free in tests.
type FakeSpace struct {
	mu        sync.Mutex
	next      uintptr
	live      *set.Set[uintptr]
	destroyed bool
}

func newFakeSpace(start uintptr) *FakeSpace {
	return &FakeSpace{next: start, live: set.New[uintptr](0)}
}

func (s *FakeSpace) reserve(size int) uintptr {
	const align = 4096
	base := s.next
	s.next += uintptr((size + align - 1) / align * align)
	return base
}

func (s *FakeSpace) Alloc(size int, _ Flags) (Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return Range{}, fmt.Errorf("vm: space destroyed")
	}
	base := s.reserve(size)
	s.live.Insert(base)
	return Range{Base: base, Size: size}, nil
}

func (s *FakeSpace) Free(r Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Remove(r.Base)
}

func (s *FakeSpace) Map(_ Range, _ Flags) error {
	return nil
}

func (s *FakeSpace) VirtualAlloc(phys PhysRange, _ Flags) (Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return Range{}, fmt.Errorf("vm: space destroyed")
	}
	base := s.reserve(phys.Size)
	s.live.Insert(base)
	return Range{Base: base, Size: phys.Size}, nil
}

func (s *FakeSpace) VirtualFree(r Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Remove(r.Base)
}

// LiveRanges reports the currently-allocated bases, for assertions in
// tests.
func (s *FakeSpace) LiveRanges() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.Slice()
}

// FakeManager is an in-memory Manager backing tests and the demo
// command.
type FakeManager struct {
	kernel *FakeSpace
}

// NewFakeManager builds a FakeManager with its one shared kernel space
// starting virtual addresses at kernelBase.
func NewFakeManager(kernelBase uintptr) *FakeManager {
	return &FakeManager{kernel: newFakeSpace(kernelBase)}
}

func (m *FakeManager) KernelSpace() Space { return m.kernel }

func (m *FakeManager) SpaceCreate() (Space, error) {
	return newFakeSpace(0x1000_0000), nil
}

func (m *FakeManager) SpaceDestroy(s Space) {
	if fs, ok := s.(*FakeSpace); ok {
		fs.mu.Lock()
		fs.destroyed = true
		fs.mu.Unlock()
	}
}

func (m *FakeManager) SpaceSwitch(Space) {}
