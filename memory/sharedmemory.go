package memory

import (
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/telemetry"
)

// SharedMemoryAlloc creates a fresh Object of at least size bytes and
// maps it into t, returning the mapped address, per spec.md §4.5.
// The object's creation reference is dropped once the mapping holds
// its own, so the mapping becomes the object's sole owner.
func (r *Registry) SharedMemoryAlloc(t *task.Task, size int) (uintptr, error) {
	o, err := r.Create(size)
	if err != nil {
		return 0, err
	}
	m, err := r.createMapping(t, o, 0)
	if err != nil {
		r.Deref(o)
		return 0, err
	}
	r.Deref(o)

	telemetry.IncrCounter([]string{"memory", "shared_alloc"}, 1)
	return m.address, nil
}

// SharedMemoryFree unmaps the mapping at address from t, dropping the
// underlying object's reference, per spec.md §4.5. Returns
// kernelerr.ErrBadAddress if t has no mapping at exactly that address.
func (r *Registry) SharedMemoryFree(t *task.Task, address uintptr) error {
	m, ok := r.findMappingByAddress(t.ID(), address)
	if !ok {
		telemetry.IncrCounter([]string{"memory", "free_bad_address"}, 1)
		return kernelerr.ErrBadAddress
	}
	r.destroyMapping(t, m)
	telemetry.IncrCounter([]string{"memory", "shared_free"}, 1)
	return nil
}

// SharedMemoryInclude looks up the object named by handle and maps it
// into t, returning its address and size, per spec.md §4.5. Returns
// kernelerr.ErrBadAddress if handle names no live object.
func (r *Registry) SharedMemoryInclude(t *task.Task, handle int64) (uintptr, int, error) {
	o, ok := r.ByID(handle)
	if !ok {
		telemetry.IncrCounter([]string{"memory", "include_bad_handle"}, 1)
		return 0, 0, kernelerr.ErrBadAddress
	}
	m, err := r.createMapping(t, o, 0)
	if err != nil {
		r.Deref(o)
		return 0, 0, err
	}
	r.Deref(o)

	telemetry.IncrCounter([]string{"memory", "shared_include"}, 1)
	return m.address, m.size, nil
}

// SharedMemoryGetHandle returns the object id backing t's mapping at
// address, per spec.md §4.5. Returns kernelerr.ErrBadAddress if t has
// no mapping at exactly that address.
func (r *Registry) SharedMemoryGetHandle(t *task.Task, address uintptr) (int64, error) {
	m, ok := r.findMappingByAddress(t.ID(), address)
	if !ok {
		return 0, kernelerr.ErrBadAddress
	}
	return m.object.ID(), nil
}

// BytesAt returns the live storage backing t's mapping at address, for
// callers (tests, the demo command) that want to read or write through
// a shared mapping the way user-mode code would through its own
// virtual address space. Returns kernelerr.ErrBadAddress if t has no
// mapping at exactly that address, ok=false if the configured
// physical allocator exposes no backing storage.
func (r *Registry) BytesAt(t *task.Task, address uintptr) ([]byte, bool, error) {
	m, ok := r.findMappingByAddress(t.ID(), address)
	if !ok {
		return nil, false, kernelerr.ErrBadAddress
	}
	b, ok := r.Bytes(m)
	return b, ok, nil
}
