package memory

import (
	"github.com/skift-os/kernel/phys"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/vm"
)

// Mapping is one task's virtual window onto an Object, per spec.md §3.
// A Mapping holds one of the object's references for as long as it
// exists; Object.id doubles as the task-visible handle and the
// Mapping's address is the task-visible identity used to look it back
// up (spec.md §4.5's shared_memory_free and shared_memory_get_handle
// both key off the exact mapped address).
type Mapping struct {
	taskID  int64
	object  *Object
	address uintptr
	size    int
}

// Address returns the virtual base address this mapping occupies in
// its owning task.
func (m *Mapping) Address() uintptr { return m.address }

// Size returns the mapping's size in bytes.
func (m *Mapping) Size() int { return m.size }

// ObjectID returns the id of the Object this mapping windows onto.
func (m *Mapping) ObjectID() int64 { return m.object.ID() }

// Bytes returns a slice aliasing m's backing storage, if the
// registry's physical allocator exposes one (phys.BitmapAllocator
// does). Two mappings onto the same Object alias the same slice
// contents, which is what makes a write through one mapping visible
// through another, per spec.md §8's "shared ring" scenario.
func (r *Registry) Bytes(m *Mapping) ([]byte, bool) {
	bs, ok := r.phys.(phys.BackingStore)
	if !ok {
		return nil, false
	}
	return bs.Bytes(m.object.physicalBase, m.size), true
}

// createMapping refs o on t's behalf, reserves a fresh virtual range in
// t's address space backed by o's physical pages, and records the
// resulting Mapping, per spec.md §4.5.
func (r *Registry) createMapping(t *task.Task, o *Object, flags vm.Flags) (*Mapping, error) {
	r.ref(o)
	rng, err := t.AddressSpace().VirtualAlloc(vm.PhysRange{Base: o.physicalBase, Size: o.size}, flags|vm.FlagUser|vm.FlagClear)
	if err != nil {
		r.Deref(o)
		return nil, err
	}

	m := &Mapping{taskID: t.ID(), object: o, address: rng.Base, size: rng.Size}
	r.mappingsMu.Lock()
	r.mappings[t.ID()] = append(r.mappings[t.ID()], m)
	r.mappingsMu.Unlock()
	t.AddMappingID(o.ID())
	return m, nil
}

// destroyMapping tears down m: releases its virtual range, drops its
// reference on the underlying object, and removes it from t's
// bookkeeping.
func (r *Registry) destroyMapping(t *task.Task, m *Mapping) {
	t.AddressSpace().VirtualFree(vm.Range{Base: m.address, Size: m.size})
	r.Deref(m.object)

	r.mappingsMu.Lock()
	list := r.mappings[t.ID()]
	for i, candidate := range list {
		if candidate == m {
			r.mappings[t.ID()] = append(list[:i], list[i+1:]...)
			break
		}
	}
	r.mappingsMu.Unlock()
	t.RemoveMappingID(m.object.ID())
}

// findMappingByAddress looks up t's mapping at the exact address addr,
// per spec.md §4.5's "looked up by its base address (exact match)".
func (r *Registry) findMappingByAddress(taskID int64, addr uintptr) (*Mapping, bool) {
	r.mappingsMu.Lock()
	defer r.mappingsMu.Unlock()
	for _, m := range r.mappings[taskID] {
		if m.address == addr {
			return m, true
		}
	}
	return nil, false
}

// DestroyAllMappingsForTask tears down every mapping still owned by t.
// Wired as the task.Registry's destroy hook (task.WithDestroyHook), so
// a task's shared-memory mappings are released before its address
// space is destroyed, per spec.md §4.1 and §4.5.
func (r *Registry) DestroyAllMappingsForTask(t *task.Task) error {
	r.mappingsMu.Lock()
	list := append([]*Mapping(nil), r.mappings[t.ID()]...)
	delete(r.mappings, t.ID())
	r.mappingsMu.Unlock()

	for _, m := range list {
		t.AddressSpace().VirtualFree(vm.Range{Base: m.address, Size: m.size})
		r.Deref(m.object)
		t.RemoveMappingID(m.object.ID())
	}
	return nil
}
