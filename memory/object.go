// Package memory implements the shared-memory object and mapping
// abstraction described in spec.md §4.5 (component C5): reference-
// counted, physically-backed Objects, and per-task virtual Mappings
// onto them. The id of an Object is the cross-task capability: handing
// another task an id via shared_memory_get_handle lets it call
// SharedMemoryInclude to gain access to the same physical pages.
package memory

import (
	"sync"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/skift-os/kernel/phys"
	"github.com/skift-os/kernel/telemetry"
)

// Object is a reference-counted, physically-backed shared-memory
// object, per spec.md §3.
type Object struct {
	id           int64
	refcount     atomic.Int64
	physicalBase uintptr
	size         int
}

// ID returns the object's process-wide unique id, the capability used
// to share it across tasks.
func (o *Object) ID() int64 { return o.id }

// Size returns the object's size in bytes, rounded up to a page.
func (o *Object) Size() int { return o.size }

// Refcount returns the object's current reference count, for tests
// and telemetry.
func (o *Object) Refcount() int64 { return o.refcount.Load() }

// Registry is the global shared-memory registry, guarded by a single
// lock used whenever a refcount crosses zero or an id is looked up,
// per spec.md §3 and §5.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	objects map[int64]*Object

	mappingsMu sync.Mutex
	mappings   map[int64][]*Mapping // keyed by owning task id

	phys   phys.Allocator
	logger hclog.Logger
}

// NewRegistry builds an empty shared-memory registry backed by alloc
// for physical pages.
func NewRegistry(alloc phys.Allocator, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	telemetry.Init("kernel")
	return &Registry{
		objects:  map[int64]*Object{},
		mappings: map[int64][]*Mapping{},
		phys:     alloc,
		logger:   logger.Named("memory"),
	}
}

// Create rounds size up to a whole number of pages, reserves that many
// contiguous physical pages, and registers a new Object with
// refcount 1, per spec.md §4.5.
func (r *Registry) Create(size int) (*Object, error) {
	nPages := phys.PagesForSize(size)
	base, err := r.phys.Alloc(nPages)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.nextID++
	o := &Object{id: r.nextID, physicalBase: base, size: nPages * phys.PageSize}
	o.refcount.Store(1)
	r.objects[o.id] = o
	r.mu.Unlock()

	telemetry.IncrCounter([]string{"memory", "object_created"}, 1)
	r.logger.Debug("created memory object", "id", o.id, "size", o.size)
	return o, nil
}

// ref increments o's refcount. Lock-free: no increment can ever race
// with the decrement-to-zero path to resurrect a dying object, since
// the only way to obtain an *Object to ref is either already holding
// one (an existing mapping) or through ByID, which takes its own
// reference under the registry lock before returning.
func (r *Registry) ref(o *Object) {
	o.refcount.Add(1)
}

// Deref decrements o's refcount under the registry lock and, if that
// drives it to zero, removes it from the registry and frees its
// physical pages, per spec.md §4.5 and §5: "the decrement-to-zero path
// holds the shared-memory registry lock so that concurrent id lookups
// cannot resurrect a dying object."
func (r *Registry) Deref(o *Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.refcount.Add(-1) != 0 {
		return
	}
	delete(r.objects, o.id)
	r.phys.Free(o.physicalBase, phys.PagesForSize(o.size))
	telemetry.IncrCounter([]string{"memory", "object_destroyed"}, 1)
	r.logger.Debug("destroyed memory object", "id", o.id)
}

// ByID locates an object by id under the registry lock and atomically
// refs it before returning, per spec.md §4.5.
func (r *Registry) ByID(id int64) (*Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[id]
	if !ok {
		return nil, false
	}
	o.refcount.Add(1)
	return o, true
}

// Count returns the number of live objects, for tests.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}
