// Package task implements the per-task object, the global task
// registry, and the authoritative state machine described in spec.md
// §3, §4.1, §4.2 and §4.4 (components C1, C2, C4). A Task's execution
// is represented as a goroutine launched by Go; blocking is a channel
// receive on the task's own wake channel, filled in by whichever call
// transitions it back out of Blocked.
package task

import (
	"sync"
	"sync/atomic"

	set "github.com/hashicorp/go-set/v3"
	"github.com/skift-os/kernel/archctx"
	"github.com/skift-os/kernel/block"
	"github.com/skift-os/kernel/vfspath"
	"github.com/skift-os/kernel/vm"
)

// MaxNameLength is the fixed name buffer size spec.md §3 calls out
// ("bounded length, e.g. 64 bytes"); names longer than this are
// silently truncated, matching original_source/kernel/tasking.c's
// fixed-size strlcpy-style copy (see SPEC_FULL.md's supplemented
// features).
const MaxNameLength = 64

// HandleTableSize is the fixed number of slots in a task's handle
// table.
const HandleTableSize = 256

// Entry is a task's initial instruction pointer, represented as the Go
// closure run on the task's own goroutine once Go() dispatches it.
// Entry receives the owning Task so it can report its own exit and
// access its arg payload.
type Entry func(t *Task)

// Task is a single unit of execution, per spec.md §3.
type Task struct {
	id     int64
	name   string
	user   bool
	parent int64 // id of the spawning task, -1 if none

	space vm.Space

	entry Entry
	arg   any

	stack      []byte
	stackRange vm.Range
	stackPtr   uintptr

	savedContext archctx.SavedContext

	state atomic.Int32 // State, written only under Registry's section

	handleMu sync.Mutex
	handles  [HandleTableSize]any

	cwdMu sync.Mutex
	cwd   vfspath.Path

	mappingMu  sync.Mutex
	mappingIDs *set.Set[int64]

	blockerMu sync.Mutex
	blocker   *block.Blocker
	wake      chan block.Result

	exitValue atomic.Int64
}

// ID returns the task's process-wide unique id.
func (t *Task) ID() int64 { return t.id }

// Name returns the task's (possibly truncated) label.
func (t *Task) Name() string { return t.name }

// User reports whether this is a user task (as opposed to a kernel
// task sharing the kernel's address space).
func (t *Task) User() bool { return t.user }

// ParentID returns the id of the task that spawned this one, or -1 if
// it was created with no parent.
func (t *Task) ParentID() int64 { return t.parent }

// State returns the task's current state. Safe to call concurrently
// with transitions; it never observes a torn value, only ever the
// state immediately before or after a transition.
func (t *Task) State() State { return State(t.state.Load()) }

// IsCanceled reports whether the task has reached the terminal
// CANCELED state, satisfying block.WaitTarget.
func (t *Task) IsCanceled() bool { return t.State() == Canceled }

// ExitValue returns the value passed to the most recent Cancel call,
// satisfying block.WaitTarget.
func (t *Task) ExitValue() int64 { return t.exitValue.Load() }

// Arg returns the payload installed by Spawn, or the argv slice (after
// MaxArgv truncation) installed by SpawnWithArgv.
func (t *Task) Arg() any { return t.arg }

// AddressSpace returns the address space this task executes in.
func (t *Task) AddressSpace() vm.Space { return t.space }

// StackRange returns the virtual range backing this task's stack.
func (t *Task) StackRange() vm.Range { return t.stackRange }

// AddMappingID records that a memory mapping with the given id now
// belongs to this task. Called by the memory package, which owns the
// Mapping objects themselves; Task only tracks membership, per
// spec.md §3's memory_mappings attribute, to avoid a package cycle
// between task and memory (see DESIGN.md).
func (t *Task) AddMappingID(id int64) {
	t.mappingMu.Lock()
	defer t.mappingMu.Unlock()
	t.mappingIDs.Insert(id)
}

// RemoveMappingID drops a previously recorded mapping id.
func (t *Task) RemoveMappingID(id int64) {
	t.mappingMu.Lock()
	defer t.mappingMu.Unlock()
	t.mappingIDs.Remove(id)
}

// MappingIDs returns the ids of every mapping currently recorded
// against this task, in no particular order.
func (t *Task) MappingIDs() []int64 {
	t.mappingMu.Lock()
	defer t.mappingMu.Unlock()
	return t.mappingIDs.Slice()
}

// Handle returns the resource installed at index i of the handle
// table, or nil if the slot is empty or i is out of range.
func (t *Task) Handle(i int) any {
	if i < 0 || i >= HandleTableSize {
		return nil
	}
	t.handleMu.Lock()
	defer t.handleMu.Unlock()
	return t.handles[i]
}

// SetHandle installs h at index i of the handle table, replacing
// whatever was there.
func (t *Task) SetHandle(i int, h any) {
	if i < 0 || i >= HandleTableSize {
		return
	}
	t.handleMu.Lock()
	defer t.handleMu.Unlock()
	t.handles[i] = h
}

// ClearHandle empties slot i and returns whatever was installed
// there.
func (t *Task) ClearHandle(i int) any {
	if i < 0 || i >= HandleTableSize {
		return nil
	}
	t.handleMu.Lock()
	defer t.handleMu.Unlock()
	h := t.handles[i]
	t.handles[i] = nil
	return h
}

// closeAllHandles clears every occupied slot, closing anything that
// implements io.Closer, and returns every error a Close reported (nil
// if none did). Called from Destroy.
func (t *Task) closeAllHandles() []error {
	t.handleMu.Lock()
	defer t.handleMu.Unlock()
	var errs []error
	for i, h := range t.handles {
		if h == nil {
			continue
		}
		if c, ok := h.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		t.handles[i] = nil
	}
	return errs
}

// pushBytes simulates pushing raw bytes onto the task's downward-
// growing stack, decrementing the stack pointer first the way a real
// push does, and returns the address the bytes now live at.
func (t *Task) pushBytes(b []byte) uintptr {
	t.stackPtr -= uintptr(len(b))
	off := t.stackPtr - t.stackRange.Base
	copy(t.stack[off:off+uintptr(len(b))], b)
	return t.stackPtr
}

// pushUintptr pushes a single pointer-sized value.
func (t *Task) pushUintptr(v uintptr) uintptr {
	const size = 8
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return t.pushBytes(b)
}

// StackPointer returns the task's current simulated stack pointer.
func (t *Task) StackPointer() uintptr { return t.stackPtr }
