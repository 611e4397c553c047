package task

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	set "github.com/hashicorp/go-set/v3"
	"github.com/skift-os/kernel/archctx"
	"github.com/skift-os/kernel/internal/critical"
	"github.com/skift-os/kernel/telemetry"
	"github.com/skift-os/kernel/tick"
	"github.com/skift-os/kernel/vfspath"
	"github.com/skift-os/kernel/vm"
)

// MaxArgv is the compile-time maximum number of argv entries
// spawn_with_argv will push; extra arguments are discarded, per
// spec.md §4.1.
const MaxArgv = 32

// DefaultStackSize is the fixed per-task stack size spec.md §3
// describes as "a few pages": 16KiB, which is four pages on a 4KiB
// page platform and a single page on a 16KiB one.
const DefaultStackSize = 4 * 4096

// Registry is the global table of live tasks, component C1. All
// membership, id-allocation and state mutation happens under its
// critical section, matching spec.md §5's "One atomic section
// protects: task state, registry membership, task id allocation."
type Registry struct {
	crit critical.Section

	hooks  SchedulerHooks
	clock  tick.Clock
	vmMgr  vm.Manager
	logger hclog.Logger

	nextID int64
	order  []*Task
	byID   map[int64]*Task

	maxArgv   int
	stackSize int

	// onDestroy is invoked, outside the critical section, before a
	// task's own resources (stack, handles, cwd, address space) are
	// torn down. The kernel facade wires this to the shared-memory
	// registry's per-task mapping teardown, keeping task and memory
	// free of a direct import cycle (see DESIGN.md).
	onDestroy func(t *Task) error
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithHooks installs the scheduler hand-off surface. Defaults to
// &NopHooks{} if never set.
func WithHooks(h SchedulerHooks) Option { return func(r *Registry) { r.hooks = h } }

// WithClock installs the tick source. Defaults to a wall clock at
// millisecond resolution if never set.
func WithClock(c tick.Clock) Option { return func(r *Registry) { r.clock = c } }

// WithAddressSpaceManager installs the address-space manager.
func WithAddressSpaceManager(m vm.Manager) Option { return func(r *Registry) { r.vmMgr = m } }

// WithLogger installs a logger; subsystems name their own sub-scope
// off of it.
func WithLogger(l hclog.Logger) Option { return func(r *Registry) { r.logger = l.Named("task") } }

// WithStackSize overrides DefaultStackSize.
func WithStackSize(n int) Option { return func(r *Registry) { r.stackSize = n } }

// WithDestroyHook installs the callback Destroy runs, outside the
// critical section, before releasing a task's own resources.
func WithDestroyHook(fn func(t *Task) error) Option {
	return func(r *Registry) { r.onDestroy = fn }
}

// NewRegistry builds an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID:      map[int64]*Task{},
		hooks:     &NopHooks{},
		clock:     tick.NewWallClock(1_000_000), // 1 tick per millisecond-equivalent
		logger:    hclog.NewNullLogger(),
		maxArgv:   MaxArgv,
		stackSize: DefaultStackSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.vmMgr == nil {
		r.vmMgr = vm.NewFakeManager(0x4000_0000)
	}
	telemetry.Init("kernel")
	return r
}

// Count returns the number of tasks currently in the registry.
func (r *Registry) Count() int {
	r.crit.Enter()
	defer r.crit.Leave()
	return len(r.order)
}

// ByID looks id up in the registry's id map under the critical
// section.
func (r *Registry) ByID(id int64) (*Task, bool) {
	r.crit.Enter()
	defer r.crit.Leave()
	t, ok := r.byID[id]
	return t, ok
}

// Canceled returns a snapshot of every task currently in the CANCELED
// state, taken under the critical section, per spec.md §4.6's "under
// atomic, iterate the task registry". The reaper calls Destroy on each
// entry afterwards, outside this snapshot's section, the same
// snapshot-then-act pattern PollBlocked uses.
func (r *Registry) Canceled() []*Task {
	r.crit.Enter()
	defer r.crit.Leave()
	out := make([]*Task, 0)
	for _, t := range r.order {
		if t.State() == Canceled {
			out = append(out, t)
		}
	}
	return out
}

// createLocked allocates and initializes a new Task. Callers must
// already hold r.crit; this is the *Locked sibling Spawn and
// SpawnWithArgv call directly so the whole create-plus-install
// sequence is one atomic region instead of two nested ones (see
// internal/critical's package doc).
func (r *Registry) createLocked(parentID int64, name string, user bool) (*Task, error) {
	r.nextID++
	id := r.nextID

	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}

	var space vm.Space
	if user {
		s, err := r.vmMgr.SpaceCreate()
		if err != nil {
			return nil, fmt.Errorf("task: create address space: %w", err)
		}
		space = s
	} else {
		space = r.vmMgr.KernelSpace()
	}

	stackRange, err := space.Alloc(r.stackSize, vm.FlagClear)
	if err != nil {
		return nil, fmt.Errorf("task: allocate stack: %w", err)
	}

	cwd := vfspath.Root()
	if p, ok := r.byID[parentID]; ok {
		p.cwdMu.Lock()
		cwd = p.cwd.Clone()
		p.cwdMu.Unlock()
	}

	t := &Task{
		id:           id,
		name:         name,
		user:         user,
		parent:       parentID,
		space:        space,
		stack:        make([]byte, r.stackSize),
		stackRange:   stackRange,
		stackPtr:     stackRange.Base + uintptr(r.stackSize),
		savedContext: archctx.SavedContext{},
		cwd:          cwd,
		mappingIDs:   set.New[int64](0),
	}
	t.state.Store(int32(None))
	t.exitValue.Store(0)

	r.order = append(r.order, t)
	r.byID[id] = t

	telemetry.IncrCounter([]string{"task", "created"}, 1)
	r.logger.Debug("created task", "id", id, "name", name, "user", user)
	return t, nil
}

// Create allocates a new task with no entry point installed yet, per
// spec.md §4.1. Must be called inside an already-active atomic
// section; callers that are not already inside one should use Spawn
// or SpawnWithArgv instead, which enter the section themselves.
func (r *Registry) Create(parentID int64, name string, user bool) (*Task, error) {
	r.crit.AssertEntered()
	return r.createLocked(parentID, name, user)
}

// Spawn creates a task, installs entry, and arranges for arg to be
// delivered as the entry's first argument, per spec.md §4.1. The
// entire create-plus-install sequence is one atomic region.
func (r *Registry) Spawn(parentID int64, name string, entry Entry, arg any, user bool) (*Task, error) {
	r.crit.Enter()
	defer r.crit.Leave()
	t, err := r.createLocked(parentID, name, user)
	if err != nil {
		return nil, err
	}
	t.entry = entry
	t.arg = arg
	t.pushUintptr(uintptr(0)) // symbolic: reserve the slot a real ABI would use for arg
	return t, nil
}

// SpawnWithArgv is like Spawn, but pushes each argv string, then an
// array of pointers to them, then (argvRef, argc), bounded by MaxArgv,
// per spec.md §4.1. Extra arguments beyond MaxArgv are discarded.
func (r *Registry) SpawnWithArgv(parentID int64, name string, entry Entry, argv []string, user bool) (*Task, error) {
	r.crit.Enter()
	defer r.crit.Leave()
	t, err := r.createLocked(parentID, name, user)
	if err != nil {
		return nil, err
	}
	if len(argv) > r.maxArgv {
		argv = argv[:r.maxArgv]
	}

	ptrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		addr := t.pushBytes(append([]byte(argv[i]), 0))
		ptrs[i] = addr
	}
	arrayBase := uintptr(0)
	for i := len(ptrs) - 1; i >= 0; i-- {
		arrayBase = t.pushUintptr(ptrs[i])
	}
	t.pushUintptr(uintptr(len(ptrs))) // argc
	t.pushUintptr(arrayBase)          // argv_ref

	t.entry = entry
	t.arg = argv
	return t, nil
}

// Go finalizes the initial interrupt-return frame for t and
// transitions it NONE -> RUNNING, after which the scheduler may pick
// it. idle marks whether this is the kernel's idle task, determining
// which creation hook the scheduler receives.
func (r *Registry) Go(t *Task, idle bool) error {
	r.crit.Enter()
	old := t.State()
	if old != None {
		r.crit.Leave()
		panic(fmt.Sprintf("task: Go called on task %d in state %s, want none", t.id, old))
	}

	frame := archctx.NewInitialFrame(0, t.stackRange.Base+uintptr(len(t.stack)))
	_ = frame // the frame's job in a real kernel is to prime an iret; here dispatch is a goroutine launch

	t.state.Store(int32(Running))
	r.hooks.DidChangeTaskState(t, old, Running)
	if idle {
		r.hooks.DidCreateIdleTask(t)
	} else {
		r.hooks.DidCreateRunningTask(t)
	}
	r.crit.Leave()

	telemetry.IncrCounter([]string{"task", "dispatched"}, 1)
	if t.entry != nil {
		go t.entry(t)
	}
	return nil
}

// Destroy reclaims a task. Prerequisite: the task's state is CANCELED.
// The registry-membership transition to NONE happens under the
// critical section; resource teardown (memory mappings via the
// destroy hook, handles, cwd, stack, address space) happens outside
// it, matching spec.md §4.1's "then outside the atomic" sequencing.
func (r *Registry) Destroy(t *Task) error {
	r.crit.Enter()
	old := t.State()
	if old != Canceled {
		r.crit.Leave()
		panic(fmt.Sprintf("task: Destroy called on task %d in state %s, want canceled", t.id, old))
	}
	t.state.Store(int32(None))
	r.hooks.DidChangeTaskState(t, old, None)

	for i, candidate := range r.order {
		if candidate == t {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.byID, t.id)
	r.crit.Leave()

	var merr *multierror.Error
	if r.onDestroy != nil {
		if err := r.onDestroy(t); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	for _, err := range t.closeAllHandles() {
		merr = multierror.Append(merr, err)
	}

	t.cwdMu.Lock()
	t.cwd = vfspath.Path{}
	t.cwdMu.Unlock()

	t.space.Free(t.stackRange)
	if t.user {
		r.vmMgr.SpaceDestroy(t.space)
	}

	telemetry.IncrCounter([]string{"task", "destroyed"}, 1)
	r.logger.Debug("destroyed task", "id", t.id, "name", t.name)
	if merr != nil {
		return merr.ErrorOrNil()
	}
	return nil
}
