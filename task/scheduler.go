package task

// SchedulerHooks is the narrow surface spec.md §6 lists under
// "Scheduler": the hand-off contract this layer reports transitions
// through, with selection policy itself left entirely external (the
// explicit non-goal in spec.md §1). task.Registry holds one of these
// and calls it whenever a transition described in §4.2 occurs.
//
// Running and RunningID are informational only. Every task here
// executes as its own concurrent goroutine (see the package doc
// comment), so there is no single hardware instruction pointer for
// "the current task" to describe; these two methods reflect whatever a
// particular SchedulerHooks implementation's selection policy
// considers current (sched.RoundRobin's queue head), used for Yield's
// rotation bookkeeping and for demo/log output. No correctness-critical
// path in this package relies on them — notably Exit takes its task
// explicitly rather than asking Running for it, see task.Registry.Exit.
type SchedulerHooks interface {
	// DidCreateIdleTask is called exactly once, when the kernel's idle
	// task is dispatched via Go.
	DidCreateIdleTask(t *Task)
	// DidCreateRunningTask is called when any non-idle task is
	// dispatched via Go.
	DidCreateRunningTask(t *Task)
	// DidChangeTaskState is called with (old, new) inside the same
	// atomic section as the transition, right after the new state has
	// been stored: t.State() already reports new while it runs, and no
	// other transition can intervene between the store and the call.
	DidChangeTaskState(t *Task, old, new State)
	// Running returns the task currently selected to run.
	Running() *Task
	// RunningID returns the id of the task currently selected to run.
	RunningID() int64
	// Yield is called at the one true suspension point inside Block,
	// after the task has already transitioned to Blocked and left its
	// atomic section. It is a cooperative hint, not the suspension
	// mechanism itself: the calling goroutine parks on the task's own
	// wake channel immediately afterward regardless of what Yield
	// does.
	Yield()
}

// NopHooks is a SchedulerHooks that does nothing beyond tracking the
// most recently reported "running" task, useful for unit tests that
// only exercise the task/block/memory layers without a real scheduler
// loop driving ticks.
type NopHooks struct {
	running *Task
}

func (h *NopHooks) DidCreateIdleTask(t *Task)                  { h.running = t }
func (h *NopHooks) DidCreateRunningTask(t *Task)                { h.running = t }
func (h *NopHooks) DidChangeTaskState(t *Task, old, new State) {}
func (h *NopHooks) Running() *Task                              { return h.running }
func (h *NopHooks) RunningID() int64 {
	if h.running == nil {
		return -1
	}
	return h.running.ID()
}
func (h *NopHooks) Yield() {}
