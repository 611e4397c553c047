package task

import (
	"fmt"
	"runtime"

	"github.com/skift-os/kernel/block"
	"github.com/skift-os/kernel/telemetry"
)

// Cancel transitions t to CANCELED and stores exitValue, per spec.md
// §4.4. It does not free any resources; that is Destroy's job, run
// later by the reaper. If t is currently BLOCKED, its blocker is
// delivered a CANCELLED result immediately rather than waiting for the
// next scheduler poll tick — the decision recorded for spec.md §9's
// Open Question (c).
func (r *Registry) Cancel(t *Task, exitValue int64) {
	r.crit.Enter()
	old := t.State()
	if !validTransition(old, Canceled) {
		r.crit.Leave()
		panic(fmt.Sprintf("task: invalid transition %s -> canceled for task %d", old, t.id))
	}
	t.exitValue.Store(exitValue)
	t.state.Store(int32(Canceled))
	r.hooks.DidChangeTaskState(t, old, Canceled)
	var wake chan block.Result
	if old == Blocked {
		t.blockerMu.Lock()
		if t.blocker != nil {
			t.blocker.Result = block.Cancelled
			wake = t.wake
		}
		t.blockerMu.Unlock()
	}
	r.crit.Leave()

	if wake != nil {
		select {
		case wake <- block.Cancelled:
		default:
		}
	}

	telemetry.IncrCounter([]string{"task", "canceled"}, 1)
	r.logger.Debug("canceled task", "id", t.id, "exit_value", exitValue)
}

// SetHang transitions t from RUNNING to HANG, the state reserved for
// the idle task: eligible only when nothing else is runnable.
func (r *Registry) SetHang(t *Task) {
	r.crit.Enter()
	defer r.crit.Leave()
	old := t.State()
	if !validTransition(old, Hang) {
		panic(fmt.Sprintf("task: invalid transition %s -> hang for task %d", old, t.id))
	}
	t.state.Store(int32(Hang))
	r.hooks.DidChangeTaskState(t, old, Hang)
}

// Exit cancels self with exitValue, yields to the scheduler, and then
// terminates self's own goroutine via runtime.Goexit. spec.md §7 calls
// reaching the end of exit a programmer-error assertion because on
// real hardware the scheduler never resumes a CANCELED task's
// instruction pointer; the equivalent guarantee here is that the
// goroutine that called Exit never executes another line of its
// Entry, deferred calls aside. Goexit, not panic: a task exiting is
// routine, not a kernel bug, and panicking the goroutine would crash
// the whole process since Go() launches entries unrecovered.
//
// spec.md's exit() takes no task argument, since on real hardware only
// one task ever executes at a time and "the current task" is
// unambiguous. This translation runs every task as its own concurrent
// goroutine (see the task package doc comment), so self must be
// supplied explicitly — exactly the self Entry already receives, which
// is why every Entry is handed its own Task.
func (r *Registry) Exit(self *Task, exitValue int64) {
	r.Cancel(self, exitValue)
	r.hooks.Yield()
	runtime.Goexit()
}
