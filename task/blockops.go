package task

import (
	"fmt"

	"github.com/skift-os/kernel/block"
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/telemetry"
)

// Block suspends the calling task t until blocker's predicate becomes
// true or timeoutTicks elapses, per spec.md §4.3. timeoutTicks is
// relative to the current tick; pass block.NoTimeout for no deadline.
//
// Block never suspends on the fast path: if blocker.CanUnblock already
// reports true at installation time, its hook runs immediately and
// Block returns Unblocked without leaving the caller's goroutine.
func (r *Registry) Block(t *Task, b *block.Blocker, timeoutTicks int64) block.Result {
	t.blockerMu.Lock()
	if t.blocker != nil {
		t.blockerMu.Unlock()
		panic(fmt.Sprintf("task: Block called on task %d which already has a blocker installed", t.id))
	}
	t.blocker = b
	wake := make(chan block.Result, 1)
	t.wake = wake
	t.blockerMu.Unlock()

	r.crit.Enter()
	if b.CanUnblock() {
		if b.OnUnblock != nil {
			b.OnUnblock()
		}
		r.crit.Leave()
		t.blockerMu.Lock()
		t.blocker = nil
		t.wake = nil
		t.blockerMu.Unlock()
		return block.Unblocked
	}

	if timeoutTicks == block.NoTimeout {
		b.Deadline = block.NoTimeout
	} else {
		b.Deadline = r.clock.Now() + timeoutTicks
	}

	old := t.State()
	if old != Running {
		r.crit.Leave()
		panic(fmt.Sprintf("task: Block called on task %d in state %s, want running", t.id, old))
	}
	t.state.Store(int32(Blocked))
	r.hooks.DidChangeTaskState(t, old, Blocked)
	r.crit.Leave()

	r.logger.Trace("task blocked", "id", t.id, "deadline", b.Deadline)
	r.hooks.Yield()
	result := <-wake

	t.blockerMu.Lock()
	t.blocker = nil
	t.wake = nil
	t.blockerMu.Unlock()
	return result
}

// PollBlocked is the entry point a scheduler implementation calls once
// per tick, per spec.md §4.3: "the scheduler is expected to poll
// can_unblock on each tick for every BLOCKED task". Predicates are
// evaluated outside the critical section (they are caller-supplied and
// may take arbitrary time); only the resulting state transition is
// made atomically.
func (r *Registry) PollBlocked(currentTick int64) {
	r.crit.Enter()
	blocked := make([]*Task, 0, len(r.order))
	for _, t := range r.order {
		if t.State() == Blocked {
			blocked = append(blocked, t)
		}
	}
	r.crit.Leave()

	for _, t := range blocked {
		t.blockerMu.Lock()
		b := t.blocker
		wake := t.wake
		t.blockerMu.Unlock()
		if b == nil {
			continue
		}

		var result block.Result
		fire := false
		switch {
		case b.CanUnblock():
			if b.OnUnblock != nil {
				b.OnUnblock()
			}
			result = block.Unblocked
			fire = true
		case b.Deadline != block.NoTimeout && currentTick >= b.Deadline:
			result = block.Timeout
			fire = true
		}
		if !fire {
			continue
		}

		r.crit.Enter()
		old := t.State()
		if old != Blocked {
			// Raced with a Cancel that already delivered CANCELLED.
			r.crit.Leave()
			continue
		}
		b.Result = result
		t.state.Store(int32(Running))
		r.hooks.DidChangeTaskState(t, old, Running)
		r.crit.Leave()

		if wake != nil {
			select {
			case wake <- result:
			default:
			}
		}
	}
}

// Sleep installs a time blocker for timeoutTicks and always returns
// Timeout on completion, per spec.md §4.3. Sleep(-1) is forbidden: it
// would never wake, so it is a programmer-error assertion rather than
// an error return.
func (r *Registry) Sleep(t *Task, timeoutTicks int64) block.Result {
	if timeoutTicks == block.NoTimeout {
		panic("task: Sleep(-1) would never wake and is forbidden")
	}
	b := block.NewTimeBlocker(block.NoTimeout)
	r.Block(t, b, timeoutTicks)
	return block.Timeout
}

// Wait installs a wait blocker on caller for targetID, writing the
// target's exit value into *out once it terminates. It returns
// kernelerr.ErrNoSuchTask without blocking if targetID is unknown, per
// spec.md §4.3 and §8's boundary behaviour.
//
// spec.md §9's Open Question (b) notes that a naive implementation
// drops its atomic protection between looking up the target and
// installing the blocker, risking a use-after-free on the target. In
// this translation that race is moot: Destroy only ever removes a *Task
// from the registry's order slice and id map, it never frees the struct while any Go
// reference to it (including the closure this function hands to
// block.NewWaitBlocker) is still reachable, so the garbage collector
// keeps the target alive for exactly as long as this wait needs it.
func (r *Registry) Wait(caller *Task, targetID int64, out *int64) (block.Result, error) {
	target, ok := r.ByID(targetID)
	if !ok {
		telemetry.IncrCounter([]string{"task", "wait_no_such_task"}, 1)
		return 0, kernelerr.ErrNoSuchTask
	}
	b := block.NewWaitBlocker(target, out)
	result := r.Block(caller, b, block.NoTimeout)
	return result, nil
}
