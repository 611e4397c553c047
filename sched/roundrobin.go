// Package sched provides the reference round-robin implementation of
// task.SchedulerHooks, spec.md §6's scheduler collaborator. Selection
// policy is explicitly out of scope for spec.md (§1's non-goals); this
// package exists only so the end-to-end scenarios in spec.md §8 have
// something real driving ticks and hand-off, the same role nomad's
// `client` package gives a concrete `allocrunner` driving abstract
// `TaskHooks`.
package sched

import (
	"context"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/telemetry"
	"github.com/skift-os/kernel/tick"
)

// RoundRobin cycles runnable tasks in FIFO order, falling back to the
// idle task when the runnable queue is empty. It implements
// task.SchedulerHooks.
//
// Because every task here already executes concurrently as its own
// goroutine, RoundRobin does not itself dispatch anything; "currently
// selected" is a bookkeeping fiction kept for Running/RunningID and
// for deciding which task Yield hands off to next. The one thing
// RoundRobin actually drives is the §4.3 poll loop: Run ticks the
// clock and calls task.Registry.PollBlocked once per tick, the
// mechanism that delivers TIMEOUT and predicate-satisfied unblocks.
type RoundRobin struct {
	mu      sync.Mutex
	clock   tick.Clock
	queue   []*task.Task
	current *task.Task
	idle    *task.Task
	logger  hclog.Logger
}

// New builds a RoundRobin ticking against clock. The task.Registry it
// drives is supplied later to Run, not here: a Registry needs its
// SchedulerHooks at construction time, so New necessarily runs before
// any Registry exists that could be handed to it.
func New(clock tick.Clock, logger hclog.Logger) *RoundRobin {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	telemetry.Init("kernel")
	return &RoundRobin{clock: clock, logger: logger.Named("sched")}
}

func (rr *RoundRobin) DidCreateIdleTask(t *task.Task) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.idle = t
	if rr.current == nil {
		rr.current = t
	}
}

func (rr *RoundRobin) DidCreateRunningTask(t *task.Task) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.current == nil || rr.current == rr.idle {
		rr.current = t
		return
	}
	rr.queue = append(rr.queue, t)
}

func (rr *RoundRobin) DidChangeTaskState(t *task.Task, old, newState task.State) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	switch newState {
	case task.Running:
		if old == task.Blocked && !rr.containsLocked(t) {
			rr.queue = append(rr.queue, t)
		}
	case task.Blocked, task.Hang, task.Canceled, task.None:
		rr.removeLocked(t)
		if rr.current == t {
			rr.current = nil
		}
	}
}

func (rr *RoundRobin) containsLocked(t *task.Task) bool {
	for _, candidate := range rr.queue {
		if candidate == t {
			return true
		}
	}
	return false
}

func (rr *RoundRobin) removeLocked(t *task.Task) {
	for i, candidate := range rr.queue {
		if candidate == t {
			rr.queue = append(rr.queue[:i], rr.queue[i+1:]...)
			return
		}
	}
}

// Running returns the task currently selected to run, or the idle
// task if nothing else is runnable.
func (rr *RoundRobin) Running() *task.Task {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.current != nil {
		return rr.current
	}
	return rr.idle
}

// RunningID returns the id of the currently selected task, or -1 if
// none has ever been selected.
func (rr *RoundRobin) RunningID() int64 {
	t := rr.Running()
	if t == nil {
		return -1
	}
	return t.ID()
}

// Yield rotates the runnable queue: the current task moves to the
// back, and the next entry (or the idle task, if the queue is empty)
// becomes current.
func (rr *RoundRobin) Yield() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.current != nil && rr.current != rr.idle {
		rr.queue = append(rr.queue, rr.current)
	}
	if len(rr.queue) == 0 {
		rr.current = rr.idle
		return
	}
	rr.current, rr.queue = rr.queue[0], rr.queue[1:]
}

// Run drives the §4.3 poll loop against reg until ctx is done: once
// per tick it advances the clock (if it is a *tick.Manual) and calls
// reg.PollBlocked, delivering TIMEOUT and predicate-satisfied unblocks
// to every BLOCKED task. interval is the wall-clock pause between
// polls.
func (rr *RoundRobin) Run(ctx context.Context, reg *task.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m, ok := rr.clock.(*tick.Manual); ok {
				m.Advance(1)
			}
			reg.PollBlocked(rr.clock.Now())
		}
	}
}
