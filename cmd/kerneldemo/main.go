// Command kerneldemo exercises the end-to-end scenarios spec.md §8
// lists, against a live kernel.Kernel, the way nomad's own e2e suite
// drives a real client against a test server instead of mocking it.
package main

import (
	"fmt"
	"os"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/skift-os/kernel/block"
	"github.com/skift-os/kernel/kernel"
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/tick"
)

// reaperSweepMargin comfortably exceeds the demo kernel's
// WithReaperInterval(5) so a single clock advance is guaranteed to
// trigger at least one sweep.
const reaperSweepMargin = 10

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "kerneldemo",
		Level: hclog.Info,
	})

	clock := tick.NewManual()
	k, err := kernel.New(
		kernel.WithLogger(logger),
		kernel.WithClock(clock),
		kernel.WithPollInterval(time.Millisecond),
		kernel.WithReaperInterval(5),
	)
	if err != nil {
		logger.Error("boot failed", "error", err)
		os.Exit(1)
	}
	defer k.Shutdown()

	echoWait(k, clock, logger)
	sharedRing(k, logger)
	timeoutScenario(k, clock, logger)
	cancelMidBlock(k, clock, logger)
	badFree(k, logger)
	idleFallback(k, logger)
}

// Scenario 1: echo wait.
func echoWait(k *kernel.Kernel, clock *tick.Manual, logger hclog.Logger) {
	parent, err := k.Tasks.Spawn(-1, "parent", func(*task.Task) {}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(parent, false))

	child, err := k.Tasks.Spawn(parent.ID(), "child", func(self *task.Task) {
		k.Tasks.Exit(self, 42)
	}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(child, false))

	var exitValue int64
	result, err := k.Tasks.Wait(parent, child.ID(), &exitValue)
	must(logger, err)

	// Drive the reaper's sleep past its interval so it sweeps the
	// now-CANCELED child before the by_id assertion below.
	clock.Advance(reaperSweepMargin)
	k.Tasks.PollBlocked(clock.Now())

	waitForResult(logger, "echo-wait", result == block.Unblocked, func() bool {
		_, ok := k.Tasks.ByID(child.ID())
		return !ok
	})

	logger.Info("echo wait", "exit_value", exitValue)
}

// Scenario 2: shared ring.
func sharedRing(k *kernel.Kernel, logger hclog.Logger) {
	ta, err := k.Tasks.Spawn(-1, "ring-a", func(*task.Task) {}, nil, true)
	must(logger, err)
	tb, err := k.Tasks.Spawn(-1, "ring-b", func(*task.Task) {}, nil, true)
	must(logger, err)

	addrA, err := k.Memory.SharedMemoryAlloc(ta, 8192)
	must(logger, err)
	handle, err := k.Memory.SharedMemoryGetHandle(ta, addrA)
	must(logger, err)

	addrB, size, err := k.Memory.SharedMemoryInclude(tb, handle)
	must(logger, err)

	bytesA, ok, err := k.Memory.BytesAt(ta, addrA)
	must(logger, err)
	bytesB, _, err := k.Memory.BytesAt(tb, addrB)
	must(logger, err)

	if ok {
		bytesA[17] = 0xAB
		logger.Info("shared ring", "size", size, "observed_at_b", fmt.Sprintf("0x%x", bytesB[17]))
	}
}

// Scenario 3: timeout.
func timeoutScenario(k *kernel.Kernel, clock *tick.Manual, logger hclog.Logger) {
	tsk, err := k.Tasks.Spawn(-1, "sleeper", func(*task.Task) {}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(tsk, false))

	resultCh := make(chan block.Result, 1)
	go func() { resultCh <- k.Tasks.Sleep(tsk, 50) }()

	waitForResult(logger, "timeout-blocked", true, func() bool { return tsk.State() == task.Blocked })
	clock.Advance(50)
	k.Tasks.PollBlocked(clock.Now())

	result := <-resultCh
	logger.Info("timeout scenario", "result", result.String())
}

// Scenario 4: cancel mid-block.
func cancelMidBlock(k *kernel.Kernel, clock *tick.Manual, logger hclog.Logger) {
	tsk, err := k.Tasks.Spawn(-1, "blocked", func(*task.Task) {}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(tsk, false))

	waiter, err := k.Tasks.Spawn(-1, "waiter", func(*task.Task) {}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(waiter, false))

	resultCh := make(chan block.Result, 1)
	go func() { resultCh <- k.Tasks.Sleep(tsk, 10_000) }()
	waitForResult(logger, "cancel-mid-block-blocked", true, func() bool { return tsk.State() == task.Blocked })

	var exitValue int64
	waitCh := make(chan block.Result, 1)
	go func() {
		result, waitErr := k.Tasks.Wait(waiter, tsk.ID(), &exitValue)
		must(logger, waitErr)
		waitCh <- result
	}()
	waitForResult(logger, "cancel-mid-block-waiter", true, func() bool { return waiter.State() == task.Blocked })

	k.Tasks.Cancel(tsk, 7)
	<-resultCh
	<-waitCh

	logger.Info("cancel mid-block", "exit_value", exitValue)
}

// Scenario 5: bad free.
func badFree(k *kernel.Kernel, logger hclog.Logger) {
	tsk, err := k.Tasks.Spawn(-1, "owner", func(*task.Task) {}, nil, true)
	must(logger, err)

	err = k.Memory.SharedMemoryFree(tsk, 0xDEADBEEF)
	logger.Info("bad free", "error", err, "is_bad_address", err == kernelerr.ErrBadAddress)
}

// Scenario 6: idle fallback.
func idleFallback(k *kernel.Kernel, logger hclog.Logger) {
	idle, _ := k.Tasks.ByID(k.IdleTaskID())
	logger.Info("idle fallback before", "idle_state", idle.State().String(), "scheduler_running", k.Sched.RunningID())

	tsk, err := k.Tasks.Spawn(-1, "preemptor", func(*task.Task) {}, nil, false)
	must(logger, err)
	must(logger, k.Tasks.Go(tsk, false))

	logger.Info("idle fallback after", "scheduler_running", k.Sched.RunningID(), "preemptor_id", tsk.ID())
}

func waitForResult(logger hclog.Logger, label string, expect bool, poll func() bool) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if poll() == expect {
			return
		}
		time.Sleep(time.Millisecond)
	}
	logger.Warn("scenario did not converge in time", "scenario", label)
}

func must(logger hclog.Logger, err error) {
	if err != nil {
		logger.Error("demo scenario failed", "error", err)
		os.Exit(1)
	}
}
