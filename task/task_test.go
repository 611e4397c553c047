package task_test

import (
	"testing"
	"time"

	"github.com/skift-os/kernel/block"
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/tick"
	"github.com/stretchr/testify/require"
)

func TestSpawnAssignsUniqueIDs(t *testing.T) {
	reg := task.NewRegistry()
	a, err := reg.Spawn(-1, "a", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	b, err := reg.Spawn(-1, "b", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, task.None, a.State())
}

func TestNameLongerThanMaxIsTruncated(t *testing.T) {
	reg := task.NewRegistry()
	long := make([]byte, task.MaxNameLength+10)
	for i := range long {
		long[i] = 'x'
	}
	tsk, err := reg.Spawn(-1, string(long), func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.Len(t, tsk.Name(), task.MaxNameLength)
}

func TestGoTransitionsToRunningAndDispatchesEntry(t *testing.T) {
	reg := task.NewRegistry()
	done := make(chan struct{})
	tsk, err := reg.Spawn(-1, "worker", func(self *task.Task) {
		close(done)
	}, nil, false)
	require.NoError(t, err)

	require.NoError(t, reg.Go(tsk, false))
	require.Equal(t, task.Running, tsk.State())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("entry never ran")
	}
}

func TestGoOnAlreadyDispatchedTaskPanics(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	require.Panics(t, func() { _ = reg.Go(tsk, false) })
}

func TestSpawnWithArgvTruncatesBeyondMaxArgv(t *testing.T) {
	reg := task.NewRegistry()
	argv := make([]string, task.MaxArgv+5)
	for i := range argv {
		argv[i] = "x"
	}
	tsk, err := reg.SpawnWithArgv(-1, "worker", func(*task.Task) {}, argv, false)
	require.NoError(t, err)
	require.NotNil(t, tsk)

	// Only MaxArgv entries are pushed: each "x\x00" string (2 bytes)
	// plus its 8-byte pointer, then argc and argv_ref (8 bytes each).
	pushed := uintptr(task.MaxArgv*(2+8) + 16)
	require.Equal(t, tsk.StackRange().Base+uintptr(task.DefaultStackSize)-pushed, tsk.StackPointer())
}

func TestCancelThenDestroyReleasesRegistryMembership(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	reg.Cancel(tsk, 9)
	require.Equal(t, task.Canceled, tsk.State())
	require.True(t, tsk.IsCanceled())
	require.Equal(t, int64(9), tsk.ExitValue())

	require.NoError(t, reg.Destroy(tsk))
	_, ok := reg.ByID(tsk.ID())
	require.False(t, ok)
}

func TestDestroyBeforeCanceledPanics(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	require.Panics(t, func() { _ = reg.Destroy(tsk) })
}

func TestSleepReturnsTimeoutOnManualClockAdvance(t *testing.T) {
	clock := tick.NewManual()
	reg := task.NewRegistry(task.WithClock(clock))
	tsk, err := reg.Spawn(-1, "sleeper", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	resultCh := make(chan block.Result, 1)
	go func() { resultCh <- reg.Sleep(tsk, 5) }()

	require.Eventually(t, func() bool {
		return tsk.State() == task.Blocked
	}, time.Second, time.Millisecond)

	clock.Advance(5)
	reg.PollBlocked(clock.Now())

	select {
	case result := <-resultCh:
		require.Equal(t, block.Timeout, result)
	case <-time.After(time.Second):
		t.Fatal("sleep never woke up")
	}
}

func TestSleepWithNoTimeoutPanics(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "sleeper", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	require.Panics(t, func() { reg.Sleep(tsk, block.NoTimeout) })
}

func TestWaitOnUnknownTargetReturnsNoSuchTaskWithoutBlocking(t *testing.T) {
	reg := task.NewRegistry()
	caller, err := reg.Spawn(-1, "caller", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(caller, false))

	var out int64
	result, err := reg.Wait(caller, 999999, &out)
	require.ErrorIs(t, err, kernelerr.ErrNoSuchTask)
	require.Equal(t, block.Result(0), result)
}

func TestWaitUnblocksWhenTargetIsCanceled(t *testing.T) {
	reg := task.NewRegistry()
	caller, err := reg.Spawn(-1, "caller", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(caller, false))

	target, err := reg.Spawn(-1, "target", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(target, false))

	var out int64
	resultCh := make(chan block.Result, 1)
	go func() {
		result, waitErr := reg.Wait(caller, target.ID(), &out)
		require.NoError(t, waitErr)
		resultCh <- result
	}()

	require.Eventually(t, func() bool {
		return caller.State() == task.Blocked
	}, time.Second, time.Millisecond)

	reg.Cancel(target, 77)
	reg.PollBlocked(0)

	select {
	case result := <-resultCh:
		require.Equal(t, block.Unblocked, result)
		require.Equal(t, int64(77), out)
	case <-time.After(time.Second):
		t.Fatal("wait never unblocked")
	}
}

func TestCancelOnBlockedTaskDeliversCancelledImmediately(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "sleeper", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	resultCh := make(chan block.Result, 1)
	go func() { resultCh <- reg.Block(tsk, block.NewTimeBlocker(block.NoTimeout), 100000) }()

	require.Eventually(t, func() bool {
		return tsk.State() == task.Blocked
	}, time.Second, time.Millisecond)

	reg.Cancel(tsk, 3)

	select {
	case result := <-resultCh:
		require.Equal(t, block.Cancelled, result)
	case <-time.After(time.Second):
		t.Fatal("cancel on blocked task never delivered cancelled")
	}
}

func TestExitCancelsSelfAndNeverReturns(t *testing.T) {
	reg := task.NewRegistry()
	returned := make(chan struct{})
	tsk, err := reg.Spawn(-1, "exiter", func(self *task.Task) {
		reg.Exit(self, 99)
		close(returned) // would only run if Exit incorrectly returned
	}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(tsk, false))

	require.Eventually(t, func() bool {
		return tsk.State() == task.Canceled
	}, time.Second, time.Millisecond)
	require.Equal(t, int64(99), tsk.ExitValue())

	select {
	case <-returned:
		t.Fatal("Exit must never return control to its caller")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleTableSetGetClear(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	require.Nil(t, tsk.Handle(3))
	tsk.SetHandle(3, "a-handle")
	require.Equal(t, "a-handle", tsk.Handle(3))
	require.Equal(t, "a-handle", tsk.ClearHandle(3))
	require.Nil(t, tsk.Handle(3))
}

func TestHandleTableOutOfRangeIsNoop(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	require.Nil(t, tsk.Handle(-1))
	require.Nil(t, tsk.Handle(task.HandleTableSize))
	tsk.SetHandle(-1, "ignored")
	tsk.SetHandle(task.HandleTableSize, "ignored")
}

func TestCwdDefaultsToRootWithoutParent(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n := tsk.GetCwd(buf)
	require.Equal(t, "/", string(buf[:n]))
}

func TestGetCwdTruncatesSilentlyIntoSmallBuffer(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	buf := make([]byte, 0)
	n := tsk.GetCwd(buf)
	require.Equal(t, 0, n)
}
