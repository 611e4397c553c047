package sched_test

import (
	"testing"

	"github.com/shoenig/test"
	"github.com/skift-os/kernel/sched"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/tick"
	"github.com/stretchr/testify/require"
)

func newScheduledRegistry(t *testing.T) (*task.Registry, *sched.RoundRobin) {
	t.Helper()
	clock := tick.NewManual()
	rr := sched.New(clock, nil)
	reg := task.NewRegistry(task.WithClock(clock), task.WithHooks(rr))
	return reg, rr
}

func TestRoundRobinFallsBackToIdleWhenQueueEmpty(t *testing.T) {
	reg, rr := newScheduledRegistry(t)

	idle, err := reg.Spawn(-1, "idle", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(idle, true))

	require.Equal(t, idle.ID(), rr.RunningID())

	rr.Yield()
	test.Eq(t, idle.ID(), rr.RunningID(), test.Sprint("idle stays selected with nothing else runnable"))
}

func TestRoundRobinRotatesRunnableTasks(t *testing.T) {
	reg, rr := newScheduledRegistry(t)

	idle, err := reg.Spawn(-1, "idle", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(idle, true))

	a, err := reg.Spawn(-1, "a", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(a, false))

	b, err := reg.Spawn(-1, "b", func(*task.Task) {}, nil, false)
	require.NoError(t, err)
	require.NoError(t, reg.Go(b, false))

	require.Equal(t, a.ID(), rr.RunningID())
	rr.Yield()
	require.Equal(t, b.ID(), rr.RunningID())
	rr.Yield()
	require.Equal(t, a.ID(), rr.RunningID())
}
