package task_test

import (
	"testing"

	"github.com/skift-os/kernel/task"
	"pgregory.net/rapid"
)

// TestSpawnIDsAreAlwaysUnique checks spec.md §8's task-id uniqueness
// invariant across an arbitrary sequence of spawns: no two tasks ever
// created by the same registry share an id, regardless of how many are
// created or what they are named.
func TestSpawnIDsAreAlwaysUnique(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := task.NewRegistry()
		names := rapid.SliceOfN(rapid.StringMatching(`[a-z]{0,10}`), 1, 50).Draw(rt, "names")

		seen := make(map[int64]struct{}, len(names))
		for _, name := range names {
			tsk, err := reg.Spawn(-1, name, func(*task.Task) {}, nil, false)
			if err != nil {
				rt.Fatalf("spawn failed: %v", err)
			}
			if _, dup := seen[tsk.ID()]; dup {
				rt.Fatalf("task id %d issued twice", tsk.ID())
			}
			seen[tsk.ID()] = struct{}{}
		}
	})
}

// TestNameTruncationNeverExceedsMax checks that Spawn's name-truncation
// policy (SPEC_FULL.md's SUPPLEMENTED FEATURES, strlcpy-style) holds for any
// input length: the stored name is never longer than MaxNameLength, and
// never longer than the input itself.
func TestNameTruncationNeverExceedsMax(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := task.NewRegistry()
		name := rapid.StringMatching(`[[:print:]]{0,200}`).Draw(rt, "name")

		tsk, err := reg.Spawn(-1, name, func(*task.Task) {}, nil, false)
		if err != nil {
			rt.Fatalf("spawn failed: %v", err)
		}
		if len(tsk.Name()) > task.MaxNameLength {
			rt.Fatalf("stored name length %d exceeds MaxNameLength %d", len(tsk.Name()), task.MaxNameLength)
		}
		if len(tsk.Name()) > len(name) {
			rt.Fatalf("stored name %q longer than input %q", tsk.Name(), name)
		}
	})
}

// TestCancelExitValueRoundTrips checks that whatever exit value Cancel
// is given is exactly the value later observed via ExitValue, for any
// int64 — spec.md §8's "cancel then observe exit value" round trip.
func TestCancelExitValueRoundTrips(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := task.NewRegistry()
		tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
		if err != nil {
			rt.Fatalf("spawn failed: %v", err)
		}
		if err := reg.Go(tsk, false); err != nil {
			rt.Fatalf("go failed: %v", err)
		}

		exitValue := rapid.Int64().Draw(rt, "exitValue")
		reg.Cancel(tsk, exitValue)

		if got := tsk.ExitValue(); got != exitValue {
			rt.Fatalf("exit value round trip: got %d, want %d", got, exitValue)
		}
		if !tsk.IsCanceled() {
			rt.Fatalf("task not canceled after Cancel")
		}
	})
}
