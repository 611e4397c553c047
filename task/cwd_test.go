package task_test

import (
	"testing"

	"github.com/skift-os/kernel/fsnode"
	"github.com/skift-os/kernel/kernelerr"
	"github.com/skift-os/kernel/task"
	"github.com/skift-os/kernel/vfspath"
	"github.com/stretchr/testify/require"
)

func TestSetCwdToDirectorySucceeds(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	fs := fsnode.NewFake()
	fs.MakeDirectory(vfspath.New("/home"))

	require.NoError(t, tsk.SetCwd(fs, "/home"))

	buf := make([]byte, 64)
	n := tsk.GetCwd(buf)
	require.Equal(t, "/home", string(buf[:n]))
}

func TestSetCwdToFileFails(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	fs := fsnode.NewFake()
	fs.MakeFile(vfspath.New("/readme.txt"))

	err = tsk.SetCwd(fs, "/readme.txt")
	require.ErrorIs(t, err, kernelerr.ErrNotADirectory)
}

func TestSetCwdToMissingPathFails(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	fs := fsnode.NewFake()
	err = tsk.SetCwd(fs, "/nope")
	require.ErrorIs(t, err, kernelerr.ErrNoSuchFileOrDirectory)
}

func TestResolveCwdCombinesRelativePath(t *testing.T) {
	reg := task.NewRegistry()
	tsk, err := reg.Spawn(-1, "worker", func(*task.Task) {}, nil, false)
	require.NoError(t, err)

	fs := fsnode.NewFake()
	fs.MakeDirectory(vfspath.New("/home"))
	require.NoError(t, tsk.SetCwd(fs, "/home"))

	resolved := tsk.ResolveCwd("docs")
	require.Equal(t, "/home/docs", resolved.String())
}
