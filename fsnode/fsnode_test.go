package fsnode_test

import (
	"testing"

	"github.com/skift-os/kernel/fsnode"
	"github.com/skift-os/kernel/vfspath"
	"github.com/stretchr/testify/require"
)

func TestFakeSeedsRootDirectory(t *testing.T) {
	fs := fsnode.NewFake()
	n, ok := fs.FindAndRef(vfspath.Root())
	require.True(t, ok)
	require.Equal(t, fsnode.Directory, n.Kind)
	fs.Deref(n)
}

func TestFindAndRefUnknownPathFails(t *testing.T) {
	fs := fsnode.NewFake()
	_, ok := fs.FindAndRef(vfspath.New("/nope"))
	require.False(t, ok)
}

func TestMakeFileAndDirectory(t *testing.T) {
	fs := fsnode.NewFake()
	fs.MakeDirectory(vfspath.New("/home"))
	fs.MakeFile(vfspath.New("/home/readme.txt"))

	dir, ok := fs.FindAndRef(vfspath.New("/home"))
	require.True(t, ok)
	require.Equal(t, fsnode.Directory, dir.Kind)
	fs.Deref(dir)

	file, ok := fs.FindAndRef(vfspath.New("/home/readme.txt"))
	require.True(t, ok)
	require.Equal(t, fsnode.File, file.Kind)
	fs.Deref(file)
}
