package vm_test

import (
	"testing"

	"github.com/skift-os/kernel/vm"
	"github.com/stretchr/testify/require"
)

func TestFakeSpaceAllocAndFree(t *testing.T) {
	mgr := vm.NewFakeManager(0x1000)
	space := mgr.KernelSpace()

	r, err := space.Alloc(4096, vm.FlagClear)
	require.NoError(t, err)
	require.Equal(t, 4096, r.Size)

	fs := space.(*vm.FakeSpace)
	require.Contains(t, fs.LiveRanges(), r.Base)

	space.Free(r)
	require.NotContains(t, fs.LiveRanges(), r.Base)
}

func TestFakeSpaceVirtualAllocTracksRange(t *testing.T) {
	mgr := vm.NewFakeManager(0x1000)
	space, err := mgr.SpaceCreate()
	require.NoError(t, err)

	r, err := space.VirtualAlloc(vm.PhysRange{Base: 0x2000, Size: 8192}, vm.FlagUser)
	require.NoError(t, err)
	require.Equal(t, 8192, r.Size)
	require.Contains(t, space.(*vm.FakeSpace).LiveRanges(), r.Base)

	space.VirtualFree(r)
}

func TestSpaceDestroyRejectsFurtherAllocs(t *testing.T) {
	mgr := vm.NewFakeManager(0x1000)
	space, err := mgr.SpaceCreate()
	require.NoError(t, err)

	mgr.SpaceDestroy(space)

	_, err = space.Alloc(4096, 0)
	require.Error(t, err)
}

func TestKernelSpaceIsSharedAcrossCalls(t *testing.T) {
	mgr := vm.NewFakeManager(0x1000)
	require.Same(t, mgr.KernelSpace(), mgr.KernelSpace())
}
