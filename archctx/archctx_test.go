package archctx_test

import (
	"testing"

	"github.com/skift-os/kernel/archctx"
	"github.com/stretchr/testify/require"
)

func TestNewInitialFrameSetsKernelSelectorsAndFlags(t *testing.T) {
	frame := archctx.NewInitialFrame(0x4000, 0x8000)

	require.Equal(t, uintptr(0x4000), frame.IP)
	require.Equal(t, uintptr(0x8000), frame.StackTop)
	require.Equal(t, archctx.KernelCodeSelector, frame.CodeSegment)
	require.Equal(t, archctx.KernelDataSelector, frame.DataSegment)
	require.Equal(t, archctx.InitialEFLAGS, frame.Flags)
}
