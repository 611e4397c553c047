package kernelerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/skift-os/kernel/kernelerr"
	"github.com/stretchr/testify/require"
)

func TestSentinelsAreDistinctAndMatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("lookup failed: %w", kernelerr.ErrNoSuchTask)
	require.True(t, errors.Is(wrapped, kernelerr.ErrNoSuchTask))
	require.False(t, errors.Is(wrapped, kernelerr.ErrTimeout))
	require.NotEqual(t, kernelerr.ErrNoSuchTask, kernelerr.ErrBadAddress)
}
