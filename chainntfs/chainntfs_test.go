package chainntfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainInfoReportsNotifierHeight(t *testing.T) {
	n := NewStaticNotifier(800_000)
	c := NewChainInfo(n)

	height, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 800_000, height)

	n.Advance(800_123)
	height, err = c.GetInfo(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 800_123, height)
}

type erroringNotifier struct{}

func (erroringNotifier) Height() (uint32, error) {
	return 0, context.DeadlineExceeded
}

func TestChainInfoFallsBackToCachedHeightOnError(t *testing.T) {
	n := NewStaticNotifier(700_000)
	c := NewChainInfo(n)

	_, err := c.GetInfo(context.Background())
	require.NoError(t, err)

	c.notifier = erroringNotifier{}
	height, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 700_000, height)
}
