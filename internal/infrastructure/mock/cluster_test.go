package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

func TestListAndWatchEndsWithContext(t *testing.T) {
	c := NewCluster("mock://test")
	ctx, cancel := context.WithCancel(context.Background())
	w, err := c.ListAndWatch(ctx, domain.ResourceKindPod, "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.OpenWatches())

	cancel()
	select {
	case _, ok := <-w.ResultChan():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch still open after its context ended")
	}
	assert.Zero(t, c.OpenWatches())
	assert.Zero(t, c.Stops(), "a server-side close is not a consumer release")

	w.Stop()
	assert.EqualValues(t, 1, c.Stops())
}

func TestListAndWatchStopReleasesOnce(t *testing.T) {
	c := NewCluster("mock://test")
	w, err := c.ListAndWatch(context.Background(), domain.ResourceKindNode, "")
	require.NoError(t, err)

	w.Stop()
	w.Stop()
	assert.EqualValues(t, 1, c.Stops())
	assert.Zero(t, c.OpenWatches())
}
