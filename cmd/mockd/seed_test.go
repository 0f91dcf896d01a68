package mockd_test

import (
	"context"
	"testing"

	"github.com/falmar/swarmman/cmd/mockd"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	mc := engine.NewMemoryCluster()
	mockd.Seed(mc, "2375")

	client, err := mc.Dial("127.0.0.2:2375")
	require.NoError(t, err)
	defer client.Close()

	nodes, err := client.NodeList(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 3)

	sw, err := client.SwarmInspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SWMTKN-1-mockd-worker", sw.JoinTokens.Worker)

	containers, err := client.ContainerList(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)

	stats, err := client.ContainerStats(context.Background(), containers[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.CPUStats.OnlineCPUs)

	_, ok := mc.Service("web")
	assert.True(t, ok)
}
