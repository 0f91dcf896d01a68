package cluster

import (
	"fmt"
	"testing"

	"github.com/docker/docker/api/types/swarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyService(t *testing.T) {
	cases := []struct {
		desired uint64
		running uint64
		status  ServiceStatus
	}{
		{desired: 0, running: 0, status: ServicePaused},
		{desired: 4, running: 2, status: ServiceDegraded},
		{desired: 3, running: 0, status: ServiceError},
		{desired: 2, running: 2, status: ServiceRunning},
		{desired: 2, running: 3, status: ServiceRunning},
		{desired: 0, running: 1, status: ServiceRunning},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("desired=%d running=%d", tc.desired, tc.running), func(t *testing.T) {
			assert.Equal(t, tc.status, ClassifyService(tc.desired, tc.running))
		})
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		role Role
		err  error
	}{
		{in: "manager", role: RoleManager},
		{in: "Manager", role: RoleManager},
		{in: "WORKER", role: RoleWorker},
		{in: "NO SWARM", role: RoleUnassigned},
		{in: "leader", err: ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			role, err := ParseRole(tc.in)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.role, role)
		})
	}

	assert.Equal(t, swarm.NodeRoleManager, RoleManager.Engine())
	assert.Equal(t, swarm.NodeRoleWorker, RoleWorker.Engine())
	assert.Empty(t, RoleUnassigned.Engine())
}

func TestParseAvailability(t *testing.T) {
	for _, v := range []string{"active", "pause", "drain"} {
		a, err := ParseAvailability(v)
		require.NoError(t, err)
		assert.Equal(t, Availability(v), a)
	}

	_, err := ParseAvailability("invalid")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseAvailability("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSwarmJoinCommands(t *testing.T) {
	s := Swarm{Name: "Test Swarm", ManagerToken: "TEst-MaNgEr-ToKeN", WorkerToken: "TEst-WoRkEr-ToKeN"}

	assert.Equal(t, "docker swarm join --token TEst-MaNgEr-ToKeN", s.ManagerJoinCommand())
	assert.Equal(t, "docker swarm join --token TEst-WoRkEr-ToKeN", s.WorkerJoinCommand())
}

func TestNodeEndpointAndRef(t *testing.T) {
	n := Node{Hostname: "testnode1", Address: "10.0.0.1", Port: 2375}
	assert.Equal(t, "10.0.0.1:2375", n.Endpoint())
	assert.Equal(t, "testnode1", n.Ref())

	n.ClusterNodeID = "abc123"
	assert.Equal(t, "abc123", n.Ref())

	assert.False(t, n.InSwarm())
	id := int64(1)
	n.SwarmID = &id
	assert.True(t, n.InSwarm(), "assigned but not synced yet")
	n.Role = RoleWorker
	assert.True(t, n.InSwarm())
}

func TestNode_RequireAddress(t *testing.T) {
	assert.NoError(t, Node{Hostname: "w1", Address: "10.0.0.4"}.RequireAddress())
	assert.ErrorIs(t, Node{Hostname: "w1"}.RequireAddress(), ErrValidation)
	assert.ErrorIs(t, Node{Hostname: "w1", Address: "  "}.RequireAddress(), ErrValidation)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("dial: %w", ErrClusterUnreachable)))
	assert.False(t, IsRetryable(ErrConflictRejected))
	assert.False(t, IsRetryable(ErrValidation))
}
