package cluster

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/swarm"
)

type Role string

const (
	RoleManager    Role = "Manager"
	RoleWorker     Role = "Worker"
	RoleUnassigned Role = "NO SWARM"
)

// ParseRole accepts the engine spelling ("manager", "worker") in any case as
// well as the stored values.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manager":
		return RoleManager, nil
	case "worker":
		return RoleWorker, nil
	case strings.ToLower(string(RoleUnassigned)), "":
		return RoleUnassigned, nil
	}

	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// Engine returns the role as understood by the cluster control API.
// RoleUnassigned has no engine counterpart and yields "".
func (r Role) Engine() swarm.NodeRole {
	switch r {
	case RoleManager:
		return swarm.NodeRoleManager
	case RoleWorker:
		return swarm.NodeRoleWorker
	}

	return ""
}

type Availability string

const (
	AvailabilityActive Availability = "active"
	AvailabilityPause  Availability = "pause"
	AvailabilityDrain  Availability = "drain"
)

func ParseAvailability(s string) (Availability, error) {
	switch a := Availability(s); a {
	case AvailabilityActive, AvailabilityPause, AvailabilityDrain:
		return a, nil
	case "":
		return "", fmt.Errorf("%w: availability is required", ErrValidation)
	}

	return "", fmt.Errorf("%w: invalid availability %q", ErrValidation, s)
}

type Swarm struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ManagerToken string `json:"manager_token,omitempty"`
	WorkerToken  string `json:"worker_token,omitempty"`
}

func (s Swarm) ManagerJoinCommand() string {
	return "docker swarm join --token " + s.ManagerToken
}

func (s Swarm) WorkerJoinCommand() string {
	return "docker swarm join --token " + s.WorkerToken
}

// Node is the locally cached view of a cluster member. The cluster is
// authoritative; the cache only changes after a confirmed mutating call or an
// explicit sync.
type Node struct {
	ID            int64        `json:"id"`
	Hostname      string       `json:"hostname"`
	Address       string       `json:"address"`
	Port          int          `json:"port"`
	Role          Role         `json:"role"`
	SwarmID       *int64       `json:"swarm_id"`
	ClusterNodeID string       `json:"cluster_node_id"`
	Architecture  string       `json:"architecture"`
	OS            string       `json:"os"`
	MemoryGB      float64      `json:"memory_gb"`
	CPUCount      float64      `json:"cpu_count"`
	EngineVersion string       `json:"engine_version"`
	Availability  Availability `json:"availability,omitempty"`
	VersionIndex  uint64       `json:"version_index"`
}

// Endpoint returns the node's own control endpoint as "address:port".
func (n Node) Endpoint() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// Ref is the identifier used to look the node up on a manager.
func (n Node) Ref() string {
	if n.ClusterNodeID != "" {
		return n.ClusterNodeID
	}

	return n.Hostname
}

// InSwarm reports whether the node is assigned to a swarm. A freshly
// assigned node keeps RoleUnassigned until it is synced.
func (n Node) InSwarm() bool {
	return n.SwarmID != nil
}

// RequireAddress rejects nodes stored without a network address.
func (n Node) RequireAddress() error {
	if strings.TrimSpace(n.Address) == "" {
		return fmt.Errorf("%w: node %s has no address", ErrValidation, n.Hostname)
	}

	return nil
}

// Outcome describes the result of an idempotent transition.
type Outcome string

const (
	OutcomeUpdated        Outcome = "updated"
	OutcomeAlreadyInState Outcome = "already in state"
)

type Service struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	SwarmID       int64         `json:"swarm_id"`
	Image         string        `json:"image"`
	Replicas      uint64        `json:"replicas"`
	RunningTasks  uint64        `json:"running_tasks"`
	TargetPort    uint32        `json:"target_port"`
	PublishedPort uint32        `json:"published_port"`
	Status        ServiceStatus `json:"status"`
}

type ServiceStatus string

const (
	ServicePaused   ServiceStatus = "Paused"
	ServiceDegraded ServiceStatus = "Degraded"
	ServiceError    ServiceStatus = "Error"
	ServiceRunning  ServiceStatus = "Running"
)

// ClassifyService maps desired replicas and running tasks to a health status.
// The order of the checks matters.
func ClassifyService(desired, running uint64) ServiceStatus {
	switch {
	case running == 0 && desired == 0:
		return ServicePaused
	case running > 0 && running < desired:
		return ServiceDegraded
	case running == 0 && desired > 0:
		return ServiceError
	default:
		return ServiceRunning
	}
}

// Utilization is a transient CPU/memory sample expressed in percent.
type Utilization struct {
	CPU             float64 `json:"cpu"`
	Memory          float64 `json:"memory"`
	MemorySupported bool    `json:"memory_supported"`
}

type ContainerUtilization struct {
	Name string `json:"name"`
	Utilization
}
