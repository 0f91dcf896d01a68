package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventName string

const (
	NodeDrainEvent EventName = "node.drain"
	NodeLeaveEvent EventName = "node.leave"
)

// Known reports whether the listener has a handler for the event.
func (n EventName) Known() bool {
	return n == NodeDrainEvent || n == NodeLeaveEvent
}

type InterruptType string

const (
	SpotInterruption InterruptType = "spot-interruption"
	ASGRebalance     InterruptType = "asg-rebalance"
	Operator         InterruptType = "operator"
)

// Payload is the body of an event about one node.
type Payload interface {
	NodeAddress() string
}

type NodeDrainPayload struct {
	// Address is the node's address as stored by swarmman.
	Address string        `json:"address"`
	Reason  string        `json:"reason"`
	Type    InterruptType `json:"type"`
	Time    time.Time     `json:"time"`

	InstanceID string `json:"instance_id,omitempty"`
}

func (p NodeDrainPayload) NodeAddress() string { return p.Address }

type NodeLeavePayload struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

func (p NodeLeavePayload) NodeAddress() string { return p.Address }

// NewEvent encodes payload as the event data under a fresh id.
func NewEvent(name EventName, payload Payload) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	return &Event{
		ID:   uuid.NewString(),
		Name: name,
		Node: payload.NodeAddress(),
		Data: data,
	}, nil
}

// Decode unmarshals the event data into payload.
func (e *Event) Decode(payload any) error {
	if err := json.Unmarshal(e.Data, payload); err != nil {
		return fmt.Errorf("failed to unmarshal %s event %s: %w", e.Name, e.ID, err)
	}

	return nil
}
