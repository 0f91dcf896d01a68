package queue

import (
	"context"
	"errors"
	"time"
)

var ErrUnknownEvent = errors.New("unknown event")

// Event is one node lifecycle event. Node is the address of the node the
// event is about; events for one node are delivered in push order.
type Event struct {
	// receipt identifies one delivery of the event to the backend.
	receipt string

	ID   string
	Name EventName
	Node string
	Data []byte

	RetryCount int
}

type Queue interface {
	// Pop blocks up to the backend's poll interval and returns at most max
	// events. Returned events stay invisible to other consumers until they
	// are removed or retried.
	Pop(ctx context.Context, max int) ([]*Event, error)

	Push(ctx context.Context, event *Event, delay time.Duration) error
	// Retry makes a popped event visible again right away.
	Retry(ctx context.Context, event *Event) error
	Remove(ctx context.Context, event *Event) error
}
