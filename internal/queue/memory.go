package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

var _ Queue = (*memoryQueue)(nil)

type memoryQueue struct {
	mu sync.Mutex

	pollInterval time.Duration
	events       []*memoryEntry
	deliveries   int
	ready        chan struct{}
}

type memoryEntry struct {
	event     Event
	visibleAt time.Time
	inFlight  bool
	receipt   string
}

// NewMemoryQueue returns a process-local queue. Pop waits at most
// pollInterval for an event to become available.
func NewMemoryQueue(pollInterval time.Duration) Queue {
	return &memoryQueue{
		pollInterval: pollInterval,
		ready:        make(chan struct{}, 1),
	}
}

func (q *memoryQueue) Push(ctx context.Context, event *Event, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.events {
		if e.event.ID == event.ID {
			return nil
		}
	}

	q.events = append(q.events, &memoryEntry{
		event:     *event,
		visibleAt: time.Now().Add(delay),
	})
	q.signal()

	return nil
}

func (q *memoryQueue) Pop(ctx context.Context, max int) ([]*Event, error) {
	deadline := time.NewTimer(q.pollInterval)
	defer deadline.Stop()

	for {
		if events := q.take(max); len(events) > 0 {
			return events, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.ready:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (q *memoryQueue) take(max int) []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	var events []*Event
	for _, e := range q.events {
		if len(events) >= max {
			break
		}
		if e.inFlight || now.Before(e.visibleAt) {
			continue
		}

		q.deliveries++
		e.inFlight = true
		e.receipt = strconv.Itoa(q.deliveries)

		ev := e.event
		ev.receipt = e.receipt
		events = append(events, &ev)
	}

	return events
}

func (q *memoryQueue) Retry(ctx context.Context, event *Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.find(event)
	if err != nil {
		return err
	}

	e.inFlight = false
	e.event.RetryCount++
	q.signal()

	return nil
}

func (q *memoryQueue) Remove(ctx context.Context, event *Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.events {
		if e.inFlight && e.receipt == event.receipt {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("event %s is not in flight", event.ID)
}

func (q *memoryQueue) find(event *Event) (*memoryEntry, error) {
	for _, e := range q.events {
		if e.inFlight && e.receipt == event.receipt {
			return e, nil
		}
	}

	return nil, fmt.Errorf("event %s is not in flight", event.ID)
}

func (q *memoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
