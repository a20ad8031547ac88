package gdserial

import "sync"

// EventType identifies the kind of manager event
type EventType int

const (
	// EventDataReceived carries bytes read by a port's background reader
	EventDataReceived EventType = iota
	// EventDisconnected reports that a port's device went away
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventDataReceived:
		return "data_received"
	case EventDisconnected:
		return "port_disconnected"
	default:
		return "unknown"
	}
}

// Event is a notification produced by a background reader and delivered
// through Manager.PollEvents. Data is set only for EventDataReceived.
type Event struct {
	Type EventType
	Port string
	Data []byte
}

// eventQueue is the multi-producer/single-consumer channel between reader
// goroutines and the polling caller. Unbounded; the host bounds it by
// polling periodically.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// drain returns every queued event in arrival order and empties the queue
// without blocking
func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()
	return events
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
