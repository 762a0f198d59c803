// Package eventbus fans out lifecycle events (superstep boundaries, node
// start/end, edge evaluation failures) to observers such as the Prometheus
// metrics recorder or a structured-logging sink.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vk/burstgraph/graph"
)

// EventType identifies what happened.
type EventType string

const (
	WorkflowStart       EventType = "workflow_start"
	WorkflowEnd         EventType = "workflow_end"
	SuperstepStart      EventType = "superstep_start"
	SuperstepEnd        EventType = "superstep_end"
	NodeStart           EventType = "node_start"
	NodeEnd             EventType = "node_end"
	NodeError           EventType = "node_error"
	EdgeEvaluationError EventType = "edge_evaluation_error"
)

// Event is the payload published for a lifecycle transition. Not every
// field is populated for every Type.
type Event struct {
	Type      EventType
	RunID     string
	Superstep int
	NodeID    graph.NodeId
	Active    []graph.NodeId
	Err       error
	Duration  time.Duration
	Attempt   int
	At        time.Time
}

// Observer receives published events. Implementations must not block; OnEvent
// is called synchronously from the scheduler's hot path.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Bus fans events out to a set of observers, isolating the scheduler from a
// misbehaving observer by recovering any panic and logging it instead of
// propagating it into the run.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// New returns a Bus that logs observer panics through logger. A nil logger
// falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers an observer. Not safe to call concurrently with
// Publish on the same Bus in a way that races with registration ordering,
// but safe against other Subscribe/Publish calls.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers ev to every subscribed observer.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, o := range observers {
		b.deliver(o, ev)
	}
}

func (b *Bus) deliver(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event observer panicked", "event_type", ev.Type, "recovered", r)
		}
	}()
	o.OnEvent(ev)
}
