// Package messagebus buffers the messages nodes emit between supersteps and
// folds each node's inbox into a single input mapping before invocation.
package messagebus

import (
	"sort"
	"sync"

	"github.com/vk/burstgraph/graph"
	"github.com/vk/burstgraph/state"
)

// Bus holds two generations of inboxes: the one being consumed by the
// superstep in progress (current) and the one being filled by that
// superstep's outputs (next). Swap promotes next to current at the end of a
// superstep.
type Bus struct {
	mu      sync.Mutex
	current map[graph.NodeId][]graph.Outputs
	next    map[graph.NodeId][]graph.Outputs
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		current: make(map[graph.NodeId][]graph.Outputs),
		next:    make(map[graph.NodeId][]graph.Outputs),
	}
}

// Seed places msg in id's current inbox, ahead of the first superstep.
func (b *Bus) Seed(id graph.NodeId, msg graph.Outputs) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current[id] = append(b.current[id], msg)
}

// Active returns the ids with a non-empty current inbox, sorted for
// deterministic iteration.
func (b *Bus) Active() []graph.NodeId {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]graph.NodeId, 0, len(b.current))
	for id, inbox := range b.current {
		if len(inbox) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Inbox returns a copy of id's current inbox.
func (b *Bus) Inbox(id graph.NodeId) []graph.Outputs {
	b.mu.Lock()
	defer b.mu.Unlock()
	inbox := b.current[id]
	out := make([]graph.Outputs, len(inbox))
	copy(out, inbox)
	return out
}

// Enqueue appends msg to id's next inbox.
func (b *Bus) Enqueue(id graph.NodeId, msg graph.Outputs) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next[id] = append(b.next[id], msg)
}

// Swap promotes next to current and resets next to empty, ready for the
// superstep that is about to start.
func (b *Bus) Swap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.next
	b.next = make(map[graph.NodeId][]graph.Outputs)
}

// Fold combines an inbox's messages, left to right, under Merge semantics
// into a single graph.Inputs mapping. An empty inbox folds to an empty
// mapping.
func Fold(inbox []graph.Outputs) graph.Inputs {
	folded := make(map[string]any)
	for _, msg := range inbox {
		for k, v := range msg {
			if existing, ok := folded[k]; ok {
				folded[k] = state.MergeValues(existing, v)
			} else {
				folded[k] = v
			}
		}
	}
	return graph.Inputs(folded)
}
