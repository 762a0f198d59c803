// Package graph defines the node/edge data model the scheduler walks: a
// directed, cycle-tolerant graph of user functions connected by optionally
// guarded edges.
package graph

import (
	"context"
	"sort"
	"time"

	"github.com/vk/burstgraph/bgerrors"
	"github.com/vk/burstgraph/state"
)

// NodeId identifies a node within a Graph.
type NodeId string

// Inputs is the folded set of messages a node receives for one superstep.
type Inputs map[string]any

// Outputs is the mapping a node function returns. The engine treats every
// key alike: there is no separate control channel, and a key such as
// "control" carries a routing signal for edge predicates only by convention
// between the node and its predicates.
type Outputs map[string]any

// NodeContext carries the per-invocation context a UserFunction receives
// alongside its folded inputs: which superstep is running, the node's own
// id, and a read-only snapshot of global state as of the start of the
// superstep.
type NodeContext struct {
	Superstep int
	NodeID    NodeId
	State     state.State
}

// UserFunction is the unit of work attached to a node. It receives the
// folded inbox for the current superstep and returns the mapping to route
// onward as both a state update and a message payload.
type UserFunction func(ctx context.Context, inputs Inputs, nc NodeContext) (Outputs, error)

// Predicate gates whether an edge fires, given the firing node's outputs and
// a snapshot of state taken after that node's output was applied.
type Predicate func(outputs Outputs, snapshot state.State) bool

// NodeConfig holds the per-node execution parameters the node runner
// consults. A zero value means: no timeout, no retries, 1s base retry delay.
type NodeConfig struct {
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	Metadata   map[string]any
}

// Node is a single unit of work in the graph.
type Node struct {
	ID     NodeId
	Fn     UserFunction
	Config NodeConfig
}

// Edge connects two nodes. A nil Condition always fires.
type Edge struct {
	Source    NodeId
	Target    NodeId
	Condition Predicate
}

// Graph is an immutable, validated collection of nodes and edges plus a
// designated start node.
type Graph struct {
	id       string
	start    NodeId
	nodes    map[NodeId]*Node
	outgoing map[NodeId][]Edge
}

// New validates nodes and edges and builds a Graph. It returns a
// *bgerrors.Error with KindGraphInvalid if the node set is empty, the start
// node is unknown, an edge references an unknown endpoint, or a node id is
// duplicated.
func New(id string, nodes []Node, edges []Edge, start NodeId) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, bgerrors.NewGraphInvalid("graph %q has no nodes", id)
	}

	byID := make(map[NodeId]*Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, bgerrors.NewGraphInvalid("graph %q: node at index %d has an empty id", id, i)
		}
		if _, dup := byID[n.ID]; dup {
			return nil, bgerrors.NewGraphInvalid("graph %q: duplicate node id %q", id, n.ID)
		}
		if n.Fn == nil {
			return nil, bgerrors.NewGraphInvalid("graph %q: node %q has no function", id, n.ID)
		}
		byID[n.ID] = &n
	}

	if _, ok := byID[start]; !ok {
		return nil, bgerrors.NewGraphInvalid("graph %q: start node %q is not a member of the node set", id, start)
	}

	outgoing := make(map[NodeId][]Edge, len(nodes))
	for i, e := range edges {
		if _, ok := byID[e.Source]; !ok {
			return nil, bgerrors.NewGraphInvalid("graph %q: edge at index %d has unknown source %q", id, i, e.Source)
		}
		if _, ok := byID[e.Target]; !ok {
			return nil, bgerrors.NewGraphInvalid("graph %q: edge at index %d has unknown target %q", id, i, e.Target)
		}
		outgoing[e.Source] = append(outgoing[e.Source], e)
	}

	return &Graph{id: id, start: start, nodes: byID, outgoing: outgoing}, nil
}

// ID returns the graph's identifier.
func (g *Graph) ID() string { return g.id }

// Start returns the designated start node.
func (g *Graph) Start() NodeId { return g.start }

// Node returns the node with the given id, if any.
func (g *Graph) Node(id NodeId) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Has reports whether id names a node in the graph.
func (g *Graph) Has(id NodeId) bool {
	_, ok := g.nodes[id]
	return ok
}

// Outgoing returns the edges leaving id, in the order they were supplied to
// New.
func (g *Graph) Outgoing(id NodeId) []Edge {
	return g.outgoing[id]
}

// NodeIDs returns every node id in the graph, sorted for deterministic
// iteration in callers that need it (e.g. tests, trace output).
func (g *Graph) NodeIDs() []NodeId {
	ids := make([]NodeId, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
