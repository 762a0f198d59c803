// Package edge evaluates outgoing-edge conditions after a node completes,
// deciding which edges route the node's output onward.
package edge

import (
	"fmt"
	"log/slog"

	"github.com/vk/burstgraph/graph"
	"github.com/vk/burstgraph/state"
)

// Evaluate returns the subset of edges whose Condition fires for outputs and
// snapshot. An edge with a nil Condition always fires. A panicking condition
// is treated as non-firing; onPanic, if non-nil, is called with the
// recovered value so the caller can log or publish an event without the
// evaluator itself taking a logging dependency.
func Evaluate(edges []graph.Edge, outputs graph.Outputs, snapshot state.State, onPanic func(edge graph.Edge, recovered any)) []graph.Edge {
	fired := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Condition == nil {
			fired = append(fired, e)
			continue
		}
		if evaluateOne(e, outputs, snapshot, onPanic) {
			fired = append(fired, e)
		}
	}
	return fired
}

func evaluateOne(e graph.Edge, outputs graph.Outputs, snapshot state.State, onPanic func(graph.Edge, any)) (fires bool) {
	defer func() {
		if r := recover(); r != nil {
			fires = false
			if onPanic != nil {
				onPanic(e, r)
			}
		}
	}()
	return e.Condition(outputs, snapshot)
}

// LogPanic adapts a *slog.Logger into the onPanic callback Evaluate accepts.
func LogPanic(logger *slog.Logger) func(graph.Edge, any) {
	return func(e graph.Edge, recovered any) {
		logger.Warn("edge condition panicked, treating as non-firing",
			"source", e.Source, "target", e.Target, "recovered", fmt.Sprint(recovered))
	}
}
