// Package result defines the envelope a run produces: the final state, a
// per-superstep trace, per-node statistics, and the reason execution
// stopped.
package result

import (
	"time"

	"github.com/google/uuid"

	"github.com/vk/burstgraph/graph"
)

// TerminatedBy names the single condition that ended a run.
type TerminatedBy string

const (
	Quiescence   TerminatedBy = "quiescence"
	IterationCap TerminatedBy = "iteration_cap"
	FatalError   TerminatedBy = "fatal_error"
)

// NodeStats accumulates per-node outcomes across the whole run.
type NodeStats struct {
	Runs          int
	Failures      int
	TotalDuration time.Duration
}

// NodeError records one failed node attempt for the trace.
type NodeError struct {
	NodeID    graph.NodeId
	Superstep int
	Attempt   int
	Cause     string
}

// SuperstepRecord captures one superstep for the trace.
type SuperstepRecord struct {
	Index    int
	Active   []graph.NodeId
	Duration time.Duration
	Errors   []NodeError
}

// ExecutionResult is what a scheduler run returns, win or lose.
type ExecutionResult struct {
	RunID               uuid.UUID
	GraphID             string
	FinalState          map[string]any
	SupersteppsExecuted int
	PerNodeStats        map[graph.NodeId]*NodeStats
	TerminatedBy        TerminatedBy
	Trace               []SuperstepRecord
	Cause               error
}
