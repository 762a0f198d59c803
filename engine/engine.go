// Package engine is the public entry point: construct one from a graph, an
// initial state, and a config, then Run it to completion.
package engine

import (
	"context"
	"time"

	"github.com/vk/burstgraph/eventbus"
	"github.com/vk/burstgraph/graph"
	"github.com/vk/burstgraph/internal/ctxlog"
	"github.com/vk/burstgraph/result"
	"github.com/vk/burstgraph/scheduler"
	"github.com/vk/burstgraph/state"
)

// Config exposes the scheduler's tunables plus the observers that should
// hear about the run's lifecycle. It has the same defaults as
// scheduler.Config when left zero-valued: MaxIterations 100, WorkerPoolSize
// hardware concurrency, DefaultMergeStrategy Merge, ErrorPolicy Isolate.
type Config struct {
	MaxIterations        int
	WorkerPoolSize       int
	DefaultMergeStrategy state.MergeStrategy
	PerKeyStrategies     map[string]state.MergeStrategy
	RetryBackoffCap      time.Duration
	ErrorPolicy          scheduler.ErrorPolicy
	Fallback             graph.Outputs
	Observers            []eventbus.Observer
}

// Engine runs a single Graph.
type Engine struct {
	graph   *graph.Graph
	initial map[string]any
	cfg     Config
}

// New builds an Engine over g. initial seeds both the state store and the
// first message delivered to g.Start().
func New(g *graph.Graph, initial map[string]any, cfg Config) *Engine {
	return &Engine{graph: g, initial: initial, cfg: cfg}
}

// Run executes the graph to completion. The returned *result.ExecutionResult
// is always populated, including on cancellation or fatal error; the error
// return is reserved for construction-time failures that never reach the
// scheduler.
func (e *Engine) Run(ctx context.Context) (*result.ExecutionResult, error) {
	logger := ctxlog.FromContext(ctx)

	events := eventbus.New(logger)
	for _, o := range e.cfg.Observers {
		events.Subscribe(o)
	}

	sched := scheduler.New(e.graph, e.initial, scheduler.Config{
		MaxIterations:        e.cfg.MaxIterations,
		WorkerPoolSize:       e.cfg.WorkerPoolSize,
		DefaultMergeStrategy: e.cfg.DefaultMergeStrategy,
		PerKeyStrategies:     e.cfg.PerKeyStrategies,
		RetryBackoffCap:      e.cfg.RetryBackoffCap,
		ErrorPolicy:          e.cfg.ErrorPolicy,
		Fallback:             e.cfg.Fallback,
		Events:               events,
	})

	logger.Info("starting graph run",
		"graph_id", e.graph.ID(),
		"start_node", e.graph.Start(),
		"node_count", len(e.graph.NodeIDs()),
	)

	initialMessage := make(graph.Outputs, len(e.initial))
	for k, v := range e.initial {
		initialMessage[k] = v
	}

	res, err := sched.Run(ctx, initialMessage)
	if err != nil {
		logger.Error("graph run failed to start", "graph_id", e.graph.ID(), "error", err)
		return res, err
	}

	logger.Info("graph run finished",
		"graph_id", e.graph.ID(),
		"run_id", res.RunID,
		"terminated_by", res.TerminatedBy,
		"supersteps", res.SupersteppsExecuted,
	)
	return res, nil
}
