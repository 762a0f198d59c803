// Package scheduler runs the bulk-synchronous superstep loop: dispatch every
// active node concurrently, fold their outputs into state, route messages
// along firing edges, and repeat until quiescence, the iteration cap, or a
// fatal error.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/burstgraph/bgerrors"
	"github.com/vk/burstgraph/edge"
	"github.com/vk/burstgraph/eventbus"
	"github.com/vk/burstgraph/graph"
	"github.com/vk/burstgraph/messagebus"
	"github.com/vk/burstgraph/noderunner"
	"github.com/vk/burstgraph/result"
	"github.com/vk/burstgraph/state"
)

// ErrorPolicy controls how a node's terminal failure (retry budget
// exhausted) affects the run.
type ErrorPolicy int

const (
	// Isolate drops the failing node's output for this superstep and lets
	// the rest of the graph continue. The default.
	Isolate ErrorPolicy = iota
	// Propagate turns the node's failure into a fatal error that ends
	// the run at the next barrier.
	Propagate
	// Substitute replaces the failing node's output with Config.Fallback
	// and lets the run continue.
	Substitute
)

// Config configures one Scheduler.
type Config struct {
	MaxIterations        int
	WorkerPoolSize       int
	DefaultMergeStrategy state.MergeStrategy
	PerKeyStrategies     map[string]state.MergeStrategy
	RetryBackoffCap      time.Duration
	ErrorPolicy          ErrorPolicy
	Fallback             graph.Outputs
	Events               *eventbus.Bus
}

const defaultMaxIterations = 100

// Scheduler runs a single Graph to completion.
type Scheduler struct {
	graph *graph.Graph
	store *state.Store
	cfg   Config
}

// New builds a Scheduler over g, seeding its state store from initial and
// applying cfg's per-key merge strategy overrides.
func New(g *graph.Graph, initial map[string]any, cfg Config) *Scheduler {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = runtime.NumCPU()
	}
	if cfg.DefaultMergeStrategy == 0 {
		cfg.DefaultMergeStrategy = state.Merge
	}
	if cfg.Events == nil {
		cfg.Events = eventbus.New(nil)
	}

	store := state.NewStore(initial, cfg.DefaultMergeStrategy)
	for key, strategy := range cfg.PerKeyStrategies {
		store.RegisterKeyStrategy(key, strategy)
	}

	return &Scheduler{graph: g, store: store, cfg: cfg}
}

type outcome struct {
	nodeID   graph.NodeId
	output   graph.Outputs
	err      error
	isolated bool
}

// Run drives the graph from its start node through successive supersteps
// until quiescence, the iteration cap, a fatal error under Propagate, or
// cancellation of ctx. It always returns a populated *result.ExecutionResult,
// even when the run ended in failure.
func (s *Scheduler) Run(ctx context.Context, initialMessage graph.Outputs) (*result.ExecutionResult, error) {
	runID := uuid.New()
	bus := messagebus.New()
	bus.Seed(s.graph.Start(), initialMessage)

	stats := make(map[graph.NodeId]*result.NodeStats)
	var statsMu sync.Mutex

	var trace []result.SuperstepRecord
	var terminatedBy result.TerminatedBy
	var cause error

	s.cfg.Events.Publish(eventbus.Event{Type: eventbus.WorkflowStart, RunID: runID.String(), At: now()})

	step := 0
	executed := 0

	for {
		executed++

		active := bus.Active()
		if len(active) == 0 {
			terminatedBy = result.Quiescence
			break
		}
		if ctx.Err() != nil {
			terminatedBy = result.FatalError
			cause = bgerrors.NewCancelled("", step, ctx.Err())
			break
		}
		if step >= s.cfg.MaxIterations {
			terminatedBy = result.IterationCap
			cause = bgerrors.NewIterationCapExceeded(step)
			break
		}

		s.cfg.Events.Publish(eventbus.Event{Type: eventbus.SuperstepStart, RunID: runID.String(), Superstep: step, Active: active, At: now()})
		stepStart := time.Now()

		outcomes, runErr := s.runSuperstep(ctx, runID.String(), step, active, bus, stats, &statsMu)

		record := result.SuperstepRecord{Index: step, Active: active, Duration: time.Since(stepStart)}
		for _, oc := range outcomes {
			if oc.err != nil {
				record.Errors = append(record.Errors, result.NodeError{
					NodeID: oc.nodeID, Superstep: step, Cause: oc.err.Error(),
				})
			}
		}
		trace = append(trace, record)

		s.cfg.Events.Publish(eventbus.Event{Type: eventbus.SuperstepEnd, RunID: runID.String(), Superstep: step, Duration: record.Duration, At: now()})

		if runErr != nil {
			terminatedBy = result.FatalError
			cause = runErr
			break
		}

		s.route(runID.String(), outcomes, bus)
		bus.Swap()
		step++
	}

	s.cfg.Events.Publish(eventbus.Event{Type: eventbus.WorkflowEnd, RunID: runID.String(), At: now()})

	return &result.ExecutionResult{
		RunID:               runID,
		GraphID:             s.graph.ID(),
		FinalState:          s.store.Snapshot().ToMap(),
		SupersteppsExecuted: executed,
		PerNodeStats:        stats,
		TerminatedBy:        terminatedBy,
		Trace:               trace,
		Cause:               cause,
	}, nil
}

// runSuperstep dispatches every active node concurrently, bounded by
// WorkerPoolSize, and collects one outcome per active node; it does not
// write to the state store (route does that after the barrier). It returns
// a fatal error (non-nil) when a node run was cancelled, or when ErrorPolicy
// is Propagate and some node exhausted its retries.
func (s *Scheduler) runSuperstep(
	ctx context.Context,
	runID string,
	step int,
	active []graph.NodeId,
	bus *messagebus.Bus,
	stats map[graph.NodeId]*result.NodeStats,
	statsMu *sync.Mutex,
) ([]outcome, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WorkerPoolSize)

	outcomes := make([]outcome, len(active))

	for i, id := range active {
		i, id := i, id
		g.Go(func() error {
			node, _ := s.graph.Node(id)
			inbox := bus.Inbox(id)
			inputs := messagebus.Fold(inbox)
			snapshot := s.store.Snapshot()

			nc := graph.NodeContext{Superstep: step, NodeID: id, State: snapshot}
			s.cfg.Events.Publish(eventbus.Event{Type: eventbus.NodeStart, RunID: runID, Superstep: step, NodeID: id, At: now()})

			nodeStart := time.Now()
			run := noderunner.Run(gctx, node, inputs, nc, s.cfg.RetryBackoffCap)
			duration := time.Since(nodeStart)

			statsMu.Lock()
			st := stats[id]
			if st == nil {
				st = &result.NodeStats{}
				stats[id] = st
			}
			st.Runs++
			st.TotalDuration += duration
			if run.Err != nil {
				st.Failures++
			}
			statsMu.Unlock()

			oc := outcome{nodeID: id, output: run.Output}

			if run.Err != nil {
				s.cfg.Events.Publish(eventbus.Event{Type: eventbus.NodeError, RunID: runID, Superstep: step, NodeID: id, Err: run.Err, Attempt: run.Attempts, Duration: duration, At: now()})

				if bgerrors.Is(run.Err, bgerrors.KindCancelled) {
					outcomes[i] = outcome{nodeID: id, err: run.Err}
					return run.Err
				}

				switch s.cfg.ErrorPolicy {
				case Propagate:
					outcomes[i] = outcome{nodeID: id, err: run.Err}
					return run.Err
				case Substitute:
					oc.output = s.cfg.Fallback
					oc.err = run.Err
				default: // Isolate
					oc.output = nil
					oc.err = run.Err
					oc.isolated = true
				}
			} else {
				s.cfg.Events.Publish(eventbus.Event{Type: eventbus.NodeEnd, RunID: runID, Superstep: step, NodeID: id, Duration: duration, At: now()})
			}

			outcomes[i] = oc
			return nil
		})
	}

	err := g.Wait()
	return outcomes, err
}

// route applies each node's output to the state store and enqueues it onto
// every edge whose condition fires.
func (s *Scheduler) route(runID string, outcomes []outcome, bus *messagebus.Bus) {
	for _, oc := range outcomes {
		if oc.isolated {
			// The node's output is untrusted under ISOLATE: no state
			// write, no edge evaluation, no downstream message.
			continue
		}
		if oc.output == nil {
			continue
		}
		if err := s.store.Apply(oc.output, s.cfg.DefaultMergeStrategy); err != nil {
			s.cfg.Events.Publish(eventbus.Event{Type: eventbus.NodeError, RunID: runID, NodeID: oc.nodeID, Err: err, At: now()})
			continue
		}

		snapshot := s.store.Snapshot()
		onPanic := func(e graph.Edge, recovered any) {
			s.cfg.Events.Publish(eventbus.Event{Type: eventbus.EdgeEvaluationError, RunID: runID, NodeID: e.Source, Err: fmt.Errorf("edge condition panicked: %v", recovered), At: now()})
		}

		fired := edge.Evaluate(s.graph.Outgoing(oc.nodeID), oc.output, snapshot, onPanic)
		for _, e := range fired {
			bus.Enqueue(e.Target, oc.output)
		}
	}
}

func now() time.Time { return time.Now() }
