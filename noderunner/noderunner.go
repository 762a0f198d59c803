// Package noderunner invokes a single node's function with timeout,
// exponential-backoff retry, and panic recovery, classifying every terminal
// failure into the engine's error taxonomy.
package noderunner

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/burstgraph/bgerrors"
	"github.com/vk/burstgraph/graph"
)

// Outcome is the result of running a node to either success or exhaustion
// of its retry budget.
type Outcome struct {
	Output   graph.Outputs
	Err      error
	Attempts int
	Duration time.Duration
}

const defaultRetryDelay = time.Second

type invocation struct {
	output graph.Outputs
	err    error
}

// Run invokes node.Fn with inputs and nc, retrying on timeout or user error
// up to node.Config.RetryCount additional times with exponential backoff
// (RetryDelay * 2^attempt, capped at backoffCap when backoffCap is positive).
// A cancellation of ctx itself (as opposed to a per-attempt timeout) aborts
// immediately without consuming further retries; once ctx is cancelled,
// node.Fn is not invoked again.
func Run(ctx context.Context, node *graph.Node, inputs graph.Inputs, nc graph.NodeContext, backoffCap time.Duration) Outcome {
	start := time.Now()

	retryDelay := node.Config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= node.Config.RetryCount; attempt++ {
		if ctx.Err() != nil {
			return Outcome{
				Err:      bgerrors.NewCancelled(string(nc.NodeID), nc.Superstep, ctx.Err()),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if node.Config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, node.Config.Timeout)
		}

		out, err := invoke(attemptCtx, node, inputs, nc, attempts)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return Outcome{Output: out, Attempts: attempts, Duration: time.Since(start)}
		}

		if ctx.Err() != nil {
			// The run itself was cancelled, not just this attempt's
			// timeout. Stop retrying; no backoff budget is spent.
			return Outcome{
				Err:      bgerrors.NewCancelled(string(nc.NodeID), nc.Superstep, ctx.Err()),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}

		lastErr = err
		if attempt == node.Config.RetryCount {
			break
		}

		backoff := retryDelay << attempt
		if backoffCap > 0 && backoff > backoffCap {
			backoff = backoffCap
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Outcome{
				Err:      bgerrors.NewCancelled(string(nc.NodeID), nc.Superstep, ctx.Err()),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
	}

	return Outcome{Err: lastErr, Attempts: attempts, Duration: time.Since(start)}
}

// invoke runs node.Fn once, converting a timed-out attempt context or a
// panic into a classified *bgerrors.Error.
func invoke(ctx context.Context, node *graph.Node, inputs graph.Inputs, nc graph.NodeContext, attempt int) (graph.Outputs, error) {
	resultCh := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- invocation{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := node.Fn(ctx, inputs, nc)
		resultCh <- invocation{output: out, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, bgerrors.NewUserError(string(nc.NodeID), nc.Superstep, attempt, res.err)
		}
		if res.output == nil {
			res.output = graph.Outputs{}
		}
		return res.output, nil
	case <-ctx.Done():
		return nil, bgerrors.NewTimeout(string(nc.NodeID), nc.Superstep, attempt, ctx.Err())
	}
}
