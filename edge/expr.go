package edge

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vk/burstgraph/graph"
	"github.com/vk/burstgraph/state"
)

// predicateEnv is the variable environment exposed to compiled edge
// expressions: Outputs.* for the firing node's output, State.* for the
// state snapshot taken after that output was applied.
type predicateEnv struct {
	Outputs map[string]any
	State   map[string]any
}

// Compile compiles source into a graph.Predicate using expr-lang/expr. The
// expression must evaluate to a bool; a non-bool result or a runtime error
// is treated as non-firing.
func Compile(source string) (graph.Predicate, error) {
	program, err := expr.Compile(source, expr.Env(predicateEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling edge condition %q: %w", source, err)
	}
	return compiledPredicate(program), nil
}

func compiledPredicate(program *vm.Program) graph.Predicate {
	return func(outputs graph.Outputs, snapshot state.State) bool {
		env := predicateEnv{Outputs: outputs, State: snapshot.ToMap()}
		out, err := expr.Run(program, env)
		if err != nil {
			return false
		}
		fired, _ := out.(bool)
		return fired
	}
}
