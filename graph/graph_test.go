package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/burstgraph/bgerrors"
	"github.com/vk/burstgraph/graph"
)

func noop(ctx context.Context, in graph.Inputs, nc graph.NodeContext) (graph.Outputs, error) {
	return graph.Outputs{}, nil
}

func TestNewRejectsEmptyNodeSet(t *testing.T) {
	_, err := graph.New("g", nil, nil, "a")
	require.Error(t, err)
	assert.True(t, bgerrors.Is(err, bgerrors.KindGraphInvalid))
}

func TestNewRejectsUnknownStart(t *testing.T) {
	_, err := graph.New("g", []graph.Node{{ID: "a", Fn: noop}}, nil, "missing")
	require.Error(t, err)
	assert.True(t, bgerrors.Is(err, bgerrors.KindGraphInvalid))
}

func TestNewRejectsDanglingEdge(t *testing.T) {
	nodes := []graph.Node{{ID: "a", Fn: noop}}
	edges := []graph.Edge{{Source: "a", Target: "ghost"}}
	_, err := graph.New("g", nodes, edges, "a")
	require.Error(t, err)
	assert.True(t, bgerrors.Is(err, bgerrors.KindGraphInvalid))
}

func TestNewRejectsDuplicateNodeID(t *testing.T) {
	nodes := []graph.Node{{ID: "a", Fn: noop}, {ID: "a", Fn: noop}}
	_, err := graph.New("g", nodes, nil, "a")
	require.Error(t, err)
	assert.True(t, bgerrors.Is(err, bgerrors.KindGraphInvalid))
}

func TestNewAcceptsCyclicGraph(t *testing.T) {
	nodes := []graph.Node{{ID: "a", Fn: noop}, {ID: "b", Fn: noop}}
	edges := []graph.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}}
	g, err := graph.New("g", nodes, edges, "a")
	require.NoError(t, err)
	assert.Len(t, g.Outgoing("a"), 1)
	assert.Len(t, g.Outgoing("b"), 1)
}

func TestHasReflectsMembership(t *testing.T) {
	g, err := graph.New("g", []graph.Node{{ID: "a", Fn: noop}}, nil, "a")
	require.NoError(t, err)
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("b"))
}

func TestOutgoingPreservesInputOrder(t *testing.T) {
	nodes := []graph.Node{{ID: "a", Fn: noop}, {ID: "b", Fn: noop}, {ID: "c", Fn: noop}}
	edges := []graph.Edge{
		{Source: "a", Target: "c"},
		{Source: "a", Target: "b"},
	}
	g, err := graph.New("g", nodes, edges, "a")
	require.NoError(t, err)
	out := g.Outgoing("a")
	require.Len(t, out, 2)
	assert.Equal(t, graph.NodeId("c"), out[0].Target)
	assert.Equal(t, graph.NodeId("b"), out[1].Target)
}
