package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/burstgraph/bgerrors"
	"github.com/vk/burstgraph/state"
)

func TestApplyOverwrite(t *testing.T) {
	s := state.NewStore(map[string]any{"v": 1}, state.Overwrite)
	require.NoError(t, s.Apply(map[string]any{"v": 2}, state.Overwrite))
	v, ok := s.Get("v")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSetBypassesMergeStrategy(t *testing.T) {
	s := state.NewStore(map[string]any{"v": map[string]any{"a": 1}}, state.Merge)
	s.Set("v", 42)
	v, _ := s.Get("v")
	assert.Equal(t, 42, v)
}

func TestApplyIgnoreKeepsExisting(t *testing.T) {
	s := state.NewStore(map[string]any{"v": 1}, state.Ignore)
	require.NoError(t, s.Apply(map[string]any{"v": 99}, state.Ignore))
	v, _ := s.Get("v")
	assert.Equal(t, 1, v)
}

func TestApplyRejectConflictRollsBackWholeBatch(t *testing.T) {
	s := state.NewStore(map[string]any{"v": 1}, state.Reject)
	err := s.Apply(map[string]any{"v": 2, "w": 3}, state.Reject)
	require.Error(t, err)
	assert.True(t, bgerrors.Is(err, bgerrors.KindMergeConflict))

	_, wExists := s.Get("w")
	assert.False(t, wExists, "batch should not partially commit on reject conflict")
}

func TestApplyMergeDeepMergesMaps(t *testing.T) {
	s := state.NewStore(map[string]any{
		"cfg": map[string]any{"a": 1, "nested": map[string]any{"x": 1}},
	}, state.Merge)

	require.NoError(t, s.Apply(map[string]any{
		"cfg": map[string]any{"b": 2, "nested": map[string]any{"y": 2}},
	}, state.Merge))

	v, _ := s.Get("cfg")
	cfg := v.(map[string]any)
	assert.Equal(t, 1, cfg["a"])
	assert.Equal(t, 2, cfg["b"])
	nested := cfg["nested"].(map[string]any)
	assert.Equal(t, 1, nested["x"])
	assert.Equal(t, 2, nested["y"])
}

func TestApplyMergeConcatenatesLists(t *testing.T) {
	s := state.NewStore(map[string]any{"items": []any{1, 2}}, state.Merge)
	require.NoError(t, s.Apply(map[string]any{"items": []any{3, 4}}, state.Merge))
	v, _ := s.Get("items")
	assert.Equal(t, []any{1, 2, 3, 4}, v)
}

func TestApplyMergeScalarMismatchOverwrites(t *testing.T) {
	s := state.NewStore(map[string]any{"v": map[string]any{"a": 1}}, state.Merge)
	require.NoError(t, s.Apply(map[string]any{"v": 5}, state.Merge))
	v, _ := s.Get("v")
	assert.Equal(t, 5, v)
}

func TestPerKeyStrategyOverridesDefault(t *testing.T) {
	s := state.NewStore(map[string]any{"v": 1}, state.Overwrite)
	s.RegisterKeyStrategy("v", state.Ignore)
	require.NoError(t, s.Apply(map[string]any{"v": 2}, state.Overwrite))
	v, _ := s.Get("v")
	assert.Equal(t, 1, v, "per-key strategy should win over the Apply call's strategy")
}

func TestSnapshotIsIndependentOfLaterWrites(t *testing.T) {
	s := state.NewStore(map[string]any{"v": 1}, state.Overwrite)
	snap := s.Snapshot()
	require.NoError(t, s.Apply(map[string]any{"v": 2}, state.Overwrite))

	v, ok := snap.Get("v")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}
