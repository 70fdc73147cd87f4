package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *time.Time) {
	s := New()
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return s, &current
}

func TestRecord(t *testing.T) {
	t.Run("inserts value with provenance", func(t *testing.T) {
		s, _ := newTestStore()
		require.NoError(t, s.Record(ScopeContext, map[string]any{"text": "hi"}, "echo", PhaseTool))

		entry, ok := s.Lookup(ScopeContext, "text")
		require.True(t, ok)
		assert.Equal(t, "hi", entry.Value)
		assert.Equal(t, "echo", entry.ToolID)
		assert.Equal(t, PhaseTool, entry.Phase)
		assert.False(t, time.Time(entry.CreatedAt).IsZero())
	})

	t.Run("rejects unknown scope", func(t *testing.T) {
		s, _ := newTestStore()
		assert.Error(t, s.Record("bogus", map[string]any{"k": 1}, "t", PhaseTool))
	})

	t.Run("rejects invalid phase", func(t *testing.T) {
		s, _ := newTestStore()
		assert.Error(t, s.Record(ScopeContext, map[string]any{"k": 1}, "t", "outputs"))
	})

	t.Run("chains prior values under numeric suffixes", func(t *testing.T) {
		s, _ := newTestStore()
		require.NoError(t, s.Record(ScopeContext, map[string]any{"k": "A"}, "first", PhaseTrigger))
		require.NoError(t, s.Record(ScopeContext, map[string]any{"k": "B"}, "second", PhaseTool))
		require.NoError(t, s.Record(ScopeContext, map[string]any{"k": "C"}, "third", PhaseTool))

		current, ok := s.Lookup(ScopeContext, "k")
		require.True(t, ok)
		assert.Equal(t, "C", current.Value)
		assert.Equal(t, "third", current.ToolID)

		prev, ok := s.Lookup(ScopeContext, "k_1")
		require.True(t, ok)
		assert.Equal(t, "B", prev.Value)
		assert.Equal(t, "second", prev.ToolID)
		assert.Equal(t, PhaseTool, prev.Phase)

		oldest, ok := s.Lookup(ScopeContext, "k_2")
		require.True(t, ok)
		assert.Equal(t, "A", oldest.Value)
		assert.Equal(t, "first", oldest.ToolID)
		assert.Equal(t, PhaseTrigger, oldest.Phase, "shifted entries keep their original provenance")

		// timestamps must survive the shift untouched
		assert.True(t, time.Time(oldest.CreatedAt).Before(time.Time(prev.CreatedAt)))
		assert.True(t, time.Time(prev.CreatedAt).Before(time.Time(current.CreatedAt)))
	})

	t.Run("does not treat foreign suffixes as part of the chain", func(t *testing.T) {
		s, _ := newTestStore()
		require.NoError(t, s.Record(ScopeContext, map[string]any{"k_extra": "x", "k": "A"}, "t", PhaseTool))
		require.NoError(t, s.Record(ScopeContext, map[string]any{"k": "B"}, "t", PhaseTool))

		entry, ok := s.Lookup(ScopeContext, "k_extra")
		require.True(t, ok)
		assert.Equal(t, "x", entry.Value)
		_, ok = s.Lookup(ScopeContext, "k_1")
		assert.True(t, ok)
		_, ok = s.Lookup(ScopeContext, "k_2")
		assert.False(t, ok)
	})
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Record(ScopeContext, map[string]any{"a": 1}, "t", PhaseTool))
	require.NoError(t, s.Record(ScopeContext, map[string]any{"a": 2}, "t", PhaseTool))

	deleted := s.Delete(ScopeContext, "a", "missing")
	assert.Equal(t, []string{"a"}, deleted)

	_, ok := s.Lookup(ScopeContext, "a")
	assert.False(t, ok)
	_, ok = s.Lookup(ScopeContext, "a_1")
	assert.True(t, ok, "historical siblings survive an exact-key delete")
}

func TestFlattenAndSnapshot(t *testing.T) {
	s, _ := newTestStore()
	s.Set("agent_id", "agent-1")
	require.NoError(t, s.Record(ScopeContext, map[string]any{"topic": "owls"}, "research", PhaseTool))
	require.NoError(t, s.Record(ScopeOutputs, map[string]any{"tweet": "hoot"}, "composer", PhaseOutput))

	flat := s.Flatten(ScopeContext)
	assert.Equal(t, map[string]any{"topic": "owls"}, flat)

	snap := s.Snapshot()
	assert.Equal(t, "agent-1", snap["agent_id"])
	assert.Equal(t, map[string]any{"topic": "owls"}, snap["context"])
	assert.Equal(t, map[string]any{"tweet": "hoot"}, snap["outputs"])

	// mutating the snapshot must not leak back into the store
	snap["context"].(map[string]any)["topic"] = "changed"
	entry, _ := s.Lookup(ScopeContext, "topic")
	assert.Equal(t, "owls", entry.Value)
}

func TestOrderedOutputs(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Record(ScopeOutputs, map[string]any{"first": 1}, "a", PhaseTool))
	require.NoError(t, s.Record(ScopeOutputs, map[string]any{"second": 2}, "b", PhaseOutput))
	require.NoError(t, s.Record(ScopeOutputs, map[string]any{"third": 3}, "c", PhaseOutput))

	ordered := s.OrderedOutputs()
	require.Len(t, ordered, 3)
	assert.Equal(t, "first", ordered[0].Key)
	assert.Equal(t, "second", ordered[1].Key)
	assert.Equal(t, "third", ordered[2].Key)
}
