package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var denver = time.FixedZone("MST", -7*3600)

func TestEnsureUTC(t *testing.T) {
	local := time.Date(2025, 3, 1, 5, 30, 0, 0, denver)

	t.Run("bare time", func(t *testing.T) {
		got := EnsureUTC(local).(time.Time)
		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.Equal(local))
	})

	t.Run("pointer", func(t *testing.T) {
		got := EnsureUTC(&local).(*time.Time)
		require.NotNil(t, got)
		assert.Equal(t, time.UTC, got.Location())
		assert.Equal(t, denver, local.Location(), "the original is not mutated")
	})

	t.Run("nested maps and slices", func(t *testing.T) {
		in := map[string]any{
			"last_run": local,
			"history":  []any{local, "not a time"},
			"nested":   map[string]any{"at": local},
			"count":    3,
		}
		out := EnsureUTC(in).(map[string]any)

		assert.Equal(t, time.UTC, out["last_run"].(time.Time).Location())
		assert.Equal(t, time.UTC, out["history"].([]any)[0].(time.Time).Location())
		assert.Equal(t, "not a time", out["history"].([]any)[1])
		assert.Equal(t, time.UTC, out["nested"].(map[string]any)["at"].(time.Time).Location())
		assert.Equal(t, 3, out["count"])

		assert.Equal(t, denver, in["last_run"].(time.Time).Location(), "input map untouched")
	})

	t.Run("passthrough", func(t *testing.T) {
		assert.Equal(t, "hello", EnsureUTC("hello"))
		assert.Nil(t, EnsureUTC(nil))
	})
}

func TestEnsureUTCMap(t *testing.T) {
	assert.Nil(t, EnsureUTCMap(nil))

	out := EnsureUTCMap(map[string]any{"at": time.Date(2025, 3, 1, 5, 30, 0, 0, denver)})
	assert.Equal(t, time.UTC, out["at"].(time.Time).Location())
}
