package summary

import (
	"testing"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
	"github.com/fieldscope-labs/fieldscope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAdmitNew(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "inst_id", testutil.NewTestLogger(t))
	acc.Seed("i-1")

	acc.ApplyPass("base", &staging.NamedRows{
		Columns: []string{"inst_id", "product"},
		Rows:    [][]any{{"i-1", "Cb Protection"}, {"i-2", "Cb Response"}},
	})

	assert.Equal(t, 2, acc.Len())
	assert.True(t, acc.Has("i-2"), "AdmitNew creates entries for unknown keys")
}

func TestAccumulatorSeedOnlyDropsUnknownKeys(t *testing.T) {
	acc := NewAccumulator(SeedOnly, "acct_id", testutil.NewTestLogger(t))
	acc.Seed("a-1")

	acc.ApplyPass("base", &staging.NamedRows{
		Columns: []string{"acct_id", "tier"},
		Rows:    [][]any{{"a-1", "High"}, {"a-stranger", "Low"}},
	})

	assert.Equal(t, 1, acc.Len())
	assert.False(t, acc.Has("a-stranger"), "SeedOnly never admits new entries")

	rows := acc.Flatten()
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"a-1", "High"}, rows[0])
}

func TestAccumulatorUniformFieldSet(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", testutil.NewTestLogger(t))
	acc.Seed("e-1")
	acc.Seed("e-2")

	// First pass touches only e-1; second only e-2 with a new field.
	acc.ApplyPass("one", &staging.NamedRows{
		Columns: []string{"id", "alpha"},
		Rows:    [][]any{{"e-1", "A"}},
	})
	acc.ApplyPass("two", &staging.NamedRows{
		Columns: []string{"id", "beta"},
		Rows:    [][]any{{"e-2", "B"}},
	})

	assert.Equal(t, []string{"id", "alpha", "beta"}, acc.Fields())
	rows := acc.Flatten()
	require.Len(t, rows, 2)
	// Every row has every field; untouched cells flatten to nil.
	assert.Equal(t, []any{"e-1", "A", nil}, rows[0])
	assert.Equal(t, []any{"e-2", nil, "B"}, rows[1])
}

func TestAccumulatorLaterPassOverwrites(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", nil)
	acc.Seed("e-1")

	acc.ApplyPass("one", &staging.NamedRows{
		Columns: []string{"id", "score"},
		Rows:    [][]any{{"e-1", 10}},
	})
	acc.ApplyPass("two", &staging.NamedRows{
		Columns: []string{"id", "score"},
		Rows:    [][]any{{"e-1", 20}},
	})

	rows := acc.Flatten()
	assert.Equal(t, []any{"e-1", 20}, rows[0])
}

func TestAccumulatorEmptyPassRegistersFields(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", nil)
	acc.Seed("e-1")

	// A pass with zero rows is a no-op for values but still widens the
	// schema.
	acc.ApplyPass("empty", &staging.NamedRows{Columns: []string{"id", "gamma"}})

	assert.Equal(t, []string{"id", "gamma"}, acc.Fields())
	assert.Equal(t, []any{"e-1", nil}, acc.Flatten()[0])
}

func TestAccumulatorExplicitMissingValue(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", nil)
	acc.Seed("e-1")

	// A pass may carry Missing in a value position; it flattens to nil
	// like a backfilled gap.
	acc.ApplyPass("ratios", &staging.NamedRows{
		Columns: []string{"id", "ratio_a", "ratio_b"},
		Rows:    [][]any{{"e-1", 0.5, Missing}},
	})

	assert.Equal(t, []any{"e-1", 0.5, nil}, acc.Flatten()[0])
}

func TestAccumulatorFlattenSeedOrder(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", nil)
	for _, id := range []string{"e-3", "e-1", "e-2"} {
		acc.Seed(id)
	}
	acc.ApplyPass("one", &staging.NamedRows{
		Columns: []string{"id", "v"},
		Rows:    [][]any{{"e-1", 1}, {"e-2", 2}, {"e-3", 3}},
	})

	rows := acc.Flatten()
	assert.Equal(t, "e-3", rows[0][0])
	assert.Equal(t, "e-1", rows[1][0])
	assert.Equal(t, "e-2", rows[2][0])
}

func TestAccumulatorSkipsNilKeys(t *testing.T) {
	acc := NewAccumulator(AdmitNew, "id", nil)
	acc.ApplyPass("one", &staging.NamedRows{
		Columns: []string{"id", "v"},
		Rows:    [][]any{{nil, 1}, {"", 2}, {"e-1", 3}},
	})
	assert.Equal(t, 1, acc.Len())
}
