package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSQL(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		var f *Filter
		clause, args, err := f.SQL()
		require.NoError(t, err)
		assert.Empty(t, clause)
		assert.Empty(t, args)
	})

	t.Run("single equality", func(t *testing.T) {
		f := (&Filter{}).Eq("document_id", "d1")
		clause, args, err := f.SQL()
		require.NoError(t, err)
		assert.Equal(t, "payload->>'document_id' = ?", clause)
		assert.Equal(t, []any{"d1"}, args)
	})

	t.Run("conjunction of equality and range", func(t *testing.T) {
		f := (&Filter{}).
			Eq("user_id", "u1").
			Range("page", OpGte, 2).
			Range("page", OpLte, 10)
		clause, args, err := f.SQL()
		require.NoError(t, err)
		assert.Equal(t,
			"payload->>'user_id' = ? AND (payload->>'page')::numeric >= ? AND (payload->>'page')::numeric <= ?",
			clause)
		assert.Len(t, args, 3)
	})

	t.Run("nested path", func(t *testing.T) {
		f := (&Filter{}).Eq("user_metadata.tag", "science")
		clause, _, err := f.SQL()
		require.NoError(t, err)
		assert.Equal(t, "payload#>>'{user_metadata,tag}' = ?", clause)
	})

	t.Run("rejects injection in path", func(t *testing.T) {
		f := (&Filter{}).Eq("document_id'; DROP TABLE kb.vector_points; --", "x")
		_, _, err := f.SQL()
		assert.Error(t, err)
	})

	t.Run("rejects empty path", func(t *testing.T) {
		f := (&Filter{}).Eq("", "x")
		_, _, err := f.SQL()
		assert.Error(t, err)
	})

	t.Run("rejects unknown operator", func(t *testing.T) {
		f := &Filter{Must: []Condition{{Path: "page", Op: Op("like"), Value: 1}}}
		_, _, err := f.SQL()
		assert.Error(t, err)
	})
}

func TestFilterIsEmpty(t *testing.T) {
	assert.True(t, (&Filter{}).IsEmpty())
	assert.True(t, (*Filter)(nil).IsEmpty())
	assert.False(t, (&Filter{}).Eq("a", 1).IsEmpty())
}
