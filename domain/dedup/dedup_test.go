package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/domain/chunks"
)

func chunk(id, content string, seq int, createdAt time.Time) *chunks.TextChunk {
	return &chunks.TextChunk{
		ID:             id,
		DocumentID:     "d1",
		Content:        content,
		ContentHash:    chunks.HashContent(content),
		SequenceNumber: seq,
		CreatedAt:      createdAt,
	}
}

func TestGroupByHash(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	dup := "Python is a programming language."

	list := []*chunks.TextChunk{
		chunk("c1", "An unrelated paragraph.", 1, base),
		chunk("c2", dup, 2, base.Add(time.Second)),
		chunk("c5", "Python  is a\nprogramming language.", 5, base.Add(2*time.Second)),
		chunk("c7", dup, 7, base.Add(3*time.Second)),
		chunk("c9", "Another singleton.", 9, base.Add(4*time.Second)),
	}

	groups := groupByHash(list)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 3)

	ids := []string{groups[0][0].ID, groups[0][1].ID, groups[0][2].ID}
	assert.ElementsMatch(t, []string{"c2", "c5", "c7"}, ids)
}

func TestGroupByHashNoDuplicates(t *testing.T) {
	base := time.Now()
	list := []*chunks.TextChunk{
		chunk("c1", "one", 1, base),
		chunk("c2", "two", 2, base),
	}
	assert.Empty(t, groupByHash(list))
}

func TestRepresentative(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("earliest created_at wins", func(t *testing.T) {
		group := []*chunks.TextChunk{
			chunk("late", "x", 1, base.Add(time.Hour)),
			chunk("early", "x", 9, base),
		}
		assert.Equal(t, "early", representative(group).ID)
	})

	t.Run("created_at tie broken by sequence number", func(t *testing.T) {
		group := []*chunks.TextChunk{
			chunk("seq7", "x", 7, base),
			chunk("seq2", "x", 2, base),
			chunk("seq5", "x", 5, base),
		}
		assert.Equal(t, "seq2", representative(group).ID)
	})

	t.Run("does not mutate the group order", func(t *testing.T) {
		group := []*chunks.TextChunk{
			chunk("b", "x", 2, base.Add(time.Minute)),
			chunk("a", "x", 1, base),
		}
		representative(group)
		assert.Equal(t, "b", group[0].ID)
	})
}

func TestGroupBySimilarity(t *testing.T) {
	base := time.Now()
	list := []*chunks.TextChunk{
		chunk("c1", "alpha", 1, base),
		chunk("c2", "alpha variant", 2, base),
		chunk("c3", "unrelated", 3, base),
		chunk("c4", "no vector", 4, base),
	}
	vectors := map[string][]float32{
		"c1": {1, 0, 0},
		"c2": {0.999, 0.04, 0},
		"c3": {0, 1, 0},
	}

	groups := groupBySimilarity(list, vectors, 0.95)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.ElementsMatch(t, []string{"c1", "c2"},
		[]string{groups[0][0].ID, groups[0][1].ID})
}

func TestGroupBySimilarityTransitiveLinking(t *testing.T) {
	base := time.Now()
	list := []*chunks.TextChunk{
		chunk("a", "a", 1, base),
		chunk("b", "b", 2, base),
		chunk("c", "c", 3, base),
	}
	// a~b and b~c meet the threshold; a~c does not, but single-link pulls
	// all three into one cluster.
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0.99, 0.14},
		"c": {0.96, 0.28},
	}

	groups := groupBySimilarity(list, vectors, 0.985)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestGroupBySimilarityBelowThreshold(t *testing.T) {
	base := time.Now()
	list := []*chunks.TextChunk{
		chunk("a", "a", 1, base),
		chunk("b", "b", 2, base),
	}
	vectors := map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}
	assert.Empty(t, groupBySimilarity(list, vectors, 0.95))
}
