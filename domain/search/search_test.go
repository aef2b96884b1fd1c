package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

func TestValidate(t *testing.T) {
	valid := func() Request {
		return Request{Query: "how does chunking work", Mode: ModeHybrid, Limit: 10}
	}

	t.Run("ok", func(t *testing.T) {
		req := valid()
		require.NoError(t, validate(&req))
	})

	t.Run("empty mode defaults to hybrid", func(t *testing.T) {
		req := valid()
		req.Mode = ""
		require.NoError(t, validate(&req))
		assert.Equal(t, ModeHybrid, req.Mode)
	})

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty query", func(r *Request) { r.Query = "" }},
		{"query too long", func(r *Request) {
			long := make([]byte, maxQueryLength+1)
			for i := range long {
				long[i] = 'q'
			}
			r.Query = string(long)
		}},
		{"zero limit", func(r *Request) { r.Limit = 0 }},
		{"limit over cap", func(r *Request) { r.Limit = maxLimit + 1 }},
		{"negative threshold", func(r *Request) { r.Threshold = -0.1 }},
		{"threshold over one", func(r *Request) { r.Threshold = 1.5 }},
		{"unknown mode", func(r *Request) { r.Mode = "psychic" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := validate(&req)
			require.Error(t, err)
			assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Run("lowercases and strips punctuation", func(t *testing.T) {
		assert.Equal(t, []string{"python", "programming", "language"},
			Tokenize("Python: a PROGRAMMING language?"))
	})

	t.Run("drops stop words and short tokens", func(t *testing.T) {
		assert.Equal(t, []string{"retry", "backoff"},
			Tokenize("what is the retry and backoff"))
	})

	t.Run("caps token count", func(t *testing.T) {
		tokens := Tokenize("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima")
		assert.Len(t, tokens, maxTokens)
	})

	t.Run("all stop words", func(t *testing.T) {
		assert.Empty(t, Tokenize("the and but for"))
	})
}

func TestKeywordScore(t *testing.T) {
	tokens := []string{"python", "language"}

	t.Run("frequency over word count", func(t *testing.T) {
		// 8 words, python twice, language once.
		score := keywordScore(tokens, "Python is great and Python is a language")
		assert.InDelta(t, 3.0/8.0, score, 1e-6)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Zero(t, keywordScore(tokens, "completely unrelated text here"))
	})

	t.Run("empty content", func(t *testing.T) {
		assert.Zero(t, keywordScore(tokens, ""))
	})
}

func TestFuse(t *testing.T) {
	semantic := []Result{
		{ChunkID: "a", DocumentID: "d1", Score: 0.9},
		{ChunkID: "c", DocumentID: "d3", Score: 0.5},
	}
	keyword := []Result{
		{ChunkID: "b", DocumentID: "d2", Score: 0.6},
		{ChunkID: "c", DocumentID: "d3", Score: 0.4},
	}

	fused := fuse(semantic, keyword)
	byID := make(map[string]float32, len(fused))
	for _, r := range fused {
		byID[r.ChunkID] = r.Score
	}

	assert.InDelta(t, 0.7*0.9, byID["a"], 1e-6)
	assert.InDelta(t, 0.3*0.6, byID["b"], 1e-6)
	assert.InDelta(t, 0.7*0.5+0.3*0.4, byID["c"], 1e-6)
}

func TestHybridFusionThreshold(t *testing.T) {
	// Chunk A is a semantic-only hit at 0.9, chunk B a keyword-only hit at
	// 0.6. With 0.7/0.3 weights and threshold 0.5 only A survives.
	semantic := []Result{{ChunkID: "a", DocumentID: "d1", Score: 0.9}}
	keyword := []Result{{ChunkID: "b", DocumentID: "d2", Score: 0.6}}

	results := postProcess(fuse(semantic, keyword), 0.5, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 0.63, results[0].Score, 1e-6)
}

func TestPostProcess(t *testing.T) {
	t.Run("sorts descending and truncates", func(t *testing.T) {
		in := []Result{
			{ChunkID: "a", DocumentID: "d1", Score: 0.2},
			{ChunkID: "b", DocumentID: "d2", Score: 0.9},
			{ChunkID: "c", DocumentID: "d3", Score: 0.5},
		}
		out := postProcess(in, 0, 2)
		require.Len(t, out, 2)
		assert.Equal(t, "b", out[0].ChunkID)
		assert.Equal(t, "c", out[1].ChunkID)
	})

	t.Run("dedupes by document keeping the best chunk", func(t *testing.T) {
		in := []Result{
			{ChunkID: "a", DocumentID: "d1", Score: 0.9},
			{ChunkID: "b", DocumentID: "d1", Score: 0.8},
			{ChunkID: "c", DocumentID: "d2", Score: 0.7},
		}
		out := postProcess(in, 0, 10)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ChunkID)
		assert.Equal(t, "c", out[1].ChunkID)
	})

	t.Run("threshold drops low scores", func(t *testing.T) {
		in := []Result{
			{ChunkID: "a", DocumentID: "d1", Score: 0.9},
			{ChunkID: "b", DocumentID: "d2", Score: 0.3},
		}
		out := postProcess(in, 0.5, 10)
		require.Len(t, out, 1)
		assert.Equal(t, "a", out[0].ChunkID)
	})

	t.Run("equal scores break ties on chunk id", func(t *testing.T) {
		in := []Result{
			{ChunkID: "z", DocumentID: "d1", Score: 0.5},
			{ChunkID: "a", DocumentID: "d2", Score: 0.5},
		}
		out := postProcess(in, 0, 10)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ChunkID)
	})
}
