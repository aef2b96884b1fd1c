package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBatchRanges(t *testing.T) {
	tests := []struct {
		total, size int
		want        [][2]int
	}{
		{0, 50, nil},
		{1, 50, [][2]int{{0, 1}}},
		{50, 50, [][2]int{{0, 50}}},
		{51, 50, [][2]int{{0, 50}, {50, 51}}},
		{130, 50, [][2]int{{0, 50}, {50, 100}, {100, 130}}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.total, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, batchRanges(tt.total, tt.size))
		})
	}
}

func TestBatchRangesCoverInputExactlyOnce(t *testing.T) {
	covered := 0
	prevEnd := 0
	for _, r := range batchRanges(237, 100) {
		assert.Equal(t, prevEnd, r[0])
		covered += r[1] - r[0]
		prevEnd = r[1]
	}
	assert.Equal(t, 237, covered)
}

func TestCutAtWordBoundary(t *testing.T) {
	assert.Equal(t, "one two", cutAtWordBoundary("one two thr"))
	assert.Equal(t, "one two", cutAtWordBoundary("one two "))
	assert.Equal(t, "single", cutAtWordBoundary("single"))
	assert.Equal(t, "", cutAtWordBoundary(""))
}

func TestIsRateLimited(t *testing.T) {
	limited := &openaisdk.Error{StatusCode: http.StatusTooManyRequests}
	assert.True(t, isRateLimited(limited))
	assert.True(t, isRateLimited(fmt.Errorf("call failed: %w", limited)))
	assert.False(t, isRateLimited(&openaisdk.Error{StatusCode: http.StatusBadRequest}))
	assert.False(t, isRateLimited(errors.New("plain")))
}

func TestDisabledClient(t *testing.T) {
	cfg := &config.Config{
		Embeddings: config.EmbeddingsConfig{
			Model:           "text-embedding-3-small",
			Dimension:       1536,
			NetworkDisabled: true,
		},
	}

	c, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.Equal(t, 1536, c.Dimension())
	assert.Equal(t, "text-embedding-3-small", c.Model())

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))

	_, err = c.EmbedQuery(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))
}

func TestAssembleBatch(t *testing.T) {
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	infos := []clampInfo{
		{originalTokens: 12, submittedTokens: 12},
		{originalTokens: 900, submittedTokens: 512, truncated: true},
	}

	out := assembleBatch(vectors, infos, 524, 524)
	require.Len(t, out, 2)

	assert.Equal(t, vectors[0], out[0].Vector)
	assert.False(t, out[0].Truncated)
	assert.Equal(t, Usage{
		PromptTokens:    524,
		TotalTokens:     524,
		OriginalTokens:  12,
		SubmittedTokens: 12,
	}, out[0].Usage)

	assert.Equal(t, vectors[1], out[1].Vector)
	assert.True(t, out[1].Truncated)
	assert.Equal(t, 524, out[1].Usage.PromptTokens)
	assert.Equal(t, 900, out[1].Usage.OriginalTokens)
	assert.Equal(t, 512, out[1].Usage.SubmittedTokens)
}
