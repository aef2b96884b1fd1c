package answers

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/domain/search"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func testAnswersService() *Service {
	cfg := &config.Config{}
	cfg.LLM.MaxOutputTokens = 1000
	cfg.LLM.Temperature = 0.2
	return NewService(nil, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidate(t *testing.T) {
	svc := testAnswersService()

	t.Run("defaults applied", func(t *testing.T) {
		req := Request{Question: "  what is chunk overlap?  "}
		require.NoError(t, svc.validate(&req))
		assert.Equal(t, "what is chunk overlap?", req.Question)
		assert.Equal(t, defaultContext, req.ContextLimit)
		assert.Equal(t, 1000, req.MaxTokens)
		assert.Equal(t, defaultSystemPrompt, req.SystemPrompt)
	})

	bad := func(t *testing.T, req Request) {
		t.Helper()
		err := svc.validate(&req)
		require.Error(t, err)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	}

	t.Run("empty question", func(t *testing.T) {
		bad(t, Request{Question: "   "})
	})
	t.Run("question too long", func(t *testing.T) {
		bad(t, Request{Question: strings.Repeat("q", maxQuestionLength+1)})
	})
	t.Run("context limit over cap", func(t *testing.T) {
		bad(t, Request{Question: "ok", ContextLimit: maxContextChunks + 1})
	})
	t.Run("negative context limit", func(t *testing.T) {
		bad(t, Request{Question: "ok", ContextLimit: -1})
	})
	t.Run("max tokens too small", func(t *testing.T) {
		bad(t, Request{Question: "ok", MaxTokens: minMaxTokens - 1})
	})
	t.Run("max tokens too large", func(t *testing.T) {
		bad(t, Request{Question: "ok", MaxTokens: maxMaxTokens + 1})
	})
	t.Run("temperature out of range", func(t *testing.T) {
		temp := 2.5
		bad(t, Request{Question: "ok", Temperature: &temp})
	})
}

func TestBuildPrompt(t *testing.T) {
	chunks := []search.Result{
		{Content: "Chunks overlap by a configured amount.", Source: "guide.pdf", Page: 3},
		{Content: "Overlap preserves context across boundaries."},
	}

	prompt := BuildPrompt("What is chunk overlap?", chunks, "")

	assert.Contains(t, prompt, "[1] (guide.pdf, page 3)")
	assert.Contains(t, prompt, "[2]\nOverlap preserves context across boundaries.")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is chunk overlap?"))

	// Context precedes the question.
	assert.Less(t,
		strings.Index(prompt, "Chunks overlap"),
		strings.Index(prompt, "Question:"))
}

func TestBuildPromptLanguage(t *testing.T) {
	prompt := BuildPrompt("Pourquoi?", []search.Result{{Content: "Parce que."}}, "French")
	assert.True(t, strings.HasSuffix(prompt, "Answer in French."))
}

func TestConfidence(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, Confidence(nil))
	})

	t.Run("coverage saturates at five chunks", func(t *testing.T) {
		chunks := make([]search.Result, 7)
		for i := range chunks {
			chunks[i].Score = 1.0
		}
		assert.InDelta(t, 1.0, Confidence(chunks), 1e-6)
	})

	t.Run("blends mean score with coverage", func(t *testing.T) {
		chunks := []search.Result{{Score: 0.8}, {Score: 0.6}}
		// 0.8*0.7 + 0.2*(2/5)
		assert.InDelta(t, 0.64, Confidence(chunks), 1e-6)
	})
}
