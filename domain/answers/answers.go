package answers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quarry-ai/quarry/domain/search"
	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/vectorindex"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/llm"
	"github.com/quarry-ai/quarry/pkg/logger"
	"github.com/quarry-ai/quarry/pkg/mathutil"
)

const (
	maxQuestionLength = 1000
	maxContextChunks  = 20
	defaultContext    = 5

	minMaxTokens = 50
	maxMaxTokens = 4000
)

const defaultSystemPrompt = "You are a helpful assistant. Answer the question using only the provided context. " +
	"If the context does not contain the answer, say so instead of guessing."

// Request is an answer-generation query.
type Request struct {
	UserID       string              `json:"user_id"`
	Question     string              `json:"question"`
	ContextLimit int                 `json:"context_limit"`
	Filters      *vectorindex.Filter `json:"filters,omitempty"`
	MaxTokens    int                 `json:"max_tokens"`
	Temperature  *float64            `json:"temperature,omitempty"`
	SystemPrompt string              `json:"system_prompt,omitempty"`
	Language     string              `json:"language,omitempty"`
}

// Response carries the generated answer with its supporting chunks.
type Response struct {
	Answer       string          `json:"answer"`
	Sources      []search.Result `json:"sources"`
	Confidence   float32         `json:"confidence"`
	TokensUsed   int             `json:"tokens_used"`
	GenerationMS int64           `json:"generation_ms"`
}

// Service retrieves context for a question and composes a grounded prompt for
// the LLM.
type Service struct {
	search   *search.Service
	provider llm.Provider
	cfg      *config.Config
	log      *slog.Logger
}

// NewService creates a new answers service
func NewService(searchSvc *search.Service, provider llm.Provider, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		search:   searchSvc,
		provider: provider,
		cfg:      cfg,
		log:      log.With(logger.Scope("answers.service")),
	}
}

// Answer validates the request, retrieves context via hybrid search and
// generates a grounded answer. The LLM text is propagated verbatim.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	found, err := s.search.Search(ctx, search.Request{
		UserID:  req.UserID,
		Query:   req.Question,
		Mode:    search.ModeHybrid,
		Limit:   req.ContextLimit,
		Filters: req.Filters,
	})
	if err != nil {
		return nil, err
	}
	if len(found.Results) == 0 {
		return nil, apperror.ErrBusinessRule.WithMessage("no relevant context found for the question")
	}

	prompt := BuildPrompt(req.Question, found.Results, req.Language)

	temperature := s.cfg.LLM.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	start := time.Now()
	completion, err := s.provider.Complete(ctx, llm.Request{
		SystemPrompt: req.SystemPrompt,
		Prompt:       prompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  temperature,
	})
	if err != nil {
		return nil, err
	}
	took := time.Since(start)

	confidence := Confidence(found.Results)
	s.log.Info("answer generated",
		slog.Int("context_chunks", len(found.Results)),
		slog.Int("tokens_used", completion.TokensUsed),
		slog.Duration("took", took))

	return &Response{
		Answer:       completion.Text,
		Sources:      found.Results,
		Confidence:   confidence,
		TokensUsed:   completion.TokensUsed,
		GenerationMS: took.Milliseconds(),
	}, nil
}

// validate normalises the request in place and rejects out-of-range values.
func (s *Service) validate(req *Request) error {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return apperror.NewValidation("question must not be empty")
	}
	if len(question) > maxQuestionLength {
		return apperror.NewValidation(fmt.Sprintf("question exceeds %d characters", maxQuestionLength))
	}
	req.Question = question

	if req.ContextLimit == 0 {
		req.ContextLimit = defaultContext
	}
	if req.ContextLimit < 1 || req.ContextLimit > maxContextChunks {
		return apperror.NewValidation(fmt.Sprintf("context_limit must be in [1, %d]", maxContextChunks))
	}

	if req.MaxTokens == 0 {
		req.MaxTokens = s.cfg.LLM.MaxOutputTokens
	}
	if req.MaxTokens < minMaxTokens || req.MaxTokens > maxMaxTokens {
		return apperror.NewValidation(fmt.Sprintf("max_tokens must be in [%d, %d]", minMaxTokens, maxMaxTokens))
	}

	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return apperror.NewValidation("temperature must be in [0, 2]")
	}

	if req.SystemPrompt == "" {
		req.SystemPrompt = defaultSystemPrompt
	}
	return nil
}

// BuildPrompt renders the retrieved chunks as an ordered context block
// followed by the question.
func BuildPrompt(question string, chunks []search.Result, language string) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")

	for i, chunk := range chunks {
		b.WriteString(fmt.Sprintf("[%d]", i+1))
		if chunk.Source != "" {
			b.WriteString(" (" + chunk.Source)
			if chunk.Page > 0 {
				b.WriteString(fmt.Sprintf(", page %d", chunk.Page))
			}
			b.WriteString(")")
		} else if chunk.Page > 0 {
			b.WriteString(fmt.Sprintf(" (page %d)", chunk.Page))
		}
		b.WriteString("\n")
		b.WriteString(chunk.Content)
		b.WriteString("\n\n")
	}

	b.WriteString("Question: " + question)
	if language != "" {
		b.WriteString("\n\nAnswer in " + language + ".")
	}
	return b.String()
}

// Confidence blends the mean retrieval score with a coverage term that
// saturates at five context chunks: 0.8*mean(score) + 0.2*min(n/5, 1).
func Confidence(chunks []search.Result) float32 {
	if len(chunks) == 0 {
		return 0
	}

	scores := make([]float32, len(chunks))
	for i, c := range chunks {
		scores[i] = c.Score
	}

	coverage := mathutil.ClampFloat(float32(len(chunks))/5, 0, 1)
	return 0.8*mathutil.Mean(scores) + 0.2*coverage
}
