// Package embeddings turns text into fixed-dimension vectors through an
// OpenAI-compatible endpoint, with batching, token clamping and rate-limit
// handling.
package embeddings

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

var Module = fx.Module("embeddings",
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(Client))),
	),
)

// Embedding is one vector for one input text.
type Embedding struct {
	Vector []float32
	// Truncated marks inputs that exceeded the token budget and were cut
	// at a word boundary before embedding.
	Truncated bool
	Usage     Usage
}

// Usage is the token accounting for one embedded input.
type Usage struct {
	// PromptTokens and TotalTokens are the provider-reported counts for
	// the request batch this input was embedded in.
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
	// OriginalTokens counts the input before clamping; it equals
	// SubmittedTokens unless Truncated is set.
	OriginalTokens int `json:"original_tokens"`
	// SubmittedTokens counts what was actually sent to the provider.
	SubmittedTokens int `json:"submitted_tokens"`
}

// Client embeds batches of chunk text and single queries. len(out) always
// equals len(in) and order is preserved.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
	IsEnabled() bool
}

// NewClient builds the configured embedder, or a disabled stub when no
// endpoint is configured.
func NewClient(cfg *config.Config, log *slog.Logger) (Client, error) {
	if !cfg.Embeddings.IsEnabled() {
		return &disabledClient{cfg: cfg.Embeddings}, nil
	}
	return newOpenAIClient(cfg.Embeddings, log)
}

// disabledClient fails every embed call; ingest of embed stages is expected
// to surface this as a retryable provider error once configuration is fixed.
type disabledClient struct {
	cfg config.EmbeddingsConfig
}

func (d *disabledClient) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	return nil, apperror.ErrExternalService.WithMessage("embeddings provider is not configured")
}

func (d *disabledClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, apperror.ErrExternalService.WithMessage("embeddings provider is not configured")
}

func (d *disabledClient) Dimension() int { return d.cfg.Dimension }
func (d *disabledClient) Model() string  { return d.cfg.Model }
func (d *disabledClient) IsEnabled() bool {
	return false
}
