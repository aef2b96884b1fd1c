// Package llm wraps an OpenAI-compatible chat completion endpoint behind a
// small provider interface for answer generation.
package llm

import (
	"context"

	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

var Module = fx.Module("llm",
	fx.Provide(
		fx.Annotate(NewProvider, fx.As(new(Provider))),
	),
)

// Request is one completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// Result is the generated completion.
type Result struct {
	Text       string
	TokensUsed int
}

// Provider generates chat completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Result, error)
	Model() string
	IsConfigured() bool
}

// NewProvider builds the configured chat provider, or a disabled stub when no
// endpoint is configured.
func NewProvider(cfg *config.Config) Provider {
	if !cfg.LLM.IsEnabled() {
		return &disabledProvider{cfg: cfg.LLM}
	}
	return newOpenAIProvider(cfg.LLM)
}

type disabledProvider struct {
	cfg config.LLMConfig
}

func (d *disabledProvider) Complete(ctx context.Context, req Request) (*Result, error) {
	return nil, apperror.ErrExternalService.WithMessage("LLM provider is not configured")
}

func (d *disabledProvider) Model() string      { return d.cfg.Model }
func (d *disabledProvider) IsConfigured() bool { return false }
