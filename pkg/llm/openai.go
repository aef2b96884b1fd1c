package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

type openAIProvider struct {
	client openaisdk.Client
	cfg    config.LLMConfig
}

func newOpenAIProvider(cfg config.LLMConfig) *openAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIProvider{
		client: openaisdk.NewClient(opts...),
		cfg:    cfg,
	}
}

func (p *openAIProvider) Model() string      { return p.cfg.Model }
func (p *openAIProvider) IsConfigured() bool { return true }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxOutputTokens
	}

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(req.Prompt))

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	resp, err := p.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openaisdk.ChatModel(model),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
		Temperature:         param.NewOpt(req.Temperature),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperror.NewExternal("provider returned no completion choices", nil)
	}

	return &Result{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrTimeout.WithMessage("completion request timed out").WithInternal(err)
	}
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusBadRequest {
		return apperror.ErrValidation.WithMessage("provider rejected the completion request").WithInternal(err)
	}
	return apperror.NewExternal("completion request failed", err)
}
