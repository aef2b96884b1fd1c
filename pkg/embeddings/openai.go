package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
	"github.com/quarry-ai/quarry/pkg/logger"
	"github.com/quarry-ai/quarry/pkg/mathutil"
)

const (
	// providerBatchLimit is the hard per-request input cap of the API.
	providerBatchLimit = 100
	// rateLimitRetries bounds how often a 429'd batch is retried.
	rateLimitRetries = 5
)

type openAIClient struct {
	client    openaisdk.Client
	encoder   *tiktoken.Tiktoken
	limiter   *rate.Limiter
	model     string
	dimension int
	batchSize int
	budget    int
	log       *slog.Logger
}

func newOpenAIClient(cfg config.EmbeddingsConfig, log *slog.Logger) (*openAIClient, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	encoder, err := tiktoken.EncodingForModel(cfg.Model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load token encoder: %w", err)
		}
	}

	batchSize := mathutil.ClampLimit(cfg.BatchSize, 50, providerBatchLimit)

	pause := cfg.BatchPause
	if pause <= 0 {
		pause = 100 * time.Millisecond
	}

	return &openAIClient{
		client:    openaisdk.NewClient(opts...),
		encoder:   encoder,
		limiter:   rate.NewLimiter(rate.Every(pause), 1),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: batchSize,
		budget:    cfg.TokenBudget,
		log:       log.With(logger.Scope("embeddings")),
	}, nil
}

func (c *openAIClient) Dimension() int  { return c.dimension }
func (c *openAIClient) Model() string   { return c.model }
func (c *openAIClient) IsEnabled() bool { return true }

// EmbedBatch embeds all texts in provider-sized batches, preserving input
// order. Over-budget inputs are clamped at a word boundary first.
func (c *openAIClient) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([]Embedding, 0, len(texts))
	for _, r := range batchRanges(len(texts), c.batchSize) {
		start, end := r[0], r[1]

		clamped := make([]string, 0, end-start)
		infos := make([]clampInfo, 0, end-start)
		for _, text := range texts[start:end] {
			t, info := c.clamp(text)
			clamped = append(clamped, t)
			infos = append(infos, info)
		}

		vectors, promptTokens, totalTokens, err := c.embed(ctx, clamped)
		if err != nil {
			return nil, err
		}
		out = append(out, assembleBatch(vectors, infos, promptTokens, totalTokens)...)
	}
	return out, nil
}

// assembleBatch pairs provider vectors with the per-input token accounting.
// Prompt and total counts are reported per request, so every embedding of a
// batch carries the same pair.
func assembleBatch(vectors [][]float32, infos []clampInfo, promptTokens, totalTokens int) []Embedding {
	out := make([]Embedding, len(vectors))
	for i, vec := range vectors {
		out[i] = Embedding{
			Vector:    vec,
			Truncated: infos[i].truncated,
			Usage: Usage{
				PromptTokens:    promptTokens,
				TotalTokens:     totalTokens,
				OriginalTokens:  infos[i].originalTokens,
				SubmittedTokens: infos[i].submittedTokens,
			},
		}
	}
	return out
}

// EmbedQuery embeds a single query string.
func (c *openAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	clamped, _ := c.clamp(text)
	vectors, _, _, err := c.embed(ctx, []string{clamped})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embed sends one batch, pacing requests and retrying the same batch on a
// rate-limit signal. It returns the vectors together with the provider's
// prompt and total token counts for the request.
func (c *openAIClient) embed(ctx context.Context, texts []string) ([][]float32, int, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, 0, apperror.ErrTimeout.WithMessage("embedding request cancelled").WithInternal(err)
	}

	params := openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(c.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	var resp *openaisdk.CreateEmbeddingResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = c.client.Embeddings.New(ctx, params)
		if err == nil {
			break
		}
		if !isRateLimited(err) || attempt >= rateLimitRetries {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, 0, 0, apperror.ErrTimeout.WithMessage("embedding request timed out").WithInternal(err)
			}
			return nil, 0, 0, apperror.NewExternal("embedding request failed", err)
		}

		sleep := time.Second << attempt
		c.log.Warn("embeddings rate limited, retrying batch",
			slog.Int("attempt", attempt+1),
			slog.Duration("sleep", sleep),
		)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, 0, 0, apperror.ErrTimeout.WithMessage("embedding request cancelled").WithInternal(ctx.Err())
		}
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, 0, apperror.NewExternal(
			fmt.Sprintf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		if len(vec) != c.dimension {
			return nil, 0, 0, apperror.NewExternal(
				fmt.Sprintf("provider returned dimension %d, expected %d", len(vec), c.dimension), nil)
		}
		out[i] = vec
	}
	return out, int(resp.Usage.PromptTokens), int(resp.Usage.TotalTokens), nil
}

// clampInfo records the local token counts around one clamp decision.
type clampInfo struct {
	originalTokens  int
	submittedTokens int
	truncated       bool
}

// clamp truncates text to the token budget on a word boundary.
func (c *openAIClient) clamp(text string) (string, clampInfo) {
	tokens := c.encoder.Encode(text, nil, nil)
	if c.budget <= 0 || len(tokens) <= c.budget {
		n := len(tokens)
		return text, clampInfo{originalTokens: n, submittedTokens: n}
	}

	cut := cutAtWordBoundary(c.encoder.Decode(tokens[:c.budget]))
	return cut, clampInfo{
		originalTokens:  len(tokens),
		submittedTokens: len(c.encoder.Encode(cut, nil, nil)),
		truncated:       true,
	}
}

// cutAtWordBoundary drops a possibly half-decoded trailing word.
func cutAtWordBoundary(s string) string {
	if idx := strings.LastIndexFunc(s, unicode.IsSpace); idx > 0 {
		s = s[:idx]
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// batchRanges yields [start, end) index pairs covering total in steps of size.
func batchRanges(total, size int) [][2]int {
	var out [][2]int
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func isRateLimited(err error) bool {
	var apierr *openaisdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}
