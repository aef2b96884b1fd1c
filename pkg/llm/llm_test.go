package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func TestNewProviderDisabled(t *testing.T) {
	p := NewProvider(&config.Config{
		LLM: config.LLMConfig{Model: "gpt-4o-mini", NetworkDisabled: true},
	})
	assert.False(t, p.IsConfigured())
	assert.Equal(t, "gpt-4o-mini", p.Model())

	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))
}

func TestNewProviderConfigured(t *testing.T) {
	p := NewProvider(&config.Config{
		LLM: config.LLMConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
	})
	assert.True(t, p.IsConfigured())
	assert.Equal(t, "gpt-4o-mini", p.Model())
}

func TestClassifyError(t *testing.T) {
	t.Run("deadline maps to timeout", func(t *testing.T) {
		err := classifyError(fmt.Errorf("call: %w", context.DeadlineExceeded))
		assert.Equal(t, apperror.CodeTimeout, apperror.CodeOf(err))
		assert.True(t, apperror.Retryable(err))
	})

	t.Run("bad request maps to validation", func(t *testing.T) {
		err := classifyError(&openaisdk.Error{StatusCode: http.StatusBadRequest})
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
		assert.False(t, apperror.Retryable(err))
	})

	t.Run("anything else is a retryable provider error", func(t *testing.T) {
		err := classifyError(errors.New("connection reset"))
		assert.Equal(t, apperror.CodeExternalService, apperror.CodeOf(err))
		assert.True(t, apperror.Retryable(err))
	})
}
