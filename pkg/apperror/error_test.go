package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("without internal", func(t *testing.T) {
		err := ErrNotFound.WithMessage("chunk 'abc' not found")
		assert.Equal(t, "not_found: chunk 'abc' not found", err.Error())
	})

	t.Run("with internal", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := ErrExternalService.WithInternal(inner)
		assert.Contains(t, err.Error(), "external_service")
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, errors.Unwrap(err))
	})
}

func TestWithCopiesDoNotMutate(t *testing.T) {
	base := ErrValidation
	modified := base.WithMessage("query must not be empty").WithDetails(map[string]any{"field": "query"})

	assert.Equal(t, "Validation failed", base.Message)
	assert.Nil(t, base.Details)
	assert.Equal(t, "query must not be empty", modified.Message)
	assert.Equal(t, "query", modified.Details["field"])
	assert.Equal(t, base.Code, modified.Code)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrValidation, false},
		{ErrBadRequest, false},
		{ErrNotFound, false},
		{ErrConflict, false},
		{ErrBusinessRule, false},
		{ErrUnsupportedFileType, false},
		{ErrFileTooLarge, false},
		{ErrExtractionFailed, true},
		{ErrExternalService, true},
		{ErrTimeout, true},
		{ErrInternal, true},
		{ErrDatabase, true},
		{errors.New("plain error"), true}, // unclassified errors count as internal
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeTimeout, CodeOf(ErrTimeout))
	assert.Equal(t, CodeTimeout, CodeOf(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("anything")))
}

func TestHTTPStatuses(t *testing.T) {
	assert.Equal(t, http.StatusUnsupportedMediaType, ErrUnsupportedFileType.HTTPStatus)
	assert.Equal(t, http.StatusRequestEntityTooLarge, ErrFileTooLarge.HTTPStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrBusinessRule.HTTPStatus)
	assert.Equal(t, http.StatusGatewayTimeout, ErrTimeout.HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, ErrExternalService.HTTPStatus)
}
