package logger

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase", "DEBUG", slog.LevelDebug},
		{"mixed case", "Warn", slog.LevelWarn},
		{"padded", "  info  ", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
		{"invalid defaults to info", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNewLogger_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	log := NewLogger()
	assert.True(t, log.Enabled(t.Context(), slog.LevelDebug))

	t.Setenv("LOG_LEVEL", "error")
	log = NewLogger()
	assert.False(t, log.Enabled(t.Context(), slog.LevelWarn))
	assert.True(t, log.Enabled(t.Context(), slog.LevelError))
}

func TestScope(t *testing.T) {
	attr := Scope("jobs.engine")
	assert.Equal(t, "scope", attr.Key)
	assert.Equal(t, "jobs.engine", attr.Value.String())
}

func TestError(t *testing.T) {
	t.Run("non-nil error", func(t *testing.T) {
		attr := Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)
		assert.Equal(t, "boom", attr.Value.String())
	})

	t.Run("nil error", func(t *testing.T) {
		attr := Error(nil)
		assert.Equal(t, "error", attr.Key)
		assert.Equal(t, "<nil>", attr.Value.String())
	})
}
