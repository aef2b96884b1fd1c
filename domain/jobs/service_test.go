package jobs

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/apperror"
)

func testService() *Service {
	cfg := &config.Config{}
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 200
	cfg.Processing.MaxRetries = 3
	cfg.Embeddings.Model = "text-embedding-3-small"
	cfg.Vector.Collection = "documents"
	return NewService(nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name    string
		kind    JobKind
		params  JSON
		wantErr bool
	}{
		{"extract ok", KindExtract, JSON{"file_path": "/data/a.pdf", "file_type": "pdf"}, false},
		{"extract missing path", KindExtract, JSON{"file_type": "pdf"}, true},
		{"extract missing type", KindExtract, JSON{"file_path": "/data/a.pdf"}, true},
		{"full pipeline ok", KindFullPipeline, JSON{"file_path": "/data/a.pdf", "file_type": "pdf"}, false},
		{"full pipeline empty", KindFullPipeline, JSON{}, true},
		{"chunk ok", KindChunk, JSON{"chunk_type": "paragraph"}, false},
		{"chunk missing type", KindChunk, JSON{}, true},
		{"chunk bad type", KindChunk, JSON{"chunk_type": "zigzag"}, true},
		{"chunk bad size", KindChunk, JSON{"chunk_type": "fixed_size", "chunk_size": float64(-5)}, true},
		{"embed ok", KindEmbed, JSON{"model_name": "text-embedding-3-small"}, false},
		{"embed missing model", KindEmbed, JSON{}, true},
		{"dedup ok", KindDedup, nil, false},
		{"index ok", KindIndex, JSON{"collection_name": "documents"}, false},
		{"index missing collection", KindIndex, JSON{}, true},
		{"unknown kind", JobKind("transmogrify"), JSON{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateParameters(tt.kind, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFillStageDefaults(t *testing.T) {
	svc := testService()

	t.Run("chunk defaults", func(t *testing.T) {
		params := JSON{}
		svc.fillStageDefaults(KindChunk, params)
		assert.Equal(t, "fixed_size", params.String("chunk_type"))
		assert.Equal(t, 1000, params.Int("chunk_size"))
		assert.Equal(t, 200, params.Int("chunk_overlap"))
	})

	t.Run("caller values win", func(t *testing.T) {
		params := JSON{"chunk_type": "semantic", "chunk_size": float64(500)}
		svc.fillStageDefaults(KindChunk, params)
		assert.Equal(t, "semantic", params.String("chunk_type"))
		assert.Equal(t, 500, params.Int("chunk_size"))
	})

	t.Run("embed model", func(t *testing.T) {
		params := JSON{}
		svc.fillStageDefaults(KindEmbed, params)
		assert.Equal(t, "text-embedding-3-small", params.String("model_name"))
	})

	t.Run("index collection", func(t *testing.T) {
		params := JSON{}
		svc.fillStageDefaults(KindIndex, params)
		assert.Equal(t, "documents", params.String("collection_name"))
	})
}
