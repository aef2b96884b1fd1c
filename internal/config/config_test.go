package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"plain bytes", "1048576", 1048576, false},
		{"kilobytes", "10KB", 10 * 1024, false},
		{"megabytes", "50MB", 50 * 1024 * 1024, false},
		{"gigabytes", "2GB", 2 * 1024 * 1024 * 1024, false},
		{"lowercase suffix", "5mb", 5 * 1024 * 1024, false},
		{"padded", " 1MB ", 1024 * 1024, false},
		{"zero", "0", 0, false},
		{"empty", "", 0, true},
		{"garbage", "abc", 0, true},
		{"negative", "-1MB", 0, true},
		{"suffix only", "MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestByteSizeString(t *testing.T) {
	assert.Equal(t, "50MB", ByteSize(50*1024*1024).String())
	assert.Equal(t, "2GB", ByteSize(2*1024*1024*1024).String())
	assert.Equal(t, "10KB", ByteSize(10*1024).String())
	assert.Equal(t, "123", ByteSize(123).String())
}

func TestExtractorConfigAllows(t *testing.T) {
	cfg := ExtractorConfig{AllowedFileTypes: []string{"pdf", "txt", "md"}}

	assert.True(t, cfg.Allows("pdf"))
	assert.True(t, cfg.Allows("PDF"))
	assert.True(t, cfg.Allows(" md "))
	assert.False(t, cfg.Allows("exe"))
	assert.False(t, cfg.Allows(""))
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Processing: ProcessingConfig{ChunkSize: 1000, ChunkOverlap: 200, MaxConcurrent: 5},
			Embeddings: EmbeddingsConfig{BatchSize: 50, Dimension: 1536},
			Vector:     VectorConfig{Size: 1536, Distance: "cosine"},
			Redis:      RedisConfig{Partitions: 4},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("overlap not below chunk size", func(t *testing.T) {
		cfg := valid()
		cfg.Processing.ChunkOverlap = 1000
		assert.Error(t, cfg.Validate())
	})

	t.Run("batch size above provider cap", func(t *testing.T) {
		cfg := valid()
		cfg.Embeddings.BatchSize = 150
		assert.Error(t, cfg.Validate())
	})

	t.Run("vector size must match dimension", func(t *testing.T) {
		cfg := valid()
		cfg.Vector.Size = 768
		assert.Error(t, cfg.Validate())
	})

	t.Run("unsupported distance", func(t *testing.T) {
		cfg := valid()
		cfg.Vector.Distance = "euclid"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero workers", func(t *testing.T) {
		cfg := valid()
		cfg.Processing.MaxConcurrent = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "quarry", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/quarry?sslmode=disable", d.DSN())
}
