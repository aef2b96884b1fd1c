package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database   DatabaseConfig
	Redis      RedisConfig
	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Extractor  ExtractorConfig
	Processing ProcessingConfig
	Vector     VectorConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"quarry"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"quarry"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the event bus
type RedisConfig struct {
	Addr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password   string        `env:"REDIS_PASSWORD" envDefault:""`
	DB         int           `env:"REDIS_DB" envDefault:"0"`
	Partitions int           `env:"EVENT_BUS_PARTITIONS" envDefault:"4"`
	Group      string        `env:"EVENT_BUS_GROUP" envDefault:"quarry"`
	BlockTime  time.Duration `env:"EVENT_BUS_BLOCK_TIME" envDefault:"5s"`
}

// EmbeddingsConfig holds embedding service configuration
type EmbeddingsConfig struct {
	// APIKey for the OpenAI-compatible embeddings endpoint
	APIKey string `env:"EMBEDDING_API_KEY" envDefault:""`

	// BaseURL overrides the provider endpoint (for self-hosted gateways)
	BaseURL string `env:"EMBEDDING_BASE_URL" envDefault:""`

	// Model name; dimension is fixed per deployment
	Model     string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	Dimension int    `env:"EMBEDDING_DIMENSION" envDefault:"1536"`

	// BatchSize is the default embed batch size (hard provider cap is 100)
	BatchSize int `env:"BATCH_SIZE" envDefault:"50"`

	// TokenBudget is the per-input token cap; longer inputs are truncated
	TokenBudget int `env:"EMBEDDING_TOKEN_BUDGET" envDefault:"8000"`

	// BatchPause smooths request rate between consecutive batches
	BatchPause time.Duration `env:"EMBEDDING_BATCH_PAUSE" envDefault:"100ms"`

	// Disable embeddings network calls (for testing)
	NetworkDisabled bool `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if embeddings are configured
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return e.APIKey != "" || e.BaseURL != ""
}

// LLMConfig holds LLM (chat completion) configuration
type LLMConfig struct {
	APIKey  string `env:"LLM_API_KEY" envDefault:""`
	BaseURL string `env:"LLM_BASE_URL" envDefault:""`
	Model   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	MaxOutputTokens int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"1000"`
	Temperature     float64       `env:"LLM_TEMPERATURE" envDefault:"0.2"`
	Timeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`

	NetworkDisabled bool `env:"LLM_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if the LLM is configured
func (l *LLMConfig) IsEnabled() bool {
	if l.NetworkDisabled {
		return false
	}
	return l.APIKey != "" || l.BaseURL != ""
}

// ExtractorConfig holds document text extraction configuration
type ExtractorConfig struct {
	// ServiceURL is the parser-service endpoint for pdf/docx/doc formats
	ServiceURL string        `env:"EXTRACTOR_SERVICE_URL" envDefault:"http://localhost:8000"`
	Enabled    bool          `env:"EXTRACTOR_ENABLED" envDefault:"true"`
	Timeout    time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"5m"`

	// MaxFileSize accepts plain bytes or KB/MB/GB suffixes ("10MB")
	MaxFileSize ByteSize `env:"MAX_FILE_SIZE" envDefault:"50MB"`

	// AllowedFileTypes is the comma-separated ingest whitelist
	AllowedFileTypes []string `env:"ALLOWED_FILE_TYPES" envDefault:"pdf,docx,doc,txt,html,md" envSeparator:","`

	// DataDir is where uploaded files are stored before extraction
	DataDir string `env:"DATA_DIR" envDefault:"./data/uploads"`
}

// Allows reports whether fileType is in the ingest whitelist.
func (e *ExtractorConfig) Allows(fileType string) bool {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	for _, t := range e.AllowedFileTypes {
		if strings.ToLower(strings.TrimSpace(t)) == ft {
			return true
		}
	}
	return false
}

// ProcessingConfig holds job pipeline configuration
type ProcessingConfig struct {
	// ChunkSize is the default fragment size in characters
	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`

	// MaxConcurrent is the worker-pool size
	MaxConcurrent int `env:"MAX_CONCURRENT_PROCESSING" envDefault:"5"`

	MaxRetries int           `env:"MAX_RETRIES" envDefault:"3"`
	JobTimeout time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"10m"`

	// PollInterval is how often idle workers poll for pending jobs
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`

	// StaleThreshold marks processing jobs older than this as recoverable
	StaleThreshold time.Duration `env:"STALE_JOB_THRESHOLD" envDefault:"15m"`

	// Dedup tuning
	DedupUseSemantic         bool    `env:"DEDUP_USE_SEMANTIC" envDefault:"false"`
	DedupSimilarityThreshold float32 `env:"DEDUP_SIMILARITY_THRESHOLD" envDefault:"0.95"`
}

// VectorConfig holds vector index configuration
type VectorConfig struct {
	Collection string `env:"VECTOR_COLLECTION" envDefault:"quarry_chunks"`
	Size       int    `env:"VECTOR_SIZE" envDefault:"1536"`
	Distance   string `env:"VECTOR_DISTANCE" envDefault:"cosine"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("embedding_model", cfg.Embeddings.Model),
		slog.Int("workers", cfg.Processing.MaxConcurrent),
	)

	return cfg, nil
}

// Validate checks cross-field constraints that env parsing cannot express.
func (c *Config) Validate() error {
	if c.Processing.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Processing.ChunkSize)
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Processing.ChunkOverlap)
	}
	if c.Processing.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_PROCESSING must be positive, got %d", c.Processing.MaxConcurrent)
	}
	if c.Embeddings.BatchSize <= 0 || c.Embeddings.BatchSize > 100 {
		return fmt.Errorf("BATCH_SIZE must be in [1, 100], got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Vector.Size != c.Embeddings.Dimension {
		return fmt.Errorf("VECTOR_SIZE (%d) must match EMBEDDING_DIMENSION (%d)", c.Vector.Size, c.Embeddings.Dimension)
	}
	if d := strings.ToLower(c.Vector.Distance); d != "cosine" {
		return fmt.Errorf("VECTOR_DISTANCE %q is not supported (only cosine)", c.Vector.Distance)
	}
	if c.Redis.Partitions <= 0 {
		return fmt.Errorf("EVENT_BUS_PARTITIONS must be positive, got %d", c.Redis.Partitions)
	}
	return nil
}
