package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BackendWeaviate = "weaviate"
	BackendBolt     = "bolt"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"qaforge"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"qaforge"`

	// Vector index
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	BoltPath       string `envconfig:"BOLT_PATH" default:"data/index.db"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"qa_knowledge_base"`

	// Provider
	GeminiAPIKey   string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	ChatModel      string  `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`
	EmbedBatchSize int     `envconfig:"EMBED_BATCH_SIZE" default:"32"`
	ProviderRPS    float64 `envconfig:"PROVIDER_RPS" default:"5"`
	ProviderBurst  int     `envconfig:"PROVIDER_BURST" default:"5"`

	// Retrieval and generation
	ChunkSize    int     `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	TopK         int     `envconfig:"TOP_K" default:"5"`
	TestCaseTopK int     `envconfig:"TEST_CASE_TOP_K" default:"8"`
	Temperature  float32 `envconfig:"TEMPERATURE" default:"0.1"`
	MaxTokens    int     `envconfig:"MAX_TOKENS" default:"2000"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI         bool   `envconfig:"ENABLE_API" default:"true"`
	EnableBuildWorker bool   `envconfig:"ENABLE_BUILD_WORKER" default:"false"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8000"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	ScriptsDir      string `envconfig:"SCRIPTS_DIR" default:"./outputs"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win; both files are optional.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: COLLECTION_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case BackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("%w: BOLT_PATH", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND must be %q or %q, got %q", ErrInvalidValue, BackendWeaviate, BackendBolt, c.VectorBackend)
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP (%d) must be below CHUNK_SIZE (%d)", ErrInvalidValue, c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: TOP_K must be at least 1", ErrInvalidValue)
	}
	if c.TestCaseTopK < 1 {
		return fmt.Errorf("%w: TEST_CASE_TOP_K must be at least 1", ErrInvalidValue)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be at least 1", ErrInvalidValue)
	}
	return nil
}

// DSN is the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

