// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.chidori/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model selection, temperature, max tokens
//   - Embedding: embedder model, vector dimensions, batch size
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: chunking, top-k, retriever strategy and fusion weights
//   - Server: listen address, rate limiting, proxy trust
//
// Security: sensitive data (passwords) is never logged; see MarshalJSON.
// Validation: range checks in validation.go returning sentinel errors.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedder indicates the embedder configuration is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidRetriever indicates the retriever strategy is unknown.
	ErrInvalidRetriever = errors.New("invalid retriever")

	// ErrInvalidWeights indicates the hybrid fusion weights are invalid.
	ErrInvalidWeights = errors.New("invalid fusion weights")

	// ErrInvalidPostgres indicates the PostgreSQL configuration is invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Retriever strategy identifiers used in Config.Retriever.
const (
	RetrieverVector  = "vector"
	RetrieverKeyword = "keyword"
	RetrieverHybrid  = "hybrid"
)

// Splitter strategy identifiers used in Config.Splitter.
const (
	SplitterSeparator = "separator"
	SplitterFixed     = "fixed"
)

// VectorDimensions is the pgvector column width. gemini-embedding-001
// outputs 3072 dimensions by default but supports truncation to 768 via
// OutputDimensionality; the schema in db/migrations assumes 768.
const VectorDimensions = 768

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimensions int    `mapstructure:"embedder_dimensions" json:"embedder_dimensions"`
	EmbeddingBatchSize int    `mapstructure:"embedding_batch_size" json:"embedding_batch_size"`

	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Knowledge base configuration
	Collection       string `mapstructure:"collection" json:"collection"`
	DocumentDir      string `mapstructure:"document_dir" json:"document_dir"`
	KeywordIndexPath string `mapstructure:"keyword_index_path" json:"keyword_index_path"`

	// Retrieval configuration
	ChunkSize     int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	Splitter      string  `mapstructure:"splitter" json:"splitter"` // "separator" (default), "fixed"
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	Retriever     string  `mapstructure:"retriever" json:"retriever"` // "vector" (default), "keyword", "hybrid"
	VectorWeight  float64 `mapstructure:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `mapstructure:"keyword_weight" json:"keyword_weight"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // "debug", "info" (default), "warn", "error"
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Server configuration
	Addr        string   `mapstructure:"addr" json:"addr"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".chidori")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Configuration file not found is not an error, use default values
	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	viper.SetDefault("embedder_model", "gemini-embedding-001")
	viper.SetDefault("embedder_dimensions", VectorDimensions)
	viper.SetDefault("embedding_batch_size", 64)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "chidori")
	viper.SetDefault("postgres_password", "chidori_dev_password")
	viper.SetDefault("postgres_db_name", "chidori")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Knowledge base defaults
	viper.SetDefault("collection", "chidori")
	viper.SetDefault("document_dir", "./documents")
	viper.SetDefault("keyword_index_path", "./keyword.bleve")

	// Retrieval defaults
	viper.SetDefault("chunk_size", 512)
	viper.SetDefault("chunk_overlap", 128)
	viper.SetDefault("splitter", SplitterSeparator)
	viper.SetDefault("top_k", 4)
	viper.SetDefault("retriever", RetrieverVector)
	viper.SetDefault("vector_weight", 0.6)
	viper.SetDefault("keyword_weight", 0.4)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	// Server defaults
	viper.SetDefault("addr", "127.0.0.1:8080")
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("log_level", "CHIDORI_LOG_LEVEL")
	mustBind("log_json", "CHIDORI_LOG_JSON")
	mustBind("provider", "CHIDORI_PROVIDER")
	mustBind("model_name", "CHIDORI_MODEL_NAME")
	mustBind("temperature", "CHIDORI_TEMPERATURE")
	mustBind("max_tokens", "CHIDORI_MAX_TOKENS")
	mustBind("ollama_host", "CHIDORI_OLLAMA_HOST")
	mustBind("embedder_model", "CHIDORI_EMBEDDER_MODEL")
	mustBind("embedder_dimensions", "CHIDORI_EMBEDDER_DIMENSIONS")
	mustBind("embedding_batch_size", "CHIDORI_EMBEDDING_BATCH_SIZE")
	mustBind("addr", "CHIDORI_ADDR")
	mustBind("rate_burst", "CHIDORI_RATE_BURST")
	mustBind("cors_origins", "CHIDORI_CORS_ORIGINS")
	mustBind("trust_proxy", "CHIDORI_TRUST_PROXY")
	mustBind("collection", "CHIDORI_COLLECTION")
	mustBind("document_dir", "CHIDORI_DOCUMENT_DIR")
	mustBind("keyword_index_path", "CHIDORI_KEYWORD_INDEX_PATH")
	mustBind("chunk_size", "CHIDORI_CHUNK_SIZE")
	mustBind("chunk_overlap", "CHIDORI_CHUNK_OVERLAP")
	mustBind("top_k", "CHIDORI_TOP_K")
	mustBind("splitter", "CHIDORI_SPLITTER")
	mustBind("retriever", "CHIDORI_RETRIEVER")
	mustBind("vector_weight", "CHIDORI_VECTOR_WEIGHT")
	mustBind("keyword_weight", "CHIDORI_KEYWORD_WEIGHT")

	// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the
	// Genkit plugins, not via Viper. HasAPIKey() checks their presence.
	// PostgreSQL settings are overridden through DATABASE_URL; see
	// parseDatabaseURL.
}

// HasAPIKey reports whether the API key for the configured provider is set.
// Ollama needs no key. When the key is missing the service still starts and
// answers with a placeholder reply instead of calling the model.
func (c *Config) HasAPIKey() bool {
	switch c.Provider {
	case ProviderOllama:
		return true
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY") != ""
	default:
		return os.Getenv("GEMINI_API_KEY") != ""
	}
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against
// real password characters.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or less are fully masked to prevent substring attacks;
// longer secrets show the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
