package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// A missing API key is deliberately NOT a validation error: the service
// starts in degraded mode and answers with a placeholder reply. Commands
// that cannot work without an embedder (index) check HasAPIKey themselves.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and model configuration
	validProviders := []string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidProvider, c.Provider, validProviders)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.Provider == ProviderOllama && c.OllamaHost == "" {
		return fmt.Errorf("%w: ollama_host cannot be empty when provider is ollama", ErrInvalidOllamaHost)
	}

	// 2. Embedding configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDimensions < 1 || c.EmbedderDimensions > 4096 {
		return fmt.Errorf("%w: embedder_dimensions must be between 1 and 4096, got %d",
			ErrInvalidEmbedder, c.EmbedderDimensions)
	}
	if c.EmbeddingBatchSize < 1 || c.EmbeddingBatchSize > 1000 {
		return fmt.Errorf("%w: embedding_batch_size must be between 1 and 1000, got %d",
			ErrInvalidEmbedder, c.EmbeddingBatchSize)
	}

	// 3. Chunking configuration
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be between 0 and chunk_size-1, got %d (chunk_size %d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	validSplitters := []string{SplitterSeparator, SplitterFixed}
	if !slices.Contains(validSplitters, c.Splitter) {
		return fmt.Errorf("%w: splitter %q, must be one of: %v", ErrInvalidChunking, c.Splitter, validSplitters)
	}

	// 4. Retrieval configuration
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}

	validRetrievers := []string{RetrieverVector, RetrieverKeyword, RetrieverHybrid}
	if !slices.Contains(validRetrievers, c.Retriever) {
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidRetriever, c.Retriever, validRetrievers)
	}

	if c.Retriever == RetrieverHybrid {
		if c.VectorWeight < 0 || c.KeywordWeight < 0 {
			return fmt.Errorf("%w: weights must be non-negative, got vector=%.2f keyword=%.2f",
				ErrInvalidWeights, c.VectorWeight, c.KeywordWeight)
		}
		if c.VectorWeight+c.KeywordWeight == 0 {
			return fmt.Errorf("%w: vector_weight and keyword_weight cannot both be zero", ErrInvalidWeights)
		}
	}

	// 5. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgres)
	}

	// Warn if using the default dev password (but don't block, user might be in dev)
	if c.PostgresPassword == "chidori_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: ssl mode %q is not valid, must be one of: %v",
			ErrInvalidPostgres, c.PostgresSSLMode, validSSLModes)
	}

	if c.Collection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidPostgres)
	}

	return nil
}
