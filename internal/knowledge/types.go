package knowledge

import "time"

// Document represents a source document in the knowledge base.
// One Document row exists per ingested file; its text lives in Chunks.
type Document struct {
	ID         string            // Stable identifier derived from the source path
	Collection string            // Logical grouping for retrieval
	Source     string            // Origin path or URL
	Metadata   map[string]string // Optional metadata (file type, title, etc.)
	CreatedAt  time.Time
}

// Chunk is an embedded slice of a document.
// Start and End are byte offsets into the original document text.
type Chunk struct {
	ID         string
	DocumentID string
	Collection string
	Index      int // Position within the document, 0-based
	Start      int
	End        int
	Content    string
	Metadata   map[string]string
	Embedding  []float32
	CreatedAt  time.Time
}

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float32 // Cosine similarity (0-1, higher is closer)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 4 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithTimeout overrides the per-search query timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    4,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
