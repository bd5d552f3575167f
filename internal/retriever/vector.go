package retriever

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/log"
)

// Vector retrieves chunks by cosine similarity over pgvector.
type Vector struct {
	store      *knowledge.Store
	embedder   ai.Embedder
	collection string
	logger     log.Logger
}

// NewVector creates a vector retriever over the given store and collection.
func NewVector(store *knowledge.Store, embedder ai.Embedder, collection string, logger log.Logger) *Vector {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Vector{
		store:      store,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}
}

// Name implements Retriever.
func (v *Vector) Name() string { return "vector" }

// Retrieve embeds the query and searches the collection.
func (v *Vector) Retrieve(ctx context.Context, query string, topK int) ([]Scored, error) {
	embedding, err := knowledge.EmbedText(ctx, v.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := v.store.SearchByVector(ctx, v.collection, embedding, knowledge.WithTopK(topK))
	if err != nil {
		return nil, fmt.Errorf("searching by vector: %w", err)
	}

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		scored = append(scored, Scored{
			ID:       r.Chunk.ID,
			Content:  r.Chunk.Content,
			Metadata: r.Chunk.Metadata,
			Score:    float64(r.Similarity),
		})
	}

	v.logger.Debug("vector retrieval", "query_len", len(query), "results", len(scored))
	return scored, nil
}
