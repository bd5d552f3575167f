// Package retriever implements the retrieval strategies behind the RAG
// pipeline: vector similarity over pgvector, keyword search over a bleve
// index, and a weighted hybrid of the two.
package retriever

import "context"

// Scored is one retrieved chunk with its relevance score.
// For the vector retriever the score is cosine similarity (0-1); for the
// keyword retriever it is the BM25 score; the hybrid retriever reports the
// fused, normalized score.
type Scored struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float64
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	// Retrieve returns up to topK chunks ordered by descending score.
	Retrieve(ctx context.Context, query string, topK int) ([]Scored, error)

	// Name identifies the strategy ("vector", "keyword", "hybrid").
	Name() string
}
