package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/chidori-ai/chidori/internal/log"
)

// Store manages documents and chunks in PostgreSQL with pgvector similarity
// search. The pool must have pgvector types registered (see app.Setup or
// testutil.SetupTestDB).
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a new Store instance.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// AddDocument inserts or updates a document row.
// Uses UPSERT (ON CONFLICT DO UPDATE) so re-indexing the same file is idempotent.
func (s *Store) AddDocument(ctx context.Context, doc Document) error {
	metadataJSON, err := json.Marshal(orEmpty(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, collection, source, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET collection = EXCLUDED.collection,
		    source     = EXCLUDED.source,
		    metadata   = EXCLUDED.metadata`,
		doc.ID, doc.Collection, doc.Source, metadataJSON)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "source", doc.Source)
	return nil
}

// AddChunks upserts a batch of chunks in a single round trip.
// Stale chunks from a previous version of the document are removed first so
// a shrunken document does not leave orphaned chunks behind.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	// All chunks in one call belong to the same document in practice, but
	// group by document ID to stay correct if callers mix them.
	seen := make(map[string]struct{})
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			batch.Queue(`DELETE FROM chunks WHERE document_id = $1`, c.DocumentID)
		}
	}

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %q has no embedding", c.ID)
		}
		metadataJSON, err := json.Marshal(orEmpty(c.Metadata))
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, collection, chunk_index,
			                    start_offset, end_offset, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET content   = EXCLUDED.content,
			    metadata  = EXCLUDED.metadata,
			    embedding = EXCLUDED.embedding`,
			c.ID, c.DocumentID, c.Collection, c.Index,
			c.Start, c.End, c.Content, metadataJSON, pgvector.NewVector(c.Embedding))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Warn("closing batch results", "error", err)
		}
	}()

	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	s.logger.Debug("added chunks", "count", len(chunks))
	return nil
}

// SearchByVector finds the chunks closest to the query embedding by cosine
// distance, scoped to a collection. A per-query timeout prevents long vector
// scans from blocking callers.
func (s *Store) SearchByVector(ctx context.Context, collection string, embedding []float32, opts ...SearchOption) ([]Result, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query embedding")
	}
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx, `
		SELECT id, document_id, collection, chunk_index, start_offset, end_offset,
		       content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), collection, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			c            Chunk
			metadataJSON []byte
			createdAt    time.Time
			similarity   float64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Collection, &c.Index,
			&c.Start, &c.End, &c.Content, &metadataJSON, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		c.CreatedAt = createdAt
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			s.logger.Warn("parsing chunk metadata", "chunk_id", c.ID, "error", err)
			c.Metadata = map[string]string{}
		}
		results = append(results, Result{Chunk: c, Similarity: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// CountChunks returns the number of chunks in a collection.
func (s *Store) CountChunks(ctx context.Context, collection string) (int, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = $1`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	// Overflow protection for 32-bit platforms
	if count > math.MaxInt {
		return 0, fmt.Errorf("chunk count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// CountDocuments returns the number of documents in a collection.
func (s *Store) CountDocuments(ctx context.Context, collection string) (int, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// DeleteCollection removes every document in a collection.
// Chunks go with them via ON DELETE CASCADE.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1`, collection)
	if err != nil {
		return fmt.Errorf("deleting collection %q: %w", collection, err)
	}

	s.logger.Info("deleted collection", "collection", collection, "documents", tag.RowsAffected())
	return nil
}

// DeleteDocument removes a single document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}

	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// orEmpty returns an empty map instead of nil so metadata always
// marshals to a JSON object, never null.
func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
