package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/log"
)

// keywordBatchSize bounds how many chunks go into one bleve batch.
const keywordBatchSize = 500

// KeywordIndex wraps a bleve full-text index over chunk content.
// Chunk content and source metadata are stored in the index so keyword
// hits can be returned without a database round trip.
type KeywordIndex struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// keywordDoc is the shape indexed into bleve.
type keywordDoc struct {
	Content    string `json:"content"`
	Collection string `json:"collection"`
	Source     string `json:"source"`
}

// buildIndexMapping defines field mappings:
// content is analyzed text (standard analyzer, stored for retrieval),
// collection is an exact-match keyword field, source is stored metadata.
func buildIndexMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Store = true

	collection := bleve.NewKeywordFieldMapping()
	collection.Store = false

	source := bleve.NewKeywordFieldMapping()
	source.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("collection", collection)
	doc.AddFieldMappingsAt("source", source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenKeywordIndex opens the bleve index at path, creating it if absent.
func OpenKeywordIndex(path string) (*KeywordIndex, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening keyword index at %q: %w", path, err)
	}
	return &KeywordIndex{idx: idx}, nil
}

// Index adds chunks to the keyword index in batches.
func (k *KeywordIndex) Index(chunks []knowledge.Chunk) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	batch := k.idx.NewBatch()
	for i, c := range chunks {
		doc := keywordDoc{
			Content:    c.Content,
			Collection: c.Collection,
			Source:     c.Metadata["source"],
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("batching chunk %q: %w", c.ID, err)
		}

		if batch.Size() >= keywordBatchSize || i == len(chunks)-1 {
			if err := k.idx.Batch(batch); err != nil {
				return fmt.Errorf("indexing batch: %w", err)
			}
			batch = k.idx.NewBatch()
		}
	}
	return nil
}

// Search runs a BM25-scored match query over chunk content, restricted to
// the given collection.
func (k *KeywordIndex) Search(ctx context.Context, collection, query string, topK int) ([]Scored, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	filter := bleve.NewTermQuery(collection)
	filter.SetField("collection")

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(match, filter), topK, 0, false)
	req.Fields = []string{"content", "source"}

	res, err := k.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	scored := make([]Scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields["content"].(string)
		source, _ := hit.Fields["source"].(string)

		metadata := map[string]string{}
		if source != "" {
			metadata["source"] = source
		}
		scored = append(scored, Scored{
			ID:       hit.ID,
			Content:  content,
			Metadata: metadata,
			Score:    hit.Score,
		})
	}
	return scored, nil
}

// deletePageSize bounds how many hits are fetched per page while clearing
// a collection.
const deletePageSize = 1000

// DeleteCollection removes every chunk indexed under the given collection.
// Entries from other collections are kept, matching the scoped delete on
// the vector store.
func (k *KeywordIndex) DeleteCollection(collection string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	filter := bleve.NewTermQuery(collection)
	filter.SetField("collection")

	for {
		req := bleve.NewSearchRequestOptions(filter, deletePageSize, 0, false)
		res, err := k.idx.Search(req)
		if err != nil {
			return fmt.Errorf("finding chunks in collection %q: %w", collection, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := k.idx.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := k.idx.Batch(batch); err != nil {
			return fmt.Errorf("deleting chunks in collection %q: %w", collection, err)
		}
	}
}

// DocCount returns the number of indexed chunks.
func (k *KeywordIndex) DocCount() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	count, err := k.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("counting keyword documents: %w", err)
	}
	return count, nil
}

// Close releases the underlying bleve index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.idx.Close(); err != nil {
		return fmt.Errorf("closing keyword index: %w", err)
	}
	return nil
}

// Keyword retrieves chunks by BM25 relevance from the keyword index.
type Keyword struct {
	index      *KeywordIndex
	collection string
	logger     log.Logger
}

// NewKeyword creates a keyword retriever over the given index and collection.
func NewKeyword(index *KeywordIndex, collection string, logger log.Logger) *Keyword {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Keyword{index: index, collection: collection, logger: logger}
}

// Name implements Retriever.
func (k *Keyword) Name() string { return "keyword" }

// Retrieve implements Retriever.
func (k *Keyword) Retrieve(ctx context.Context, query string, topK int) ([]Scored, error) {
	scored, err := k.index.Search(ctx, k.collection, query, topK)
	if err != nil {
		return nil, err
	}

	k.logger.Debug("keyword retrieval", "query_len", len(query), "results", len(scored))
	return scored, nil
}
