package knowledge_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/testutil"
)

func testChunk(docID string, index int, content string, embedding []float32) knowledge.Chunk {
	return knowledge.Chunk{
		ID:         fmt.Sprintf("%s:%d", docID, index),
		DocumentID: docID,
		Collection: "test",
		Index:      index,
		Start:      index * 100,
		End:        index*100 + len(content),
		Content:    content,
		Metadata:   map[string]string{"source": "test.md"},
		Embedding:  embedding,
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)
	ctx := context.Background()

	doc := knowledge.Document{
		ID:         "file_abc123",
		Collection: "test",
		Source:     "/docs/test.md",
		Metadata:   map[string]string{"ext": ".md"},
	}
	require.NoError(t, store.AddDocument(ctx, doc))

	texts := []string{
		"Go is a statically typed compiled language.",
		"PostgreSQL is a relational database.",
		"The capital of France is Paris.",
	}
	vectors, err := knowledge.EmbedTexts(ctx, embedder, texts)
	require.NoError(t, err)

	chunks := make([]knowledge.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = testChunk(doc.ID, i, text, vectors[i])
	}
	require.NoError(t, store.AddChunks(ctx, chunks))

	count, err := store.CountChunks(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Searching with the exact embedding of a chunk must rank it first
	// with similarity ~1.0.
	results, err := store.SearchByVector(ctx, "test", vectors[1], knowledge.WithTopK(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, texts[1], results[0].Chunk.Content)
	assert.InDelta(t, 1.0, float64(results[0].Similarity), 1e-3)
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)

	// Metadata round-trips
	assert.Equal(t, "test.md", results[0].Chunk.Metadata["source"])
}

func TestStore_AddChunks_ReplacesStale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)
	ctx := context.Background()

	doc := knowledge.Document{ID: "file_doc1", Collection: "test", Source: "/docs/a.txt"}
	require.NoError(t, store.AddDocument(ctx, doc))

	vec, err := knowledge.EmbedText(ctx, embedder, "content")
	require.NoError(t, err)

	// First version: three chunks
	first := []knowledge.Chunk{
		testChunk(doc.ID, 0, "one", vec),
		testChunk(doc.ID, 1, "two", vec),
		testChunk(doc.ID, 2, "three", vec),
	}
	require.NoError(t, store.AddChunks(ctx, first))

	// Re-index with a shorter version: only one chunk must remain
	second := []knowledge.Chunk{testChunk(doc.ID, 0, "only", vec)}
	require.NoError(t, store.AddChunks(ctx, second))

	count, err := store.CountChunks(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_DeleteCollection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)
	ctx := context.Background()

	doc := knowledge.Document{ID: "file_del", Collection: "test", Source: "/docs/del.txt"}
	require.NoError(t, store.AddDocument(ctx, doc))

	vec, err := knowledge.EmbedText(ctx, embedder, "to delete")
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []knowledge.Chunk{testChunk(doc.ID, 0, "to delete", vec)}))

	require.NoError(t, store.DeleteCollection(ctx, "test"))

	// Chunks cascade with the documents
	docs, err := store.CountDocuments(ctx, "test")
	require.NoError(t, err)
	assert.Zero(t, docs)

	chunks, err := store.CountChunks(ctx, "test")
	require.NoError(t, err)
	assert.Zero(t, chunks)
}

func TestStore_SearchByVector_EmptyEmbedding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)

	_, err := store.SearchByVector(context.Background(), "test", nil)
	require.Error(t, err)
}
