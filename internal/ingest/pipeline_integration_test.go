package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidori-ai/chidori/internal/ingest"
	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/retriever"
	"github.com/chidori-ai/chidori/internal/testutil"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestPipeline_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)

	keyword, err := retriever.OpenKeywordIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	docDir := t.TempDir()
	writeDoc(t, docDir, "go.md", "# Go\n\nGo is a compiled language.\n\nIt has goroutines.")
	writeDoc(t, docDir, "db.txt", strings.Repeat("PostgreSQL stores relational data. ", 40))
	writeDoc(t, docDir, "ignored.docx", "binary junk")
	writeDoc(t, docDir, "empty.txt", "   \n")

	p := ingest.NewPipeline(store, keyword, embedder,
		ingest.NewSeparatorSplitter(512, 128),
		ingest.Options{Collection: "test", BatchSize: 4, Workers: 2}, nil)

	result, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Documents)
	assert.Greater(t, result.Chunks, 1)
	assert.Equal(t, 2, result.Skipped) // .docx and empty file
	assert.Empty(t, result.Failed)

	// Chunks landed in PostgreSQL
	count, err := store.CountChunks(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, count)

	// And in the keyword index
	kwCount, err := keyword.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(result.Chunks), kwCount)

	// Keyword search finds indexed content
	hits, err := keyword.Search(context.Background(), "test", "goroutines", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "goroutines")
}

func TestPipeline_Run_Reindex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)

	docDir := t.TempDir()
	writeDoc(t, docDir, "a.txt", "Original content about databases.")

	p := ingest.NewPipeline(store, nil, embedder,
		ingest.NewSeparatorSplitter(512, 128),
		ingest.Options{Collection: "test"}, nil)

	_, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)

	// Re-running over the same files must not duplicate documents or chunks
	result, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)

	docs, err := store.CountDocuments(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, docs)

	chunks, err := store.CountChunks(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, chunks)
}

func TestPipeline_Run_EmptiedFilePrunesDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)

	docDir := t.TempDir()
	writeDoc(t, docDir, "a.txt", "Content that will later disappear.")

	p := ingest.NewPipeline(store, nil, embedder,
		ingest.NewSeparatorSplitter(512, 128),
		ingest.Options{Collection: "test"}, nil)

	_, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)

	docs, err := store.CountDocuments(context.Background(), "test")
	require.NoError(t, err)
	require.Equal(t, 1, docs)

	// Truncate the file and re-run: the stale document and its chunks go away
	writeDoc(t, docDir, "a.txt", "   \n")
	result, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Documents)

	docs, err = store.CountDocuments(context.Background(), "test")
	require.NoError(t, err)
	assert.Zero(t, docs)

	chunks, err := store.CountChunks(context.Background(), "test")
	require.NoError(t, err)
	assert.Zero(t, chunks)
}

func TestPipeline_Run_MissingDir(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)

	p := ingest.NewPipeline(store, nil, embedder,
		ingest.NewSeparatorSplitter(512, 128),
		ingest.Options{Collection: "test"}, nil)

	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestPipeline_Run_EmbedderFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewStore(tdb.Pool, nil)
	embedder := testutil.NewMockEmbedder(768)
	embedder.FailWith(assert.AnError)

	docDir := t.TempDir()
	writeDoc(t, docDir, "a.txt", "some content")

	p := ingest.NewPipeline(store, nil, embedder,
		ingest.NewSeparatorSplitter(512, 128),
		ingest.Options{Collection: "test"}, nil)

	// Embedding failures are per-file: the run finishes and reports them
	result, err := p.Run(context.Background(), docDir)
	require.NoError(t, err)
	assert.Len(t, result.Failed, 1)
	assert.Zero(t, result.Documents)
}
