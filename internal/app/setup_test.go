package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidori-ai/chidori/internal/config"
	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/retriever"
	"github.com/chidori-ai/chidori/internal/testutil"
)

func TestPlaceholderKeyName(t *testing.T) {
	assert.Equal(t, "GEMINI_API_KEY", placeholderKeyName(config.ProviderGemini))
	assert.Equal(t, "GEMINI_API_KEY", placeholderKeyName(""))
	assert.Equal(t, "OPENAI_API_KEY", placeholderKeyName(config.ProviderOpenAI))
	assert.Equal(t, "OLLAMA_HOST", placeholderKeyName(config.ProviderOllama))
}

func TestNewIngestPipeline(t *testing.T) {
	a := &App{
		Config: &config.Config{ChunkSize: 512, ChunkOverlap: 128, Collection: "test"},
		Logger: log.NewNop(),
	}

	_, err := a.NewIngestPipeline()
	assert.ErrorIs(t, err, errEmbedderRequired)

	a.Embedder = testutil.NewMockEmbedder(8)
	for _, splitter := range []string{config.SplitterSeparator, config.SplitterFixed} {
		a.Config.Splitter = splitter
		p, err := a.NewIngestPipeline()
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}

func TestWireRetriever(t *testing.T) {
	keyword, err := retriever.OpenKeywordIndex(t.TempDir() + "/kw.bleve")
	require.NoError(t, err)
	defer keyword.Close()

	embedder := testutil.NewMockEmbedder(8)

	cfg := &config.Config{
		Collection:    "test",
		VectorWeight:  0.6,
		KeywordWeight: 0.4,
	}

	t.Run("keyword", func(t *testing.T) {
		cfg.Retriever = config.RetrieverKeyword
		r := wireRetriever(cfg, nil, nil, keyword, log.NewNop())
		require.NotNil(t, r)
		assert.Equal(t, "keyword", r.Name())
	})

	t.Run("vector", func(t *testing.T) {
		cfg.Retriever = config.RetrieverVector
		r := wireRetriever(cfg, nil, embedder, keyword, log.NewNop())
		require.NotNil(t, r)
		assert.Equal(t, "vector", r.Name())
	})

	t.Run("vector without embedder disables retrieval", func(t *testing.T) {
		cfg.Retriever = config.RetrieverVector
		assert.Nil(t, wireRetriever(cfg, nil, nil, keyword, log.NewNop()))
	})

	t.Run("hybrid", func(t *testing.T) {
		cfg.Retriever = config.RetrieverHybrid
		r := wireRetriever(cfg, nil, embedder, keyword, log.NewNop())
		require.NotNil(t, r)
		assert.Equal(t, "hybrid", r.Name())
	})

	t.Run("hybrid without embedder falls back to keyword", func(t *testing.T) {
		cfg.Retriever = config.RetrieverHybrid
		r := wireRetriever(cfg, nil, nil, keyword, log.NewNop())
		require.NotNil(t, r)
		assert.Equal(t, "keyword", r.Name())
	})
}
