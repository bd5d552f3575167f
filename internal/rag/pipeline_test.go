package rag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidori-ai/chidori/internal/rag"
	"github.com/chidori-ai/chidori/internal/retriever"
	"github.com/chidori-ai/chidori/internal/testutil"
)

type stubRetriever struct {
	results []retriever.Scored
	err     error
	queries []string
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, _ int) ([]retriever.Scored, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubRetriever) Name() string { return "stub" }

func newPipeline(t *testing.T, r retriever.Retriever, model rag.ChatModel) *rag.Pipeline {
	t.Helper()
	p, err := rag.New(rag.Config{Retriever: r, Model: model, TopK: 4})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	model := testutil.NewMockChatModel("ok")

	_, err := rag.New(rag.Config{Model: model})
	require.ErrorIs(t, err, rag.ErrRetrieverNil)

	_, err = rag.New(rag.Config{Retriever: &stubRetriever{}})
	require.ErrorIs(t, err, rag.ErrModelNil)
}

func TestRun_GroundsPromptInContext(t *testing.T) {
	r := &stubRetriever{results: []retriever.Scored{
		{ID: "c1", Content: "Go maps are not safe for concurrent writes.", Metadata: map[string]string{"source": "maps.md"}, Score: 0.9},
		{ID: "c2", Content: "Use sync.Mutex to guard shared maps.", Metadata: map[string]string{"source": "sync.md"}, Score: 0.7},
	}}
	model := testutil.NewMockChatModel("Guard the map with a mutex.")
	p := newPipeline(t, r, model)

	answer, err := p.Run(context.Background(), "Are Go maps thread safe?")
	require.NoError(t, err)

	assert.Equal(t, "Guard the map with a mutex.", answer.Reply)
	assert.Equal(t, "Are Go maps thread safe?", answer.Query)
	assert.Equal(t, 2, answer.RetrievedCount)
	assert.Equal(t, 2, answer.UsedContextCount)
	require.Len(t, answer.ContextDocuments, 2)
	assert.Equal(t, "c1", answer.ContextDocuments[0].ID)
	assert.Equal(t, "maps.md", answer.ContextDocuments[0].Metadata["source"])

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Go maps are not safe for concurrent writes.")
	assert.Contains(t, calls[0].User, "source: sync.md")
	assert.Contains(t, calls[0].User, "Are Go maps thread safe?")
}

func TestRun_EmptyQuery(t *testing.T) {
	p := newPipeline(t, &stubRetriever{}, testutil.NewMockChatModel("ok"))

	_, err := p.Run(context.Background(), "   ")
	require.ErrorIs(t, err, rag.ErrEmptyQuery)
}

func TestRun_RetrievalErrorPropagates(t *testing.T) {
	wantErr := errors.New("index unavailable")
	p := newPipeline(t, &stubRetriever{err: wantErr}, testutil.NewMockChatModel("ok"))

	_, err := p.Run(context.Background(), "anything")
	require.ErrorIs(t, err, wantErr)
}

func TestRun_ModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	model := testutil.NewMockChatModel("ok")
	model.FailWith(wantErr)
	p := newPipeline(t, &stubRetriever{}, model)

	_, err := p.Run(context.Background(), "anything")
	require.ErrorIs(t, err, wantErr)
}

func TestRun_NoResults(t *testing.T) {
	model := testutil.NewMockChatModel("I cannot answer this question.")
	p := newPipeline(t, &stubRetriever{}, model)

	answer, err := p.Run(context.Background(), "obscure question")
	require.NoError(t, err)

	assert.Equal(t, 0, answer.RetrievedCount)
	assert.Equal(t, 0, answer.UsedContextCount)
	assert.Empty(t, answer.ContextDocuments)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "no relevant documents found")
}

func TestStats(t *testing.T) {
	r := &stubRetriever{results: []retriever.Scored{{ID: "c1", Content: "x", Score: 1}}}
	p := newPipeline(t, r, testutil.NewMockChatModel("ok"))

	for range 3 {
		_, err := p.Run(context.Background(), "q")
		require.NoError(t, err)
	}
	_, err := p.Context(context.Background(), "q")
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, "basic", stats.PipelineType)
	assert.Equal(t, int64(3), stats.PipelineRuns)
	assert.Equal(t, int64(4), stats.RetrievalCount)
	assert.Equal(t, int64(3), stats.LLMCalls)
	assert.Equal(t, "stub", stats.Retriever)
	assert.Equal(t, 4, stats.TopK)
}
