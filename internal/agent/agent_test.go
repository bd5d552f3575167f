package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidori-ai/chidori/internal/agent"
	"github.com/chidori-ai/chidori/internal/rag"
	"github.com/chidori-ai/chidori/internal/retriever"
	"github.com/chidori-ai/chidori/internal/testutil"
	"github.com/chidori-ai/chidori/internal/tools"
)

type stubRetriever struct {
	results []retriever.Scored
	err     error
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ int) ([]retriever.Scored, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubRetriever) Name() string { return "stub" }

func newAgent(t *testing.T, model agent.ChatModel, pipeline *rag.Pipeline) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{
		Model:      model,
		Calculator: tools.NewCalculator(nil),
		Pipeline:   pipeline,
	})
	require.NoError(t, err)
	return a
}

func newRAGPipeline(t *testing.T, r retriever.Retriever, model rag.ChatModel) *rag.Pipeline {
	t.Helper()
	p, err := rag.New(rag.Config{Retriever: r, Model: model, TopK: 4})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := agent.New(agent.Config{Calculator: tools.NewCalculator(nil)})
	require.ErrorIs(t, err, agent.ErrModelNil)

	_, err = agent.New(agent.Config{Model: testutil.NewMockChatModel("ok")})
	require.ErrorIs(t, err, agent.ErrCalculatorNil)
}

func TestHandleMessage_Calculator(t *testing.T) {
	a := newAgent(t, testutil.NewMockChatModel("unused"), nil)

	resp, err := a.HandleMessage(context.Background(), "calc: 1 + 2 * 3", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeTool, resp.Type)
	assert.Equal(t, "calculator", resp.ToolName)
	assert.Contains(t, resp.Reply, "7")

	details, ok := resp.Details.(agent.CalcDetails)
	require.True(t, ok)
	assert.Equal(t, "1 + 2 * 3", details.Expression)
	assert.InDelta(t, 7.0, details.Result, 1e-9)
}

func TestHandleMessage_CalculatorPrefixCaseInsensitive(t *testing.T) {
	a := newAgent(t, testutil.NewMockChatModel("unused"), nil)

	resp, err := a.HandleMessage(context.Background(), "CALC: sqrt(16)", false)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeTool, resp.Type)
	assert.Contains(t, resp.Reply, "4")
}

func TestHandleMessage_CalculatorEmptyExpression(t *testing.T) {
	a := newAgent(t, testutil.NewMockChatModel("unused"), nil)

	resp, err := a.HandleMessage(context.Background(), "calc:   ", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeTool, resp.Type)
	assert.Equal(t, "calculator", resp.ToolName)
	assert.Contains(t, resp.Reply, "calc: 1+2*3")
	assert.Nil(t, resp.Details)
}

func TestHandleMessage_CalculatorInvalidExpression(t *testing.T) {
	a := newAgent(t, testutil.NewMockChatModel("unused"), nil)

	resp, err := a.HandleMessage(context.Background(), "calc: 1 / 0", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeError, resp.Type)
	assert.Equal(t, "calculator", resp.ToolName)
	assert.Contains(t, resp.Reply, "Calculation failed")

	details, ok := resp.Details.(agent.CalcErrorDetails)
	require.True(t, ok)
	assert.Equal(t, "1 / 0", details.Expression)
	assert.NotEmpty(t, details.Error)
}

func TestHandleMessage_RAG(t *testing.T) {
	r := &stubRetriever{results: []retriever.Scored{
		{ID: "c1", Content: "Channels synchronize goroutines.", Metadata: map[string]string{"source": "channels.md"}, Score: 0.8},
	}}
	model := testutil.NewMockChatModel("Channels synchronize goroutines.")
	a := newAgent(t, model, newRAGPipeline(t, r, model))

	resp, err := a.HandleMessage(context.Background(), "What do channels do?", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeRAG, resp.Type)
	assert.Empty(t, resp.ToolName)

	answer, ok := resp.Details.(*rag.Answer)
	require.True(t, ok)
	assert.Equal(t, 1, answer.RetrievedCount)
	assert.Equal(t, "c1", answer.ContextDocuments[0].ID)
}

func TestHandleMessage_RAGDisabledFlag(t *testing.T) {
	model := testutil.NewMockChatModel("direct reply")
	a := newAgent(t, model, newRAGPipeline(t, &stubRetriever{}, model))

	resp, err := a.HandleMessage(context.Background(), "hello", false)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeDirect, resp.Type)
	assert.Equal(t, "direct reply", resp.Reply)
	assert.Nil(t, resp.Details)
}

func TestHandleMessage_RAGFailureFallsBack(t *testing.T) {
	model := testutil.NewMockChatModel("ungrounded reply")
	pipeline := newRAGPipeline(t, &stubRetriever{err: errors.New("index offline")}, model)
	a := newAgent(t, model, pipeline)

	resp, err := a.HandleMessage(context.Background(), "question", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeFallback, resp.Type)
	assert.Equal(t, "ungrounded reply", resp.Reply)

	details, ok := resp.Details.(agent.FallbackDetails)
	require.True(t, ok)
	assert.Contains(t, details.Error, "index offline")
	assert.NotEmpty(t, details.Message)
}

func TestHandleMessage_NoPipelineIgnoresUseRAG(t *testing.T) {
	model := testutil.NewMockChatModel("direct reply")
	a := newAgent(t, model, nil)

	resp, err := a.HandleMessage(context.Background(), "hello", true)
	require.NoError(t, err)

	assert.Equal(t, agent.TypeDirect, resp.Type)
}

func TestHandleMessage_DirectChatError(t *testing.T) {
	model := testutil.NewMockChatModel("unused")
	wantErr := errors.New("model unavailable")
	model.FailWith(wantErr)
	a := newAgent(t, model, nil)

	_, err := a.HandleMessage(context.Background(), "hello", false)
	require.ErrorIs(t, err, wantErr)
}

func TestHandleMessage_UnconfiguredModelStillReplies(t *testing.T) {
	// With no API key the app wires llm.Unconfigured; the agent must keep
	// answering instead of failing.
	a, err := agent.New(agent.Config{
		Model:      testutil.NewMockChatModel("[placeholder reply] no model configured"),
		Calculator: tools.NewCalculator(nil),
	})
	require.NoError(t, err)

	resp, err := a.HandleMessage(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, agent.TypeDirect, resp.Type)
	assert.Contains(t, resp.Reply, "placeholder")
}

func TestStats(t *testing.T) {
	model := testutil.NewMockChatModel("reply")
	pipeline := newRAGPipeline(t, &stubRetriever{err: errors.New("offline")}, model)
	a := newAgent(t, model, pipeline)

	ctx := context.Background()
	_, err := a.HandleMessage(ctx, "calc: 2+2", false)
	require.NoError(t, err)
	_, err = a.HandleMessage(ctx, "direct question", false)
	require.NoError(t, err)
	_, err = a.HandleMessage(ctx, "rag question", true) // falls back
	require.NoError(t, err)

	stats := a.Stats()
	assert.Equal(t, "rag-agent", stats.AgentType)
	assert.Equal(t, int64(3), stats.TotalCalls)
	assert.Equal(t, int64(1), stats.ToolUsedCount)
	assert.Equal(t, int64(1), stats.RAGUsedCount)
	// Fallback counts as a direct model call in addition to the RAG attempt.
	assert.Equal(t, int64(2), stats.DirectLLMCount)

	require.NotNil(t, stats.RAGPipelineStats)
	assert.Equal(t, int64(1), stats.RAGPipelineStats.PipelineRuns)
}

func TestStats_NoPipeline(t *testing.T) {
	a := newAgent(t, testutil.NewMockChatModel("reply"), nil)

	stats := a.Stats()
	assert.Nil(t, stats.RAGPipelineStats)
}
