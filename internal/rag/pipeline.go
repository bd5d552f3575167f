// Package rag implements the retrieval-augmented generation pipeline:
// retrieve relevant chunks, build a grounded prompt, and generate a reply.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/retriever"
)

const (
	// systemPrompt instructs the model to answer strictly from context.
	systemPrompt = "You are a knowledge-base question answering assistant. Answer user questions strictly from the provided context."

	// noAnswerInstruction is embedded in the prompt so the model declines
	// cleanly when the context does not cover the question.
	noAnswerInstruction = "Based on the provided context, I cannot answer this question."

	// retrieveTimeout bounds the retrieval step of one query.
	retrieveTimeout = 15 * time.Second
)

// Sentinel errors for pipeline construction and execution.
var (
	ErrRetrieverNil = errors.New("retriever is required")
	ErrModelNil     = errors.New("chat model is required")
	ErrEmptyQuery   = errors.New("query is empty")
)

// ChatModel generates a reply from a system prompt and a user prompt.
// *llm.Client and *llm.Unconfigured both satisfy it.
type ChatModel interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// ContextDocument is one retrieved chunk as reported back to the caller.
type ContextDocument struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Answer is the full result of one pipeline run.
type Answer struct {
	Query            string            `json:"query"`
	Reply            string            `json:"response"`
	ContextDocuments []ContextDocument `json:"context_documents"`
	RetrievedCount   int               `json:"retrieved_count"`
	UsedContextCount int               `json:"used_context_count"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	PipelineType   string `json:"pipeline_type"`
	PipelineRuns   int64  `json:"pipeline_runs"`
	RetrievalCount int64  `json:"retrieval_count"`
	LLMCalls       int64  `json:"llm_calls"`
	Retriever      string `json:"retriever"`
	TopK           int    `json:"rag_top_k"`
}

// Pipeline runs retrieve-then-generate for a single query.
// Counters use atomics so concurrent HTTP handlers can share one instance.
type Pipeline struct {
	retriever retriever.Retriever
	model     ChatModel
	topK      int
	logger    log.Logger

	pipelineRuns   atomic.Int64
	retrievalCount atomic.Int64
	llmCalls       atomic.Int64
}

// Config contains the parameters for constructing a Pipeline.
type Config struct {
	Retriever retriever.Retriever
	Model     ChatModel
	TopK      int // number of context chunks per query; <=0 means 4
	Logger    log.Logger
}

// New creates a RAG pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Retriever == nil {
		return nil, ErrRetrieverNil
	}
	if cfg.Model == nil {
		return nil, ErrModelNil
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		retriever: cfg.Retriever,
		model:     cfg.Model,
		topK:      topK,
		logger:    logger,
	}, nil
}

// Run retrieves context for the query and generates a grounded reply.
// A retrieval or generation failure is returned to the caller, who decides
// whether to fall back to an ungrounded reply.
func (p *Pipeline) Run(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	p.pipelineRuns.Add(1)

	docs, err := p.Context(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildPrompt(query, docs)

	p.llmCalls.Add(1)
	reply, err := p.model.Chat(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	p.logger.Debug("pipeline run complete",
		"retriever", p.retriever.Name(),
		"retrieved", len(docs),
		"query_length", len(query))

	used := len(docs)
	if used > p.topK {
		used = p.topK
	}
	return &Answer{
		Query:            query,
		Reply:            reply,
		ContextDocuments: docs,
		RetrievedCount:   len(docs),
		UsedContextCount: used,
	}, nil
}

// Context returns the retrieved chunks for a query without generating a reply.
// Run uses it for its retrieval step.
func (p *Pipeline) Context(ctx context.Context, query string) ([]ContextDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, retrieveTimeout)
	defer cancel()

	p.retrievalCount.Add(1)
	docs, err := p.retriever.Retrieve(ctx, query, p.topK)
	if err != nil {
		return nil, err
	}
	return toContextDocuments(docs), nil
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		PipelineType:   "basic",
		PipelineRuns:   p.pipelineRuns.Load(),
		RetrievalCount: p.retrievalCount.Load(),
		LLMCalls:       p.llmCalls.Load(),
		Retriever:      p.retriever.Name(),
		TopK:           p.topK,
	}
}

// buildPrompt assembles the grounded user prompt. Each context block names
// its source so the model can cite it.
func buildPrompt(query string, docs []ContextDocument) string {
	var sb strings.Builder

	sb.WriteString("Context:\n")
	if len(docs) == 0 {
		sb.WriteString("(no relevant documents found)\n")
	}
	for i, doc := range docs {
		source := doc.Metadata["source"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&sb, "Context %d (source: %s):\n%s\n\n", i+1, source, doc.Content)
	}

	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Answer only from the context above. Do not add outside knowledge.\n")
	fmt.Fprintf(&sb, "2. If the context has no relevant information, answer exactly: %q\n", noAnswerInstruction)
	sb.WriteString("3. Keep the answer concise. You may cite sources by name.\n")
	sb.WriteString("4. Answer in the same language as the question.\n")

	return sb.String()
}

func toContextDocuments(docs []retriever.Scored) []ContextDocument {
	out := make([]ContextDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, ContextDocument{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
	}
	return out
}
