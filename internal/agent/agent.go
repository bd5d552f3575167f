// Package agent implements the conversational agent that routes each
// incoming message to the calculator tool, the RAG pipeline, or the
// language model directly.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/rag"
	"github.com/chidori-ai/chidori/internal/tools"
)

// Response type values reported to clients.
const (
	TypeDirect   = "direct"
	TypeRAG      = "rag"
	TypeTool     = "tool"
	TypeFallback = "fallback"
	TypeError    = "error"
)

// calcPrefix marks a message as a calculator invocation.
const calcPrefix = "calc:"

// systemPrompt describes the agent's behavior to the model on direct calls.
const systemPrompt = `You are a developer learning assistant backed by a knowledge base.

Guidelines:
1. For technical questions, answer from the knowledge-base context when it is provided.
2. Answer strictly from provided context; do not invent outside knowledge when context is given.
3. If no relevant context is available, give the most helpful answer you can from what you know.
4. Keep answers concise and use precise technical terms.
5. Answer in the same language as the user's question.`

// calcUsageHint is returned when a calc: message carries no expression.
const calcUsageHint = "Please provide an expression after calc:, for example: calc: 1+2*3"

// Sentinel errors for agent construction.
var (
	ErrModelNil      = errors.New("chat model is required")
	ErrCalculatorNil = errors.New("calculator is required")
)

// ChatModel generates a reply from a system prompt and a user prompt.
type ChatModel interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Response is the agent's answer to one message.
//
// Details depends on Type: *rag.Answer for rag replies, CalcDetails or
// CalcErrorDetails for tool replies, FallbackDetails for fallback replies,
// and nil for direct replies.
type Response struct {
	Reply    string `json:"reply"`
	Type     string `json:"response_type"`
	ToolName string `json:"tool_name,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// CalcDetails reports a successful calculator evaluation.
type CalcDetails struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// CalcErrorDetails reports a failed calculator evaluation.
type CalcErrorDetails struct {
	Expression string `json:"expression"`
	Error      string `json:"error"`
}

// FallbackDetails explains why the agent fell back to an ungrounded reply.
type FallbackDetails struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Stats is a snapshot of the agent's dispatch counters.
type Stats struct {
	AgentType        string     `json:"agent_type"`
	TotalCalls       int64      `json:"total_calls"`
	RAGUsedCount     int64      `json:"rag_used_count"`
	DirectLLMCount   int64      `json:"direct_llm_count"`
	ToolUsedCount    int64      `json:"tool_used_count"`
	RAGPipelineStats *rag.Stats `json:"rag_pipeline_stats,omitempty"`
}

// Agent dispatches messages. Safe for concurrent use.
type Agent struct {
	model      ChatModel
	calculator *tools.Calculator
	pipeline   *rag.Pipeline // nil disables RAG
	logger     log.Logger

	totalCalls     atomic.Int64
	ragUsedCount   atomic.Int64
	directLLMCount atomic.Int64
	toolUsedCount  atomic.Int64
}

// Config contains the parameters for constructing an Agent.
type Config struct {
	Model      ChatModel
	Calculator *tools.Calculator
	Pipeline   *rag.Pipeline // optional
	Logger     log.Logger
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, ErrModelNil
	}
	if cfg.Calculator == nil {
		return nil, ErrCalculatorNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Agent{
		model:      cfg.Model,
		calculator: cfg.Calculator,
		pipeline:   cfg.Pipeline,
		logger:     logger,
	}, nil
}

// HandleMessage routes one message and returns the agent's response.
//
// Routing order: calculator when the message starts with "calc:", the RAG
// pipeline when useRAG is set and a pipeline is configured, direct model
// call otherwise. A pipeline failure falls back to a direct model call
// rather than failing the request.
func (a *Agent) HandleMessage(ctx context.Context, message string, useRAG bool) (*Response, error) {
	a.totalCalls.Add(1)
	text := strings.TrimSpace(message)

	if strings.HasPrefix(strings.ToLower(text), calcPrefix) {
		return a.handleCalc(text), nil
	}

	if useRAG && a.pipeline != nil {
		return a.handleRAG(ctx, text)
	}

	return a.handleDirect(ctx, text)
}

func (a *Agent) handleCalc(text string) *Response {
	a.toolUsedCount.Add(1)

	expression := strings.TrimSpace(text[len(calcPrefix):])
	if expression == "" {
		return &Response{
			Reply:    calcUsageHint,
			Type:     TypeTool,
			ToolName: tools.CalculatorName,
		}
	}

	result, err := a.calculator.Evaluate(expression)
	if err != nil {
		a.logger.Debug("calculator evaluation failed", "expression", expression, "error", err)
		return &Response{
			Reply:    fmt.Sprintf("Calculation failed: %v", err),
			Type:     TypeError,
			ToolName: tools.CalculatorName,
			Details:  CalcErrorDetails{Expression: expression, Error: err.Error()},
		}
	}

	return &Response{
		Reply:    fmt.Sprintf("The result of %s is %s", expression, tools.FormatResult(result)),
		Type:     TypeTool,
		ToolName: tools.CalculatorName,
		Details:  CalcDetails{Expression: expression, Result: result},
	}
}

func (a *Agent) handleRAG(ctx context.Context, text string) (*Response, error) {
	a.ragUsedCount.Add(1)

	answer, err := a.pipeline.Run(ctx, text)
	if err == nil {
		return &Response{
			Reply:   answer.Reply,
			Type:    TypeRAG,
			Details: answer,
		}, nil
	}

	a.logger.Warn("pipeline failed, falling back to direct model call", "error", err)
	a.directLLMCount.Add(1)

	reply, chatErr := a.model.Chat(ctx, systemPrompt, text)
	if chatErr != nil {
		return nil, fmt.Errorf("fallback chat: %w", chatErr)
	}
	return &Response{
		Reply: reply,
		Type:  TypeFallback,
		Details: FallbackDetails{
			Error:   err.Error(),
			Message: "retrieval failed, answered without knowledge-base context",
		},
	}, nil
}

func (a *Agent) handleDirect(ctx context.Context, text string) (*Response, error) {
	a.directLLMCount.Add(1)

	reply, err := a.model.Chat(ctx, systemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &Response{Reply: reply, Type: TypeDirect}, nil
}

// Stats returns a snapshot of the agent counters. The pipeline's own
// counters are nested when RAG is configured.
func (a *Agent) Stats() Stats {
	stats := Stats{
		AgentType:      "rag-agent",
		TotalCalls:     a.totalCalls.Load(),
		RAGUsedCount:   a.ragUsedCount.Load(),
		DirectLLMCount: a.directLLMCount.Load(),
		ToolUsedCount:  a.toolUsedCount.Load(),
	}
	if a.pipeline != nil {
		ps := a.pipeline.Stats()
		stats.RAGPipelineStats = &ps
	}
	return stats
}
