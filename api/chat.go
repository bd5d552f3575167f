package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chidori-ai/chidori/internal/agent"
	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/rag"
)

// maxChatBodySize limits request bodies on the chat endpoint.
const maxChatBodySize = 1 << 20 // 1 MiB

// chatRequest is the POST /agent/chat request body.
// use_rag defaults to true when omitted.
type chatRequest struct {
	Message string `json:"message"`
	UseRAG  *bool  `json:"use_rag"`
}

// chatResponse is the POST /agent/chat response body.
type chatResponse struct {
	Reply        string       `json:"reply"`
	ResponseType string       `json:"response_type"`
	ToolName     string       `json:"tool_name,omitempty"`
	Details      *chatDetails `json:"details,omitempty"`
}

// chatDetails flattens the per-type agent details into one wire shape.
// Only the fields relevant to the response type are populated.
type chatDetails struct {
	Query            string                `json:"query,omitempty"`
	ContextDocuments []rag.ContextDocument `json:"context_documents,omitempty"`
	RetrievedCount   *int                  `json:"retrieved_count,omitempty"`
	UsedContextCount *int                  `json:"used_context_count,omitempty"`
	Error            string                `json:"error,omitempty"`
	Message          string                `json:"message,omitempty"`
	Expression       string                `json:"expression,omitempty"`
	Result           *float64              `json:"result,omitempty"`
}

// agentHandler handles the agent chat and stats endpoints.
type agentHandler struct {
	agent  AgentService
	logger log.Logger
}

// RegisterRoutes registers agent routes on the given mux.
func (h *agentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /agent/chat", h.chat)
	mux.HandleFunc("GET /agent/stats", h.stats)
}

// chat sends one message through the agent and returns its reply.
// Agent failures are reported as a friendly reply with response_type
// "error" rather than a 500, so clients always get a usable answer shape.
func (h *agentHandler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}

	useRAG := true
	if req.UseRAG != nil {
		useRAG = *req.UseRAG
	}

	resp, err := h.agent.HandleMessage(r.Context(), req.Message, useRAG)
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("handling message", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusOK, chatResponse{
			Reply:        fmt.Sprintf("An error occurred while processing the message: %v. Please try again later.", err),
			ResponseType: agent.TypeError,
			Details:      &chatDetails{Error: err.Error()},
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(resp), h.logger)
}

// stats returns the agent dispatch counters.
func (h *agentHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.agent.Stats(), h.logger)
}

// toChatResponse maps the agent's typed details onto the wire shape.
func toChatResponse(resp *agent.Response) chatResponse {
	out := chatResponse{
		Reply:        resp.Reply,
		ResponseType: resp.Type,
		ToolName:     resp.ToolName,
	}

	switch d := resp.Details.(type) {
	case *rag.Answer:
		out.Details = &chatDetails{
			Query:            d.Query,
			ContextDocuments: d.ContextDocuments,
			RetrievedCount:   &d.RetrievedCount,
			UsedContextCount: &d.UsedContextCount,
		}
	case agent.CalcDetails:
		out.Details = &chatDetails{
			Expression: d.Expression,
			Result:     &d.Result,
		}
	case agent.CalcErrorDetails:
		out.Details = &chatDetails{
			Expression: d.Expression,
			Error:      d.Error,
		}
	case agent.FallbackDetails:
		out.Details = &chatDetails{
			Error:   d.Error,
			Message: d.Message,
		}
	}
	return out
}
