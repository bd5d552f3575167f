package testutil

import (
	"context"
	"strings"
	"sync"
)

// MockChatModel provides deterministic chat responses for testing.
// It matches the user message against registered patterns (substring,
// case-insensitive) and returns the corresponding response; first match wins.
//
// Thread-safe for concurrent use.
type MockChatModel struct {
	mu       sync.Mutex
	rules    []chatRule
	fallback string
	fail     error
	calls    []ChatCall
}

type chatRule struct {
	pattern  string
	response string
}

// ChatCall records a single call to the mock model.
type ChatCall struct {
	System string
	User   string
}

// NewMockChatModel creates a mock chat model with the given fallback response.
// The fallback is returned when no pattern matches.
func NewMockChatModel(fallback string) *MockChatModel {
	return &MockChatModel{fallback: fallback}
}

// AddResponse registers a pattern-response pair.
func (m *MockChatModel) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, chatRule{pattern: strings.ToLower(pattern), response: response})
}

// FailWith makes every subsequent Chat call return err.
func (m *MockChatModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns a copy of all recorded calls.
func (m *MockChatModel) Calls() []ChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]ChatCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Chat implements the agent's ChatModel interface.
func (m *MockChatModel) Chat(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ChatCall{System: system, User: user})

	if m.fail != nil {
		return "", m.fail
	}

	lower := strings.ToLower(user)
	for _, rule := range m.rules {
		if strings.Contains(lower, rule.pattern) {
			return rule.response, nil
		}
	}
	return m.fallback, nil
}
