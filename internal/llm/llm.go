// Package llm wraps Genkit text generation behind a small chat interface.
//
// The package provides two implementations: Client, which calls a configured
// Genkit model, and Unconfigured, which stands in when no provider credentials
// are available so the rest of the service keeps working in degraded mode.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/chidori-ai/chidori/internal/log"
)

const (
	// generateTimeout bounds a single model call.
	generateTimeout = 60 * time.Second

	// emptyResponseMessage is returned when the model produces no text.
	emptyResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// ErrGenkitNil indicates the Genkit instance was not provided.
var ErrGenkitNil = errors.New("genkit instance is required")

// Config contains the parameters for constructing a Client.
type Config struct {
	Genkit      *genkit.Genkit
	ModelName   string // Provider-qualified model name (e.g., "googleai/gemini-2.5-flash")
	Temperature float64
	MaxTokens   int
	Logger      log.Logger
}

// Client generates chat completions through Genkit.
//
// All configuration values are captured immutably at construction time
// to ensure thread-safe concurrent access.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	maxTokens   int
	logger      log.Logger
}

// NewClient creates a chat client backed by a Genkit model.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, ErrGenkitNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Chat sends a single-turn prompt to the model and returns its text reply.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithPrompt("%s", user),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		}),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem("%s", system))
	}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	start := time.Now()
	response, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text := strings.TrimSpace(response.Text())
	c.logger.Debug("chat completion",
		"model", c.modelName,
		"duration", time.Since(start),
		"reply_length", len(text))

	if text == "" {
		return emptyResponseMessage, nil
	}
	return text, nil
}

// Unconfigured is a chat model used when no provider API key is set.
// It always succeeds with a fixed notice so the HTTP surface stays up
// and callers can see exactly what is missing.
type Unconfigured struct {
	keyName string
}

// NewUnconfigured creates a placeholder model that names the missing
// environment variable in every reply.
func NewUnconfigured(keyName string) *Unconfigured {
	return &Unconfigured{keyName: keyName}
}

// Chat returns the degraded-mode notice. It never fails.
func (u *Unconfigured) Chat(_ context.Context, _, user string) (string, error) {
	return fmt.Sprintf(
		"[placeholder reply] The language model is not configured (set %s to enable it). You said: %s",
		u.keyName, user), nil
}
