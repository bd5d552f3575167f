package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder is a deterministic ai.Embedder for tests.
// Embeddings are derived from a hash of the input text, so the same text
// always embeds to the same unit vector and similar runs are reproducible
// without network access.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	dimensions int

	mu    sync.Mutex
	calls int
	fail  error
}

// NewMockEmbedder creates a mock embedder producing vectors of the given width.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{dimensions: dimensions}
}

// FailWith makes every subsequent Embed call return err.
// Pass nil to restore normal operation.
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns the number of Embed invocations so far.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Name implements ai.Embedder.
func (m *MockEmbedder) Name() string {
	return "mock/embedder"
}

// Register implements ai.Embedder. The mock needs no registry state.
func (m *MockEmbedder) Register(_ api.Registry) {}

// Embed implements ai.Embedder.
func (m *MockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.mu.Lock()
	m.calls++
	fail := m.fail
	m.mu.Unlock()

	if fail != nil {
		return nil, fail
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: m.vectorFor(text),
		})
	}
	return resp, nil
}

// vectorFor deterministically maps text to a unit vector.
func (m *MockEmbedder) vectorFor(text string) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, m.dimensions)
	var norm float64
	for i := range vec {
		// Stretch the 32 hash bytes across the vector by re-hashing the offset
		word := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v := float64(word^uint32(i*2654435761)) / float64(math.MaxUint32)
		vec[i] = float32(v*2 - 1)
		norm += float64(vec[i]) * float64(vec[i])
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
