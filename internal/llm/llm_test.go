package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresGenkit(t *testing.T) {
	_, err := NewClient(Config{ModelName: "googleai/gemini-2.5-flash"})
	require.ErrorIs(t, err, ErrGenkitNil)
}

func TestUnconfigured_Chat(t *testing.T) {
	model := NewUnconfigured("GEMINI_API_KEY")

	reply, err := model.Chat(context.Background(), "You are helpful.", "hello there")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(reply, "[placeholder reply]"))
	assert.Contains(t, reply, "GEMINI_API_KEY")
	assert.Contains(t, reply, "hello there")
}
