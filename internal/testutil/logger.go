package testutil

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/chidori-ai/chidori/internal/log"
)

// CaptureLogger returns a logger writing to an in-memory buffer so tests can
// assert on log output.
func CaptureLogger(t *testing.T) (log.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, log.Config{Level: slog.LevelDebug})
	return logger, &buf
}
