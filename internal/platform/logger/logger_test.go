package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"cradle/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json respects level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.Log{Level: "warn", Format: "json"})
		log.Info("hidden")
		log.Warn("shown", "kind", "activity")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"kind":"activity"`)
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, config.Log{Format: "text"}).Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
		assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	})
}
