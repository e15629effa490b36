package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/closed-ai/internal/config"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, &config.Config{Environment: "production", LogLevel: slog.LevelInfo})

	WithGame(log, "g1").Info("Game created")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Game created", entry["msg"])
	assert.Equal(t, "g1", entry["game_id"])
	assert.Equal(t, "closed-ai", entry["service"])
	assert.NotContains(t, entry, "source")
}

func TestNew_DevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, &config.Config{Environment: "development", LogLevel: slog.LevelDebug})

	log.Debug("Story stream finished", "packets", 3)

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=DEBUG"))
	assert.Contains(t, out, "packets=3")
	assert.Contains(t, out, "source=")
}
