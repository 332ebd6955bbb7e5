package logs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/config"
)

func TestProdLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, config.Config{Env: "prod", LogLevel: "info"}, "api-server")

	log.Info("slot reserved", "slot_id", "abc")
	log.Debug("dropped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "slot reserved", line["msg"])
	assert.Equal(t, "api-server", line["service"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "abc", line["slot_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
