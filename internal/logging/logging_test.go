package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FieldsAndZone(t *testing.T) {
	var buf bytes.Buffer
	loc := time.FixedZone("WIB", 7*60*60)

	log := Component(New(&buf, "info", loc), "storage")
	log.Info().Str("event", "ping").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "storage", entry["component"])
	assert.Equal(t, "ping", entry["event"])
	assert.Equal(t, "hello", entry["msg"])

	ts, ok := entry["ts"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	require.NoError(t, err)
	_, offset := parsed.Zone()
	assert.Equal(t, 7*60*60, offset)
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer

	log := New(&buf, "warn", time.UTC)
	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	log := New(&bytes.Buffer{}, "chatty", nil)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
