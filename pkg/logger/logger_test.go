package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: "json"}).
		Named("progression").
		With(Component("ledger"))

	log.Debug("dropped")
	log.Info("xp granted", UserID("u1"), XPAmount(50), LevelNumber(2), Err(nil))
	log.Warn("grant failed", Err(errors.New("boom")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "xp granted", entries[0]["message"])
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, "progression", entries[0]["logger"])
	assert.Equal(t, "ledger", entries[0]["component"])
	assert.Equal(t, "u1", entries[0]["user_id"])
	assert.EqualValues(t, 50, entries[0]["xp_amount"])
	assert.EqualValues(t, 2, entries[0]["xp_level"])
	assert.NotContains(t, entries[0], "error")
	assert.NotEmpty(t, entries[0]["timestamp"])

	assert.Equal(t, "boom", entries[1]["error"])
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("nothing happens", GoalID("g1"))
	assert.NoError(t, log.Sync())
}
