package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_WritesEntryLayout(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("api", &buf, slog.LevelDebug)

	lgr.Info("order_placed", "Order placed", "req-1", map[string]interface{}{"order_id": 7})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "api", entry.Service)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "order_placed", entry.Action)
	assert.Equal(t, "Order placed", entry.Message)
	assert.EqualValues(t, 7, entry.Details["order_id"])
	assert.NotEmpty(t, entry.Timestamp)
	assert.Nil(t, entry.Error)
}

func TestLogger_ErrorCarriesMessage(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("relay", &buf, slog.LevelDebug)

	lgr.Error("outbox_dispatch_failed", "Dispatch failed", "", nil, errors.New("broker down"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, "broker down", entries[0].Error.Msg)
	assert.Equal(t, "ERROR", entries[0].Level)
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("api", &buf, slog.LevelInfo)

	lgr.Debug("noise", "dropped", "", nil)
	lgr.Info("kept", "kept", "", nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Action)
}
