package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_WritesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info("Participant joined", "room_id", "room-42", "error", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "Participant joined", line["message"])
	require.Equal(t, "room-42", line["room_id"])
	require.Equal(t, "boom", line["error"])
	require.Equal(t, "info", line["level"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Debug("hidden")
	log.Info("hidden too")
	require.Zero(t, buf.Len())

	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestLogger_OddArgumentsAndWith(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf).With("conn_id", "c1")

	log.Debug("dangling", "key")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "c1", line["conn_id"])
	require.Equal(t, "(MISSING)", line["key"])
}
