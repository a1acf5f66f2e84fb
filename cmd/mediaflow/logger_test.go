package main

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("hidden")
	require.Zero(t, buf.Len())

	logger.Warn("shown", "workflow id", "wf-1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["msg"])
	require.Equal(t, "wf-1", line["workflow id"])

	buf.Reset()
	newLogger("bogus", "text", &buf).Debug("dropped")
	require.Zero(t, buf.Len())
}
