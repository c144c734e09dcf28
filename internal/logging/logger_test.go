package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{" error ", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestParseFormatter(t *testing.T) {
	assert.Equal(t, log.JSONFormatter, ParseFormatter("json"))
	assert.Equal(t, log.LogfmtFormatter, ParseFormatter("LOGFMT"))
	assert.Equal(t, log.TextFormatter, ParseFormatter("text"))
	assert.Equal(t, log.TextFormatter, ParseFormatter("pretty"))
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Formatter = log.JSONFormatter
	opts.ReportTimestamp = false

	logger := New(&buf, opts)
	logger.Info("connected", "store", "mongo")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "mongo", entry["store"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Level = log.WarnLevel

	logger := New(&buf, opts)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.Contains(buf.String(), "shown"))
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing to see")
	assert.Equal(t, log.FatalLevel, logger.GetLevel())
}
