package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{in: "debug", want: LogLevelDebug},
		{in: "INFO", want: LogLevelInfo},
		{in: "", want: LogLevelInfo},
		{in: "warning", want: LogLevelWarn},
		{in: " error ", want: LogLevelError},
		{in: "loud", want: LogLevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:     LogLevelInfo,
		Format:    "json",
		Output:    &buf,
		Component: "server",
	})

	logger.Debug("hidden")
	With(logger, "invocation_id", "inv-1").Info("engine.invocation.start", "agent", "support")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "engine.invocation.start", entry["msg"])
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "inv-1", entry["invocation_id"])
	assert.Equal(t, "support", entry["agent"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	logger.Info("skipped")
	logger.Warn("router.unknown_agent", "agent", "ghost")

	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), "msg=router.unknown_agent")
	assert.Contains(t, buf.String(), "agent=ghost")
}

func TestWith_NoOpPassthrough(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.Equal(t, l, With(l, "k", "v"))
}
