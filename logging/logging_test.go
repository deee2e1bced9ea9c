package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"silent", silentLevel},
		{"none", silentLevel},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.level), "level %q", tt.level)
	}
}

func TestLogLevelFlag_Set(t *testing.T) {
	for _, value := range ValidLogLevels() {
		flag := &logLevelFlag{value: "info"}
		assert.NoError(t, flag.Set(value))
		assert.Equal(t, value, flag.String())
		assert.True(t, flag.IsSet())
	}
}

func TestLogLevelFlag_SetRejectsUnknownLevel(t *testing.T) {
	for _, value := range []string{"invalid", "none", ""} {
		flag := &logLevelFlag{value: "info"}
		assert.Error(t, flag.Set(value), "value %q", value)
		assert.Equal(t, "info", flag.String())
		assert.False(t, flag.IsSet())
	}
}

func TestLogLevelFlag_Type(t *testing.T) {
	flag := &logLevelFlag{value: "info"}
	assert.Equal(t, "one of [debug|info|warning|error|silent]", flag.Type())
}
