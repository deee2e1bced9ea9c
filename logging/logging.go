// Package logging configures the process-wide slog logger for Meridian.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// silentLevel sits far above slog.LevelError so nothing is emitted. CLI
// commands default to it because their stdout is the command result.
const silentLevel = slog.Level(1000)

// levelNames maps accepted level names to slog levels
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
	"silent":  silentLevel,
	"none":    silentLevel,
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to info
// for anything unrecognized
func ParseLogLevel(level string) slog.Level {
	if l, ok := levelNames[level]; ok {
		return l
	}
	return slog.LevelInfo
}

// ValidLogLevels returns the level names accepted on the command line
func ValidLogLevels() []string {
	return []string{"debug", "info", "warning", "error", "silent"}
}

// InitLogging installs the default slog logger writing to stderr. Debug
// level also records source positions, which the orchestrator and drift
// layers lean on when diagnosing worker transitions.
func InitLogging(logLevel string) {
	level := ParseLogLevel(logLevel)

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	slog.SetDefault(slog.New(handler))
}

// LogLevel is the shared --log-level flag value. IsSet distinguishes an
// explicit flag from the config-file default.
var LogLevel = &logLevelFlag{value: "silent"}

type logLevelFlag struct {
	value string
	set   bool
}

func (l *logLevelFlag) Set(value string) error {
	if _, ok := levelNames[value]; !ok || value == "none" {
		return fmt.Errorf("invalid value '%s'. Allowed values: %s",
			value, strings.Join(ValidLogLevels(), ", "))
	}
	l.value = value
	l.set = true
	return nil
}

func (l *logLevelFlag) String() string {
	return l.value
}

func (l *logLevelFlag) Type() string {
	return fmt.Sprintf("one of [%s]", strings.Join(ValidLogLevels(), "|"))
}

// IsSet reports whether the flag was explicitly set on the command line
func (l *logLevelFlag) IsSet() bool {
	return l.set
}
