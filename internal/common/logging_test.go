package common

import (
	"bytes"
	"testing"
)

func TestNewSilentLogger(t *testing.T) {
	logger := NewSilentLogger()
	if logger == nil {
		t.Fatal("nil logger")
	}
	// must not panic and must not touch stdout/stderr
	logger.Info().Str("key", "value").Msg("silent")
	logger.Error().Msg("also silent")
}

func TestNewLoggerFromConfig_Defaults(t *testing.T) {
	logger := NewLoggerFromConfig(LoggingConfig{})
	if logger == nil {
		t.Fatal("nil logger")
	}
	logger.Debug().Msg("below default info level")
}

func TestNewLoggerWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("debug", &buf)
	if logger == nil {
		t.Fatal("nil logger")
	}
	logger.Info().Str("tool", "get_orders").Msg("dispatch")
}

func TestWithCorrelationId(t *testing.T) {
	logger := NewSilentLogger().WithCorrelationId("req-123")
	if logger == nil {
		t.Fatal("nil logger")
	}
	logger.Info().Msg("correlated")
}

func TestGetFullVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("version empty")
	}
	full := GetFullVersion()
	if full == "" {
		t.Error("full version empty")
	}
}
