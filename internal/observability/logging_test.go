package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/triage-portal/internal/config"
)

func TestNewLoggerHonoursLevel(t *testing.T) {
	app := config.AppConfig{Name: "triage", Env: "test", Version: "dev"}
	logger, err := NewLogger(config.LoggerConfig{Level: "WARN", Format: "console"}, app)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info must be filtered at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn must be enabled")
	}
}

func TestNewLoggerRejectsBadSettings(t *testing.T) {
	app := config.AppConfig{Name: "triage"}
	if _, err := NewLogger(config.LoggerConfig{Level: "loud"}, app); err == nil {
		t.Fatal("unknown level should fail")
	}
	if _, err := NewLogger(config.LoggerConfig{Level: "info", Format: "xml"}, app); err == nil {
		t.Fatal("unknown format should fail")
	}
	if _, err := NewLogger(config.LoggerConfig{}, app); err != nil {
		t.Fatalf("defaults should build: %v", err)
	}
}
