package logging

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pverheul/tactus/config"
)

func TestSetupDefaultsToInfoJSON(t *testing.T) {
	logger, cleanup, err := Setup(config.LoggingConfig{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer cleanup()
	if got := logger.GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("default level = %v, want info", got)
	}
}

func TestSetupParsesLevel(t *testing.T) {
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "Debug"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer cleanup()
	if got := logger.GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("level = %v, want debug", got)
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "chatty"})
	if err == nil || !strings.Contains(err.Error(), "parse log level") {
		t.Fatalf("expected a level error, got %v", err)
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Format: "xml"})
	if err == nil || !strings.Contains(err.Error(), "unknown log format") {
		t.Fatalf("expected a format error, got %v", err)
	}
}

func TestSetupRequiresLokiURL(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}})
	if err == nil || !strings.Contains(err.Error(), "loki url is required") {
		t.Fatalf("expected a loki url error, got %v", err)
	}
}
