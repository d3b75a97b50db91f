package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Fatalf("Expected valid config, got error: %v", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("Expected error for nil config")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("Expected error to name logging.level, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidSchemaVersion(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Container.DefaultSchemaVersion = "4"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown schema version")
	}
	if !strings.Contains(err.Error(), "container.default_schema_version") {
		t.Errorf("Expected error to name container.default_schema_version, got: %v", err)
	}
}

func TestValidate_InvalidOriginNodeID(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Container.OriginNodeID = "not-a-uuid"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for malformed origin node id")
	}
}

func TestValidate_LoadConcurrencyBounds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Container.LoadConcurrency = -1

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for negative load concurrency")
	}
}

func TestValidate_StoreSizes(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.MemTableSize = 1024

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for tiny memtable")
	}
	if !strings.Contains(err.Error(), "store.memtable_size") {
		t.Errorf("Expected error to name store.memtable_size, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry.endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_Profiling(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.Enabled = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected default profiling settings to validate, got: %v", err)
	}

	cfg.Telemetry.Profiling.Endpoint = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "telemetry.profiling.endpoint") {
		t.Errorf("Expected error about profiling endpoint, got: %v", err)
	}

	cfg = GetDefaultConfig()
	cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "heap") {
		t.Errorf("Expected error about unknown profile type, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Validation accepts both cases and leaves the value as-is.
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
