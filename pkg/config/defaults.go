package config

import (
	"strings"

	"github.com/marmos91/kvcontainer/internal/bytesize"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	"github.com/marmos91/kvcontainer/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//
// Boolean fields whose default is true (store.sync_writes) are seeded by
// GetDefaultConfig and cannot be told apart from an explicit false here.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyStoreDefaults(&cfg.Store)
	applyCacheDefaults(&cfg.Cache)
	applyContainerDefaults(&cfg.Container)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults. Enabled stays
// false unless the config turns it on.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

// applyStoreDefaults fills badger tuning from store.DefaultOptions.
func applyStoreDefaults(cfg *StoreConfig) {
	def := store.DefaultOptions()
	if cfg.MemTableSize == 0 {
		cfg.MemTableSize = bytesize.ByteSize(def.MemTableSize)
	}
	if cfg.BlockCacheSize == 0 {
		cfg.BlockCacheSize = bytesize.ByteSize(def.BlockCacheSize)
	}
	if cfg.ValueLogFileSize == 0 {
		cfg.ValueLogFileSize = bytesize.ByteSize(def.ValueLogFileSize)
	}
	if cfg.NumVersionsToKeep == 0 {
		cfg.NumVersionsToKeep = def.NumVersionsToKeep
	}
}

// applyCacheDefaults sets handle cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxOpenStores == 0 {
		cfg.MaxOpenStores = 1024
	}
	if cfg.LockStripes == 0 {
		cfg.LockStripes = 64
	}
}

// applyContainerDefaults sets container lifecycle defaults.
func applyContainerDefaults(cfg *ContainerConfig) {
	if cfg.DefaultSchemaVersion == "" {
		cfg.DefaultSchemaVersion = string(store.SchemaV3)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 5 * bytesize.GiB
	}
	if cfg.InspectorMode == "" {
		cfg.InspectorMode = "off"
	}
	cfg.InspectorMode = strings.ToLower(cfg.InspectorMode)
	if cfg.LoadConcurrency == 0 {
		cfg.LoadConcurrency = 8
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			SyncWrites: store.DefaultOptions().SyncWrites,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
