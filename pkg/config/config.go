package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/kvcontainer/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "KVCONTAINER"

// Config represents the kvcontainer node configuration.
//
// This structure captures the static configuration of a datanode's
// container storage:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics collection
//   - Store tuning (badger options for every opened store)
//   - Handle cache bounds
//   - Container lifecycle behavior (verification, inspector, startup load)
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (KVCONTAINER_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store tunes the badger instance behind every container store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Cache bounds the handle cache of open stores
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Container controls container lifecycle operations
	Container ContainerConfig `mapstructure:"container" yaml:"container"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling. Profiles are
// tagged with the origin node id and the volume being served.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true,omitempty,url" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_space", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// StoreConfig tunes the badger instance behind each container store.
type StoreConfig struct {
	// SyncWrites makes every commit fsync before returning.
	// Default: true
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`

	// MemTableSize is the size of each memtable
	// Supports human-readable formats: "16MiB", "64MB"
	// Default: 16MiB
	MemTableSize bytesize.ByteSize `mapstructure:"memtable_size" validate:"gte=1048576" yaml:"memtable_size"`

	// BlockCacheSize is the block cache size per store. Zero disables it.
	// Default: 32MiB
	BlockCacheSize bytesize.ByteSize `mapstructure:"block_cache_size" yaml:"block_cache_size"`

	// IndexCacheSize is the index cache size per store. Zero keeps indices in memory.
	IndexCacheSize bytesize.ByteSize `mapstructure:"index_cache_size" yaml:"index_cache_size"`

	// ValueLogFileSize is the maximum size of one value log file
	// Default: 64MiB
	ValueLogFileSize bytesize.ByteSize `mapstructure:"value_log_file_size" validate:"gte=1048576" yaml:"value_log_file_size"`

	// NumVersionsToKeep is how many versions of each key badger retains
	// Default: 1
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep" validate:"gte=1" yaml:"num_versions_to_keep"`
}

// CacheConfig bounds the handle cache.
type CacheConfig struct {
	// MaxOpenStores is the number of cached stores kept open at once.
	// Zero means unbounded.
	// Default: 1024
	MaxOpenStores int `mapstructure:"max_open_stores" validate:"gte=0" yaml:"max_open_stores"`

	// LockStripes is the number of per-path lock stripes.
	// Default: 64
	LockStripes int `mapstructure:"lock_stripes" validate:"gte=1" yaml:"lock_stripes"`
}

// ContainerConfig controls container lifecycle operations.
type ContainerConfig struct {
	// DefaultSchemaVersion is the store layout of newly created containers.
	// Valid values: 1, 2, 3
	// Default: 3
	DefaultSchemaVersion string `mapstructure:"default_schema_version" validate:"required,oneof=1 2 3" yaml:"default_schema_version"`

	// MaxSize is the capacity recorded in new container descriptors.
	// Default: 5GiB
	MaxSize bytesize.ByteSize `mapstructure:"max_size" validate:"gt=0" yaml:"max_size"`

	// OriginNodeID identifies this node in new container descriptors.
	// Generated by 'kvcontainer init'.
	OriginNodeID string `mapstructure:"origin_node_id" validate:"omitempty,uuid" yaml:"origin_node_id,omitempty"`

	// SkipChecksum disables descriptor checksum verification on load.
	SkipChecksum bool `mapstructure:"skip_checksum" yaml:"skip_checksum"`

	// InspectorMode runs the metadata inspector after every reconcile.
	// Valid values: off, inspect, repair. KVCONTAINER_INSPECTOR overrides it.
	// Default: off
	InspectorMode string `mapstructure:"inspector_mode" validate:"required,oneof=off inspect repair" yaml:"inspector_mode"`

	// LoadConcurrency is the number of containers loaded in parallel at startup.
	// Default: 8
	LoadConcurrency int `mapstructure:"load_concurrency" validate:"gte=1,lte=1024" yaml:"load_concurrency"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (KVCONTAINER_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error: defaults and environment
// overrides are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// Unlike Load, it requires the configuration file to exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  kvcontainer init\n\n"+
				"Or specify a custom config file:\n"+
				"  kvcontainer <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  kvcontainer init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with defaults, environment variables and
// config file settings.
//
// Defaults are merged in first so every key is known to viper; otherwise
// AutomaticEnv would not apply to keys missing from the file.
func setupViper(v *viper.Viper, configPath string) error {
	defaults, err := defaultsMap()
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	// Example: KVCONTAINER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/kvcontainer/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
	}
	return nil
}

// defaultsMap renders GetDefaultConfig as a nested map keyed like the file.
func defaultsMap() (map[string]any, error) {
	buf, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return m, nil
}

// readConfigFile merges the configuration file over the defaults if it
// exists. It reports whether a file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use human-readable
// sizes like "1GiB", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration, e.g. "30s", "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "kvcontainer")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "kvcontainer")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
