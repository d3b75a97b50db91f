package config

import (
	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/store"
	"github.com/marmos91/kvcontainer/pkg/store/dbcache"
)

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TelemetryConfig returns the tracing settings for the given build version.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SampleRate = c.Telemetry.SampleRate
	tc.NodeID = c.Container.OriginNodeID
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}

// ProfilingConfig returns the Pyroscope settings for the given build version.
func (c *Config) ProfilingConfig(version string) telemetry.ProfilingConfig {
	pc := telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    telemetry.DefaultConfig().ServiceName,
		ServiceVersion: telemetry.DefaultConfig().ServiceVersion,
		NodeID:         c.Container.OriginNodeID,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
	if version != "" {
		pc.ServiceVersion = version
	}
	return pc
}

// StoreOptions returns the badger options for every opened store.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		SyncWrites:        c.Store.SyncWrites,
		MemTableSize:      c.Store.MemTableSize.Int64(),
		BlockCacheSize:    c.Store.BlockCacheSize.Int64(),
		IndexCacheSize:    c.Store.IndexCacheSize.Int64(),
		ValueLogFileSize:  c.Store.ValueLogFileSize.Int64(),
		NumVersionsToKeep: c.Store.NumVersionsToKeep,
	}
}

// DBCacheConfig returns the handle cache settings.
func (c *Config) DBCacheConfig() dbcache.Config {
	return dbcache.Config{
		MaxOpenStores: c.Cache.MaxOpenStores,
		LockStripes:   c.Cache.LockStripes,
		Options:       c.StoreOptions(),
	}
}

// ManagerConfig returns the container manager settings.
func (c *Config) ManagerConfig() container.ManagerConfig {
	return container.ManagerConfig{
		StoreOptions:         c.StoreOptions(),
		DefaultSchemaVersion: store.SchemaVersion(c.Container.DefaultSchemaVersion),
		MaxSize:              c.Container.MaxSize.Uint64(),
		OriginNodeID:         c.Container.OriginNodeID,
	}
}

// Verifier returns the descriptor verifier selected by the config.
func (c *Config) Verifier() container.Verifier {
	if c.Container.SkipChecksum {
		return container.NopVerifier{}
	}
	return container.ChecksumVerifier{}
}
