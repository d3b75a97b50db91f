package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/kvcontainer/internal/logger"
	"github.com/marmos91/kvcontainer/internal/telemetry"
	"github.com/marmos91/kvcontainer/pkg/config"
	"github.com/marmos91/kvcontainer/pkg/container"
	"github.com/marmos91/kvcontainer/pkg/container/inspector"
	"github.com/marmos91/kvcontainer/pkg/metrics"
	"github.com/marmos91/kvcontainer/pkg/metrics/prometheus"
	"github.com/marmos91/kvcontainer/pkg/store/dbcache"
)

// loadConfig loads the --config file, or the default location when it
// exists. Without any file the built-in defaults apply.
func loadConfig() (*config.Config, error) {
	if GetConfigFile() == "" && !config.DefaultConfigExists() {
		return config.Load("")
	}
	return config.MustLoad(GetConfigFile())
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// requireVolume returns the --volume flag or an error when it is unset.
func requireVolume() (string, error) {
	if volumeRoot == "" {
		return "", errors.New("no volume given: use --volume or set KVCONTAINER_VOLUME")
	}
	return volumeRoot, nil
}

// session holds the runtime shared by commands that touch a volume.
type session struct {
	cfg       *config.Config
	volume    string
	cache     *dbcache.Cache
	manager   *container.Manager
	inspector *inspector.MetadataInspector

	telemetryShutdown func(context.Context) error
	profilingShutdown func() error
}

// openSession loads the config and wires logging, tracing, metrics, the
// store handle cache and the container manager. The caller must Close it.
func openSession(ctx context.Context) (*session, error) {
	volume, err := requireVolume()
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	tc := cfg.TelemetryConfig(Version)
	tc.Volume = volume
	shutdown, err := telemetry.Init(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	pc := cfg.ProfilingConfig(Version)
	pc.Volume = volume
	profilingShutdown, err := telemetry.InitProfiling(pc)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Debug("Profiling enabled",
			"endpoint", pc.Endpoint, "profile_types", pc.ProfileTypes)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	mode, err := inspector.ParseMode(cfg.Container.InspectorMode)
	if err != nil {
		_ = profilingShutdown()
		_ = shutdown(ctx)
		return nil, err
	}
	insp := inspector.New(mode)

	cache := dbcache.New(cfg.DBCacheConfig(), dbcache.WithMetrics(prometheus.NewStoreCacheMetrics()))
	manager := container.NewManager(cfg.ManagerConfig(), cache,
		container.WithVerifier(cfg.Verifier()),
		container.WithInspector(insp),
		container.WithMetrics(prometheus.NewContainerMetrics()))

	logger.Debug("Session opened",
		"volume", volume,
		"schema", cfg.Container.DefaultSchemaVersion,
		"inspector", string(insp.Mode()),
		"metrics", cfg.Metrics.Enabled,
		"telemetry", telemetry.IsEnabled(),
		"profiling", telemetry.IsProfilingEnabled())

	return &session{
		cfg:               cfg,
		volume:            volume,
		cache:             cache,
		manager:           manager,
		inspector:         insp,
		telemetryShutdown: shutdown,
		profilingShutdown: profilingShutdown,
	}, nil
}

// Close stops every cached store, flushes traces and stops the profiler.
func (s *session) Close(ctx context.Context) error {
	cacheErr := s.cache.Close()
	if err := s.profilingShutdown(); err != nil {
		logger.Error("profiling shutdown error", logger.KeyError, err)
	}
	if err := s.telemetryShutdown(ctx); err != nil {
		logger.Error("telemetry shutdown error", logger.KeyError, err)
	}
	return cacheErr
}

// withSession runs fn inside an opened session.
func withSession(ctx context.Context, fn func(s *session) error) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	fnErr := fn(s)
	if err := s.Close(ctx); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
