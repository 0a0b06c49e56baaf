// Package config loads engine, pool and exporter settings through viper.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	dispatch "github.com/ravynsoft/go-dispatch"
	"github.com/ravynsoft/go-dispatch/core"
)

// EnvPrefix prefixes environment overrides, e.g. DISPATCH_POOL_WORKERS.
const EnvPrefix = "DISPATCH"

// Config is the top-level configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// EngineConfig configures the core engine.
type EngineConfig struct {
	// CacheLimit bounds each thread's continuation cache; negative disables it.
	CacheLimit int `mapstructure:"cache_limit"`

	// Instrumentation installs the execution history hook.
	Instrumentation bool `mapstructure:"instrumentation"`
}

// PoolConfig configures the goroutine thread pool.
type PoolConfig struct {
	Workers       int  `mapstructure:"workers"`
	MaxOvercommit int  `mapstructure:"max_overcommit"`
	BindOSThreads bool `mapstructure:"bind_os_threads"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr         string        `mapstructure:"addr"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	pool := dispatch.DefaultPoolConfig()
	return &Config{
		Engine: EngineConfig{
			CacheLimit: core.DefaultCacheLimit,
		},
		Pool: PoolConfig{
			Workers:       pool.Workers,
			MaxOvercommit: pool.MaxOvercommit,
			BindOSThreads: pool.BindOSThreads,
		},
		Logging: LoggingConfig{
			Level: "warning",
		},
		Metrics: MetricsConfig{
			Namespace:    "dispatch",
			PollInterval: time.Second,
		},
	}
}

// SetDefaults registers every key of Default with v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("engine.cache_limit", defaults.Engine.CacheLimit)
	v.SetDefault("engine.instrumentation", defaults.Engine.Instrumentation)

	v.SetDefault("pool.workers", defaults.Pool.Workers)
	v.SetDefault("pool.max_overcommit", defaults.Pool.MaxOvercommit)
	v.SetDefault("pool.bind_os_threads", defaults.Pool.BindOSThreads)

	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", defaults.Metrics.PollInterval)
}

// NewViper returns a viper instance with defaults and DISPATCH_ environment
// overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Logger builds a logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) (*core.Logger, error) {
	level, err := core.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return core.NewLogger(w, level), nil
}

// EngineConfig returns the engine settings. Hooks and metrics are left for
// the caller to install.
func (c *Config) EngineConfig(logger *core.Logger) *core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	cfg.Logger = logger
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	cfg.CacheLimit = c.Engine.CacheLimit
	return cfg
}

// PoolConfig returns the pool settings.
func (c *Config) PoolConfig(logger *core.Logger) dispatch.PoolConfig {
	return dispatch.PoolConfig{
		Workers:       c.Pool.Workers,
		MaxOvercommit: c.Pool.MaxOvercommit,
		BindOSThreads: c.Pool.BindOSThreads,
		Logger:        logger,
	}
}
