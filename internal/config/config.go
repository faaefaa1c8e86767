// Package config loads the supervisor's configuration via spf13/viper:
// defaults, an optional YAML file, and environment variable overrides,
// validated into a typed Config before the supervisor starts.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/spf13/viper"
)

// ConfigError indicates the loaded configuration failed validation. The
// CLI maps this to exit code 2.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// QueueConfig is one entry of the queues[] array.
type QueueConfig struct {
	Connection string `mapstructure:"connection"`
	Queue      string `mapstructure:"queue"`

	SLASeconds float64 `mapstructure:"sla_seconds"`
	MinWorkers int     `mapstructure:"min_workers"`
	MaxWorkers int     `mapstructure:"max_workers"`

	Strategy string `mapstructure:"strategy"`

	CooldownUpSeconds   float64 `mapstructure:"cooldown_up_seconds"`
	CooldownDownSeconds float64 `mapstructure:"cooldown_down_seconds"`
	HysteresisDelta     int     `mapstructure:"hysteresis_delta"`
	HysteresisFraction  float64 `mapstructure:"hysteresis_fraction"`
	MaxStepUp           int     `mapstructure:"max_step_up"`
	MaxStepDown         int     `mapstructure:"max_step_down"`

	DrainHorizonSeconds     float64 `mapstructure:"drain_horizon_seconds"`
	PredictLookaheadSeconds float64 `mapstructure:"predict_lookahead_seconds"`
	TrendSamples            int     `mapstructure:"trend_samples"`

	WarnFraction   float64 `mapstructure:"warn_fraction"`
	RecoveryFactor float64 `mapstructure:"recovery_factor"`

	// Command is the worker binary + args this queue's ProcessLauncher
	// spawns, e.g. ["php", "artisan", "queue:work", "redis", "--queue=default"].
	Command []string `mapstructure:"command"`
}

// ToDomain converts a loaded QueueConfig into the domain.QueueConfiguration
// the engine, policy pipeline, and SLA tracker operate on.
func (q QueueConfig) ToDomain() domain.QueueConfiguration {
	return domain.QueueConfiguration{
		Connection:              q.Connection,
		Queue:                   q.Queue,
		SLASeconds:              q.SLASeconds,
		MinWorkers:              q.MinWorkers,
		MaxWorkers:              q.MaxWorkers,
		Strategy:                q.Strategy,
		CooldownUpSeconds:       q.CooldownUpSeconds,
		CooldownDownSeconds:     q.CooldownDownSeconds,
		HysteresisDelta:         q.HysteresisDelta,
		HysteresisFraction:      q.HysteresisFraction,
		MaxStepUp:               q.MaxStepUp,
		MaxStepDown:             q.MaxStepDown,
		DrainHorizonSeconds:     q.DrainHorizonSeconds,
		PredictLookaheadSeconds: q.PredictLookaheadSeconds,
		TrendSamples:            q.TrendSamples,
		WarnFraction:            q.WarnFraction,
		RecoveryFactor:          q.RecoveryFactor,
	}
}

// WorkerConfig holds the worker{} block (tries, timeout_seconds,
// sleep_seconds). It is loaded but not read by the launcher: each queue's
// worker command line comes from QueueConfig.Command, and spawns are not
// retried within a tick.
type WorkerConfig struct {
	Tries          int `mapstructure:"tries"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	SleepSeconds   int `mapstructure:"sleep_seconds"`
}

// StrategyDefaultsConfig mirrors the spec's strategy_defaults{} block.
type StrategyDefaultsConfig struct {
	DrainHorizonSeconds     float64 `mapstructure:"drain_horizon_seconds"`
	PredictLookaheadSeconds float64 `mapstructure:"predict_lookahead_seconds"`
	TrendSamples            int     `mapstructure:"trend_samples"`
}

// MetricsSourceConfig selects and configures the C6 MetricsSource.
type MetricsSourceConfig struct {
	Kind string `mapstructure:"kind"` // "redis" or "kafka"

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`
}

// EventSinkConfig selects the optional Kafka EventSink alongside the
// always-on in-memory Bus.
type EventSinkConfig struct {
	KafkaEnabled bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// OutputConfig controls the optional terminal dashboard.
type OutputConfig struct {
	Dashboard bool `mapstructure:"dashboard"`
}

// Config is the complete supervisor configuration.
type Config struct {
	TickSeconds             float64 `mapstructure:"tick_seconds"`
	ShutdownDeadlineSeconds float64 `mapstructure:"shutdown_deadline_seconds"`
	GracePeriodSeconds      float64 `mapstructure:"grace_period_seconds"`
	GlobalMaxWorkers        int     `mapstructure:"global_max_workers"`

	Queues []QueueConfig `mapstructure:"queues"`

	Worker           WorkerConfig           `mapstructure:"worker"`
	StrategyDefaults StrategyDefaultsConfig `mapstructure:"strategy_defaults"`
	MetricsSource    MetricsSourceConfig    `mapstructure:"metrics_source"`
	EventSink        EventSinkConfig        `mapstructure:"event_sink"`
	Output           OutputConfig           `mapstructure:"output"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from configPath (if non-empty), falling back
// to ./config.yaml / ./configs/config.yaml, applies defaults, layers
// environment variable overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("AUTOSCALED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tick_seconds", 5)
	v.SetDefault("shutdown_deadline_seconds", 30)
	v.SetDefault("grace_period_seconds", 10)
	v.SetDefault("global_max_workers", 0) // 0 = no global cap

	v.SetDefault("worker.tries", 3)
	v.SetDefault("worker.timeout_seconds", 30)
	v.SetDefault("worker.sleep_seconds", 1)

	v.SetDefault("strategy_defaults.drain_horizon_seconds", 60)
	v.SetDefault("strategy_defaults.predict_lookahead_seconds", 30)
	v.SetDefault("strategy_defaults.trend_samples", 5)

	v.SetDefault("metrics_source.kind", "redis")
	v.SetDefault("metrics_source.redis_addr", "localhost:6379")

	v.SetDefault("output.dashboard", false)
	v.SetDefault("log_level", "info")
}

func validate(cfg *Config) error {
	if cfg.TickSeconds <= 0 {
		return &ConfigError{Field: "tick_seconds", Msg: "must be positive"}
	}
	if len(cfg.Queues) == 0 {
		return &ConfigError{Field: "queues", Msg: "at least one queue is required"}
	}
	seen := make(map[string]bool, len(cfg.Queues))
	for i, q := range cfg.Queues {
		if q.Connection == "" || q.Queue == "" {
			return &ConfigError{Field: fmt.Sprintf("queues[%d]", i), Msg: "connection and queue are required"}
		}
		key := q.Connection + "/" + q.Queue
		if seen[key] {
			return &ConfigError{Field: fmt.Sprintf("queues[%d]", i), Msg: fmt.Sprintf("duplicate queue %q", key)}
		}
		seen[key] = true
		if q.MaxWorkers < q.MinWorkers {
			return &ConfigError{Field: fmt.Sprintf("queues[%d]", i), Msg: "max_workers must be >= min_workers"}
		}
		if q.MinWorkers < 0 {
			return &ConfigError{Field: fmt.Sprintf("queues[%d]", i), Msg: "min_workers must be >= 0"}
		}
		if q.SLASeconds <= 0 {
			return &ConfigError{Field: fmt.Sprintf("queues[%d]", i), Msg: "sla_seconds must be positive"}
		}
	}
	switch cfg.MetricsSource.Kind {
	case "redis", "kafka":
	default:
		return &ConfigError{Field: "metrics_source.kind", Msg: fmt.Sprintf("unknown kind %q", cfg.MetricsSource.Kind)}
	}
	return nil
}
