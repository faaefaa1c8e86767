package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsForMissingExplicitPath(t *testing.T) {
	t.Setenv("AUTOSCALED_TICK_SECONDS", "")
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err, "a nonexistent explicit path should fail to read, not silently default")
}

func TestValidateRejectsEmptyQueues(t *testing.T) {
	cfg := &Config{TickSeconds: 5, MetricsSource: MetricsSourceConfig{Kind: "redis"}}
	err := validate(cfg)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "queues", cfgErr.Field)
}

func TestValidateRejectsMaxBelowMin(t *testing.T) {
	cfg := &Config{
		TickSeconds:   5,
		MetricsSource: MetricsSourceConfig{Kind: "redis"},
		Queues: []QueueConfig{
			{Connection: "redis", Queue: "default", SLASeconds: 30, MinWorkers: 5, MaxWorkers: 1},
		},
	}
	err := validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsDuplicateQueues(t *testing.T) {
	cfg := &Config{
		TickSeconds:   5,
		MetricsSource: MetricsSourceConfig{Kind: "redis"},
		Queues: []QueueConfig{
			{Connection: "redis", Queue: "default", SLASeconds: 30, MinWorkers: 0, MaxWorkers: 5},
			{Connection: "redis", Queue: "default", SLASeconds: 30, MinWorkers: 0, MaxWorkers: 5},
		},
	}
	err := validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsUnknownMetricsSourceKind(t *testing.T) {
	cfg := &Config{
		TickSeconds:   5,
		MetricsSource: MetricsSourceConfig{Kind: "carrier-pigeon"},
		Queues: []QueueConfig{
			{Connection: "redis", Queue: "default", SLASeconds: 30, MinWorkers: 0, MaxWorkers: 5},
		},
	}
	err := validate(cfg)
	require.Error(t, err)
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{
		TickSeconds:   5,
		MetricsSource: MetricsSourceConfig{Kind: "kafka"},
		Queues: []QueueConfig{
			{Connection: "redis", Queue: "default", SLASeconds: 30, MinWorkers: 1, MaxWorkers: 5},
		},
	}
	assert.NoError(t, validate(cfg))
}
