package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader(logger.NewNoopLogger()).Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.RateLimit.StrictMode)
	assert.True(t, cfg.RateLimit.Burst.Enabled)
	assert.Equal(t, 50, cfg.RateLimit.Burst.Limit)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Burst.Window)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RATEKEEPER_SERVER_PORT", "9999")
	t.Setenv("RATEKEEPER_STORE_DRIVER", "memory")

	cfg, err := NewLoader(logger.NewNoopLogger()).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestBuildRulesAppliesOverrides(t *testing.T) {
	cfg := RateLimitConfig{
		Rules: map[string]RuleConfig{
			"polls:create": {Requests: 2, Message: "slow down"},
			"polls:vote":   {Algorithm: "fixed"},
		},
	}

	rules, err := cfg.BuildRules()
	require.NoError(t, err)

	create := rules[models.OpPollsCreate]
	assert.Equal(t, 2, create.Requests)
	assert.Equal(t, 300*time.Second, create.Window)
	assert.Equal(t, "slow down", create.Message)

	vote := rules[models.OpPollsVote]
	assert.Equal(t, models.AlgorithmFixed, vote.Algorithm)
	assert.Equal(t, 10, vote.Requests)

	// Untouched rules keep their defaults.
	assert.Equal(t, 100, rules[models.OpAPIGeneral].Requests)
}

func TestBuildRulesRejectsUnknownOperation(t *testing.T) {
	cfg := RateLimitConfig{
		Rules: map[string]RuleConfig{"polls:destroy": {Requests: 1}},
	}

	_, err := cfg.BuildRules()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestBuildRulesRejectsUnknownAlgorithm(t *testing.T) {
	cfg := RateLimitConfig{
		Rules: map[string]RuleConfig{"polls:create": {Algorithm: "leaky-bucket"}},
	}

	_, err := cfg.BuildRules()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateRejectsMalformedWhitelist(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Whitelist = []string{"10.0.0.0/99"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestValidateRejectsUnknownStoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "memcached"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadBurst(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Burst = BurstConfig{Enabled: true, Limit: 0, Window: 10 * time.Second}
	assert.Error(t, cfg.Validate())

	cfg.RateLimit.Burst = BurstConfig{Enabled: true, Limit: 10, Window: 10 * time.Millisecond}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Kafka.Enabled = true

	assert.Error(t, cfg.Validate())
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "memory"},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Burst:   BurstConfig{Enabled: true, Limit: 50, Window: 10 * time.Second},
		},
		Audit: AuditConfig{Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}},
	}
}
