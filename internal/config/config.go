// Package config loads and validates the ratekeeper service configuration.
package config

import (
	"time"

	"github.com/pollyhq/ratekeeper/internal/domain/models"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/iputil"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	PprofEnabled bool          `mapstructure:"pprof_enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// StoreConfig selects and configures the counter store driver.
type StoreConfig struct {
	// Driver is "redis" for production or "memory" for local development
	// and tests.
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// RateLimitConfig drives the decision facade.
type RateLimitConfig struct {
	// Enabled is the global escape hatch: when false every check passes
	// unconditionally (local/dev environments).
	Enabled bool `mapstructure:"enabled"`

	// StrictMode inverts the fail-open default: counter-store failures
	// reject instead of allow.
	StrictMode bool `mapstructure:"strict_mode"`

	// Whitelist lists IPs and CIDR ranges that bypass all limits.
	Whitelist []string `mapstructure:"whitelist"`

	// TrustedProxies lists proxy addresses/ranges whose forwarded-for
	// headers may be believed.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	Burst BurstConfig `mapstructure:"burst"`

	// Rules overrides the built-in rule table per operation key. Unknown
	// keys are a startup error.
	Rules map[string]RuleConfig `mapstructure:"rules"`
}

type BurstConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// RuleConfig is the file-level shape of one rule override. Window is in
// seconds, matching the wire-facing rule table.
type RuleConfig struct {
	Requests  int    `mapstructure:"requests"`
	Window    int    `mapstructure:"window"`
	Algorithm string `mapstructure:"algorithm"`
	Message   string `mapstructure:"message"`
}

type AuditConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type AdminConfig struct {
	// JWTSecret signs and verifies admin tokens (HS256).
	JWTSecret string `mapstructure:"jwt_secret"`
}

// BuildRules merges the configured overrides over the built-in table and
// validates every rule. Unknown operation keys and invalid quotas are
// config errors that refuse startup.
func (c *RateLimitConfig) BuildRules() (map[models.Operation]models.Rule, error) {
	rules := models.DefaultRules()

	for key, rc := range c.Rules {
		op, err := models.ParseOperation(key)
		if err != nil {
			return nil, errors.ErrConfig("rate_limit.rules: %v", err)
		}
		rule := rules[op]
		if rc.Requests != 0 {
			rule.Requests = rc.Requests
		}
		if rc.Window != 0 {
			rule.Window = time.Duration(rc.Window) * time.Second
		}
		if rc.Algorithm != "" {
			algo, err := models.ParseAlgorithm(rc.Algorithm)
			if err != nil {
				return nil, errors.ErrConfig("rate_limit.rules[%s]: %v", key, err)
			}
			rule.Algorithm = algo
		}
		if rc.Message != "" {
			rule.Message = rc.Message
		}
		rules[op] = rule
	}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, errors.ErrConfig("rate_limit.rules: %v", err)
		}
	}
	return rules, nil
}

// Validate checks the configuration invariants that must hold before the
// process serves traffic.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "redis", "memory":
	default:
		return errors.ErrConfig("store.driver must be redis or memory, got %q", c.Store.Driver)
	}

	if _, err := c.RateLimit.BuildRules(); err != nil {
		return err
	}
	if _, err := iputil.ParseMatcher(c.RateLimit.Whitelist); err != nil {
		return errors.ErrConfig("rate_limit.whitelist: %v", err)
	}
	if _, err := iputil.ParseMatcher(c.RateLimit.TrustedProxies); err != nil {
		return errors.ErrConfig("rate_limit.trusted_proxies: %v", err)
	}

	if c.RateLimit.Burst.Enabled {
		if c.RateLimit.Burst.Limit < 1 {
			return errors.ErrConfig("rate_limit.burst.limit must be >= 1, got %d", c.RateLimit.Burst.Limit)
		}
		if c.RateLimit.Burst.Window < time.Second {
			return errors.ErrConfig("rate_limit.burst.window must be >= 1s, got %s", c.RateLimit.Burst.Window)
		}
	}

	if c.Audit.Enabled {
		switch c.Audit.Database.Driver {
		case "sqlite", "postgres":
		default:
			return errors.ErrConfig("audit.database.driver must be sqlite or postgres, got %q", c.Audit.Database.Driver)
		}
	}
	if c.Audit.Kafka.Enabled && len(c.Audit.Kafka.Brokers) == 0 {
		return errors.ErrConfig("audit.kafka.brokers must not be empty when kafka is enabled")
	}

	return nil
}
