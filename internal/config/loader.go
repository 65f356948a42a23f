package config

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/pollyhq/ratekeeper/pkg/constants"
	"github.com/pollyhq/ratekeeper/pkg/errors"
	"github.com/pollyhq/ratekeeper/pkg/logger"
)

// Loader reads configuration from file and environment and supports
// watching the file for whitelist/proxy list changes.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(log logger.Logger) *Loader {
	return &Loader{v: viper.New(), log: log.WithComponent("config")}
}

// Load reads configuration from file, environment variables and defaults.
// Missing files are fine; invalid content is a fatal ConfigError.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath("/etc/ratekeeper/")
	l.v.AddConfigPath(".")
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrConfig("failed to read config file").WithCause(err)
		}
	}

	l.v.SetEnvPrefix("RATEKEEPER")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	return l.unmarshal()
}

// Watch re-reads the config file on change and invokes onChange with the
// new configuration. Changes that fail validation are logged and dropped;
// the rule table is fixed at startup, so callers should only apply the
// whitelist and trusted proxy lists from the refreshed config.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			l.log.Warn(context.Background(), "ignoring invalid config change",
				logger.String("file", e.Name), logger.Error(err))
			return
		}
		l.log.Info(context.Background(), "config file changed, applying ip lists",
			logger.String("file", e.Name))
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrConfig("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.read_timeout", 10*time.Second)
	l.v.SetDefault("server.write_timeout", 10*time.Second)
	l.v.SetDefault("server.idle_timeout", 60*time.Second)
	l.v.SetDefault("server.pprof_enabled", false)

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	l.v.SetDefault("tracing.enabled", false)
	l.v.SetDefault("tracing.service_name", "ratekeeper")
	l.v.SetDefault("tracing.sampling_rate", 0.1)

	l.v.SetDefault("store.driver", "redis")
	l.v.SetDefault("store.redis.host", "localhost")
	l.v.SetDefault("store.redis.port", 6379)
	l.v.SetDefault("store.redis.db", 0)
	l.v.SetDefault("store.redis.pool_size", 10)
	l.v.SetDefault("store.redis.min_idle_conns", 2)
	l.v.SetDefault("store.redis.dial_timeout", constants.StoreDialTimeout)
	l.v.SetDefault("store.redis.read_timeout", constants.StoreOpTimeout)
	l.v.SetDefault("store.redis.write_timeout", constants.StoreOpTimeout)
	l.v.SetDefault("store.redis.max_retries", constants.StoreMaxRetries)

	l.v.SetDefault("rate_limit.enabled", true)
	l.v.SetDefault("rate_limit.strict_mode", false)
	l.v.SetDefault("rate_limit.burst.enabled", true)
	l.v.SetDefault("rate_limit.burst.limit", constants.DefaultBurstLimit)
	l.v.SetDefault("rate_limit.burst.window", constants.DefaultBurstWindow)

	l.v.SetDefault("audit.enabled", false)
	l.v.SetDefault("audit.database.driver", "sqlite")
	l.v.SetDefault("audit.database.dsn", "ratekeeper_audit.db")
	l.v.SetDefault("audit.kafka.enabled", false)
	l.v.SetDefault("audit.kafka.topic", "ratekeeper.throttle-events")
	l.v.SetDefault("audit.kafka.batch_timeout", 100*time.Millisecond)
	l.v.SetDefault("audit.kafka.write_timeout", 2*time.Second)
	l.v.SetDefault("audit.kafka.required_acks", 1)
}
