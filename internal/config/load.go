package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from SCRY_ prefixed environment variables, which take
// precedence. The result is validated before it is returned.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path. An empty path searches
// the working directory for config.yaml.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SCRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Engine.Location); err != nil {
		return fmt.Errorf("config validation failed: unknown engine.location %q: %w", cfg.Engine.Location, err)
	}
	return nil
}

// ScheduleLocation returns the time zone used for calendar-day scheduling.
func (c *Config) ScheduleLocation() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl_seconds", 10)
	v.SetDefault("redis.event_channel", "scry:events")

	v.SetDefault("engine.mastery_k", 5.0)
	v.SetDefault("engine.alpha_max", 0.5)
	v.SetDefault("engine.alpha_min", 0.3)
	v.SetDefault("engine.diagnostic.max_questions", 30)
	v.SetDefault("engine.diagnostic.min_questions", 5)
	v.SetDefault("engine.diagnostic.target_confidence", 0.8)
	v.SetDefault("engine.practice.max_questions", 20)
	v.SetDefault("engine.practice.min_questions", 0)
	v.SetDefault("engine.practice.target_confidence", 0.0)
	v.SetDefault("engine.weak_threshold", 0.6)
	v.SetDefault("engine.timeout_minutes", 60)
	v.SetDefault("engine.location", "UTC")
	v.SetDefault("engine.scoring_scale_path", "")
	v.SetDefault("engine.max_sync_batch", 500)
	v.SetDefault("engine.max_consecutive_wrong", 0)
}

// bindEnv registers keys without defaults so AutomaticEnv can populate them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"redis.addr",
		"redis.password",
	} {
		_ = v.BindEnv(key)
	}
}
