package config

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	RunMigrations   bool   `mapstructure:"run_migrations"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=0"`
}

// AuthConfig contains the identity provider settings. Tokens are issued
// elsewhere; the service only validates them.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// RedisConfig enables the distributed per-user lock and the event publisher.
// An empty Addr keeps both in-process.
type RedisConfig struct {
	Addr           string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db" validate:"gte=0"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds" validate:"gte=0"`
	EventChannel   string `mapstructure:"event_channel"`
}

// ModeConfig holds the default limits for one session mode.
type ModeConfig struct {
	MaxQuestions     int     `mapstructure:"max_questions" validate:"gt=0,lte=100"`
	MinQuestions     int     `mapstructure:"min_questions" validate:"gte=0,ltefield=MaxQuestions"`
	TargetConfidence float64 `mapstructure:"target_confidence" validate:"gte=0,lte=1"`
}

// EngineConfig tunes the mastery model, the session driver and the scheduler.
type EngineConfig struct {
	MasteryK         float64    `mapstructure:"mastery_k" validate:"gt=0"`
	AlphaMax         float64    `mapstructure:"alpha_max" validate:"gt=0,lte=1"`
	AlphaMin         float64    `mapstructure:"alpha_min" validate:"gt=0,ltefield=AlphaMax"`
	Diagnostic       ModeConfig `mapstructure:"diagnostic"`
	Practice         ModeConfig `mapstructure:"practice"`
	WeakThreshold    float64    `mapstructure:"weak_threshold" validate:"gt=0,lte=1"`
	TimeoutMinutes   int        `mapstructure:"timeout_minutes" validate:"gte=0"`
	Location         string     `mapstructure:"location" validate:"required"`
	ScoringScalePath string     `mapstructure:"scoring_scale_path"`
	MaxSyncBatch     int        `mapstructure:"max_sync_batch" validate:"gt=0"`

	// MaxConsecutiveWrong ends a diagnostic after this many misses in a row
	// across skills; zero disables it.
	MaxConsecutiveWrong int `mapstructure:"max_consecutive_wrong" validate:"gte=0"`
}
