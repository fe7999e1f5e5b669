package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hts/authsvc"
	"github.com/hts/authsvc/internal/events"
)

// Config is the resolved process configuration: listeners, backing
// services and the engine tuning passed to authsvc.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	LogLevel  slog.Level
	LogFormat string

	// DatabaseURL selects the Postgres account store. When empty the
	// service runs on the in-process store, which is only fit for local use.
	DatabaseURL string
	MaxDBConns  int
	RedisURL    string

	KafkaBrokers         []string
	KafkaGroupID         string
	CreatedTopic         string
	DeletedTopic         string
	ConsumerPollInterval time.Duration

	// PersistLoginHistory routes audit events to the login_history table
	// instead of the log.
	PersistLoginHistory bool

	Engine authsvc.Config
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID        string `yaml:"id"`
		HTTPPort  int    `yaml:"http_port"`
		GRPCPort  int    `yaml:"grpc_port"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		MaxDBConns   int      `yaml:"max_db_conns"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Lifecycle struct {
		GroupID      string        `yaml:"group_id"`
		CreatedTopic string        `yaml:"created_topic"`
		DeletedTopic string        `yaml:"deleted_topic"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"lifecycle"`
	Auth struct {
		SessionTTL       time.Duration `yaml:"session_ttl"`
		LockoutThreshold int           `yaml:"lockout_threshold"`
		LockoutDuration  time.Duration `yaml:"lockout_duration"`
		BcryptCost       int           `yaml:"bcrypt_cost"`
		UpgradeOnLogin   *bool         `yaml:"upgrade_on_login"`
		StoreTimeout     time.Duration `yaml:"store_timeout"`
		MaxConcurrency   int           `yaml:"max_concurrency"`
	} `yaml:"auth"`
	Audit struct {
		Enabled        *bool `yaml:"enabled"`
		BufferSize     int   `yaml:"buffer_size"`
		Workers        int   `yaml:"workers"`
		PersistHistory bool  `yaml:"persist_history"`
	} `yaml:"audit"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (a missing file is not an error), then environment.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "authsvc",
		HTTPPort:             8080,
		GRPCPort:             9090,
		LogLevel:             slog.LevelInfo,
		LogFormat:            "json",
		MaxDBConns:           20,
		KafkaGroupID:         "authsvc-account-lifecycle",
		CreatedTopic:         events.DefaultCreatedTopic,
		DeletedTopic:         events.DefaultDeletedTopic,
		ConsumerPollInterval: time.Second,
		Engine:               authsvc.DefaultConfig(),
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := applyFile(&cfg, raw); err != nil {
			return Config{}, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg)

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.HTTPPort <= 0 || cfg.GRPCPort <= 0 {
		return Config{}, fmt.Errorf("http and grpc ports must be positive")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.LogLevel != "" {
		level, err := parseLevel(f.Service.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if f.Service.LogFormat != "" {
		cfg.LogFormat = f.Service.LogFormat
	}

	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}

	if f.Lifecycle.GroupID != "" {
		cfg.KafkaGroupID = f.Lifecycle.GroupID
	}
	if f.Lifecycle.CreatedTopic != "" {
		cfg.CreatedTopic = f.Lifecycle.CreatedTopic
	}
	if f.Lifecycle.DeletedTopic != "" {
		cfg.DeletedTopic = f.Lifecycle.DeletedTopic
	}
	if f.Lifecycle.PollInterval > 0 {
		cfg.ConsumerPollInterval = f.Lifecycle.PollInterval
	}
	if f.Lifecycle.MaxAttempts > 0 {
		cfg.Engine.Lifecycle.MaxAttempts = f.Lifecycle.MaxAttempts
	}
	if f.Lifecycle.RetryBackoff > 0 {
		cfg.Engine.Lifecycle.RetryBackoff = f.Lifecycle.RetryBackoff
	}

	if f.Auth.SessionTTL > 0 {
		cfg.Engine.Session.TTL = f.Auth.SessionTTL
	}
	if f.Auth.LockoutThreshold > 0 {
		cfg.Engine.Lockout.Threshold = f.Auth.LockoutThreshold
	}
	if f.Auth.LockoutDuration > 0 {
		cfg.Engine.Lockout.Duration = f.Auth.LockoutDuration
	}
	if f.Auth.BcryptCost > 0 {
		cfg.Engine.Password.BcryptCost = f.Auth.BcryptCost
	}
	if f.Auth.UpgradeOnLogin != nil {
		cfg.Engine.Password.UpgradeOnLogin = *f.Auth.UpgradeOnLogin
	}
	if f.Auth.StoreTimeout > 0 {
		cfg.Engine.Database.StoreTimeout = f.Auth.StoreTimeout
	}
	if f.Auth.MaxConcurrency > 0 {
		cfg.Engine.Database.MaxConcurrency = f.Auth.MaxConcurrency
	}

	if f.Audit.Enabled != nil {
		cfg.Engine.Audit.Enabled = *f.Audit.Enabled
	}
	if f.Audit.BufferSize > 0 {
		cfg.Engine.Audit.BufferSize = f.Audit.BufferSize
	}
	if f.Audit.Workers > 0 {
		cfg.Engine.Audit.Workers = f.Audit.Workers
	}
	cfg.PersistLoginHistory = f.Audit.PersistHistory
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envOrDefault("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.CreatedTopic = envOrDefault("KAFKA_CREATED_TOPIC", cfg.CreatedTopic)
	cfg.DeletedTopic = envOrDefault("KAFKA_DELETED_TOPIC", cfg.DeletedTopic)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = envInt("DB_MAX_CONNS", cfg.MaxDBConns)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := parseLevel(raw); err == nil {
			cfg.LogLevel = level
		}
	}
	cfg.PersistLoginHistory = envBool("AUDIT_PERSIST_HISTORY", cfg.PersistLoginHistory)

	engine := &cfg.Engine
	engine.Session.TTL = time.Duration(envInt("SESSION_TTL_SECONDS", int(engine.Session.TTL.Seconds()))) * time.Second
	engine.Lockout.Threshold = envInt("LOCKOUT_THRESHOLD", engine.Lockout.Threshold)
	engine.Lockout.Duration = time.Duration(envInt("LOCKOUT_DURATION_SECONDS", int(engine.Lockout.Duration.Seconds()))) * time.Second
	engine.Password.BcryptCost = envInt("BCRYPT_COST", engine.Password.BcryptCost)
	engine.Audit.Enabled = envBool("AUDIT_ENABLED", engine.Audit.Enabled)
	engine.Lifecycle.MaxAttempts = envInt("LIFECYCLE_MAX_ATTEMPTS", engine.Lifecycle.MaxAttempts)
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", raw, err)
	}
	return level, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or unparsable values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV splits a comma-separated variable and drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
