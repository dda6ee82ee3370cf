package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Arbitration ArbitrationConfig
	Sessions    SessionConfig
	Relay       RelayConfig
	SideEffects SideEffectConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ArbitrationConfig tunes the slot arbitration engine.
type ArbitrationConfig struct {
	// DefaultLocationID is returned by location inference when a trainer
	// has no usable assignment history. Views always receive a location.
	DefaultLocationID string
}

// SessionConfig governs the admin session coordinator.
type SessionConfig struct {
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration
}

// RelayConfig governs the inter-view command relay.
type RelayConfig struct {
	PollInterval time.Duration
	CommandTTL   time.Duration
}

// SideEffectConfig tunes the worker pool that applies exception side
// effects (assignment removal, command emission, notification).
type SideEffectConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Arbitration = ArbitrationConfig{
		DefaultLocationID: v.GetString("ARBITRATION_DEFAULT_LOCATION_ID"),
	}

	cfg.Sessions = SessionConfig{
		HeartbeatTimeout: parseDuration(v.GetString("SESSION_HEARTBEAT_TIMEOUT"), 60*time.Second),
		SweepInterval:    parseDuration(v.GetString("SESSION_SWEEP_INTERVAL"), 30*time.Second),
	}

	cfg.Relay = RelayConfig{
		PollInterval: parseDuration(v.GetString("RELAY_POLL_INTERVAL"), 500*time.Millisecond),
		CommandTTL:   parseDuration(v.GetString("RELAY_COMMAND_TTL"), 5*time.Second),
	}

	cfg.SideEffects = SideEffectConfig{
		WorkerConcurrency: v.GetInt("SIDE_EFFECT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("SIDE_EFFECT_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("SIDE_EFFECT_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "trainer_planning")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ARBITRATION_DEFAULT_LOCATION_ID", "")

	v.SetDefault("SESSION_HEARTBEAT_TIMEOUT", "60s")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "30s")

	v.SetDefault("RELAY_POLL_INTERVAL", "500ms")
	v.SetDefault("RELAY_COMMAND_TTL", "5s")

	v.SetDefault("SIDE_EFFECT_WORKER_CONCURRENCY", 1)
	v.SetDefault("SIDE_EFFECT_WORKER_RETRIES", 3)
	v.SetDefault("SIDE_EFFECT_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
