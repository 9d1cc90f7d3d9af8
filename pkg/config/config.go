package config

import (
	"errors"
	"io/fs"
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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Query      QueryConfig
	Attendance AttendanceConfig
	Sync       SyncConfig
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

// RedisConfig points at the preference store. Preferences degrade to defaults when it is unreachable.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	Timeout       time.Duration
	PreferenceTTL time.Duration
}

// JWTConfig carries the verification secret shared with the identity service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QueryConfig tunes the client-side query cache.
type QueryConfig struct {
	StaleTime      time.Duration
	CacheTime      time.Duration
	Retry          int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	FetchTimeout   time.Duration
	GCInterval     time.Duration
}

// AttendanceConfig governs dashboard selections.
type AttendanceConfig struct {
	LowThreshold int
	SummaryLimit int
}

// SyncConfig configures the background attendance percentage sync workers.
type SyncConfig struct {
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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

		Timeout:       parseDuration(v.GetString("REDIS_TIMEOUT"), 3*time.Second),
		PreferenceTTL: parseDuration(v.GetString("PREFERENCE_TTL"), 0),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Query = QueryConfig{
		StaleTime:      parseDuration(v.GetString("QUERY_STALE_TIME"), 5*time.Minute),
		CacheTime:      parseDuration(v.GetString("QUERY_CACHE_TIME"), 10*time.Minute),
		Retry:          v.GetInt("QUERY_RETRY"),
		RetryBaseDelay: parseDuration(v.GetString("QUERY_RETRY_BASE_DELAY"), time.Second),
		RetryMaxDelay:  parseDuration(v.GetString("QUERY_RETRY_MAX_DELAY"), 30*time.Second),
		FetchTimeout:   parseDuration(v.GetString("QUERY_FETCH_TIMEOUT"), 15*time.Second),
		GCInterval:     parseDuration(v.GetString("QUERY_GC_INTERVAL"), time.Minute),
	}

	cfg.Attendance = AttendanceConfig{
		LowThreshold: v.GetInt("ATTENDANCE_LOW_THRESHOLD"),
		SummaryLimit: v.GetInt("ATTENDANCE_SUMMARY_LIMIT"),
	}

	cfg.Sync = SyncConfig{
		WorkerConcurrency: v.GetInt("SYNC_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("SYNC_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("SYNC_RETRY_DELAY"), 2*time.Second),
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
	v.SetDefault("DB_NAME", "coaching_console")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", "3s")
	v.SetDefault("PREFERENCE_TTL", "")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QUERY_STALE_TIME", "5m")
	v.SetDefault("QUERY_CACHE_TIME", "10m")
	v.SetDefault("QUERY_RETRY", 3)
	v.SetDefault("QUERY_RETRY_BASE_DELAY", "1s")
	v.SetDefault("QUERY_RETRY_MAX_DELAY", "30s")
	v.SetDefault("QUERY_FETCH_TIMEOUT", "15s")
	v.SetDefault("QUERY_GC_INTERVAL", "1m")

	v.SetDefault("ATTENDANCE_LOW_THRESHOLD", 75)
	v.SetDefault("ATTENDANCE_SUMMARY_LIMIT", 5)

	v.SetDefault("SYNC_WORKER_CONCURRENCY", 1)
	v.SetDefault("SYNC_WORKER_RETRIES", 3)
	v.SetDefault("SYNC_RETRY_DELAY", "2s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
