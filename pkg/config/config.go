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
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Registry    RegistryConfig
	Submissions SubmissionsConfig
	Reports     ReportsConfig
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

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RegistryConfig describes the upstream immunisation register endpoint and the
// fixed identifiers stamped onto every outbound request.
type RegistryConfig struct {
	BaseURL        string
	ClientID       string
	ProductID      string
	AuditID        string
	AuditIDType    string
	BearerToken    string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// SubmissionsConfig tunes the background submission pipeline.
type SubmissionsConfig struct {
	WorkerConcurrency int
	QueueBuffer       int
	ProgressCacheTTL  time.Duration
}

// ReportsConfig configures outcome report export and download links.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Registry = RegistryConfig{
		BaseURL:        v.GetString("AIR_BASE_URL"),
		ClientID:       v.GetString("AIR_CLIENT_ID"),
		ProductID:      v.GetString("AIR_PRODUCT_ID"),
		AuditID:        v.GetString("AIR_AUDIT_ID"),
		AuditIDType:    v.GetString("AIR_AUDIT_ID_TYPE"),
		BearerToken:    v.GetString("AIR_BEARER_TOKEN"),
		Timeout:        parseDuration(v.GetString("AIR_TIMEOUT"), 30*time.Second),
		MaxRetries:     v.GetInt("AIR_MAX_RETRIES"),
		RetryBaseDelay: parseDuration(v.GetString("AIR_RETRY_BASE_DELAY"), time.Second),
	}

	cfg.Submissions = SubmissionsConfig{
		WorkerConcurrency: v.GetInt("SUBMISSIONS_WORKER_CONCURRENCY"),
		QueueBuffer:       v.GetInt("SUBMISSIONS_QUEUE_BUFFER"),
		ProgressCacheTTL:  parseDuration(v.GetString("SUBMISSIONS_PROGRESS_CACHE_TTL"), 2*time.Second),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
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
	v.SetDefault("DB_NAME", "air_submissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AIR_BASE_URL", "https://localhost:9443/claiming/ext-vnd/imms/v1")
	v.SetDefault("AIR_CLIENT_ID", "")
	v.SetDefault("AIR_PRODUCT_ID", "AIRSYNC/1.0")
	v.SetDefault("AIR_AUDIT_ID", "")
	v.SetDefault("AIR_AUDIT_ID_TYPE", "LOC")
	v.SetDefault("AIR_BEARER_TOKEN", "")
	v.SetDefault("AIR_TIMEOUT", "30s")
	v.SetDefault("AIR_MAX_RETRIES", 3)
	v.SetDefault("AIR_RETRY_BASE_DELAY", "1s")

	v.SetDefault("SUBMISSIONS_WORKER_CONCURRENCY", 4)
	v.SetDefault("SUBMISSIONS_QUEUE_BUFFER", 16)
	v.SetDefault("SUBMISSIONS_PROGRESS_CACHE_TTL", "2s")

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
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
