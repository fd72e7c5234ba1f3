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

// Storage drivers supported for manuscripts and rendered copyright records.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Review    ReviewConfig
	Copyright CopyrightConfig
	Storage   StorageConfig
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
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReviewConfig tunes the abstract review surfaces.
type ReviewConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	PollInterval time.Duration
}

// CopyrightConfig governs full paper uploads and copyright record rendering.
type CopyrightConfig struct {
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	MaxFileSizeBytes  int64
	AllowedMIMEs      []string
	WorkerConcurrency int
	WorkerRetries     int
}

// StorageConfig selects where uploaded and rendered files live.
type StorageConfig struct {
	Driver     string
	LocalDir   string
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Review = ReviewConfig{
		CacheEnabled: v.GetBool("ENABLE_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CACHE_TTL"), 2*time.Minute),
		PollInterval: parseDuration(v.GetString("REVIEW_POLL_INTERVAL"), 5*time.Second),
	}

	maxSize := v.GetInt64("MANUSCRIPT_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 20 * 1024 * 1024
	}
	cfg.Copyright = CopyrightConfig{
		SignedURLSecret:   v.GetString("FILES_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("FILES_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes:  maxSize,
		AllowedMIMEs:      splitAndTrim(v.GetString("MANUSCRIPT_ALLOWED_MIME_TYPES")),
		WorkerConcurrency: v.GetInt("COPYRIGHT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("COPYRIGHT_WORKER_RETRIES"),
	}

	cfg.Storage = StorageConfig{
		Driver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:   v.GetString("STORAGE_LOCAL_DIR"),
		S3Bucket:   v.GetString("AWS_S3_BUCKET"),
		S3Region:   v.GetString("AWS_REGION"),
		S3Endpoint: v.GetString("AWS_ENDPOINT_URL"),
		S3Prefix:   v.GetString("AWS_S3_PREFIX"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "journal_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "journal-portal")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "2m")
	v.SetDefault("REVIEW_POLL_INTERVAL", "5s")

	v.SetDefault("FILES_SIGNED_URL_SECRET", "dev_files_secret")
	v.SetDefault("FILES_SIGNED_URL_TTL", "30m")
	v.SetDefault("MANUSCRIPT_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("MANUSCRIPT_ALLOWED_MIME_TYPES", "application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/zip")
	v.SetDefault("COPYRIGHT_WORKER_CONCURRENCY", 1)
	v.SetDefault("COPYRIGHT_WORKER_RETRIES", 3)

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./storage")
	v.SetDefault("AWS_S3_BUCKET", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT_URL", "")
	v.SetDefault("AWS_S3_PREFIX", "journal-portal")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such file")
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
