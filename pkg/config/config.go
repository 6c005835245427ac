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

// Storage backends supported by the files module.
const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Platform  PlatformConfig
	Identity  IdentityConfig
	Files     FilesConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
	Queue     QueueConfig
	ErrorLog  ErrorLogConfig
	CORS      CORSConfig
	Log       LogConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
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
	CookieDomain      string
	CookieSecure      bool
}

// PlatformConfig describes how session tokens minted by the hosted identity platform are verified.
// JWKSURL takes precedence over Secret when both are present.
type PlatformConfig struct {
	JWKSURL         string
	Secret          string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration
}

// IdentityConfig tunes profile loading during identity resolution.
type IdentityConfig struct {
	ProfileRetries      int
	ProfileRetryBackoff time.Duration
	ProfileLoadTimeout  time.Duration
}

// FilesConfig configures object storage, upload validation and signed URLs.
type FilesConfig struct {
	StorageBackend   string
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	URLCacheSkew     time.Duration
	URLCacheSize     int
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKeyID    string
	S3SecretKey      string
	S3MaxAttempts    int
}

// RateLimitConfig holds per-actor budgets for file operations.
type RateLimitConfig struct {
	Enabled   bool
	Uploads   int
	Downloads int
	Deletes   int
	Window    time.Duration
}

// RealtimeConfig toggles the change-feed stream.
type RealtimeConfig struct {
	Enabled  bool
	Debounce time.Duration
}

// QueueConfig sizes the side-effect worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ErrorLogConfig bounds the in-memory error ring.
type ErrorLogConfig struct {
	Capacity int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		CookieDomain:      v.GetString("AUTH_COOKIE_DOMAIN"),
		CookieSecure:      v.GetBool("AUTH_COOKIE_SECURE"),
	}

	cfg.Platform = PlatformConfig{
		JWKSURL:         v.GetString("PLATFORM_JWKS_URL"),
		Secret:          v.GetString("PLATFORM_JWT_SECRET"),
		Issuer:          v.GetString("PLATFORM_JWT_ISSUER"),
		Audience:        v.GetString("PLATFORM_JWT_AUDIENCE"),
		RefreshInterval: parseDuration(v.GetString("PLATFORM_JWKS_REFRESH"), time.Hour),
	}

	cfg.Identity = IdentityConfig{
		ProfileRetries:      v.GetInt("IDENTITY_PROFILE_RETRIES"),
		ProfileRetryBackoff: parseDuration(v.GetString("IDENTITY_PROFILE_BACKOFF"), 200*time.Millisecond),
		ProfileLoadTimeout:  parseDuration(v.GetString("IDENTITY_PROFILE_TIMEOUT"), 5*time.Second),
	}

	maxFileSize := v.GetInt64("FILES_MAX_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 100 * 1024 * 1024
	}
	cfg.Files = FilesConfig{
		StorageBackend:   strings.ToLower(v.GetString("FILES_STORAGE_BACKEND")),
		StorageDir:       v.GetString("FILES_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("FILES_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("FILES_SIGNED_URL_TTL"), time.Hour),
		URLCacheSkew:     parseDuration(v.GetString("FILES_URL_CACHE_SKEW"), 5*time.Minute),
		URLCacheSize:     v.GetInt("FILES_URL_CACHE_SIZE"),
		MaxFileSizeBytes: maxFileSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("FILES_ALLOWED_MIME_TYPES")),
		S3Bucket:         v.GetString("FILES_S3_BUCKET"),
		S3Region:         v.GetString("FILES_S3_REGION"),
		S3Endpoint:       v.GetString("FILES_S3_ENDPOINT"),
		S3AccessKeyID:    v.GetString("FILES_S3_ACCESS_KEY_ID"),
		S3SecretKey:      v.GetString("FILES_S3_SECRET_ACCESS_KEY"),
		S3MaxAttempts:    v.GetInt("FILES_S3_MAX_ATTEMPTS"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:   v.GetBool("RATE_LIMIT_ENABLED"),
		Uploads:   v.GetInt("RATE_LIMIT_UPLOADS"),
		Downloads: v.GetInt("RATE_LIMIT_DOWNLOADS"),
		Deletes:   v.GetInt("RATE_LIMIT_DELETES"),
		Window:    parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:  v.GetBool("ENABLE_REALTIME"),
		Debounce: parseDuration(v.GetString("REALTIME_DEBOUNCE"), 250*time.Millisecond),
	}

	cfg.Queue = QueueConfig{
		Workers:    v.GetInt("QUEUE_WORKERS"),
		BufferSize: v.GetInt("QUEUE_BUFFER_SIZE"),
		MaxRetries: v.GetInt("QUEUE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("QUEUE_RETRY_DELAY"), time.Second),
	}

	cfg.ErrorLog = ErrorLogConfig{Capacity: v.GetInt("ERROR_LOG_CAPACITY")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
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
	v.SetDefault("DB_NAME", "client_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "client-portal-api")
	v.SetDefault("JWT_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("AUTH_COOKIE_DOMAIN", "")
	v.SetDefault("AUTH_COOKIE_SECURE", false)

	v.SetDefault("PLATFORM_JWKS_URL", "")
	v.SetDefault("PLATFORM_JWT_SECRET", "")
	v.SetDefault("PLATFORM_JWT_ISSUER", "")
	v.SetDefault("PLATFORM_JWT_AUDIENCE", "authenticated")
	v.SetDefault("PLATFORM_JWKS_REFRESH", "1h")

	v.SetDefault("IDENTITY_PROFILE_RETRIES", 3)
	v.SetDefault("IDENTITY_PROFILE_BACKOFF", "200ms")
	v.SetDefault("IDENTITY_PROFILE_TIMEOUT", "5s")

	v.SetDefault("FILES_STORAGE_BACKEND", StorageBackendLocal)
	v.SetDefault("FILES_STORAGE_DIR", "./data/objects")
	v.SetDefault("FILES_SIGNED_URL_SECRET", "dev_files_secret")
	v.SetDefault("FILES_SIGNED_URL_TTL", "1h")
	v.SetDefault("FILES_URL_CACHE_SKEW", "5m")
	v.SetDefault("FILES_URL_CACHE_SIZE", 10000)
	v.SetDefault("FILES_MAX_SIZE", 100*1024*1024)
	v.SetDefault("FILES_ALLOWED_MIME_TYPES", "")
	v.SetDefault("FILES_S3_BUCKET", "")
	v.SetDefault("FILES_S3_REGION", "auto")
	v.SetDefault("FILES_S3_ENDPOINT", "")
	v.SetDefault("FILES_S3_ACCESS_KEY_ID", "")
	v.SetDefault("FILES_S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("FILES_S3_MAX_ATTEMPTS", 3)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_UPLOADS", 5)
	v.SetDefault("RATE_LIMIT_DOWNLOADS", 30)
	v.SetDefault("RATE_LIMIT_DELETES", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "60s")

	v.SetDefault("ENABLE_REALTIME", true)
	v.SetDefault("REALTIME_DEBOUNCE", "250ms")

	v.SetDefault("QUEUE_WORKERS", 2)
	v.SetDefault("QUEUE_BUFFER_SIZE", 256)
	v.SetDefault("QUEUE_MAX_RETRIES", 3)
	v.SetDefault("QUEUE_RETRY_DELAY", "1s")

	v.SetDefault("ERROR_LOG_CAPACITY", 200)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
