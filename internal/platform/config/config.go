package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	strutil "accman/pkg/platform/strings"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Accounts AccountsConfig
	Audit    AuditConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	MetricsAddr    string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	ShutdownGrace  time.Duration
}

// DatabaseConfig selects PostgreSQL storage. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the Redis revocation list. An empty URL keeps it in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	JWTSigningKey  string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	CookieName     string
	CookieSecure   bool
	Password       PasswordConfig

	// RateLimit bounds /login and /register per client IP. Zero disables it.
	RateLimit       int
	RateLimitWindow time.Duration
}

// PasswordConfig holds the minimum character counts a new password must meet.
type PasswordConfig struct {
	MinLength    int
	MinLowercase int
	MinUppercase int
	MinDigits    int
	MinSpecial   int
}

type AccountsConfig struct {
	TempDir        string
	SearchPageSize int
	MaxUploadBytes int64
	ExportIndent   int
}

// AuditConfig enables the Kafka audit stream when Brokers is non-empty.
type AuditConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level string
	File  string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:           getEnv("ACCMAN_ADDR", ":8080"),
			MetricsAddr:    getEnv("ACCMAN_METRICS_ADDR", ":9090"),
			AllowedOrigins: getList("ACCMAN_ORIGINS", []string{"http://localhost:3000"}),
			ReadTimeout:    getDuration("ACCMAN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDuration("ACCMAN_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDuration("ACCMAN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownGrace:  getDuration("ACCMAN_SHUTDOWN_GRACE", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Auth: AuthConfig{
			JWTSigningKey:  jwtSigningKey,
			JWTIssuer:      getEnv("JWT_ISSUER", "accman"),
			AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 2*time.Hour),
			CookieName:     getEnv("AUTH_COOKIE_NAME", "sid"),
			CookieSecure:   os.Getenv("AUTH_COOKIE_SECURE") == "true",
			Password: PasswordConfig{
				MinLength:    getInt("PASSWORD_MIN_LENGTH", 6),
				MinLowercase: getInt("PASSWORD_LOWERCASE_MIN_COUNT", 1),
				MinUppercase: getInt("PASSWORD_UPPERCASE_MIN_COUNT", 1),
				MinDigits:    getInt("PASSWORD_DIGITS_MIN_COUNT", 1),
				MinSpecial:   getInt("PASSWORD_SPECIAL_MIN_COUNT", 1),
			},
			RateLimit:       getInt("AUTH_RATE_LIMIT", 20),
			RateLimitWindow: getDuration("AUTH_RATE_WINDOW", time.Minute),
		},
		Accounts: AccountsConfig{
			TempDir:        getEnv("ACCMAN_TEMP_DIR", filepath.Join(os.TempDir(), "accman")),
			SearchPageSize: getInt("SEARCH_PAGE_SIZE", 50),
			MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 10<<20)),
			ExportIndent:   getInt("EXPORT_INDENT", 4),
		},
		Audit: AuditConfig{
			Brokers: getList("KAFKA_BROKERS", nil),
			Topic:   getEnv("AUDIT_TOPIC", "accman.audit"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return strutil.SplitList(raw, ",")
}
