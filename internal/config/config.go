package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Store backends selectable for users and books.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"
)

// minProductionSecret is the shortest JWT secret accepted in production.
const minProductionSecret = 32

// Config holds all service configuration loaded from environment variables.
type Config struct {
	AppName         string
	Environment     string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TrustProxy      bool

	UserStore string
	BookStore string

	PostgresDSN      string
	PostgresMaxConns int32
	MongoURI         string
	MongoDB          string
	SQLitePath       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret  string
	JWTTTL     time.Duration
	JWTIssuer  string
	BcryptCost int

	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogLevel  string
	LogFormat string

	OTelEnabled       bool
	OTelServiceName   string
	OTelCollectorAddr string
}

// Load reads configuration from the environment and an optional .env file in the
// working directory, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}
	v.AutomaticEnv()
	setDefaults(v)

	cfg := bind(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "personal-library")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("SERVER_TRUST_PROXY", false)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:8081,http://localhost:19006")

	v.SetDefault("USER_STORE", StorePostgres)
	v.SetDefault("BOOK_STORE", StorePostgres)
	v.SetDefault("POSTGRES_MAX_CONNS", 10)
	v.SetDefault("MONGO_DB", "personal_library")
	v.SetDefault("SQLITE_PATH", "library.db")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MINIO_BUCKET", "book-covers")
	v.SetDefault("MINIO_USE_SSL", false)

	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("JWT_ISSUER", "personal-library")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "personal-library")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
}

func bind(v *viper.Viper) *Config {
	return &Config{
		AppName:         v.GetString("APP_NAME"),
		Environment:     v.GetString("APP_ENVIRONMENT"),
		Port:            v.GetString("SERVER_PORT"),
		ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		TrustProxy:      v.GetBool("SERVER_TRUST_PROXY"),

		UserStore: strings.ToLower(v.GetString("USER_STORE")),
		BookStore: strings.ToLower(v.GetString("BOOK_STORE")),

		PostgresDSN:      v.GetString("POSTGRES_DSN"),
		PostgresMaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MongoURI:         v.GetString("MONGO_URI"),
		MongoDB:          v.GetString("MONGO_DB"),
		SQLitePath:       v.GetString("SQLITE_PATH"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		JWTSecret:  v.GetString("JWT_SECRET"),
		JWTTTL:     v.GetDuration("JWT_TTL"),
		JWTIssuer:  v.GetString("JWT_ISSUER"),
		BcryptCost: v.GetInt("BCRYPT_COST"),

		RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		OTelEnabled:       v.GetBool("OTEL_ENABLED"),
		OTelServiceName:   v.GetString("OTEL_SERVICE_NAME"),
		OTelCollectorAddr: v.GetString("OTEL_COLLECTOR_ADDR"),
	}
}

// Validate checks required settings. A missing signing secret is always fatal.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < minProductionSecret {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecret)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("invalid JWT_TTL: %s", c.JWTTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Port == "" {
		return errors.New("SERVER_PORT is required")
	}

	stores := []struct{ name, kind string }{
		{"USER_STORE", c.UserStore},
		{"BOOK_STORE", c.BookStore},
	}
	for _, st := range stores {
		name, kind := st.name, st.kind
		switch kind {
		case StorePostgres:
			if c.PostgresDSN == "" {
				return fmt.Errorf("%s=postgres requires POSTGRES_DSN", name)
			}
		case StoreMongo:
			if c.MongoURI == "" {
				return fmt.Errorf("%s=mongo requires MONGO_URI", name)
			}
		case StoreSQLite:
			if c.SQLitePath == "" {
				return fmt.Errorf("%s=sqlite requires SQLITE_PATH", name)
			}
		default:
			return fmt.Errorf("unknown %s %q", name, kind)
		}
	}

	if c.RedisAddr != "" && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// Uses reports whether either store is configured with the given backend.
func (c *Config) Uses(kind string) bool {
	return c.UserStore == kind || c.BookStore == kind
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
