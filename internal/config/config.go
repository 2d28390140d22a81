package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"ispmanager/pkg/logger"
)

// Cache backends for resolved principals
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// MinBcryptCost is the lowest hashing cost accepted for stored passwords
const MinBcryptCost = 10

// Config holds runtime configuration for the API process.
type Config struct {
	Env  string `envconfig:"APP_ENV" default:"development"`
	Port string `envconfig:"PORT" default:"8080"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"postgres"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	JWTSecret  string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL     time.Duration `envconfig:"JWT_TTL" default:"24h"`
	JWTIssuer  string        `envconfig:"JWT_ISSUER" default:"ispmanager"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"10"`

	PrincipalCache     string        `envconfig:"PRINCIPAL_CACHE" default:"none"`
	PrincipalCacheTTL  time.Duration `envconfig:"PRINCIPAL_CACHE_TTL" default:"30s"`
	PrincipalCacheSize int           `envconfig:"PRINCIPAL_CACHE_SIZE" default:"10000"`
	RedisAddr          string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	RedisDB            int           `envconfig:"REDIS_DB" default:"0"`

	AuthzTimeout time.Duration `envconfig:"AUTHZ_TIMEOUT" default:"2s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogOutput string `envconfig:"LOG_OUTPUT" default:"stdout"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`

	Seed          bool   `envconfig:"SEED" default:"false"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@ispmanager.local"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would weaken authentication or break startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("jwt secret must be provided")
	}
	if c.JWTTTL <= 0 {
		return errors.New("jwt ttl must be positive")
	}
	if c.BcryptCost < MinBcryptCost {
		return fmt.Errorf("bcrypt cost must be at least %d", MinBcryptCost)
	}
	switch c.PrincipalCache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown principal cache %q", c.PrincipalCache)
	}
	if c.PrincipalCacheTTL < 0 {
		return errors.New("principal cache ttl must not be negative")
	}
	if c.AuthzTimeout <= 0 {
		return errors.New("authz timeout must be positive")
	}
	if c.Seed && c.AdminPassword == "" {
		return errors.New("admin password must be provided when seeding")
	}
	return nil
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Output:      c.LogOutput,
		ServiceName: "ispmanager",
	}
}
