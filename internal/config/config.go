// Package config loads application configuration from environment
// variables.  A .env file in the working directory is read first when
// present; real environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env             string         // APP_ENV (dev, test, prod)
	Port            string         // APP_PORT
	LogLevel        string         // LOG_LEVEL
	Location        *time.Location // APP_TIMEZONE, used to read and write wire datetimes
	StoreDriver     string         // STORE_DRIVER: mysql or memory
	AutoMigrate     bool           // DB_AUTO_MIGRATE
	DBUser          string         // DB_USER
	DBPass          string         // DB_PASS (may be empty)
	DBHost          string         // DB_HOST
	DBPort          string         // DB_PORT
	DBName          string         // DB_NAME
	JWTSecret       string         // JWT_SECRET
	AccessTTLMin    int            // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays  int            // REFRESH_TOKEN_TTL_DAYS
	BcryptCost      int            // BCRYPT_COST
	StartingBalance float64        // STARTING_BALANCE
	AdminEmails     map[string]bool

	RateLimit   RateLimitConfig
	Cache       CacheConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	AMQP        AMQPConfig
}

// Load reads configuration values from the environment.  Every missing
// required variable and every malformed value is reported in the returned
// error.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	var r reader
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Port:            envStr("APP_PORT", "8080"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		StoreDriver:     strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		AutoMigrate:     envBool("DB_AUTO_MIGRATE", true),
		DBPass:          os.Getenv("DB_PASS"),
		JWTSecret:       r.must("JWT_SECRET"),
		AccessTTLMin:    r.intOr("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:  r.intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:      r.intOr("BCRYPT_COST", 10),
		StartingBalance: r.floatOr("STARTING_BALANCE", 5),
		AdminEmails:     parseSet(os.Getenv("ADMIN_EMAILS")),
		RateLimit:       LoadRateLimitConfig(),
		Cache:           LoadCacheConfig(),
		Idempotency:     LoadIdempotencyConfig(),
		Redis:           LoadRedisConfig(),
		AMQP:            LoadAMQPConfig(),
	}

	tz := envStr("APP_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.invalid("APP_TIMEZONE", tz)
		loc = time.UTC
	}
	cfg.Location = loc

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = r.must("DB_USER")
		cfg.DBHost = r.must("DB_HOST")
		cfg.DBPort = r.must("DB_PORT")
		cfg.DBName = r.must("DB_NAME")
	case DriverMemory:
	default:
		r.invalid("STORE_DRIVER", cfg.StoreDriver)
	}
	if cfg.StartingBalance < 0 {
		r.invalid("STARTING_BALANCE", os.Getenv("STARTING_BALANCE"))
	}
	return cfg, r.err()
}

// ConsumerConfig is what the audit consumer reads.  It needs no database
// or JWT settings.
type ConsumerConfig struct {
	Env      string
	LogLevel string
	AMQP     AMQPConfig
}

// LoadConsumer reads the consumer settings, .env first.
func LoadConsumer() (ConsumerConfig, error) {
	if err := loadDotEnv(); err != nil {
		return ConsumerConfig{}, err
	}
	return ConsumerConfig{
		Env:      envStr("APP_ENV", "dev"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		AMQP:     LoadAMQPConfig(),
	}, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read .env: %w", err)
	}
	return nil
}

// IsAdmin reports whether email was listed in ADMIN_EMAILS.
func (c Config) IsAdmin(email string) bool {
	return c.AdminEmails[strings.ToLower(strings.TrimSpace(email))]
}

func parseSet(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
