package config

import (
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadMemoryDriver(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_DRIVER":     "memory",
		"JWT_SECRET":       "s3cret",
		"APP_TIMEZONE":     "Europe/Berlin",
		"ADMIN_EMAILS":     " Boss@Example.com, ops@example.com ",
		"RATE_LIMIT_BURST": "5",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		t.Errorf("location = %s", cfg.Location)
	}
	if cfg.StartingBalance != 5 {
		t.Errorf("starting balance = %v, want 5", cfg.StartingBalance)
	}
	if !cfg.IsAdmin("boss@example.com") || cfg.IsAdmin("rider@example.com") {
		t.Errorf("admin set = %v", cfg.AdminEmails)
	}
	if cfg.RateLimit.Capacity != 5 {
		t.Errorf("rate limit capacity = %d, want 5", cfg.RateLimit.Capacity)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("idempotency ttl = %s", cfg.Idempotency.TTL)
	}
}

func TestLoadReportsEveryProblem(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_DRIVER":         "mysql",
		"JWT_SECRET":           "",
		"DB_USER":              "",
		"DB_HOST":              "",
		"DB_PORT":              "",
		"DB_NAME":              "",
		"ACCESS_TOKEN_TTL_MIN": "soon",
		"APP_TIMEZONE":         "Mars/Olympus",
	})

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded with missing variables")
	}
	for _, want := range []string{"JWT_SECRET", "DB_USER", "DB_NAME", "ACCESS_TOKEN_TTL_MIN", "APP_TIMEZONE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRateLimitNormalize(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 2 * time.Second}.normalize()
	if c.Capacity != 1 || c.RefillTokens != 1 || c.TTL != 10*time.Second {
		t.Errorf("normalize = %+v", c)
	}
}
