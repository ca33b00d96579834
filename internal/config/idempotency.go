package config

import "time"

// IdempotencyConfig controls replay of booking mutations that carry an
// Idempotency-Key header.  TTL is how long a stored response is replayed;
// LockTTL bounds how long an in-flight request blocks duplicates.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
	LockTTL time.Duration
	Prefix  string
}

func LoadIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Enabled: envBool("IDEMPOTENCY_ENABLED", true),
		TTL:     envDur("IDEMPOTENCY_TTL", 24*time.Hour),
		LockTTL: envDur("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		Prefix:  envStr("IDEMPOTENCY_PREFIX", "idem"),
	}
}
