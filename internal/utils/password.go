package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password length limits.  bcrypt ignores everything past 72 bytes.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 72
)

var ErrPasswordPolicy = errors.New("password must be between 6 and 72 bytes")

// CheckPassword enforces the length policy.
func CheckPassword(plain string) error {
	if len(plain) < MinPasswordLen || len(plain) > MaxPasswordLen {
		return ErrPasswordPolicy
	}
	return nil
}

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
