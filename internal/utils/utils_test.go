package utils

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	at, err := NewAccessToken("secret", 42, "ADMIN", 5)
	if err != nil {
		t.Fatal(err)
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(at.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" || claims.Role != "ADMIN" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewRefreshToken(7)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Errorf("refresh tokens %q / %q", a.Raw, b.Raw)
	}
	if h := HashRefreshRaw(a.Raw); len(h) != 64 || h == a.Raw {
		t.Errorf("hash = %q", h)
	}
}

func TestPassword(t *testing.T) {
	if err := CheckPassword("short"); err == nil {
		t.Error("short password accepted")
	}
	if err := CheckPassword(strings.Repeat("x", 73)); err == nil {
		t.Error("overlong password accepted")
	}
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(hash, "hunter22") || VerifyPassword(hash, "hunter23") {
		t.Error("VerifyPassword mismatch")
	}
}
