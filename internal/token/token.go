// Package token verifies the HMAC-signed bearer tokens that identify callers.
//
// A token is two base64url segments joined by a dot: the JSON claims and an
// HMAC-SHA256 signature over them. Issuance belongs to the auth service;
// Generate exists for tests and local tooling.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// MaxRoleLength bounds the role claim.
const MaxRoleLength = 32

// Claims is what a verified token tells us about the caller.
type Claims struct {
	UserID   string
	Role     string
	IssuedAt time.Time
}

// payload structure for encoding/decoding
type payload struct {
	UserID string `json:"u"`
	Role   string `json:"r,omitempty"`
	TS     int64  `json:"t"`
}

// Generate creates a signed token for userID with the given role.
func Generate(userID, role string, secret []byte) (string, error) {
	return GenerateAt(userID, role, time.Now(), secret)
}

// GenerateAt is Generate with an explicit issue time.
func GenerateAt(userID, role string, issuedAt time.Time, secret []byte) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	if len(role) > MaxRoleLength {
		return "", fmt.Errorf("role too long: %d chars (max %d)", len(role), MaxRoleLength)
	}
	data, err := json.Marshal(payload{UserID: userID, Role: role, TS: issuedAt.Unix()})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sign(data, secret)), nil
}

// Verify checks the token integrity and expiry and returns its claims. A ttl
// of zero disables the expiry check.
func Verify(token string, secret []byte, ttl time.Duration) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return Claims{}, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrInvalid
	}
	if !hmac.Equal(sign(data, secret), sig) {
		return Claims{}, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil || pl.UserID == "" {
		return Claims{}, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && time.Since(issued) > ttl {
		return Claims{}, ErrExpired
	}
	return Claims{UserID: pl.UserID, Role: pl.Role, IssuedAt: issued}, nil
}

// FromHeader extracts the token from an Authorization header value. Both
// "Bearer <tok>" and a bare token are accepted; an empty result means the
// header carried nothing.
func FromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

func sign(data, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}
