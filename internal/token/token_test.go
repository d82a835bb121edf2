package token

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate("u1", "admin", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != "u1" || c.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := GenerateAt("u", "", time.Now().Add(-time.Hour), secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret, time.Minute); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := Verify(tok, secret, 0); err != nil {
		t.Fatalf("zero ttl should skip expiry, got %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate("u", "", secret)

	cases := map[string]string{
		"tampered signature": tok + "x",
		"no separator":       strings.ReplaceAll(tok, ".", ""),
		"empty":              "",
		"bad base64":         "!!!.???",
	}
	for name, in := range cases {
		if _, err := Verify(in, secret, time.Minute); err != ErrInvalid {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	if _, err := Verify(tok, []byte("other"), time.Minute); err != ErrInvalid {
		t.Fatalf("wrong secret: expected ErrInvalid, got %v", err)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	if _, err := Generate("", "admin", []byte("s")); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := Generate("u", strings.Repeat("r", MaxRoleLength+1), []byte("s")); err == nil {
		t.Fatal("expected error for long role")
	}
}

func TestFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc.def": "abc.def",
		"bearer abc.def": "abc.def",
		"abc.def":        "abc.def",
		"  ":             "",
		"":               "",
	}
	for in, want := range cases {
		if got := FromHeader(in); got != want {
			t.Errorf("FromHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
