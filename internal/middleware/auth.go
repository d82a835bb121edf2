package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/token"
)

// callerKey is the context key for the authenticated caller
type callerKey struct{}

// Messages returned by the auth layer, kept identical to the web client's expectations.
const (
	MsgNoToken      = "No token, authorization denied"
	MsgInvalidToken = "Token is not valid"
)

// Authenticator verifies bearer tokens and places the caller in the request context.
type Authenticator struct {
	Secret []byte
	TTL    time.Duration
	Logger *zap.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(secret []byte, ttl time.Duration, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{Secret: secret, TTL: ttl, Logger: logger}
}

// Optional resolves the caller when a valid token is present. Requests with
// no token, or with one that fails verification, continue unauthenticated.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.verify(r)
		if err != nil {
			LoggerFromRequest(r, a.Logger).Debug("ignoring bad token on public route", zap.Error(err))
		}
		if caller != nil {
			r = r.WithContext(WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid token with 401.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.verify(r)
		if err != nil {
			LoggerFromRequest(r, a.Logger).Info("rejected token", zap.Error(err))
			writeMsg(w, http.StatusUnauthorized, MsgInvalidToken)
			return
		}
		if caller == nil {
			writeMsg(w, http.StatusUnauthorized, MsgNoToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// verify returns (nil, nil) when the request carries no token.
func (a *Authenticator) verify(r *http.Request) (*models.Caller, error) {
	raw := token.FromHeader(r.Header.Get("Authorization"))
	if raw == "" {
		raw = r.Header.Get("x-auth-token")
	}
	if raw == "" {
		return nil, nil
	}
	claims, err := token.Verify(raw, a.Secret, a.TTL)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, err
		}
		return nil, token.ErrInvalid
	}
	return &models.Caller{ID: claims.UserID, Role: claims.Role}, nil
}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller *models.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller or nil.
func CallerFromContext(ctx context.Context) *models.Caller {
	if c, ok := ctx.Value(callerKey{}).(*models.Caller); ok {
		return c
	}
	return nil
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
