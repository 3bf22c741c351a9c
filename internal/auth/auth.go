// Package auth provides Bearer token middleware. It is stricter than the
// real backend, which takes any HMAC algorithm and no expiry: tokens must be
// HS256, carry exp, and have a whole-number sub between 1 and 2^53.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dskow/devtoken/internal/apierror"
	"github.com/dskow/devtoken/internal/metrics"
	"github.com/dskow/devtoken/internal/token"
)

type contextKey string

// UserIDKey is the context key holding the authenticated user id (int64).
const UserIDKey contextKey = "user_id"

// UserID returns the authenticated user id stored by Middleware.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

// Middleware returns an HTTP middleware that rejects requests without a
// valid Bearer token signed with secret. now may be nil for the wall clock.
func Middleware(secret []byte, now func() time.Time, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := extractBearerToken(r)
			if !ok {
				metrics.AuthFailures.WithLabelValues("missing_token").Inc()
				apierror.WriteJSON(w, r, http.StatusUnauthorized, apierror.AuthMissingToken, "missing or malformed Authorization header")
				return
			}

			claims, err := token.Parse(raw, secret, now)
			if err != nil {
				logger.Warn("auth failure", "error", err, "path", r.URL.Path)
				if errors.Is(err, token.ErrSubjectType) {
					metrics.AuthFailures.WithLabelValues("invalid_subject").Inc()
					apierror.WriteJSON(w, r, http.StatusUnauthorized, apierror.AuthInvalidSubject, err.Error())
				} else {
					metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
					apierror.WriteJSON(w, r, http.StatusUnauthorized, apierror.AuthInvalidToken, err.Error())
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", false
	}
	return raw, true
}
