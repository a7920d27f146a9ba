package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingBearer = errors.New("missing bearer token in Authorization header")
	ErrInvalidBearer = errors.New("invalid Authorization header format, expected 'Bearer <token>'")
)

// ExtractBearer returns the token from "Authorization: Bearer <token>".
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrInvalidBearer
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

// RequireServiceKey guards service-role endpoints called by the payment
// partner. An empty key disables the endpoint entirely.
func RequireServiceKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				apperrors.WriteServiceUnavailable(w, r, "Endpoint is not configured")
				return
			}

			token, err := ExtractBearer(r)
			if err != nil {
				apperrors.WriteUnauthorized(w, r, "Missing or invalid Authorization header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				log.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("Rejected service key")
				apperrors.WriteUnauthorized(w, r, "Invalid service key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
