package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs HTTP requests with structured fields.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		event := log.Info()
		if wrapped.statusCode >= http.StatusInternalServerError {
			event = log.Error()
		}
		if adminID := auth.GetAdminID(r.Context()); adminID != uuid.Nil {
			event = event.Str("admin_id", adminID.String())
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", apperrors.GetRequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Interface("error", err).
					Str("request_id", apperrors.GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				apperrors.WriteInternalError(w, r, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// NoCacheMiddleware adds headers to prevent caching.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware validates the double-submit token on mutating requests
// that carry a session cookie.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IsMutating(r.Method) && auth.GetAdminID(r.Context()) != uuid.Nil {
			if err := auth.ValidateCSRF(r); err != nil {
				log.Warn().
					Err(err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("CSRF validation failed")

				apperrors.WriteForbidden(w, r, "Invalid CSRF token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// LoginRateLimitMiddleware limits login attempts per IP address to 10/minute.
func LoginRateLimitMiddleware() func(http.Handler) http.Handler {
	return ipRateLimit(10, "Too many login attempts. Try again later.")
}

// PublicRateLimitMiddleware limits the unauthenticated activation and
// invitation preview endpoints per IP address.
func PublicRateLimitMiddleware(requestsPerMinute int) func(http.Handler) http.Handler {
	return ipRateLimit(requestsPerMinute, "Too many requests. Try again later.")
}

func ipRateLimit(requestsPerMinute int, message string) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("limit", requestsPerMinute).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(60))
			apperrors.WriteTooManyRequests(w, r, message)
		}),
	)
}
