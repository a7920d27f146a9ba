package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/aliuyar1234/seatdesk/internal/admins"
	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	adminIDContextKey contextKey = "admin_id"
	actorContextKey   contextKey = "actor"
)

// ActorResolver turns an authenticated admin id into a policy.Actor with
// team membership resolved. admins.ErrNotFound means the account is gone.
type ActorResolver interface {
	ResolveActor(ctx context.Context, adminID uuid.UUID) (*policy.Actor, error)
}

// AuthMiddleware validates the session cookie and stores the admin id in the
// request context. Invalid sessions are cleared and the request continues
// unauthenticated.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), adminIDContextKey, claims.AdminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadActor resolves the actor for authenticated requests. Requests without
// a session pass through untouched.
func LoadActor(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID := GetAdminID(r.Context())
			if adminID == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := resolver.ResolveActor(r.Context(), adminID)
			if err != nil {
				if errors.Is(err, admins.ErrNotFound) {
					ClearSessionCookie(w)
					next.ServeHTTP(w, r)
					return
				}
				apperrors.WriteUpstreamError(w, r, err, "Failed to resolve session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), *actor)))
		})
	}
}

// RequireActor rejects requests without a resolved actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetActor(r.Context()); !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetAdminID returns uuid.Nil when the request is unauthenticated.
func GetAdminID(ctx context.Context) uuid.UUID {
	adminID, ok := ctx.Value(adminIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return adminID
}

func WithActor(ctx context.Context, actor policy.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func GetActor(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(policy.Actor)
	return actor, ok
}
