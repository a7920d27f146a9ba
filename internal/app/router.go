package app

import (
	"context"
	"net/http"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/config"
	"github.com/aliuyar1234/seatdesk/internal/licenses"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/aliuyar1234/seatdesk/internal/teams"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Services is everything the router dispatches to.
type Services struct {
	Accounts auth.Accounts
	Actors   auth.ActorResolver
	Seats    *seats.Service
	Licenses *licenses.Service
	Teams    *teams.Service
	Activity activity.Lister

	// Ready reports whether downstream dependencies can serve traffic.
	Ready func(ctx context.Context) error
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, svc Services) *chi.Mux {
	r := chi.NewRouter()

	session := auth.SessionSettings{
		Secret:       cfg.JWTSecret,
		Days:         cfg.SessionDays,
		SecureCookie: !cfg.IsDev(),
	}

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL, cfg.ConsumerAppURL, cfg.InviteURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.CSRFHeaderName},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(svc.Ready))

	publicLimit := PublicRateLimitMiddleware(cfg.PublicRateLimitRPM)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(NoCacheMiddleware)

		r.Post("/signup", auth.HandleSignup(svc.Accounts, session))
		r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(svc.Accounts, session))
		r.Post("/logout", auth.HandleLogout)
	})

	r.Route("/api/licenses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(publicLimit)
			r.Post("/activate", licenses.HandleActivate(svc.Licenses))
			r.Get("/verify", licenses.HandleVerify(svc.Licenses))
		})

		r.With(auth.RequireServiceKey(cfg.PaymentAPIKey)).Post("/purchase", seats.HandlePurchase(svc.Seats))

		// Browser redirect from the payment page; sends anonymous callers to login.
		r.With(auth.LoadActor(svc.Actors)).Get("/purchase", seats.HandlePurchaseRedirect(svc.Seats, cfg.BaseURL))

		r.Group(func(r chi.Router) {
			r.Use(auth.LoadActor(svc.Actors))
			r.Use(auth.RequireActor)
			r.Use(CSRFMiddleware)

			r.Get("/list", licenses.HandleList(svc.Licenses))
			r.Get("/stats", seats.HandleStats(svc.Seats))
			r.Post("/add", licenses.HandleAdd(svc.Licenses))
			r.Post("/add-multiple", licenses.HandleAddMultiple(svc.Licenses))
			r.Post("/import", licenses.HandleImport(svc.Licenses, cfg.MaxImportBytes))
			r.Get("/export", licenses.HandleExport(svc.Licenses))
			r.Delete("/remove", licenses.HandleRemove(svc.Licenses))
			r.Post("/resend", licenses.HandleResend(svc.Licenses))
			r.Patch("/update-email", licenses.HandleUpdateEmail(svc.Licenses))
			r.Post("/email-status", licenses.HandleEmailStatus(svc.Licenses))
		})
	})

	r.Route("/api/team", func(r chi.Router) {
		r.With(publicLimit).Get("/invite/accept", teams.HandlePreview(svc.Teams))

		r.Group(func(r chi.Router) {
			r.Use(auth.LoadActor(svc.Actors))
			r.Use(auth.RequireActor)
			r.Use(CSRFMiddleware)

			r.Get("/", teams.HandleGet(svc.Teams))
			r.Patch("/", teams.HandleRename(svc.Teams))
			r.Post("/create", teams.HandleCreate(svc.Teams))

			r.Get("/invite", teams.HandleListInvitations(svc.Teams))
			r.Post("/invite", teams.HandleInvite(svc.Teams))
			r.Delete("/invite", teams.HandleCancelInvitation(svc.Teams))
			r.Post("/invite/accept", teams.HandleAccept(svc.Teams))

			r.Get("/members", teams.HandleListMembers(svc.Teams))
			r.Patch("/members", teams.HandleChangeRole(svc.Teams))
			r.Delete("/members", teams.HandleRemoveMember(svc.Teams))

			r.Get("/activity", activity.HandleList(svc.Activity))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteNotFound(w, r, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns 200 when the database answers, 503 otherwise.
func handleReadyz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				log.Warn().Err(err).Msg("Readiness check failed")
				apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
				return
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
