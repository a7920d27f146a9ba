package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/seatdesk/internal/admins"
	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Accounts is the slice of the admin store used by signup and login.
type Accounts interface {
	Create(ctx context.Context, in admins.NewAdmin) (*admins.Admin, error)
	Credentials(ctx context.Context, email string) (uuid.UUID, string, error)
}

// SessionSettings controls the session cookie issued on signup and login.
type SessionSettings struct {
	Secret       string
	Days         int
	SecureCookie bool
}

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup handles POST /api/auth/signup
func HandleSignup(accounts Accounts, session SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		if err := validation.ValidateEmail(email); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}
		if err := ValidatePassword(req.Password); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to create account")
			return
		}

		admin, err := accounts.Create(r.Context(), admins.NewAdmin{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
		})
		if err != nil {
			if errors.Is(err, admins.ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to create account")
			return
		}

		if !issueSession(w, r, admin.ID, session) {
			return
		}

		log.Info().
			Str("admin_id", admin.ID.String()).
			Str("email", admin.Email).
			Msg("Admin signed up")

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"admin": admin,
		})
	}
}

// HandleLogin handles POST /api/auth/login
func HandleLogin(accounts Accounts, session SessionSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		adminID, passwordHash, err := accounts.Credentials(r.Context(), email)
		if err != nil {
			if errors.Is(err, admins.ErrNotFound) {
				log.Debug().Str("email", email).Msg("Login failed: unknown email")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Login failed")
			return
		}

		if err := VerifyPassword(passwordHash, req.Password); err != nil {
			log.Debug().Str("email", email).Msg("Login failed: wrong password")
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		if !issueSession(w, r, adminID, session) {
			return
		}

		log.Info().Str("admin_id", adminID.String()).Msg("Admin logged in")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"admin_id": adminID,
			"email":    email,
		})
	}
}

// HandleLogout handles POST /api/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	if adminID := GetAdminID(r.Context()); adminID != uuid.Nil {
		log.Info().Str("admin_id", adminID.String()).Msg("Admin logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"logged_out": true,
	})
}

func issueSession(w http.ResponseWriter, r *http.Request, adminID uuid.UUID, session SessionSettings) bool {
	token, err := CreateToken(adminID, session.Secret, session.Days)
	if err != nil {
		apperrors.WriteUpstreamError(w, r, err, "Failed to create session")
		return false
	}
	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		apperrors.WriteUpstreamError(w, r, err, "Failed to create session")
		return false
	}
	SetSessionCookie(w, token, session.Days, session.SecureCookie)
	SetCSRFCookie(w, csrfToken, session.SecureCookie)
	return true
}
