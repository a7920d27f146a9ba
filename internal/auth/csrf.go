package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

const (
	CSRFCookieName = "_csrf"
	CSRFHeaderName = "X-CSRF-Token"
	CSRFTokenBytes = 32
)

var (
	ErrMissingCSRFCookie = errors.New("missing CSRF cookie")
	ErrMissingCSRFToken  = errors.New("missing CSRF token in request")
	ErrCSRFMismatch      = errors.New("CSRF token mismatch")
)

// GenerateCSRFToken returns a base64url-encoded random token.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCSRFCookie sets the double-submit cookie. It stays readable from
// JavaScript so the UI can echo it in the header.
func SetCSRFCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func GetCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// IsMutating reports whether method changes state and therefore needs a
// CSRF token.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ValidateCSRF compares the header token with the cookie token. Only the
// header is consulted so multipart and JSON bodies are never parsed here.
func ValidateCSRF(r *http.Request) error {
	cookieToken := GetCSRFCookie(r)
	if cookieToken == "" {
		return ErrMissingCSRFCookie
	}

	headerToken := r.Header.Get(CSRFHeaderName)
	if headerToken == "" {
		return ErrMissingCSRFToken
	}

	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrCSRFMismatch
	}

	return nil
}
