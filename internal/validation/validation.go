package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmailRequired is returned for a blank email
	ErrEmailRequired = errors.New("email is required")

	// ErrInvalidEmail is returned for an email without a usable '@'
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmailTooLong is returned when an email exceeds 320 characters
	ErrEmailTooLong = errors.New("email is too long")

	// ErrNameRequired is returned for a blank team name
	ErrNameRequired = errors.New("name is required")

	// ErrNameTooLong is returned when a team name exceeds MaxTeamNameLength
	ErrNameTooLong = errors.New("name must be at most 100 characters")

	// ErrFieldRequired is returned for a blank business field
	ErrFieldRequired = errors.New("field is required")

	// ErrFieldTooLong is returned when a business field exceeds MaxBusinessFieldLength
	ErrFieldTooLong = errors.New("field must be at most 200 characters")
)

const (
	MaxEmailLength         = 320
	MaxTeamNameLength      = 100
	MaxBusinessFieldLength = 200
)

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// Licenses, invitations, and admin accounts all compare emails in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts any address with a non-empty local part and domain
// around a single '@'. Mailbox-level checks are left to the email provider.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return ErrInvalidEmail
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}

	return nil
}

// EmailDomain returns the lowercased part after '@', or "" if there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at == -1 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// ValidateTeamName checks a trimmed team name.
func ValidateTeamName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxTeamNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateBusinessField checks the business name/type supplied at activation.
func ValidateBusinessField(value string) error {
	if value == "" {
		return ErrFieldRequired
	}
	if utf8.RuneCountInString(value) > MaxBusinessFieldLength {
		return ErrFieldTooLong
	}
	return nil
}
