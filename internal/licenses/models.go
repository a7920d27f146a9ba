package licenses

import (
	"time"

	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/google/uuid"
)

// Delivery statuses stored in licenses.email_status. Anything else is a
// provider event name written by a status sync.
const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// License is one seat assigned to an end-user email.
type License struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	AdminID      uuid.UUID  `json:"admin_id"`
	TeamID       *uuid.UUID `json:"team_id"`
	PerformedBy  *uuid.UUID `json:"performed_by"`
	IsActivated  bool       `json:"is_activated"`
	BusinessName string     `json:"business_name"`
	BusinessType string     `json:"business_type"`
	MessageID    *string    `json:"message_id"`
	EmailStatus  *string    `json:"email_status"`
	CreatedAt    time.Time  `json:"created_at"`
	ActivatedAt  *time.Time `json:"activated_at"`
}

// Scope is the owner scope the license counts against.
func (l License) Scope() scope.Scope {
	return scope.Of(l.AdminID, l.TeamID)
}

// Summary is the short form returned by add and batch operations.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	IsActivated bool      `json:"isActivated"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (l License) Summary() Summary {
	return Summary{
		ID:          l.ID,
		Email:       l.Email,
		IsActivated: l.IsActivated,
		CreatedAt:   l.CreatedAt,
	}
}

// NewLicense is an insert. Email must already be normalized.
type NewLicense struct {
	Email       string
	Scope       scope.Scope
	AdminID     uuid.UUID
	PerformedBy uuid.UUID
}

// Business is what the end user supplies on activation.
type Business struct {
	Name string
	Type string
}

// ListResult is the scoped ledger with its seat counters.
type ListResult struct {
	Licenses []License   `json:"licenses"`
	Stats    seats.Stats `json:"stats"`
}

// AddResult is the outcome of a single add.
type AddResult struct {
	License   License
	EmailSent bool
}

// BatchResult is the outcome of add-multiple and import.
type BatchResult struct {
	Success      int       `json:"success"`
	Failed       int       `json:"failed"`
	EmailsSent   int       `json:"emailsSent"`
	EmailsFailed int       `json:"emailsFailed"`
	Errors       []string  `json:"errors"`
	Licenses     []Summary `json:"licenses"`
}

// StatusEntry is one license's delivery status after a sync.
type StatusEntry struct {
	LicenseID uuid.UUID `json:"licenseId"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
}

// SyncResult is the outcome of an email status sync.
type SyncResult struct {
	Synced   int           `json:"synced"`
	Statuses []StatusEntry `json:"statuses"`
}
