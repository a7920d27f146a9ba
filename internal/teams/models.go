package teams

import (
	"errors"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
)

var (
	ErrTeamNotFound       = errors.New("team not found")
	ErrAlreadyInTeam      = errors.New("admin already belongs to a team")
	ErrDomainNotAllowed   = errors.New("email domain may not create teams")
	ErrMemberNotFound     = errors.New("member not found")
	ErrCannotChangeOwner  = errors.New("owner role cannot be changed or removed")
	ErrInvalidRole        = errors.New("invalid role")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrInviteDomain       = errors.New("invitee email must be on the team domain")
	ErrSelfInvite         = errors.New("cannot invite yourself")
	ErrAlreadyMember      = errors.New("user is already a team member")
	ErrInvitePending      = errors.New("an invitation is already pending for this email")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationInactive = errors.New("invitation is no longer pending")
	ErrInvitationMismatch = errors.New("invitation is for a different email address")
	ErrInvitationInvalid  = errors.New("invalid or expired invitation")
)

// InactiveInvitationError reports an invitation that was already accepted
// or revoked. It matches ErrInvitationInactive.
type InactiveInvitationError struct {
	Status InvitationStatus
}

func (e *InactiveInvitationError) Error() string {
	return "invitation has already been " + string(e.Status)
}

func (e *InactiveInvitationError) Is(target error) bool {
	return target == ErrInvitationInactive
}

// InviteDomainError rejects an invitee outside the team domain. It matches
// ErrInviteDomain.
type InviteDomainError struct {
	Domain string
}

func (e *InviteDomainError) Error() string {
	return "invitee email must be on @" + e.Domain
}

func (e *InviteDomainError) Is(target error) bool {
	return target == ErrInviteDomain
}

// InvitationStatus is the stored state of an invitation. Expiry is not a
// status: a pending invitation past expires_at is simply not actionable.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
)

type Team struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	Domain                string    `json:"domain"`
	OwnerID               uuid.UUID `json:"owner_id"`
	PurchasedLicenseCount int       `json:"purchased_license_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Member is a team membership joined with the admin's profile.
type Member struct {
	ID        uuid.UUID   `json:"id"`
	TeamID    uuid.UUID   `json:"team_id"`
	AdminID   uuid.UUID   `json:"admin_id"`
	Role      policy.Role `json:"role"`
	JoinedAt  time.Time   `json:"joined_at"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
}

type Invitation struct {
	ID         uuid.UUID        `json:"id"`
	TeamID     uuid.UUID        `json:"team_id"`
	Email      string           `json:"email"`
	Role       policy.Role      `json:"role"`
	Status     InvitationStatus `json:"status"`
	InvitedBy  uuid.UUID        `json:"invited_by"`
	ExpiresAt  time.Time        `json:"expires_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Actionable reports whether the invitation can still be accepted at now.
func (i Invitation) Actionable(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}

// InvitationDetails is an invitation with the team and inviter resolved,
// as shown before accepting.
type InvitationDetails struct {
	Invitation
	TeamName         string `json:"team_name"`
	TeamDomain       string `json:"team_domain"`
	InviterFirstName string `json:"-"`
	InviterLastName  string `json:"-"`
	InviterEmail     string `json:"inviter_email"`
}

// InviterName prefers the inviter's full name, falling back to the email.
func (d InvitationDetails) InviterName() string {
	inviter := policy.Actor{Email: d.InviterEmail, FirstName: d.InviterFirstName, LastName: d.InviterLastName}
	return inviter.DisplayName()
}

// NewTeam is a team creation request. Name and Domain must already be
// validated.
type NewTeam struct {
	Name    string
	Domain  string
	OwnerID uuid.UUID
}

// NewInvitation is an insert. Email must already be normalized.
type NewInvitation struct {
	TeamID    uuid.UUID
	Email     string
	Role      policy.Role
	InvitedBy uuid.UUID
	ExpiresAt time.Time
}

// Overview is the team page for one actor.
type Overview struct {
	HasTeam            bool         `json:"hasTeam"`
	Team               *Team        `json:"team"`
	UserRole           *policy.Role `json:"userRole"`
	IsOwner            bool         `json:"isOwner"`
	Members            []Member     `json:"members"`
	PendingInvitations []Invitation `json:"pendingInvitations"`
}
