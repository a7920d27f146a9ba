// Package policy centralizes who may do what to licenses and teams.
package policy

import (
	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
)

// Role is a team member's role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// CanInvite reports whether the role may manage invitations.
func (r Role) CanInvite() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Invitable reports whether an invitation may grant the role.
func (r Role) Invitable() bool {
	return r == RoleAdmin || r == RoleMember
}

// Actor is the authenticated admin making a request, with their team
// membership (if any) resolved.
type Actor struct {
	AdminID   uuid.UUID
	Email     string
	FirstName string
	LastName  string

	TeamID   *uuid.UUID
	MemberID *uuid.UUID
	Role     Role
}

// HasTeam reports whether the actor belongs to a team.
func (a Actor) HasTeam() bool {
	return a.TeamID != nil && *a.TeamID != uuid.Nil
}

// Scope is the owner scope the actor's licenses and seats live in.
func (a Actor) Scope() scope.Scope {
	if a.HasTeam() {
		return scope.Team(*a.TeamID)
	}
	return scope.Solo(a.AdminID)
}

// DisplayName prefers "First Last", falling back to the email.
func (a Actor) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	default:
		return a.Email
	}
}

func (a Actor) inTeam(teamID uuid.UUID) bool {
	return a.HasTeam() && *a.TeamID == teamID
}

// Action is an operation subject to authorization.
type Action int

const (
	ViewLicenses Action = iota
	ManageLicense
	PurchaseSeats
	CreateTeam
	ViewTeam
	UpdateTeam
	InviteMember
	CancelInvitation
	ChangeMemberRole
	RemoveMember
	ViewActivity
)

// Resource is what an action targets. Scope is the owner of a license or
// seat counter; TeamID and TargetRole describe a team or one of its members.
type Resource struct {
	Scope      scope.Scope
	TeamID     uuid.UUID
	TargetRole Role
}

// Can reports whether actor may perform action on res.
func Can(actor Actor, action Action, res Resource) bool {
	if actor.AdminID == uuid.Nil {
		return false
	}

	switch action {
	case ViewLicenses, ManageLicense:
		if id, ok := res.Scope.TeamID(); ok {
			return actor.inTeam(id)
		}
		if id, ok := res.Scope.AdminID(); ok {
			return actor.AdminID == id
		}
		return false

	case PurchaseSeats:
		return res.Scope.Valid() && res.Scope == actor.Scope()

	case CreateTeam:
		return !actor.HasTeam()

	case ViewTeam, ViewActivity:
		return actor.inTeam(res.TeamID)

	case UpdateTeam:
		return actor.inTeam(res.TeamID) && actor.Role == RoleOwner

	case InviteMember, CancelInvitation:
		return actor.inTeam(res.TeamID) && actor.Role.CanInvite()

	case ChangeMemberRole, RemoveMember:
		return actor.inTeam(res.TeamID) && actor.Role == RoleOwner && res.TargetRole != RoleOwner

	default:
		return false
	}
}
