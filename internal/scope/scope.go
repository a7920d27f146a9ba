// Package scope identifies who owns a license or a seat counter: a solo
// admin or a team. Every ledger and seat operation takes a Scope instead of
// branching on whether a team id happens to be present.
package scope

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the two owner variants.
type Kind uint8

const (
	kindInvalid Kind = iota
	KindSolo
	KindTeam
)

func (k Kind) String() string {
	switch k {
	case KindSolo:
		return "solo"
	case KindTeam:
		return "team"
	default:
		return "invalid"
	}
}

// Scope is Solo(adminID) or Team(teamID). The zero value is invalid.
type Scope struct {
	kind Kind
	id   uuid.UUID
}

// Solo scopes to an admin without a team.
func Solo(adminID uuid.UUID) Scope {
	return Scope{kind: KindSolo, id: adminID}
}

// Team scopes to a team.
func Team(teamID uuid.UUID) Scope {
	return Scope{kind: KindTeam, id: teamID}
}

func (s Scope) Kind() Kind { return s.kind }

func (s Scope) IsTeam() bool { return s.kind == KindTeam }

func (s Scope) Valid() bool {
	return s.kind != kindInvalid && s.id != uuid.Nil
}

// ID is the admin or team id, depending on the kind.
func (s Scope) ID() uuid.UUID { return s.id }

// TeamID returns the team id when s is a team scope.
func (s Scope) TeamID() (uuid.UUID, bool) {
	if s.kind != KindTeam {
		return uuid.Nil, false
	}
	return s.id, true
}

// AdminID returns the admin id when s is a solo scope.
func (s Scope) AdminID() (uuid.UUID, bool) {
	if s.kind != KindSolo {
		return uuid.Nil, false
	}
	return s.id, true
}

// TeamPtr is a convenience for nullable team_id columns.
func (s Scope) TeamPtr() *uuid.UUID {
	if s.kind != KindTeam {
		return nil
	}
	id := s.id
	return &id
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.kind, s.id)
}

// Of derives the scope of a stored license row.
func Of(adminID uuid.UUID, teamID *uuid.UUID) Scope {
	if teamID != nil && *teamID != uuid.Nil {
		return Team(*teamID)
	}
	return Solo(adminID)
}
