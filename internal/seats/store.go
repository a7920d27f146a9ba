package seats

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOwnerNotFound is returned when the admin or team behind a scope does
// not exist.
var ErrOwnerNotFound = errors.New("seat owner not found")

// ErrReferenceConflict is returned when a purchase reference was already
// credited to a different scope.
var ErrReferenceConflict = errors.New("purchase reference belongs to another scope")

// Credit adds purchased seats to a scope.
type Credit struct {
	Scope     scope.Scope
	AdminID   uuid.UUID
	Count     int
	Reference string
	Source    string
}

// CreditResult is the scope's purchased total after a credit. Duplicate is
// set when Reference was already recorded for the same scope and nothing
// changed.
type CreditResult struct {
	Total     int
	Duplicate bool
}

// Store is the persistence used by Service.
type Store interface {
	Purchased(ctx context.Context, sc scope.Scope) (int, error)
	Counts(ctx context.Context, sc scope.Scope) (Counts, error)
	Credit(ctx context.Context, c Credit) (CreditResult, error)
	// TeamOf returns the team the admin belongs to. ok is false for solo
	// admins; ErrOwnerNotFound is returned for unknown admins.
	TeamOf(ctx context.Context, adminID uuid.UUID) (teamID uuid.UUID, ok bool, err error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func ownerTable(sc scope.Scope) string {
	if sc.IsTeam() {
		return "teams"
	}
	return "admins"
}

func (s *PGStore) Purchased(ctx context.Context, sc scope.Scope) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT purchased_license_count FROM `+ownerTable(sc)+` WHERE id = $1`, sc.ID(),
	).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOwnerNotFound
		}
		return 0, fmt.Errorf("failed to load purchased seats: %w", err)
	}
	return n, nil
}

func (s *PGStore) Counts(ctx context.Context, sc scope.Scope) (Counts, error) {
	where := `admin_id = $1 AND team_id IS NULL`
	if sc.IsTeam() {
		where = `team_id = $1`
	}

	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_activated)
		FROM licenses
		WHERE `+where, sc.ID()).Scan(&c.Assigned, &c.Activated)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count licenses: %w", err)
	}
	return c, nil
}

func (s *PGStore) Credit(ctx context.Context, c Credit) (CreditResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreditResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The owner row is locked first so an unknown owner never reaches the
	// seat_purchases foreign keys.
	var total int
	err = tx.QueryRow(ctx,
		`SELECT purchased_license_count FROM `+ownerTable(c.Scope)+` WHERE id = $1 FOR UPDATE`, c.Scope.ID(),
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditResult{}, ErrOwnerNotFound
		}
		return CreditResult{}, fmt.Errorf("failed to load purchased seats: %w", err)
	}

	var reference *string
	if c.Reference != "" {
		reference = &c.Reference
	}

	var teamID, adminID *uuid.UUID
	if id, ok := c.Scope.TeamID(); ok {
		teamID = &id
	}
	if id, ok := c.Scope.AdminID(); ok {
		adminID = &id
	} else if c.AdminID != uuid.Nil {
		adminID = &c.AdminID
	}

	var purchaseID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO seat_purchases (reference, admin_id, team_id, license_count, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reference) DO NOTHING
		RETURNING id
	`, reference, adminID, teamID, c.Count, c.Source).Scan(&purchaseID)
	if errors.Is(err, pgx.ErrNoRows) {
		owner, err := purchaseOwner(ctx, tx, c.Reference)
		if err != nil {
			return CreditResult{}, err
		}
		if owner != c.Scope {
			return CreditResult{}, ErrReferenceConflict
		}
		return CreditResult{Total: total, Duplicate: true}, nil
	}
	if err != nil {
		return CreditResult{}, fmt.Errorf("failed to record seat purchase: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE `+ownerTable(c.Scope)+`
		SET purchased_license_count = purchased_license_count + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING purchased_license_count
	`, c.Scope.ID(), c.Count).Scan(&total)
	if err != nil {
		return CreditResult{}, fmt.Errorf("failed to credit seats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CreditResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return CreditResult{Total: total}, nil
}

// purchaseOwner is the scope an already recorded reference was credited to.
func purchaseOwner(ctx context.Context, tx pgx.Tx, reference string) (scope.Scope, error) {
	var adminID, teamID uuid.NullUUID
	err := tx.QueryRow(ctx,
		`SELECT admin_id, team_id FROM seat_purchases WHERE reference = $1`, reference,
	).Scan(&adminID, &teamID)
	if err != nil {
		return scope.Scope{}, fmt.Errorf("failed to load seat purchase %q: %w", reference, err)
	}
	if teamID.Valid {
		return scope.Team(teamID.UUID), nil
	}
	return scope.Solo(adminID.UUID), nil
}

func (s *PGStore) TeamOf(ctx context.Context, adminID uuid.UUID) (uuid.UUID, bool, error) {
	var teamID uuid.NullUUID
	err := s.pool.QueryRow(ctx, `
		SELECT tm.team_id
		FROM admins a
		LEFT JOIN team_members tm ON tm.admin_id = a.id
		WHERE a.id = $1
	`, adminID).Scan(&teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, ErrOwnerNotFound
		}
		return uuid.Nil, false, fmt.Errorf("failed to resolve team: %w", err)
	}
	return teamID.UUID, teamID.Valid, nil
}
