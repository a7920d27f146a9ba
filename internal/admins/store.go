package admins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("admin not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Admin is a portal account.
type Admin struct {
	ID                    uuid.UUID `json:"id"`
	Email                 string    `json:"email"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	PurchasedLicenseCount int       `json:"purchased_license_count"`
	CreatedAt             time.Time `json:"created_at"`
}

// NewAdmin carries the fields needed to register an account. Email must
// already be normalized.
type NewAdmin struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, in NewAdmin) (*Admin, error) {
	var a Admin
	err := s.pool.QueryRow(ctx, `
		INSERT INTO admins (email, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, first_name, last_name, purchased_license_count, created_at
	`, in.Email, in.PasswordHash, in.FirstName, in.LastName).Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PurchasedLicenseCount, &a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return &a, nil
}

// Credentials returns the id and password hash for a login attempt.
func (s *Store) Credentials(ctx context.Context, email string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT id, password_hash FROM admins WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", ErrNotFound
		}
		return uuid.Nil, "", fmt.Errorf("failed to load credentials: %w", err)
	}
	return id, hash, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return s.getOne(ctx, `WHERE email = $1`, email)
}

func (s *Store) getOne(ctx context.Context, where string, arg any) (*Admin, error) {
	var a Admin
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, first_name, last_name, purchased_license_count, created_at
		FROM admins
		`+where, arg).Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PurchasedLicenseCount, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	return &a, nil
}

// UpdatePassword replaces the hash for the account with the given email.
func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE admins SET password_hash = $2, updated_at = NOW() WHERE email = $1
	`, email, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveActor loads the admin together with their team membership.
func (s *Store) ResolveActor(ctx context.Context, adminID uuid.UUID) (*policy.Actor, error) {
	var actor policy.Actor
	var teamID, memberID uuid.NullUUID
	var role *string

	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.email, a.first_name, a.last_name, tm.team_id, tm.id, tm.role
		FROM admins a
		LEFT JOIN team_members tm ON tm.admin_id = a.id
		WHERE a.id = $1
	`, adminID).Scan(&actor.AdminID, &actor.Email, &actor.FirstName, &actor.LastName, &teamID, &memberID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve actor: %w", err)
	}

	if teamID.Valid {
		actor.TeamID = &teamID.UUID
		actor.MemberID = &memberID.UUID
		if role != nil {
			actor.Role = policy.Role(*role)
		}
	}

	return &actor, nil
}
