package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence used by Service.
type Store interface {
	GetTeam(ctx context.Context, id uuid.UUID) (*Team, error)
	// CreateTeam inserts the team and its owner membership, and moves the
	// owner's solo licenses and purchased seats into it.
	CreateTeam(ctx context.Context, in NewTeam) (*Team, error)
	RenameTeam(ctx context.Context, id uuid.UUID, name string) (*Team, error)

	ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error)
	GetMember(ctx context.Context, teamID, memberID uuid.UUID) (*Member, error)
	IsMemberEmail(ctx context.Context, teamID uuid.UUID, email string) (bool, error)
	UpdateMemberRole(ctx context.Context, teamID, memberID uuid.UUID, role policy.Role) error
	DeleteMember(ctx context.Context, teamID, memberID uuid.UUID) error

	// CreateInvitation stores a new invitation and returns it with the
	// plaintext token. Only the token hash is persisted.
	CreateInvitation(ctx context.Context, in NewInvitation) (*Invitation, string, error)
	HasPendingInvitation(ctx context.Context, teamID uuid.UUID, email string, now time.Time) (bool, error)
	ListPendingInvitations(ctx context.Context, teamID uuid.UUID, now time.Time) ([]Invitation, error)
	RevokeInvitation(ctx context.Context, teamID, invitationID uuid.UUID) error
	InvitationByTokenHash(ctx context.Context, tokenHash []byte) (*InvitationDetails, error)
	// AcceptInvitation joins adminID to the invited team under a row lock.
	AcceptInvitation(ctx context.Context, tokenHash []byte, adminID uuid.UUID, email string, now time.Time) (*Invitation, *Team, error)
	// SweepInvitations deletes invitations that stopped being actionable
	// before cutoff and returns how many were removed.
	SweepInvitations(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const teamColumns = `id, name, domain, owner_id, purchased_license_count, created_at, updated_at`

func scanTeam(row pgx.Row) (*Team, error) {
	var t Team
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.OwnerID, &t.PurchasedLicenseCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	return &t, nil
}

func (s *PGStore) GetTeam(ctx context.Context, id uuid.UUID) (*Team, error) {
	return scanTeam(s.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
}

func (s *PGStore) CreateTeam(ctx context.Context, in NewTeam) (*Team, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var balance int
	err = tx.QueryRow(ctx, `
		SELECT purchased_license_count FROM admins WHERE id = $1 FOR UPDATE
	`, in.OwnerID).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	team, err := scanTeam(tx.QueryRow(ctx, `
		INSERT INTO teams (name, domain, owner_id, purchased_license_count)
		VALUES ($1, $2, $3, $4)
		RETURNING `+teamColumns, in.Name, in.Domain, in.OwnerID, balance))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO team_members (team_id, admin_id, role)
		VALUES ($1, $2, $3)
	`, team.ID, in.OwnerID, policy.RoleOwner); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyInTeam
		}
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE licenses SET team_id = $2, performed_by = $1
		WHERE admin_id = $1 AND team_id IS NULL
	`, in.OwnerID, team.ID); err != nil {
		return nil, fmt.Errorf("failed to move licenses: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE admins SET purchased_license_count = 0, updated_at = NOW() WHERE id = $1
	`, in.OwnerID); err != nil {
		return nil, fmt.Errorf("failed to move purchased seats: %w", err)
	}

	// Purchase references follow the seats, so replaying an earlier payment
	// against the new team is still recognised as a duplicate.
	if _, err := tx.Exec(ctx, `
		UPDATE seat_purchases SET team_id = $2
		WHERE admin_id = $1 AND team_id IS NULL
	`, in.OwnerID, team.ID); err != nil {
		return nil, fmt.Errorf("failed to move seat purchases: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return team, nil
}

func (s *PGStore) RenameTeam(ctx context.Context, id uuid.UUID, name string) (*Team, error) {
	return scanTeam(s.pool.QueryRow(ctx, `
		UPDATE teams SET name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+teamColumns, id, name))
}

const memberSelect = `
	SELECT tm.id, tm.team_id, tm.admin_id, tm.role, tm.joined_at, a.email, a.first_name, a.last_name
	FROM team_members tm
	INNER JOIN admins a ON a.id = tm.admin_id
`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.TeamID, &m.AdminID, &m.Role, &m.JoinedAt, &m.Email, &m.FirstName, &m.LastName); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PGStore) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	rows, err := s.pool.Query(ctx, memberSelect+`
		WHERE tm.team_id = $1
		ORDER BY tm.joined_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func (s *PGStore) GetMember(ctx context.Context, teamID, memberID uuid.UUID) (*Member, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, memberSelect+`
		WHERE tm.team_id = $1 AND tm.id = $2
	`, teamID, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return m, nil
}

func (s *PGStore) IsMemberEmail(ctx context.Context, teamID uuid.UUID, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM team_members tm
		  INNER JOIN admins a ON a.id = tm.admin_id
		  WHERE tm.team_id = $1 AND a.email = $2
		)
	`, teamID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (s *PGStore) UpdateMemberRole(ctx context.Context, teamID, memberID uuid.UUID, role policy.Role) error {
	// The owner row is never rewritten here; ownership does not transfer.
	tag, err := s.pool.Exec(ctx, `
		UPDATE team_members SET role = $3
		WHERE team_id = $1 AND id = $2 AND role <> 'owner'
	`, teamID, memberID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *PGStore) DeleteMember(ctx context.Context, teamID, memberID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM team_members
		WHERE team_id = $1 AND id = $2 AND role <> 'owner'
	`, teamID, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

const invitationColumns = `id, team_id, email, role, status, invited_by, expires_at, accepted_at, created_at`

func scanInvitation(row pgx.Row, dest ...any) (*Invitation, error) {
	var inv Invitation
	fields := []any{
		&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.Status,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt,
	}
	if err := row.Scan(append(fields, dest...)...); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PGStore) CreateInvitation(ctx context.Context, in NewInvitation) (*Invitation, string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		token, err := NewInviteToken()
		if err != nil {
			return nil, "", err
		}

		inv, err := scanInvitation(s.pool.QueryRow(ctx, `
			INSERT INTO team_invitations (team_id, email, role, token_hash, invited_by, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+invitationColumns,
			in.TeamID, in.Email, in.Role, token.Hash(), in.InvitedBy, in.ExpiresAt))
		if err == nil {
			return inv, string(token), nil
		}
		if isUniqueViolation(err) {
			// Token hash collision; retry with a fresh token.
			continue
		}
		return nil, "", fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil, "", fmt.Errorf("failed to create invitation: token collision retry exhausted")
}

func (s *PGStore) HasPendingInvitation(ctx context.Context, teamID uuid.UUID, email string, now time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM team_invitations
		  WHERE team_id = $1 AND email = $2 AND status = 'pending' AND expires_at > $3
		)
	`, teamID, email, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invitations: %w", err)
	}
	return exists, nil
}

func (s *PGStore) ListPendingInvitations(ctx context.Context, teamID uuid.UUID, now time.Time) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM team_invitations
		WHERE team_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
	`, teamID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return invitations, nil
}

func (s *PGStore) RevokeInvitation(ctx context.Context, teamID, invitationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE team_invitations SET status = 'revoked'
		WHERE id = $1 AND team_id = $2 AND status = 'pending'
	`, invitationID, teamID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

func (s *PGStore) InvitationByTokenHash(ctx context.Context, tokenHash []byte) (*InvitationDetails, error) {
	var d InvitationDetails
	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		SELECT i.id, i.team_id, i.email, i.role, i.status, i.invited_by, i.expires_at, i.accepted_at, i.created_at,
		       t.name, t.domain, a.first_name, a.last_name, a.email
		FROM team_invitations i
		INNER JOIN teams t ON t.id = i.team_id
		INNER JOIN admins a ON a.id = i.invited_by
		WHERE i.token_hash = $1
	`, tokenHash), &d.TeamName, &d.TeamDomain, &d.InviterFirstName, &d.InviterLastName, &d.InviterEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	d.Invitation = *inv
	return &d, nil
}

func (s *PGStore) AcceptInvitation(ctx context.Context, tokenHash []byte, adminID uuid.UUID, email string, now time.Time) (*Invitation, *Team, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM team_invitations
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrInvitationInvalid
		}
		return nil, nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if !inv.Actionable(now) {
		return nil, nil, ErrInvitationInvalid
	}
	if !strings.EqualFold(inv.Email, email) {
		return nil, nil, ErrInvitationMismatch
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO team_members (team_id, admin_id, role)
		VALUES ($1, $2, $3)
	`, inv.TeamID, adminID, inv.Role); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrAlreadyInTeam
		}
		return nil, nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		UPDATE team_invitations SET status = 'accepted', accepted_at = $2
		WHERE id = $1
		RETURNING accepted_at
	`, inv.ID, now).Scan(&inv.AcceptedAt); err != nil {
		return nil, nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	inv.Status = InvitationAccepted

	team, err := scanTeam(tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, inv.TeamID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inv, team, nil
}

func (s *PGStore) SweepInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM team_invitations
		WHERE (status = 'pending' AND expires_at < $1)
		   OR (status = 'revoked' AND created_at < $1)
		   OR (status = 'accepted' AND accepted_at < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
