package licenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a license does not exist
	ErrNotFound = errors.New("license not found")

	// ErrDuplicateEmail is returned when the email already has a license in the scope
	ErrDuplicateEmail = errors.New("license already exists for email")

	// ErrAlreadyActivated is returned when a change requires an unactivated license
	ErrAlreadyActivated = errors.New("license is already activated")
)

// Store is the persistence used by Service.
type Store interface {
	List(ctx context.Context, sc scope.Scope) ([]License, error)
	Get(ctx context.Context, id uuid.UUID) (*License, error)
	// ExistingEmails returns which of emails already hold a license in sc.
	ExistingEmails(ctx context.Context, sc scope.Scope, emails []string) (map[string]bool, error)
	Insert(ctx context.Context, in NewLicense) (*License, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdateEmail changes the email of an unactivated license and clears
	// its delivery fields.
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*License, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, messageID, status string) error
	SetEmailStatus(ctx context.Context, id uuid.UUID, status string) error
	Activate(ctx context.Context, id uuid.UUID, b Business) (*License, error)
	// WithMessageID lists the licenses in sc that have been emailed.
	WithMessageID(ctx context.Context, sc scope.Scope) ([]License, error)
	// AwaitingDelivery lists licenses across every scope whose last known
	// status is still "sent", oldest first.
	AwaitingDelivery(ctx context.Context, limit int) ([]License, error)
}

const licenseColumns = `
	id, email, admin_id, team_id, performed_by, is_activated,
	business_name, business_type, message_id, email_status, created_at, activated_at
`

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	err := row.Scan(
		&l.ID,
		&l.Email,
		&l.AdminID,
		&l.TeamID,
		&l.PerformedBy,
		&l.IsActivated,
		&l.BusinessName,
		&l.BusinessType,
		&l.MessageID,
		&l.EmailStatus,
		&l.CreatedAt,
		&l.ActivatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLicenses(rows pgx.Rows) ([]License, error) {
	defer rows.Close()

	out := []License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate licenses: %w", err)
	}
	return out, nil
}

// scopeFilter is the WHERE clause selecting sc's licenses with sc.ID() as $1.
func scopeFilter(sc scope.Scope) string {
	if sc.IsTeam() {
		return `team_id = $1`
	}
	return `admin_id = $1 AND team_id IS NULL`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) List(ctx context.Context, sc scope.Scope) ([]License, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE `+scopeFilter(sc)+`
		ORDER BY created_at DESC
	`, sc.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return collectLicenses(rows)
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*License, error) {
	l, err := scanLicense(s.pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

func (s *PGStore) ExistingEmails(ctx context.Context, sc scope.Scope, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT lower(email)
		FROM licenses
		WHERE `+scopeFilter(sc)+` AND lower(email) = ANY($2)
	`, sc.ID(), emails)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing licenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		out[email] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	return out, nil
}

func (s *PGStore) Insert(ctx context.Context, in NewLicense) (*License, error) {
	l, err := scanLicense(s.pool.QueryRow(ctx, `
		INSERT INTO licenses (email, admin_id, team_id, performed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING `+licenseColumns,
		in.Email, in.AdminID, in.Scope.TeamPtr(), in.PerformedBy,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert license: %w", err)
	}
	return l, nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*License, error) {
	l, err := scanLicense(s.pool.QueryRow(ctx, `
		UPDATE licenses
		SET email = $2, message_id = NULL, email_status = NULL
		WHERE id = $1 AND NOT is_activated
		RETURNING `+licenseColumns,
		id, email,
	))
	if err == nil {
		return l, nil
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicateEmail
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.whyUnchanged(ctx, id)
	}
	return nil, fmt.Errorf("failed to update license email: %w", err)
}

func (s *PGStore) RecordDelivery(ctx context.Context, id uuid.UUID, messageID, status string) error {
	var mid *string
	if messageID != "" {
		mid = &messageID
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE licenses SET message_id = $2, email_status = $3 WHERE id = $1
	`, id, mid, status)
	if err != nil {
		return fmt.Errorf("failed to record email delivery: %w", err)
	}
	return nil
}

func (s *PGStore) SetEmailStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE licenses SET email_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update email status: %w", err)
	}
	return nil
}

func (s *PGStore) Activate(ctx context.Context, id uuid.UUID, b Business) (*License, error) {
	l, err := scanLicense(s.pool.QueryRow(ctx, `
		UPDATE licenses
		SET is_activated = TRUE, activated_at = NOW(), business_name = $2, business_type = $3
		WHERE id = $1 AND NOT is_activated
		RETURNING `+licenseColumns,
		id, b.Name, b.Type,
	))
	if err == nil {
		return l, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.whyUnchanged(ctx, id)
	}
	return nil, fmt.Errorf("failed to activate license: %w", err)
}

// whyUnchanged explains a conditional update that matched no row.
func (s *PGStore) whyUnchanged(ctx context.Context, id uuid.UUID) error {
	var activated bool
	err := s.pool.QueryRow(ctx, `SELECT is_activated FROM licenses WHERE id = $1`, id).Scan(&activated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get license: %w", err)
	}
	if activated {
		return ErrAlreadyActivated
	}
	return fmt.Errorf("license %s was not updated", id)
}

func (s *PGStore) WithMessageID(ctx context.Context, sc scope.Scope) ([]License, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE `+scopeFilter(sc)+` AND message_id IS NOT NULL
		ORDER BY created_at DESC
	`, sc.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list emailed licenses: %w", err)
	}
	return collectLicenses(rows)
}

func (s *PGStore) AwaitingDelivery(ctx context.Context, limit int) ([]License, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+licenseColumns+`
		FROM licenses
		WHERE email_status = 'sent' AND message_id IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses awaiting delivery: %w", err)
	}
	return collectLicenses(rows)
}
