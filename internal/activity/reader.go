package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var ErrUnknownType = errors.New("unknown activity type")

// Filter selects a page of journal entries.
type Filter struct {
	Type   Type
	Limit  int
	Offset int
}

// Normalize applies the default limit and clamps limit and offset.
func (f Filter) Normalize() (Filter, error) {
	if f.Type != "" && !f.Type.IsValid() {
		return f, fmt.Errorf("%w: %s", ErrUnknownType, f.Type)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// List returns one page of a team's journal, newest first, together with
// the total number of entries matching the filter.
func (r *Reader) List(ctx context.Context, teamID uuid.UUID, f Filter) ([]Item, int, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	var typeFilter *string
	if f.Type != "" {
		t := string(f.Type)
		typeFilter = &t
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM activity_logs
		WHERE team_id = $1
		  AND ($2::text IS NULL OR activity_type = $2)
	`, teamID, typeFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
		  al.id,
		  al.team_id,
		  al.admin_id,
		  a.email,
		  a.first_name,
		  a.last_name,
		  al.activity_type,
		  al.description,
		  al.metadata,
		  al.created_at
		FROM activity_logs al
		LEFT JOIN admins a ON a.id = al.admin_id
		WHERE al.team_id = $1
		  AND ($2::text IS NULL OR al.activity_type = $2)
		ORDER BY al.created_at DESC, al.id DESC
		LIMIT $3 OFFSET $4
	`, teamID, typeFilter, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var item Item
		var adminID uuid.NullUUID
		var email, firstName, lastName *string
		var metaRaw []byte
		var activityType string

		if err := rows.Scan(&item.ID, &item.TeamID, &adminID, &email, &firstName, &lastName, &activityType, &item.Description, &metaRaw, &item.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity row: %w", err)
		}

		item.Type = Type(activityType)
		if adminID.Valid {
			item.AdminID = &adminID.UUID
		}
		if email != nil {
			item.AdminEmail = *email
		}
		item.AdminName = joinName(firstName, lastName)

		item.Metadata = map[string]any{}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &item.Metadata)
		}

		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating activity rows: %w", err)
	}

	return out, total, nil
}

func joinName(first, last *string) string {
	var parts []string
	if first != nil && *first != "" {
		parts = append(parts, *first)
	}
	if last != nil && *last != "" {
		parts = append(parts, *last)
	}
	return strings.Join(parts, " ")
}
