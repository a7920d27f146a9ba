package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Type names a journaled action.
type Type string

const (
	TypeLicenseAdded        Type = "license_added"
	TypeLicensesImported    Type = "licenses_imported"
	TypeLicenseRemoved      Type = "license_removed"
	TypeLicenseResend       Type = "license_resend"
	TypeLicenseEmailUpdated Type = "license_email_updated"
	TypeLicensesPurchased   Type = "licenses_purchased"
	TypeMemberInvited       Type = "member_invited"
	TypeMemberJoined        Type = "member_joined"
	TypeMemberRoleChanged   Type = "member_role_changed"
	TypeMemberRemoved       Type = "member_removed"
	TypeTeamSettingsUpdated Type = "team_settings_updated"
)

var knownTypes = map[Type]bool{
	TypeLicenseAdded:        true,
	TypeLicensesImported:    true,
	TypeLicenseRemoved:      true,
	TypeLicenseResend:       true,
	TypeLicenseEmailUpdated: true,
	TypeLicensesPurchased:   true,
	TypeMemberInvited:       true,
	TypeMemberJoined:        true,
	TypeMemberRoleChanged:   true,
	TypeMemberRemoved:       true,
	TypeTeamSettingsUpdated: true,
}

func (t Type) IsValid() bool {
	return knownTypes[t]
}

// Entry is one journal write. Entries for solo scopes are dropped: the
// journal only exists for teams.
type Entry struct {
	Scope       scope.Scope
	AdminID     uuid.UUID
	Type        Type
	Description string
	Metadata    map[string]any
}

// Recorder is the write side of the journal as seen by other packages.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Writer appends entries to activity_logs.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

func (w *Writer) Record(ctx context.Context, e Entry) error {
	teamID, ok := e.Scope.TeamID()
	if !ok {
		return nil
	}

	metaJSON := []byte("{}")
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal activity metadata: %w", err)
		}
		metaJSON = b
	}

	// Service-key purchases have no acting admin.
	var adminID *uuid.UUID
	if e.AdminID != uuid.Nil {
		adminID = &e.AdminID
	}

	_, err := w.pool.Exec(ctx, `
		INSERT INTO activity_logs (team_id, admin_id, activity_type, description, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, teamID, adminID, string(e.Type), e.Description, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("activity_type", string(e.Type)).Msg("Failed to write activity log")
		return fmt.Errorf("failed to write activity log: %w", err)
	}

	log.Info().
		Str("activity_type", string(e.Type)).
		Str("team_id", teamID.String()).
		Str("admin_id", e.AdminID.String()).
		Msg("Activity recorded")

	return nil
}

// RecordOrLog writes e and logs instead of returning a failure. Journal
// writes never fail the operation that triggered them.
func RecordOrLog(ctx context.Context, r Recorder, e Entry) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil {
		log.Error().Err(err).Str("activity_type", string(e.Type)).Msg("Failed to record activity")
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func LicenseAdded(sc scope.Scope, adminID uuid.UUID, licenseID uuid.UUID, email string) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicenseAdded,
		Description: "Added license for " + email,
		Metadata:    map[string]any{"license_id": licenseID.String(), "email": email},
	}
}

func LicensesAdded(sc scope.Scope, adminID uuid.UUID, added, failed int) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicenseAdded,
		Description: "Added " + plural(added, "license"),
		Metadata:    map[string]any{"count": added, "failed": failed},
	}
}

func LicensesImported(sc scope.Scope, adminID uuid.UUID, imported, failed int) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicensesImported,
		Description: fmt.Sprintf("Imported %s from CSV", plural(imported, "license")),
		Metadata:    map[string]any{"count": imported, "failed": failed},
	}
}

func LicenseRemoved(sc scope.Scope, adminID, licenseID uuid.UUID, email string) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicenseRemoved,
		Description: "Removed license for " + email,
		Metadata:    map[string]any{"license_id": licenseID.String(), "email": email},
	}
}

func LicenseResent(sc scope.Scope, adminID, licenseID uuid.UUID, email string) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicenseResend,
		Description: "Resent activation email to " + email,
		Metadata:    map[string]any{"license_id": licenseID.String(), "email": email},
	}
}

func LicenseEmailUpdated(sc scope.Scope, adminID, licenseID uuid.UUID, oldEmail, newEmail string) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicenseEmailUpdated,
		Description: fmt.Sprintf("Updated license email from %s to %s", oldEmail, newEmail),
		Metadata: map[string]any{
			"license_id": licenseID.String(),
			"old_email":  oldEmail,
			"new_email":  newEmail,
		},
	}
}

func LicensesPurchased(sc scope.Scope, adminID uuid.UUID, count int, source string) Entry {
	return Entry{
		Scope:       sc,
		AdminID:     adminID,
		Type:        TypeLicensesPurchased,
		Description: fmt.Sprintf("Purchased %d license(s)", count),
		Metadata:    map[string]any{"count": count, "source": source},
	}
}

func TeamCreated(teamID, adminID uuid.UUID, name string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeTeamSettingsUpdated,
		Description: fmt.Sprintf("Created team %q", name),
		Metadata:    map[string]any{"name": name},
	}
}

func TeamRenamed(teamID, adminID uuid.UUID, oldName, newName string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeTeamSettingsUpdated,
		Description: fmt.Sprintf("Team name updated to %q", newName),
		Metadata:    map[string]any{"old_name": oldName, "new_name": newName},
	}
}

func MemberInvited(teamID, adminID, invitationID uuid.UUID, email, role string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeMemberInvited,
		Description: fmt.Sprintf("Invited %s to join the team as %s", email, role),
		Metadata: map[string]any{
			"invitation_id": invitationID.String(),
			"email":         email,
			"role":          role,
		},
	}
}

func MemberJoined(teamID, adminID, invitationID uuid.UUID, email, role string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeMemberJoined,
		Description: fmt.Sprintf("%s joined the team as %s", email, role),
		Metadata:    map[string]any{"invitation_id": invitationID.String(), "role": role},
	}
}

func MemberRoleChanged(teamID, adminID, memberID uuid.UUID, email, previousRole, newRole string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeMemberRoleChanged,
		Description: fmt.Sprintf("Changed %s's role from %s to %s", email, previousRole, newRole),
		Metadata: map[string]any{
			"member_id":     memberID.String(),
			"previous_role": previousRole,
			"new_role":      newRole,
		},
	}
}

func MemberRemoved(teamID, adminID, memberID uuid.UUID, email, role string) Entry {
	return Entry{
		Scope:       scope.Team(teamID),
		AdminID:     adminID,
		Type:        TypeMemberRemoved,
		Description: fmt.Sprintf("Removed %s from the team", email),
		Metadata:    map[string]any{"member_id": memberID.String(), "role": role},
	}
}

// Item is one journal row as returned to readers.
type Item struct {
	ID          uuid.UUID      `json:"id"`
	TeamID      uuid.UUID      `json:"team_id"`
	AdminID     *uuid.UUID     `json:"admin_id,omitempty"`
	AdminEmail  string         `json:"admin_email,omitempty"`
	AdminName   string         `json:"admin_name,omitempty"`
	Type        Type           `json:"activity_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}
