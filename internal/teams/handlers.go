package teams

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/google/uuid"
)

type NameRequest struct {
	Name string `json:"name"`
}

type InviteRequest struct {
	Email string      `json:"email"`
	Role  policy.Role `json:"role"`
}

type CancelInvitationRequest struct {
	InvitationID string `json:"invitationId"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type MemberRequest struct {
	MemberID string      `json:"memberId"`
	Role     policy.Role `json:"role"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

func writeNoTeam(w http.ResponseWriter, r *http.Request, err error) bool {
	if errors.Is(err, ErrTeamNotFound) {
		apperrors.WriteNotFound(w, r, "Team not found")
		return true
	}
	return false
}

func domainList(domains []string) string {
	quoted := make([]string, len(domains))
	for i, d := range domains {
		quoted[i] = "@" + d
	}
	return strings.Join(quoted, " and ")
}

// HandleGet handles GET /api/team
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		overview, err := svc.Get(r.Context(), actor)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to fetch team")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, overview)
	}
}

// HandleRename handles PATCH /api/team
func HandleRename(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req NameRequest
		if !decodeBody(w, r, &req) {
			return
		}

		team, err := svc.Rename(r.Context(), actor, req.Name)
		if err != nil {
			switch {
			case errors.Is(err, validation.ErrNameRequired):
				apperrors.WriteBadRequest(w, r, "Team name is required")
			case errors.Is(err, validation.ErrNameTooLong):
				apperrors.WriteBadRequest(w, r, "Team name must be at most 100 characters")
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "Only team owners can update team settings")
			default:
				if !writeNoTeam(w, r, err) {
					apperrors.WriteUpstreamError(w, r, err, "Failed to update team")
				}
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"team": team})
	}
}

// HandleCreate handles POST /api/team/create. The body and its name are
// optional.
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req NameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		team, err := svc.Create(r.Context(), actor, req.Name)
		if err != nil {
			switch {
			case errors.Is(err, ErrAlreadyInTeam):
				apperrors.WriteBadRequest(w, r, "You are already a member of a team")
			case errors.Is(err, ErrDomainNotAllowed):
				apperrors.WriteForbidden(w, r, "Only "+domainList(svc.AllowedDomains())+" accounts can create teams")
			case errors.Is(err, validation.ErrNameTooLong):
				apperrors.WriteBadRequest(w, r, "Team name must be at most 100 characters")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to create team")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"success": true,
			"team": map[string]any{
				"id":     team.ID,
				"name":   team.Name,
				"domain": team.Domain,
			},
		})
	}
}

// HandleListInvitations handles GET /api/team/invite
func HandleListInvitations(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		invitations, err := svc.ListInvitations(r.Context(), actor)
		if err != nil {
			if writeNoTeam(w, r, err) {
				return
			}
			if errors.Is(err, ErrForbidden) {
				apperrors.WriteForbidden(w, r, "Forbidden")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to fetch invitations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invitations": invitations})
	}
}

// HandleInvite handles POST /api/team/invite
func HandleInvite(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req InviteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Role == "" {
			req.Role = policy.RoleMember
		}

		res, err := svc.Invite(r.Context(), actor, req.Email, req.Role)
		if err != nil {
			var domainErr *InviteDomainError
			switch {
			case errors.Is(err, validation.ErrEmailRequired):
				apperrors.WriteBadRequest(w, r, "Email is required")
			case errors.Is(err, validation.ErrInvalidEmail), errors.Is(err, validation.ErrEmailTooLong):
				apperrors.WriteBadRequest(w, r, "Invalid email format")
			case errors.Is(err, ErrInvalidRole):
				apperrors.WriteBadRequest(w, r, "Invalid role")
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "Only team owners and admins can invite members")
			case errors.As(err, &domainErr):
				apperrors.WriteBadRequest(w, r, "Only @"+domainErr.Domain+" emails can be invited to this team")
			case errors.Is(err, ErrSelfInvite):
				apperrors.WriteBadRequest(w, r, "You cannot invite yourself")
			case errors.Is(err, ErrAlreadyMember):
				apperrors.WriteBadRequest(w, r, "User is already a team member")
			case errors.Is(err, ErrInvitePending):
				apperrors.WriteBadRequest(w, r, "An invitation is already pending for this email")
			default:
				if !writeNoTeam(w, r, err) {
					apperrors.WriteUpstreamError(w, r, err, "Failed to create invitation")
				}
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"success": true,
			"invitation": map[string]any{
				"id":        res.Invitation.ID,
				"email":     res.Invitation.Email,
				"role":      res.Invitation.Role,
				"status":    res.Invitation.Status,
				"expiresAt": res.Invitation.ExpiresAt,
			},
			"emailSent": res.EmailSent,
			"acceptUrl": res.AcceptURL,
			"signupUrl": res.SignupURL,
		})
	}
}

// HandleCancelInvitation handles DELETE /api/team/invite. The id may come
// from the invitationId query parameter or the JSON body.
func HandleCancelInvitation(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		raw := r.URL.Query().Get("invitationId")
		if raw == "" && r.ContentLength != 0 {
			var req CancelInvitationRequest
			if !decodeBody(w, r, &req) {
				return
			}
			raw = req.InvitationID
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			apperrors.WriteBadRequest(w, r, "Invitation ID is required")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		if err := svc.Cancel(r.Context(), actor, id); err != nil {
			switch {
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "Only team owners and admins can cancel invitations")
			case errors.Is(err, ErrInvitationNotFound):
				apperrors.WriteNotFound(w, r, "Invitation not found")
			default:
				if !writeNoTeam(w, r, err) {
					apperrors.WriteUpstreamError(w, r, err, "Failed to cancel invitation")
				}
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"success": true})
	}
}

// HandlePreview handles GET /api/team/invite/accept?token=. It is public.
func HandlePreview(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			apperrors.WriteBadRequest(w, r, "Token is required")
			return
		}

		preview, err := svc.Preview(r.Context(), token)
		if err != nil {
			var inactive *InactiveInvitationError
			switch {
			case errors.Is(err, ErrInvitationNotFound):
				apperrors.WriteNotFound(w, r, "Invitation not found")
			case errors.Is(err, ErrInvitationExpired):
				apperrors.WriteBadRequest(w, r, "This invitation has expired")
			case errors.As(err, &inactive):
				apperrors.WriteBadRequest(w, r, "This invitation has already been "+string(inactive.Status))
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to load invitation")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invitation": preview})
	}
}

// HandleAccept handles POST /api/team/invite/accept
func HandleAccept(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		token := strings.TrimSpace(req.Token)
		if token == "" {
			apperrors.WriteBadRequest(w, r, "Invitation token is required")
			return
		}

		joined, err := svc.Accept(r.Context(), actor, token)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvitationInvalid):
				apperrors.WriteBadRequest(w, r, "Invalid or expired invitation")
			case errors.Is(err, ErrInvitationMismatch):
				apperrors.WriteForbidden(w, r, "This invitation is for a different email address")
			case errors.Is(err, ErrAlreadyMember):
				apperrors.WriteBadRequest(w, r, "You are already a member of this team")
			case errors.Is(err, ErrAlreadyInTeam):
				apperrors.WriteBadRequest(w, r, "You are already a member of another team. Please leave your current team first.")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to join team")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"success": true,
			"team":    joined.Team,
			"role":    joined.Role,
		})
	}
}

// HandleListMembers handles GET /api/team/members
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		members, err := svc.ListMembers(r.Context(), actor)
		if err != nil {
			if writeNoTeam(w, r, err) {
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to fetch members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members":         members,
			"currentUserRole": actor.Role,
		})
	}
}

func parseMemberID(w http.ResponseWriter, r *http.Request, raw, missing string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		apperrors.WriteBadRequest(w, r, missing)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid member ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleChangeRole handles PATCH /api/team/members
func HandleChangeRole(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req MemberRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Role == "" {
			apperrors.WriteBadRequest(w, r, "Member ID and role are required")
			return
		}
		memberID, ok := parseMemberID(w, r, req.MemberID, "Member ID and role are required")
		if !ok {
			return
		}

		if err := svc.ChangeRole(r.Context(), actor, memberID, req.Role); err != nil {
			switch {
			case errors.Is(err, ErrInvalidRole):
				apperrors.WriteBadRequest(w, r, "Invalid role")
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "Only team owners can change member roles")
			case errors.Is(err, ErrMemberNotFound):
				apperrors.WriteNotFound(w, r, "Member not found")
			case errors.Is(err, ErrCannotChangeOwner):
				apperrors.WriteBadRequest(w, r, "Cannot change owner role")
			default:
				if !writeNoTeam(w, r, err) {
					apperrors.WriteUpstreamError(w, r, err, "Failed to update role")
				}
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"success": true})
	}
}

// HandleRemoveMember handles DELETE /api/team/members
func HandleRemoveMember(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		raw := r.URL.Query().Get("memberId")
		if raw == "" && r.ContentLength != 0 {
			var req MemberRequest
			if !decodeBody(w, r, &req) {
				return
			}
			raw = req.MemberID
		}
		memberID, ok := parseMemberID(w, r, raw, "Member ID is required")
		if !ok {
			return
		}

		if err := svc.RemoveMember(r.Context(), actor, memberID); err != nil {
			switch {
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "Only team owners can remove members")
			case errors.Is(err, ErrMemberNotFound):
				apperrors.WriteNotFound(w, r, "Member not found")
			case errors.Is(err, ErrCannotChangeOwner):
				apperrors.WriteBadRequest(w, r, "Cannot remove team owner")
			default:
				if !writeNoTeam(w, r, err) {
					apperrors.WriteUpstreamError(w, r, err, "Failed to remove member")
				}
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"success": true})
	}
}
