package activity

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
)

// Lister is the read side of the journal.
type Lister interface {
	List(ctx context.Context, teamID uuid.UUID, f Filter) ([]Item, int, error)
}

// HandleList handles GET /api/team/activity
func HandleList(lister Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		q := r.URL.Query()
		f := Filter{Type: Type(q.Get("type"))}
		if raw := q.Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid limit")
				return
			}
			f.Limit = v
		}
		if raw := q.Get("offset"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid offset")
				return
			}
			f.Offset = v
		}

		f, err := f.Normalize()
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				apperrors.WriteBadRequest(w, r, "Unknown activity type")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to list activity")
			return
		}

		if !actor.HasTeam() {
			apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
				"activities": []Item{},
				"total":      0,
				"limit":      f.Limit,
				"offset":     f.Offset,
				"hasTeam":    false,
			})
			return
		}

		teamID := *actor.TeamID
		if !policy.Can(actor, policy.ViewActivity, policy.Resource{TeamID: teamID}) {
			apperrors.WriteForbidden(w, r, "Insufficient permissions")
			return
		}

		items, total, err := lister.List(r.Context(), teamID, f)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to list activity")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"activities": items,
			"total":      total,
			"limit":      f.Limit,
			"offset":     f.Offset,
			"hasTeam":    true,
		})
	}
}
