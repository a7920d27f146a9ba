package seats

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HandleStats handles GET /api/licenses/stats
func HandleStats(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		stats, err := svc.Stats(r.Context(), actor.Scope())
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to fetch license stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, stats)
	}
}

// HandlePurchaseRedirect handles GET /api/licenses/purchase, the browser
// redirect back from the payment page. It always answers with a redirect
// to the dashboard (or to login when there is no session).
func HandlePurchaseRedirect(svc *Service, baseURL string) http.HandlerFunc {
	dashboard := baseURL + "/admin/dashboard"
	fail := func(w http.ResponseWriter, r *http.Request, reason string) {
		http.Redirect(w, r, dashboard+"?error="+url.QueryEscape(reason), http.StatusSeeOther)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("payment") != "successful" || q.Get("paymentType") != "license_purchase" {
			log.Info().Str("payment", q.Get("payment")).Msg("Payment redirect without successful payment")
			fail(w, r, "payment_failed")
			return
		}

		count, err := strconv.Atoi(q.Get("licenseCount"))
		if err != nil || count < 1 || count > MaxPurchase {
			fail(w, r, "invalid_license_count")
			return
		}

		actor, ok := auth.GetActor(r.Context())
		if !ok {
			http.Redirect(w, r, baseURL+"/login?error=unauthorized&redirect=/admin/dashboard", http.StatusSeeOther)
			return
		}

		res, err := svc.Purchase(r.Context(), Purchase{
			Scope:     actor.Scope(),
			AdminID:   actor.AdminID,
			Count:     count,
			Reference: strings.TrimSpace(q.Get("reference")),
			Source:    SourcePaymentRedirect,
		})
		if errors.Is(err, ErrReferenceConflict) {
			log.Warn().Str("admin_id", actor.AdminID.String()).Msg("Payment reference already credited to another account")
			fail(w, r, "duplicate_reference")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("admin_id", actor.AdminID.String()).Msg("Failed to credit purchased seats")
			fail(w, r, "update_failed")
			return
		}

		v := url.Values{}
		v.Set("success", "purchase_complete")
		v.Set("licenses_added", strconv.Itoa(count))
		v.Set("total_licenses", strconv.Itoa(res.Total))
		if res.Duplicate {
			v.Set("licenses_added", "0")
		}
		http.Redirect(w, r, dashboard+"?"+v.Encode(), http.StatusSeeOther)
	}
}

// PurchaseRequest is the body of POST /api/licenses/purchase.
type PurchaseRequest struct {
	AdminID      *uuid.UUID      `json:"adminId"`
	TeamID       *uuid.UUID      `json:"teamId"`
	LicenseCount json.RawMessage `json:"licenseCount"`
	Reference    string          `json:"reference"`
}

// parseCount accepts the count as a JSON number or a numeric string.
func parseCount(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, ErrInvalidCount
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, ErrInvalidCount
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidCount
	}
	return n, nil
}

// HandlePurchase handles POST /api/licenses/purchase, called by the payment
// partner with the service key.
func HandlePurchase(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PurchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.AdminID == nil && req.TeamID == nil {
			apperrors.WriteBadRequest(w, r, "Missing required parameters: (adminId or teamId) and licenseCount")
			return
		}

		count, err := parseCount(req.LicenseCount)
		if err != nil || count < 1 || count > MaxPurchase {
			apperrors.WriteBadRequest(w, r, "Invalid license count")
			return
		}

		var sc scope.Scope
		var adminID uuid.UUID
		if req.TeamID != nil {
			sc = scope.Team(*req.TeamID)
		} else {
			adminID = *req.AdminID
			sc, err = svc.ScopeForAdmin(r.Context(), adminID)
			if err != nil {
				if errors.Is(err, ErrOwnerNotFound) {
					apperrors.WriteNotFound(w, r, "Admin not found")
					return
				}
				apperrors.WriteUpstreamError(w, r, err, "Failed to update license count")
				return
			}
		}

		res, err := svc.Purchase(r.Context(), Purchase{
			Scope:     sc,
			AdminID:   adminID,
			Count:     count,
			Reference: strings.TrimSpace(req.Reference),
			Source:    SourceServiceKey,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrOwnerNotFound):
				if sc.IsTeam() {
					apperrors.WriteNotFound(w, r, "Team not found")
				} else {
					apperrors.WriteNotFound(w, r, "Admin not found")
				}
			case errors.Is(err, ErrInvalidCount):
				apperrors.WriteBadRequest(w, r, "Invalid license count")
			case errors.Is(err, ErrReferenceConflict):
				apperrors.WriteConflict(w, r, "Reference already used for another account")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to update license count")
			}
			return
		}

		added := count
		if res.Duplicate {
			added = 0
		}

		resp := map[string]any{
			"licenses_added": added,
			"total_licenses": res.Total,
			"duplicate":      res.Duplicate,
		}
		if id, ok := sc.TeamID(); ok {
			resp["team_id"] = id
		} else {
			resp["admin_id"] = sc.ID()
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}
