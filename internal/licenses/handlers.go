package licenses

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type AddRequest struct {
	Email string `json:"email"`
}

type AddMultipleRequest struct {
	Emails []string `json:"emails"`
}

type LicenseIDRequest struct {
	LicenseID string `json:"licenseId"`
}

type UpdateEmailRequest struct {
	LicenseID string `json:"licenseId"`
	NewEmail  string `json:"newEmail"`
}

type ActivateRequest struct {
	LicenseID    string `json:"licenseId"`
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
}

// writeEmailError maps email validation failures to a 400.
func writeEmailError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, validation.ErrEmailRequired):
		apperrors.WriteBadRequest(w, r, "Email is required")
	case errors.Is(err, validation.ErrInvalidEmail), errors.Is(err, validation.ErrEmailTooLong):
		apperrors.WriteBadRequest(w, r, "Invalid email format")
	default:
		return false
	}
	return true
}

// writeSeatError maps a rejected seat reservation to a 400.
func writeSeatError(w http.ResponseWriter, r *http.Request, err error) bool {
	var seatErr *seats.InsufficientSeatsError
	if errors.As(err, &seatErr) {
		apperrors.WriteBadRequest(w, r, seatErr.Error())
		return true
	}
	return false
}

func parseLicenseID(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		apperrors.WriteBadRequest(w, r, "License ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid license ID")
		return uuid.Nil, false
	}
	return id, true
}

// HandleList handles GET /api/licenses/list
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		res, err := svc.List(r.Context(), actor)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to fetch licenses")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, res)
	}
}

// HandleAdd handles POST /api/licenses/add
func HandleAdd(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req AddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		res, err := svc.Add(r.Context(), actor, req.Email)
		if err != nil {
			if writeEmailError(w, r, err) || writeSeatError(w, r, err) {
				return
			}
			if errors.Is(err, ErrDuplicateEmail) {
				apperrors.WriteBadRequest(w, r, "A license for this email already exists")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to create license")
			return
		}

		message := "License added and activation email sent successfully"
		if !res.EmailSent {
			message = "License added but failed to send activation email"
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"message":   message,
			"emailSent": res.EmailSent,
			"license":   res.License.Summary(),
		})
	}
}

// HandleAddMultiple handles POST /api/licenses/add-multiple
func HandleAddMultiple(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req AddMultipleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		res, err := svc.AddBatch(r.Context(), actor, req.Emails, false)
		if err != nil {
			if writeSeatError(w, r, err) {
				return
			}
			if errors.Is(err, ErrEmptyBatch) {
				apperrors.WriteBadRequest(w, r, "Valid email addresses are required")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to add licenses")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("Processed %d emails: %d licenses added, %d emails sent, %d failed",
				len(req.Emails), res.Success, res.EmailsSent, res.Failed),
			"results": res,
		})
	}
}

// HandleImport handles POST /api/licenses/import. The CSV arrives as the
// multipart field "file" and is capped at maxBytes.
func HandleImport(svc *Service, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
				apperrors.WritePayloadTooLarge(w, r, fmt.Sprintf("Upload exceeds maximum size of %d bytes", maxBytes))
				return
			}
			apperrors.WriteBadRequest(w, r, "Failed to parse multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, _, err := r.FormFile("file")
		if err != nil {
			apperrors.WriteBadRequest(w, r, "No file provided")
			return
		}
		defer file.Close()

		rows, err := ParseImport(file)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Failed to read CSV file")
			return
		}

		res, err := svc.AddBatch(r.Context(), actor, rows, true)
		if err != nil {
			if writeSeatError(w, r, err) {
				return
			}
			if errors.Is(err, ErrEmptyBatch) {
				apperrors.WriteBadRequest(w, r, "No email addresses found in file")
				return
			}
			apperrors.WriteUpstreamError(w, r, err, "Failed to import licenses")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("Import complete: %d licenses added, %d emails sent, %d failed",
				res.Success, res.EmailsSent, res.Failed),
			"results": res,
		})
	}
}

// HandleExport handles GET /api/licenses/export
func HandleExport(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		licenses, slug, err := svc.Export(r.Context(), actor)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to export licenses")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, ExportFilename(slug, time.Now())))
		w.WriteHeader(http.StatusOK)

		if err := WriteExport(w, licenses); err != nil {
			log.Error().Err(err).Str("admin_id", actor.AdminID.String()).Msg("Failed to write license export")
		}
	}
}

// HandleRemove handles DELETE /api/licenses/remove. The id may come from
// the JSON body or the licenseId query parameter.
func HandleRemove(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		raw := r.URL.Query().Get("licenseId")
		if raw == "" {
			var req LicenseIDRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "License ID is required")
				return
			}
			raw = req.LicenseID
		}
		id, ok := parseLicenseID(w, r, raw)
		if !ok {
			return
		}

		if err := svc.Remove(r.Context(), actor, id); err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				apperrors.WriteNotFound(w, r, "License not found")
			case errors.Is(err, ErrForbidden):
				apperrors.WriteForbidden(w, r, "You do not have permission to delete this license")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to delete license")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "License removed successfully",
		})
	}
}

// HandleResend handles POST /api/licenses/resend
func HandleResend(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req LicenseIDRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		id, ok := parseLicenseID(w, r, req.LicenseID)
		if !ok {
			return
		}

		if err := svc.Resend(r.Context(), actor, id); err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				apperrors.WriteNotFound(w, r, "License not found or you do not have permission to resend")
			case errors.Is(err, ErrAlreadyActivated):
				apperrors.WriteBadRequest(w, r, "License is already activated")
			case errors.Is(err, ErrSendFailed):
				apperrors.WriteInternalError(w, r, "Failed to send email")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to resend activation email")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "Activation email resent successfully",
		})
	}
}

// HandleUpdateEmail handles PATCH /api/licenses/update-email
func HandleUpdateEmail(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		var req UpdateEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.LicenseID) == "" || strings.TrimSpace(req.NewEmail) == "" {
			apperrors.WriteBadRequest(w, r, "License ID and new email are required")
			return
		}
		id, ok := parseLicenseID(w, r, req.LicenseID)
		if !ok {
			return
		}

		res, err := svc.UpdateEmail(r.Context(), actor, id, req.NewEmail)
		if err != nil {
			if writeEmailError(w, r, err) {
				return
			}
			switch {
			case errors.Is(err, ErrNotFound):
				apperrors.WriteNotFound(w, r, "License not found or you do not have permission to edit it")
			case errors.Is(err, ErrAlreadyActivated):
				apperrors.WriteBadRequest(w, r, "Cannot edit email for activated licenses")
			case errors.Is(err, ErrDuplicateEmail):
				apperrors.WriteBadRequest(w, r, "A license with this email already exists")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to update license email")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":   "License email updated successfully",
			"emailSent": res.EmailSent,
			"license":   res.License.Summary(),
		})
	}
}

// HandleActivate handles POST /api/licenses/activate. It is public: the
// consumer app calls it with the id from the activation link.
func HandleActivate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ActivateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.LicenseID) == "" ||
			strings.TrimSpace(req.BusinessName) == "" ||
			strings.TrimSpace(req.BusinessType) == "" {
			apperrors.WriteBadRequest(w, r, "License ID, business name, and business type are required")
			return
		}

		id, err := uuid.Parse(strings.TrimSpace(req.LicenseID))
		if err != nil {
			apperrors.WriteNotFound(w, r, "License not found")
			return
		}

		l, err := svc.Activate(r.Context(), id, Business{
			Name: strings.TrimSpace(req.BusinessName),
			Type: strings.TrimSpace(req.BusinessType),
		})
		if err != nil {
			switch {
			case errors.Is(err, validation.ErrFieldTooLong):
				apperrors.WriteBadRequest(w, r, err.Error())
			case errors.Is(err, ErrNotFound):
				apperrors.WriteNotFound(w, r, "License not found")
			case errors.Is(err, ErrAlreadyActivated):
				apperrors.WriteBadRequest(w, r, "License is already activated")
			default:
				apperrors.WriteUpstreamError(w, r, err, "Failed to activate license")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"success": true,
			"message": "License activated successfully",
			"license": map[string]any{
				"id":            l.ID,
				"email":         l.Email,
				"business_name": l.BusinessName,
				"business_type": l.BusinessType,
				"is_activated":  l.IsActivated,
				"activated_at":  l.ActivatedAt,
			},
		})
	}
}

// HandleVerify handles GET /api/licenses/verify?licenseId=
func HandleVerify(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("licenseId"))
		if raw == "" {
			apperrors.WriteBadRequest(w, r, "License ID is required")
			return
		}

		verified := false
		if id, err := uuid.Parse(raw); err == nil {
			verified, err = svc.Verify(r.Context(), id)
			if err != nil {
				apperrors.WriteUpstreamError(w, r, err, "Failed to verify license")
				return
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"success":  true,
			"verified": verified,
		})
	}
}

// HandleEmailStatus handles POST /api/licenses/email-status
func HandleEmailStatus(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.GetActor(r.Context())
		if !ok {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}

		res, err := svc.SyncEmailStatuses(r.Context(), actor)
		if err != nil {
			apperrors.WriteUpstreamError(w, r, err, "Failed to sync email statuses")
			return
		}

		message := "Email statuses synced successfully"
		if res.Synced == 0 {
			message = "No licenses with message IDs found"
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":  message,
			"synced":   res.Synced,
			"statuses": res.Statuses,
		})
	}
}
