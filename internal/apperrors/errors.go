package apperrors

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Error codes carried in the error envelope.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodePayloadTooLarge    = "payload_too_large"
	CodeInternal           = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// SuccessResponse is the success envelope.
type SuccessResponse struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}

// WriteError writes an error response in the standard envelope format
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(r.Context()),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// WriteSuccess writes a success response in the standard envelope format
func WriteSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{
		RequestID: GetRequestID(r.Context()),
		Data:      data,
	}

	_ = json.NewEncoder(w).Encode(response)
}

// WriteUpstreamError logs err with the request context and answers with a
// generic 500. The cause never reaches the caller.
func WriteUpstreamError(w http.ResponseWriter, r *http.Request, err error, message string) {
	log.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(message)

	WriteInternalError(w, r, message)
}

func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, message)
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message)
}

func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, CodeConflict, message)
}

func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, message)
}

func WritePayloadTooLarge(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, message)
}
