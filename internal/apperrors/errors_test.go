package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware_AssignsAndEchoes(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddleware_ReusesInboundID(t *testing.T) {
	inbound := uuid.NewString()
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, inbound, seen)
}

func TestRequestIDMiddleware_IgnoresGarbageInboundID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEqual(t, "<script>", seen)
}

func TestWriteUpstreamError_HidesCause(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteUpstreamError(w, r, errors.New("pq: connection refused"), "Failed to load licenses")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/licenses/list", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var env ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, CodeInternal, env.Error.Code)
	require.Equal(t, "Failed to load licenses", env.Error.Message)
	require.NotEmpty(t, env.Error.RequestID)
	require.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteSuccess_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteSuccess(rec, req, http.StatusCreated, map[string]any{"ok": true})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env struct {
		RequestID string         `json:"request_id"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, true, env.Data["ok"])
}
