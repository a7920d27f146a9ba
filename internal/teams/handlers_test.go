package teams

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/seatdesk/internal/apperrors"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/stretchr/testify/require"
)

func withActor(req *http.Request, actor policy.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorDetail {
	t.Helper()
	var env apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_RequireActor(t *testing.T) {
	f := newFixture()
	handlers := map[string]http.HandlerFunc{
		"get":     HandleGet(f.svc),
		"rename":  HandleRename(f.svc),
		"create":  HandleCreate(f.svc),
		"list":    HandleListInvitations(f.svc),
		"invite":  HandleInvite(f.svc),
		"cancel":  HandleCancelInvitation(f.svc),
		"accept":  HandleAccept(f.svc),
		"members": HandleListMembers(f.svc),
		"role":    HandleChangeRole(f.svc),
		"remove":  HandleRemoveMember(f.svc),
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/team", strings.NewReader(`{}`)))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHandleCreate(t *testing.T) {
	f := newFixture()
	owner := f.admin("ada@moilapp.com", "Ada", "")

	rec := serve(HandleCreate(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/create", nil), owner))
	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	require.Equal(t, true, data["success"])
	team := data["team"].(map[string]any)
	require.Equal(t, "Ada's Moil Team", team["name"])
	require.Equal(t, "moilapp.com", team["domain"])

	rec = serve(HandleCreate(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/create", strings.NewReader(`{"name":"Again"}`)), f.refresh(owner)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "You are already a member of a team", decodeError(t, rec).Message)
}

func TestHandleCreate_DomainNotAllowed(t *testing.T) {
	f := newFixture()
	outsider := f.admin("bob@gmail.com", "Bob", "")

	rec := serve(HandleCreate(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/create", strings.NewReader(`{}`)), outsider))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Only @queencreekchamber.com and @moilapp.com accounts can create teams", decodeError(t, rec).Message)
}

func TestHandleGet(t *testing.T) {
	f := newFixture()
	solo := f.admin("solo@gmail.com", "", "")

	rec := serve(HandleGet(f.svc), withActor(httptest.NewRequest(http.MethodGet, "/api/team", nil), solo))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.Equal(t, false, data["hasTeam"])
	require.Nil(t, data["team"])

	owner := f.ownerWithTeam(t)
	rec = serve(HandleGet(f.svc), withActor(httptest.NewRequest(http.MethodGet, "/api/team", nil), owner))
	data = decodeData(t, rec)
	require.Equal(t, true, data["hasTeam"])
	require.Equal(t, true, data["isOwner"])
	require.Equal(t, "owner", data["userRole"])
	require.Len(t, data["members"], 1)
}

func TestHandleRename(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)

	tests := []struct {
		name    string
		actor   policy.Actor
		body    string
		code    int
		message string
	}{
		{"empty", owner, `{"name":"  "}`, http.StatusBadRequest, "Team name is required"},
		{"member", member, `{"name":"Ours"}`, http.StatusForbidden, "Only team owners can update team settings"},
		{"bad json", owner, `{`, http.StatusBadRequest, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(HandleRename(f.svc), withActor(httptest.NewRequest(http.MethodPatch, "/api/team", strings.NewReader(tt.body)), tt.actor))
			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, tt.message, decodeError(t, rec).Message)
		})
	}

	rec := serve(HandleRename(f.svc), withActor(httptest.NewRequest(http.MethodPatch, "/api/team", strings.NewReader(`{"name":"Crew"}`)), owner))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Crew", decodeData(t, rec)["team"].(map[string]any)["name"])
}

func TestHandleInvite(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)

	rec := serve(HandleInvite(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite",
		strings.NewReader(`{"email":"new@queencreekchamber.com"}`)), owner))
	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	require.Equal(t, true, data["emailSent"])
	inv := data["invitation"].(map[string]any)
	require.Equal(t, "member", inv["role"])
	require.Equal(t, "pending", inv["status"])
	require.NotEmpty(t, data["acceptUrl"])

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing email", `{"role":"member"}`, "Email is required"},
		{"bad role", `{"email":"x@queencreekchamber.com","role":"owner"}`, "Invalid role"},
		{"wrong domain", `{"email":"x@gmail.com"}`, "Only @queencreekchamber.com emails can be invited to this team"},
		{"self", `{"email":"ada@queencreekchamber.com"}`, "You cannot invite yourself"},
		{"pending", `{"email":"new@queencreekchamber.com"}`, "An invitation is already pending for this email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(HandleInvite(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite", strings.NewReader(tt.body)), owner))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.message, decodeError(t, rec).Message)
		})
	}
}

func TestHandleInvite_MemberForbidden(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)

	rec := serve(HandleInvite(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite",
		strings.NewReader(`{"email":"x@queencreekchamber.com"}`)), member))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Only team owners and admins can invite members", decodeError(t, rec).Message)
}

func TestHandleCancelInvitation(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(context.Background(), owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	rec := serve(HandleCancelInvitation(f.svc), withActor(httptest.NewRequest(http.MethodDelete, "/api/team/invite", nil), owner))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invitation ID is required", decodeError(t, rec).Message)

	body := `{"invitationId":"` + res.Invitation.ID.String() + `"}`
	rec = serve(HandleCancelInvitation(f.svc), withActor(httptest.NewRequest(http.MethodDelete, "/api/team/invite", strings.NewReader(body)), owner))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(HandleCancelInvitation(f.svc), withActor(httptest.NewRequest(http.MethodDelete,
		"/api/team/invite?invitationId="+res.Invitation.ID.String(), nil), owner))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePreview(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(context.Background(), owner, "x@queencreekchamber.com", policy.RoleAdmin)
	require.NoError(t, err)
	token := tokenFrom(res.AcceptURL)

	rec := serve(HandlePreview(f.svc), httptest.NewRequest(http.MethodGet, "/api/team/invite/accept?token="+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decodeData(t, rec)["invitation"].(map[string]any)
	require.Equal(t, "x@queencreekchamber.com", inv["email"])
	require.Equal(t, "Ada's Queen Creek Chamber Team", inv["team"])
	require.Equal(t, "Ada Lovelace", inv["inviter"])

	rec = serve(HandlePreview(f.svc), httptest.NewRequest(http.MethodGet, "/api/team/invite/accept", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Token is required", decodeError(t, rec).Message)

	rec = serve(HandlePreview(f.svc), httptest.NewRequest(http.MethodGet, "/api/team/invite/accept?token=sdi_nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.svc.Cancel(context.Background(), owner, res.Invitation.ID))
	rec = serve(HandlePreview(f.svc), httptest.NewRequest(http.MethodGet, "/api/team/invite/accept?token="+token, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "This invitation has already been revoked", decodeError(t, rec).Message)
}

func TestHandleAccept(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(context.Background(), owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	body := `{"token":"` + tokenFrom(res.AcceptURL) + `"}`

	rec := serve(HandleAccept(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite/accept", strings.NewReader(`{}`)), owner))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invitation token is required", decodeError(t, rec).Message)

	stranger := f.admin("y@queencreekchamber.com", "", "")
	rec = serve(HandleAccept(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite/accept", strings.NewReader(body)), stranger))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "This invitation is for a different email address", decodeError(t, rec).Message)

	rec = serve(HandleAccept(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite/accept", strings.NewReader(body)), owner))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "You are already a member of this team", decodeError(t, rec).Message)

	invitee := f.admin("x@queencreekchamber.com", "", "")
	rec = serve(HandleAccept(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite/accept", strings.NewReader(body)), invitee))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.Equal(t, "member", data["role"])

	rec = serve(HandleAccept(f.svc), withActor(httptest.NewRequest(http.MethodPost, "/api/team/invite/accept", strings.NewReader(body)), stranger))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid or expired invitation", decodeError(t, rec).Message)
}

func TestHandleMembers(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)

	rec := serve(HandleListMembers(f.svc), withActor(httptest.NewRequest(http.MethodGet, "/api/team/members", nil), member))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.Len(t, data["members"], 2)
	require.Equal(t, "member", data["currentUserRole"])

	patch := func(actor policy.Actor, body string) *httptest.ResponseRecorder {
		return serve(HandleChangeRole(f.svc), withActor(httptest.NewRequest(http.MethodPatch, "/api/team/members", strings.NewReader(body)), actor))
	}

	rec = patch(owner, `{"memberId":"`+member.MemberID.String()+`"}`)
	require.Equal(t, "Member ID and role are required", decodeError(t, rec).Message)
	rec = patch(owner, `{"memberId":"`+member.MemberID.String()+`","role":"viewer"}`)
	require.Equal(t, "Invalid role", decodeError(t, rec).Message)
	rec = patch(member, `{"memberId":"`+owner.MemberID.String()+`","role":"member"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Only team owners can change member roles", decodeError(t, rec).Message)
	rec = patch(owner, `{"memberId":"`+owner.MemberID.String()+`","role":"admin"}`)
	require.Equal(t, "Cannot change owner role", decodeError(t, rec).Message)
	rec = patch(owner, `{"memberId":"`+member.MemberID.String()+`","role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	remove := func(actor policy.Actor, target string) *httptest.ResponseRecorder {
		return serve(HandleRemoveMember(f.svc), withActor(httptest.NewRequest(http.MethodDelete, "/api/team/members?memberId="+target, nil), actor))
	}

	rec = remove(owner, "")
	require.Equal(t, "Member ID is required", decodeError(t, rec).Message)
	rec = remove(owner, owner.MemberID.String())
	require.Equal(t, "Cannot remove team owner", decodeError(t, rec).Message)
	rec = remove(owner, member.MemberID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	rec = remove(owner, member.MemberID.String())
	require.Equal(t, http.StatusNotFound, rec.Code)
}
