package seats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/auth"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	purchased map[scope.Scope]int
	counts    map[scope.Scope]Counts
	refs      map[string]scope.Scope
	teams     map[uuid.UUID]uuid.UUID
	admins    map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		purchased: map[scope.Scope]int{},
		counts:    map[scope.Scope]Counts{},
		refs:      map[string]scope.Scope{},
		teams:     map[uuid.UUID]uuid.UUID{},
		admins:    map[uuid.UUID]bool{},
	}
}

func (m *memStore) Purchased(_ context.Context, sc scope.Scope) (int, error) {
	n, ok := m.purchased[sc]
	if !ok {
		return 0, ErrOwnerNotFound
	}
	return n, nil
}

func (m *memStore) Counts(_ context.Context, sc scope.Scope) (Counts, error) {
	return m.counts[sc], nil
}

func (m *memStore) Credit(_ context.Context, c Credit) (CreditResult, error) {
	if _, ok := m.purchased[c.Scope]; !ok {
		return CreditResult{}, ErrOwnerNotFound
	}
	if owner, ok := m.refs[c.Reference]; ok && c.Reference != "" {
		if owner != c.Scope {
			return CreditResult{}, ErrReferenceConflict
		}
		return CreditResult{Total: m.purchased[c.Scope], Duplicate: true}, nil
	}
	if c.Reference != "" {
		m.refs[c.Reference] = c.Scope
	}
	m.purchased[c.Scope] += c.Count
	return CreditResult{Total: m.purchased[c.Scope]}, nil
}

func (m *memStore) TeamOf(_ context.Context, adminID uuid.UUID) (uuid.UUID, bool, error) {
	if !m.admins[adminID] {
		return uuid.Nil, false, ErrOwnerNotFound
	}
	teamID, ok := m.teams[adminID]
	return teamID, ok, nil
}

type journal struct {
	entries []activity.Entry
}

func (j *journal) Record(_ context.Context, e activity.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

func TestService_Stats(t *testing.T) {
	store := newMemStore()
	sc := scope.Team(uuid.New())
	store.purchased[sc] = 10
	store.counts[sc] = Counts{Assigned: 4, Activated: 1}

	stats, err := NewService(store, nil).Stats(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, 6, stats.Available)
	require.Equal(t, 3, stats.Pending)
}

func TestService_Purchase(t *testing.T) {
	store := newMemStore()
	j := &journal{}
	svc := NewService(store, j)
	adminID := uuid.New()
	sc := scope.Team(uuid.New())
	store.purchased[sc] = 2

	res, err := svc.Purchase(context.Background(), Purchase{Scope: sc, AdminID: adminID, Count: 5, Reference: "pay_1", Source: SourcePaymentRedirect})
	require.NoError(t, err)
	require.Equal(t, CreditResult{Total: 7}, res)
	require.Len(t, j.entries, 1)
	require.Equal(t, activity.TypeLicensesPurchased, j.entries[0].Type)
	require.Equal(t, "Purchased 5 license(s)", j.entries[0].Description)

	res, err = svc.Purchase(context.Background(), Purchase{Scope: sc, AdminID: adminID, Count: 5, Reference: "pay_1"})
	require.NoError(t, err)
	require.Equal(t, CreditResult{Total: 7, Duplicate: true}, res)
	require.Len(t, j.entries, 1)

	res, err = svc.Purchase(context.Background(), Purchase{Scope: sc, Count: 1})
	require.NoError(t, err)
	require.Equal(t, 8, res.Total)
}

func TestService_Purchase_ReferenceOwnedByAnotherScope(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	first := scope.Solo(uuid.New())
	second := scope.Solo(uuid.New())
	store.purchased[first] = 0
	store.purchased[second] = 4

	_, err := svc.Purchase(context.Background(), Purchase{Scope: first, Count: 3, Reference: "pay_7"})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), Purchase{Scope: second, Count: 3, Reference: "pay_7"})
	require.ErrorIs(t, err, ErrReferenceConflict)
	require.Equal(t, 4, store.purchased[second])
	require.Equal(t, 3, store.purchased[first])
}

func TestService_Purchase_Validation(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	sc := scope.Solo(uuid.New())

	for _, n := range []int{0, -1, MaxPurchase + 1} {
		_, err := svc.Purchase(context.Background(), Purchase{Scope: sc, Count: n})
		require.ErrorIs(t, err, ErrInvalidCount)
	}

	_, err := svc.Purchase(context.Background(), Purchase{Count: 1})
	require.ErrorIs(t, err, ErrOwnerNotFound)

	_, err = svc.Purchase(context.Background(), Purchase{Scope: sc, Count: 1})
	require.ErrorIs(t, err, ErrOwnerNotFound)
}

func TestService_ScopeForAdmin(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)

	solo := uuid.New()
	member := uuid.New()
	teamID := uuid.New()
	store.admins[solo] = true
	store.admins[member] = true
	store.teams[member] = teamID

	sc, err := svc.ScopeForAdmin(context.Background(), solo)
	require.NoError(t, err)
	require.Equal(t, scope.Solo(solo), sc)

	sc, err = svc.ScopeForAdmin(context.Background(), member)
	require.NoError(t, err)
	require.Equal(t, scope.Team(teamID), sc)

	_, err = svc.ScopeForAdmin(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrOwnerNotFound)
}

func withActor(req *http.Request, actor policy.Actor) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), actor))
}

func TestHandlePurchaseRedirect(t *testing.T) {
	store := newMemStore()
	adminID := uuid.New()
	store.purchased[scope.Solo(adminID)] = 1
	h := HandlePurchaseRedirect(NewService(store, nil), "https://portal.example")
	actor := policy.Actor{AdminID: adminID}

	req := withActor(httptest.NewRequest(http.MethodGet,
		"/api/licenses/purchase?licenseCount=3&payment=successful&paymentType=license_purchase&reference=ch_1", nil), actor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/admin/dashboard", loc.Path)
	require.Equal(t, "purchase_complete", loc.Query().Get("success"))
	require.Equal(t, "3", loc.Query().Get("licenses_added"))
	require.Equal(t, "4", loc.Query().Get("total_licenses"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	loc, _ = url.Parse(rec.Header().Get("Location"))
	require.Equal(t, "0", loc.Query().Get("licenses_added"))
	require.Equal(t, "4", loc.Query().Get("total_licenses"))

	stranger := uuid.New()
	store.purchased[scope.Solo(stranger)] = 0
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet,
		"/api/licenses/purchase?licenseCount=3&payment=successful&paymentType=license_purchase&reference=ch_1", nil),
		policy.Actor{AdminID: stranger}))
	require.Equal(t, "https://portal.example/admin/dashboard?error=duplicate_reference", rec.Header().Get("Location"))
	require.Equal(t, 0, store.purchased[scope.Solo(stranger)])
}

func TestHandlePurchaseRedirect_Failures(t *testing.T) {
	h := HandlePurchaseRedirect(NewService(newMemStore(), nil), "https://portal.example")
	actor := policy.Actor{AdminID: uuid.New()}

	cases := [][2]string{
		{"/api/licenses/purchase?licenseCount=3&payment=failed&paymentType=license_purchase", "/admin/dashboard?error=payment_failed"},
		{"/api/licenses/purchase?licenseCount=abc&payment=successful&paymentType=license_purchase", "/admin/dashboard?error=invalid_license_count"},
		{"/api/licenses/purchase?licenseCount=3&payment=successful&paymentType=license_purchase", "/admin/dashboard?error=update_failed"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, tc[0], nil), actor))
		require.Equal(t, "https://portal.example"+tc[1], rec.Header().Get("Location"), tc[0])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/licenses/purchase?licenseCount=3&payment=successful&paymentType=license_purchase", nil))
	require.Equal(t, "https://portal.example/login?error=unauthorized&redirect=/admin/dashboard", rec.Header().Get("Location"))
}

func TestHandlePurchase(t *testing.T) {
	store := newMemStore()
	member := uuid.New()
	teamID := uuid.New()
	store.admins[member] = true
	store.teams[member] = teamID
	store.purchased[scope.Team(teamID)] = 0
	h := HandlePurchase(NewService(store, nil))

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/licenses/purchase", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"adminId":"` + member.String() + `","licenseCount":"5"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"team_id":"`+teamID.String()+`"`)
	require.Contains(t, rec.Body.String(), `"total_licenses":5`)

	rec = post(`{"teamId":"` + teamID.String() + `","licenseCount":2,"reference":"inv_9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_licenses":7`)

	rec = post(`{"teamId":"` + teamID.String() + `","licenseCount":2,"reference":"inv_9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"duplicate":true`)
	require.Contains(t, rec.Body.String(), `"licenses_added":0`)

	require.Equal(t, http.StatusBadRequest, post(`{"licenseCount":2}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"teamId":"`+teamID.String()+`","licenseCount":0}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"teamId":"`+teamID.String()+`"}`).Code)
	require.Equal(t, http.StatusNotFound, post(`{"teamId":"`+uuid.NewString()+`","licenseCount":1}`).Code)
	require.Equal(t, http.StatusNotFound, post(`{"adminId":"`+uuid.NewString()+`","licenseCount":1}`).Code)

	other := uuid.New()
	store.admins[other] = true
	store.purchased[scope.Solo(other)] = 0
	rec = post(`{"adminId":"` + other.String() + `","licenseCount":2,"reference":"inv_9"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 0, store.purchased[scope.Solo(other)])
}
