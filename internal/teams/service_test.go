package teams

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/mailer"
	"github.com/aliuyar1234/seatdesk/internal/partners"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type storedInvitation struct {
	Invitation
	hash []byte
}

type memStore struct {
	mu          sync.Mutex
	clock       time.Time
	admins      map[uuid.UUID]policy.Actor
	balances    map[uuid.UUID]int
	teams       map[uuid.UUID]*Team
	members     map[uuid.UUID]*Member
	invitations map[uuid.UUID]*storedInvitation
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		admins:      map[uuid.UUID]policy.Actor{},
		balances:    map[uuid.UUID]int{},
		teams:       map[uuid.UUID]*Team{},
		members:     map[uuid.UUID]*Member{},
		invitations: map[uuid.UUID]*storedInvitation{},
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) GetTeam(_ context.Context, id uuid.UUID) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) memberOf(adminID uuid.UUID) *Member {
	for _, mem := range m.members {
		if mem.AdminID == adminID {
			return mem
		}
	}
	return nil
}

func (m *memStore) addMember(teamID, adminID uuid.UUID, role policy.Role) error {
	if m.memberOf(adminID) != nil {
		return ErrAlreadyInTeam
	}
	a := m.admins[adminID]
	mem := &Member{
		ID:        uuid.New(),
		TeamID:    teamID,
		AdminID:   adminID,
		Role:      role,
		JoinedAt:  m.tick(),
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *memStore) CreateTeam(_ context.Context, in NewTeam) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.memberOf(in.OwnerID) != nil {
		return nil, ErrAlreadyInTeam
	}
	now := m.tick()
	t := &Team{
		ID:                    uuid.New(),
		Name:                  in.Name,
		Domain:                in.Domain,
		OwnerID:               in.OwnerID,
		PurchasedLicenseCount: m.balances[in.OwnerID],
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	m.teams[t.ID] = t
	m.balances[in.OwnerID] = 0
	if err := m.addMember(t.ID, in.OwnerID, policy.RoleOwner); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) RenameTeam(_ context.Context, id uuid.UUID, name string) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	t.Name = name
	t.UpdatedAt = m.tick()
	cp := *t
	return &cp, nil
}

func (m *memStore) ListMembers(_ context.Context, teamID uuid.UUID) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Member{}
	for _, mem := range m.members {
		if mem.TeamID == teamID {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memStore) GetMember(_ context.Context, teamID, memberID uuid.UUID) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok || mem.TeamID != teamID {
		return nil, ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *memStore) IsMemberEmail(_ context.Context, teamID uuid.UUID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.TeamID == teamID && mem.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, teamID, memberID uuid.UUID, role policy.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok || mem.TeamID != teamID || mem.Role == policy.RoleOwner {
		return ErrMemberNotFound
	}
	mem.Role = role
	return nil
}

func (m *memStore) DeleteMember(_ context.Context, teamID, memberID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok || mem.TeamID != teamID || mem.Role == policy.RoleOwner {
		return ErrMemberNotFound
	}
	delete(m.members, memberID)
	return nil
}

func (m *memStore) CreateInvitation(_ context.Context, in NewInvitation) (*Invitation, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := NewInviteToken()
	if err != nil {
		return nil, "", err
	}
	inv := &storedInvitation{
		Invitation: Invitation{
			ID:        uuid.New(),
			TeamID:    in.TeamID,
			Email:     in.Email,
			Role:      in.Role,
			Status:    InvitationPending,
			InvitedBy: in.InvitedBy,
			ExpiresAt: in.ExpiresAt,
			CreatedAt: m.tick(),
		},
		hash: token.Hash(),
	}
	m.invitations[inv.ID] = inv
	cp := inv.Invitation
	return &cp, string(token), nil
}

func (m *memStore) HasPendingInvitation(_ context.Context, teamID uuid.UUID, email string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.TeamID == teamID && inv.Email == email && inv.Actionable(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListPendingInvitations(_ context.Context, teamID uuid.UUID, now time.Time) ([]Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Invitation{}
	for _, inv := range m.invitations {
		if inv.TeamID == teamID && inv.Actionable(now) {
			out = append(out, inv.Invitation)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) RevokeInvitation(_ context.Context, teamID, invitationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[invitationID]
	if !ok || inv.TeamID != teamID || inv.Status != InvitationPending {
		return ErrInvitationNotFound
	}
	inv.Status = InvitationRevoked
	return nil
}

func (m *memStore) byHash(hash []byte) *storedInvitation {
	for _, inv := range m.invitations {
		if bytes.Equal(inv.hash, hash) {
			return inv
		}
	}
	return nil
}

func (m *memStore) InvitationByTokenHash(_ context.Context, hash []byte) (*InvitationDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.byHash(hash)
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	team := m.teams[inv.TeamID]
	inviter := m.admins[inv.InvitedBy]
	return &InvitationDetails{
		Invitation:       inv.Invitation,
		TeamName:         team.Name,
		TeamDomain:       team.Domain,
		InviterFirstName: inviter.FirstName,
		InviterLastName:  inviter.LastName,
		InviterEmail:     inviter.Email,
	}, nil
}

func (m *memStore) AcceptInvitation(_ context.Context, hash []byte, adminID uuid.UUID, email string, now time.Time) (*Invitation, *Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.byHash(hash)
	if inv == nil || !inv.Actionable(now) {
		return nil, nil, ErrInvitationInvalid
	}
	if !strings.EqualFold(inv.Email, email) {
		return nil, nil, ErrInvitationMismatch
	}
	if err := m.addMember(inv.TeamID, adminID, inv.Role); err != nil {
		return nil, nil, err
	}
	inv.Status = InvitationAccepted
	inv.AcceptedAt = &now
	cp := inv.Invitation
	team := *m.teams[inv.TeamID]
	return &cp, &team, nil
}

func (m *memStore) SweepInvitations(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.invitations {
		stale := (inv.Status == InvitationPending && inv.ExpiresAt.Before(cutoff)) ||
			(inv.Status == InvitationRevoked && inv.CreatedAt.Before(cutoff)) ||
			(inv.Status == InvitationAccepted && inv.AcceptedAt != nil && inv.AcceptedAt.Before(cutoff))
		if stale {
			delete(m.invitations, id)
			n++
		}
	}
	return n, nil
}

type domains map[string]partners.TeamDomain

func (d domains) TeamDomain(domain string) (partners.TeamDomain, bool) {
	td, ok := d[domain]
	return td, ok
}

func (d domains) TeamDomains() []string {
	return []string{"queencreekchamber.com", "moilapp.com"}
}

type fakeInviter struct {
	mu   sync.Mutex
	sent []mailer.Invitation
	fail bool
}

func (f *fakeInviter) InvitationURLs(token string, _ uuid.UUID, _ string) (string, string) {
	return "https://invite.test/accept?token=" + token, "https://invite.test/signup?token=" + token
}

func (f *fakeInviter) SendInvitation(_ context.Context, inv mailer.Invitation) mailer.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return mailer.Delivery{Status: mailer.StatusFailed}
	}
	f.sent = append(f.sent, inv)
	return mailer.Delivery{MessageID: "msg-" + inv.Email, Status: mailer.StatusSent}
}

type journal struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (j *journal) Record(_ context.Context, e activity.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *journal) types() []activity.Type {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]activity.Type, len(j.entries))
	for i, e := range j.entries {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store   *memStore
	mail    *fakeInviter
	journal *journal
	svc     *Service
}

func newFixture() *fixture {
	store := newMemStore()
	mail := &fakeInviter{}
	j := &journal{}
	svc := NewService(store, domains{
		"queencreekchamber.com": {Domain: "queencreekchamber.com", Label: "Queen Creek Chamber"},
		"moilapp.com":           {Domain: "moilapp.com", Label: "Moil"},
	}, mail, j, 7*24*time.Hour)
	svc.now = func() time.Time { return store.clock }
	return &fixture{store: store, mail: mail, journal: j, svc: svc}
}

func (f *fixture) admin(email, first, last string) policy.Actor {
	a := policy.Actor{AdminID: uuid.New(), Email: email, FirstName: first, LastName: last}
	f.store.admins[a.AdminID] = a
	return a
}

// refresh re-resolves an actor's membership the way the session loader does.
func (f *fixture) refresh(a policy.Actor) policy.Actor {
	a.TeamID, a.MemberID, a.Role = nil, nil, ""
	if mem := f.store.memberOf(a.AdminID); mem != nil {
		teamID, memberID := mem.TeamID, mem.ID
		a.TeamID, a.MemberID, a.Role = &teamID, &memberID, mem.Role
	}
	return a
}

// ownerWithTeam creates a team and returns its refreshed owner.
func (f *fixture) ownerWithTeam(t *testing.T) policy.Actor {
	t.Helper()
	owner := f.admin("ada@queencreekchamber.com", "Ada", "Lovelace")
	_, err := f.svc.Create(context.Background(), owner, "")
	require.NoError(t, err)
	return f.refresh(owner)
}

// join invites email as role and accepts it, returning the new member.
func (f *fixture) join(t *testing.T, inviter policy.Actor, email string, role policy.Role) policy.Actor {
	t.Helper()
	ctx := context.Background()
	a := f.admin(email, "", "")
	res, err := f.svc.Invite(ctx, inviter, email, role)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, a, tokenFrom(res.AcceptURL))
	require.NoError(t, err)
	return f.refresh(a)
}

func tokenFrom(acceptURL string) string {
	_, token, _ := strings.Cut(acceptURL, "token=")
	return token
}

func TestCreate_DefaultNameAndSeatTransfer(t *testing.T) {
	f := newFixture()
	owner := f.admin("ada@queencreekchamber.com", "Ada", "Lovelace")
	f.store.balances[owner.AdminID] = 12

	team, err := f.svc.Create(context.Background(), owner, "  ")
	require.NoError(t, err)
	require.Equal(t, "Ada's Queen Creek Chamber Team", team.Name)
	require.Equal(t, "queencreekchamber.com", team.Domain)
	require.Equal(t, 12, team.PurchasedLicenseCount)
	require.Zero(t, f.store.balances[owner.AdminID])

	owner = f.refresh(owner)
	require.Equal(t, policy.RoleOwner, owner.Role)
	require.Equal(t, []activity.Type{activity.TypeTeamSettingsUpdated}, f.journal.types())
	require.Equal(t, `Created team "Ada's Queen Creek Chamber Team"`, f.journal.entries[0].Description)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	outsider := f.admin("bob@gmail.com", "Bob", "")
	_, err := f.svc.Create(ctx, outsider, "")
	require.ErrorIs(t, err, ErrDomainNotAllowed)

	owner := f.ownerWithTeam(t)
	_, err = f.svc.Create(ctx, owner, "Another")
	require.ErrorIs(t, err, ErrAlreadyInTeam)

	long := f.admin("long@moilapp.com", "Lo", "")
	_, err = f.svc.Create(ctx, long, strings.Repeat("x", 101))
	require.Error(t, err)
}

func TestGet_WithoutTeam(t *testing.T) {
	f := newFixture()
	a := f.admin("solo@queencreekchamber.com", "Solo", "")

	ov, err := f.svc.Get(context.Background(), a)
	require.NoError(t, err)
	require.False(t, ov.HasTeam)
	require.Nil(t, ov.Team)
	require.Empty(t, ov.Members)
}

func TestGet_Overview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	_, err := f.svc.Invite(ctx, owner, "pending@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	ov, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	require.True(t, ov.HasTeam)
	require.True(t, ov.IsOwner)
	require.Equal(t, policy.RoleOwner, *ov.UserRole)
	require.Len(t, ov.Members, 1)
	require.Len(t, ov.PendingInvitations, 1)
}

func TestRename(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)

	team, err := f.svc.Rename(ctx, owner, "  Chamber Crew ")
	require.NoError(t, err)
	require.Equal(t, "Chamber Crew", team.Name)
	require.Equal(t, `Team name updated to "Chamber Crew"`, f.journal.entries[len(f.journal.entries)-1].Description)

	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleAdmin)
	_, err = f.svc.Rename(ctx, member, "Mine now")
	require.ErrorIs(t, err, ErrForbidden)

	solo := f.admin("solo@queencreekchamber.com", "", "")
	_, err = f.svc.Rename(ctx, solo, "Nope")
	require.ErrorIs(t, err, ErrTeamNotFound)
}

func TestInvite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	invitedAt := f.store.clock

	res, err := f.svc.Invite(ctx, owner, " New@QueenCreekChamber.com ", policy.RoleAdmin)
	require.NoError(t, err)
	require.True(t, res.EmailSent)
	require.Equal(t, "new@queencreekchamber.com", res.Invitation.Email)
	require.Equal(t, InvitationPending, res.Invitation.Status)
	require.Equal(t, invitedAt.Add(7*24*time.Hour), res.Invitation.ExpiresAt)
	_, ok := ParseInviteToken(tokenFrom(res.AcceptURL))
	require.True(t, ok)
	require.Contains(t, res.SignupURL, "signup")

	require.Len(t, f.mail.sent, 1)
	require.Equal(t, "Ada Lovelace", f.mail.sent[0].InviterName)
	require.Equal(t, "admin", f.mail.sent[0].Role)
	require.Equal(t, activity.TypeMemberInvited, f.journal.entries[len(f.journal.entries)-1].Type)
}

func TestInvite_SendFailureStillCreates(t *testing.T) {
	f := newFixture()
	owner := f.ownerWithTeam(t)
	f.mail.fail = true

	res, err := f.svc.Invite(context.Background(), owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	require.False(t, res.EmailSent)
	require.Len(t, f.store.invitations, 1)
}

func TestInvite_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "member@queencreekchamber.com", policy.RoleMember)
	_, err := f.svc.Invite(ctx, owner, "pending@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor policy.Actor
		email string
		role  policy.Role
		want  error
	}{
		{"empty email", owner, "", policy.RoleMember, nil},
		{"owner role", owner, "x@queencreekchamber.com", policy.RoleOwner, ErrInvalidRole},
		{"unknown role", owner, "x@queencreekchamber.com", "viewer", ErrInvalidRole},
		{"member inviter", member, "x@queencreekchamber.com", policy.RoleMember, ErrForbidden},
		{"other domain", owner, "x@gmail.com", policy.RoleMember, ErrInviteDomain},
		{"self", owner, "ADA@queencreekchamber.com", policy.RoleMember, ErrSelfInvite},
		{"existing member", owner, "member@queencreekchamber.com", policy.RoleMember, ErrAlreadyMember},
		{"pending", owner, "pending@queencreekchamber.com", policy.RoleAdmin, ErrInvitePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Invite(ctx, tt.actor, tt.email, tt.role)
			require.Error(t, err)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}

	var domainErr *InviteDomainError
	_, err = f.svc.Invite(ctx, owner, "x@gmail.com", policy.RoleMember)
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "queencreekchamber.com", domainErr.Domain)
}

func TestInvite_ExpiredPendingDoesNotBlock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)

	_, err := f.svc.Invite(ctx, owner, "late@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	f.store.clock = f.store.clock.Add(8 * 24 * time.Hour)

	_, err = f.svc.Invite(ctx, owner, "late@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, owner, res.Invitation.ID))
	require.ErrorIs(t, f.svc.Cancel(ctx, owner, res.Invitation.ID), ErrInvitationNotFound)
	require.ErrorIs(t, f.svc.Cancel(ctx, owner, uuid.New()), ErrInvitationNotFound)

	pending, err := f.svc.ListInvitations(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCancel_MemberForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)
	res, err := f.svc.Invite(ctx, owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Cancel(ctx, member, res.Invitation.ID), ErrForbidden)
}

func TestPreview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "x@queencreekchamber.com", policy.RoleAdmin)
	require.NoError(t, err)
	token := tokenFrom(res.AcceptURL)

	p, err := f.svc.Preview(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "x@queencreekchamber.com", p.Email)
	require.Equal(t, policy.RoleAdmin, p.Role)
	require.Equal(t, "Ada's Queen Creek Chamber Team", p.Team)
	require.Equal(t, "Ada Lovelace", p.Inviter)

	_, err = f.svc.Preview(ctx, "sdi_unknown")
	require.ErrorIs(t, err, ErrInvitationNotFound)
	_, err = f.svc.Preview(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	f.store.clock = f.store.clock.Add(8 * 24 * time.Hour)
	_, err = f.svc.Preview(ctx, token)
	require.ErrorIs(t, err, ErrInvitationExpired)
}

func TestPreview_Inactive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(ctx, owner, res.Invitation.ID))

	_, err = f.svc.Preview(ctx, tokenFrom(res.AcceptURL))
	var inactive *InactiveInvitationError
	require.ErrorAs(t, err, &inactive)
	require.Equal(t, InvitationRevoked, inactive.Status)
	require.ErrorIs(t, err, ErrInvitationInactive)
}

func TestAccept(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "joiner@queencreekchamber.com", policy.RoleAdmin)
	require.NoError(t, err)
	token := tokenFrom(res.AcceptURL)

	wrong := f.admin("someone@queencreekchamber.com", "", "")
	_, err = f.svc.Accept(ctx, wrong, token)
	require.ErrorIs(t, err, ErrInvitationMismatch)

	joiner := f.admin("Joiner@QueenCreekChamber.com", "Jo", "")
	joined, err := f.svc.Accept(ctx, joiner, token)
	require.NoError(t, err)
	require.Equal(t, policy.RoleAdmin, joined.Role)
	require.Equal(t, *owner.TeamID, joined.Team.ID)
	require.Equal(t, "Joiner@QueenCreekChamber.com joined the team as admin", f.journal.entries[len(f.journal.entries)-1].Description)

	_, err = f.svc.Accept(ctx, f.admin("joiner2@queencreekchamber.com", "", ""), token)
	require.ErrorIs(t, err, ErrInvitationInvalid)

	_, err = f.svc.Accept(ctx, f.refresh(joiner), token)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestAccept_AlreadyInAnotherTeam(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "boss@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	other := f.admin("boss@queencreekchamber.com", "Boss", "")
	_, err = f.svc.Create(ctx, other, "Other Team")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.refresh(other), tokenFrom(res.AcceptURL))
	require.ErrorIs(t, err, ErrAlreadyInTeam)
}

func TestAccept_Expired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	res, err := f.svc.Invite(ctx, owner, "x@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	f.store.clock = f.store.clock.Add(7*24*time.Hour + time.Second)

	_, err = f.svc.Accept(ctx, f.admin("x@queencreekchamber.com", "", ""), tokenFrom(res.AcceptURL))
	require.ErrorIs(t, err, ErrInvitationInvalid)

	_, err = f.svc.Accept(ctx, f.admin("y@queencreekchamber.com", "", ""), "not-a-token")
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestChangeRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)

	require.NoError(t, f.svc.ChangeRole(ctx, owner, *member.MemberID, policy.RoleAdmin))
	require.Equal(t, policy.RoleAdmin, f.refresh(member).Role)
	last := f.journal.entries[len(f.journal.entries)-1]
	require.Equal(t, activity.TypeMemberRoleChanged, last.Type)
	require.Equal(t, "Changed m@queencreekchamber.com's role from member to admin", last.Description)

	require.ErrorIs(t, f.svc.ChangeRole(ctx, owner, *owner.MemberID, policy.RoleAdmin), ErrCannotChangeOwner)
	require.ErrorIs(t, f.svc.ChangeRole(ctx, owner, uuid.New(), policy.RoleAdmin), ErrMemberNotFound)
	require.ErrorIs(t, f.svc.ChangeRole(ctx, owner, *member.MemberID, policy.RoleOwner), ErrInvalidRole)
	require.ErrorIs(t, f.svc.ChangeRole(ctx, f.refresh(member), *owner.MemberID, policy.RoleMember), ErrForbidden)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	admin := f.join(t, owner, "a@queencreekchamber.com", policy.RoleAdmin)
	member := f.join(t, owner, "m@queencreekchamber.com", policy.RoleMember)

	require.ErrorIs(t, f.svc.RemoveMember(ctx, admin, *member.MemberID), ErrForbidden)
	require.ErrorIs(t, f.svc.RemoveMember(ctx, owner, *owner.MemberID), ErrCannotChangeOwner)

	require.NoError(t, f.svc.RemoveMember(ctx, owner, *member.MemberID))
	require.False(t, f.refresh(member).HasTeam())
	require.Equal(t, "Removed m@queencreekchamber.com from the team", f.journal.entries[len(f.journal.entries)-1].Description)

	members, err := f.svc.ListMembers(ctx, owner)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestSweepInvitations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.ownerWithTeam(t)
	_, err := f.svc.Invite(ctx, owner, "old@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)
	f.store.clock = f.store.clock.Add(40 * 24 * time.Hour)
	_, err = f.svc.Invite(ctx, owner, "fresh@queencreekchamber.com", policy.RoleMember)
	require.NoError(t, err)

	n, err := f.svc.SweepInvitations(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, f.store.invitations, 1)
}
