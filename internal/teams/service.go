package teams

import (
	"context"
	"strings"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/mailer"
	"github.com/aliuyar1234/seatdesk/internal/partners"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/google/uuid"
)

// Domains answers which email domains may create teams.
type Domains interface {
	TeamDomain(domain string) (partners.TeamDomain, bool)
	TeamDomains() []string
}

// Inviter sends invitation emails.
type Inviter interface {
	InvitationURLs(token string, teamID uuid.UUID, teamName string) (acceptURL, signupURL string)
	SendInvitation(ctx context.Context, inv mailer.Invitation) mailer.Delivery
}

// Service implements the team and membership registry.
type Service struct {
	store     Store
	domains   Domains
	mail      Inviter
	journal   activity.Recorder
	inviteTTL time.Duration
	now       func() time.Time
}

func NewService(store Store, domains Domains, mail Inviter, journal activity.Recorder, inviteTTL time.Duration) *Service {
	return &Service{
		store:     store,
		domains:   domains,
		mail:      mail,
		journal:   journal,
		inviteTTL: inviteTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InviteResult is a created invitation with the links sent to the invitee.
type InviteResult struct {
	Invitation Invitation `json:"invitation"`
	EmailSent  bool       `json:"emailSent"`
	AcceptURL  string     `json:"acceptUrl"`
	SignupURL  string     `json:"signupUrl"`
}

// Preview is the public view of an invitation before it is accepted.
type Preview struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      policy.Role `json:"role"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Team      string      `json:"team"`
	Inviter   string      `json:"inviter"`
}

// Joined is the outcome of accepting an invitation.
type Joined struct {
	Team Team        `json:"team"`
	Role policy.Role `json:"role"`
}

func (s *Service) require(actor policy.Actor, action policy.Action, res policy.Resource) error {
	if !actor.HasTeam() {
		return ErrTeamNotFound
	}
	if !policy.Can(actor, action, res) {
		return ErrForbidden
	}
	return nil
}

// Get returns the actor's team page. An actor without a team gets an empty
// overview with HasTeam false.
func (s *Service) Get(ctx context.Context, actor policy.Actor) (*Overview, error) {
	if !actor.HasTeam() {
		return &Overview{Members: []Member{}, PendingInvitations: []Invitation{}}, nil
	}
	teamID := *actor.TeamID

	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.ListPendingInvitations(ctx, teamID, s.now())
	if err != nil {
		return nil, err
	}

	role := actor.Role
	return &Overview{
		HasTeam:            true,
		Team:               team,
		UserRole:           &role,
		IsOwner:            role == policy.RoleOwner,
		Members:            members,
		PendingInvitations: pending,
	}, nil
}

// Create makes the actor the owner of a new team on their email domain. An
// empty name falls back to the domain's default team name.
func (s *Service) Create(ctx context.Context, actor policy.Actor, name string) (*Team, error) {
	if !policy.Can(actor, policy.CreateTeam, policy.Resource{}) {
		return nil, ErrAlreadyInTeam
	}

	domain := validation.EmailDomain(actor.Email)
	td, ok := s.domains.TeamDomain(domain)
	if !ok {
		return nil, ErrDomainNotAllowed
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = td.DefaultTeamName(actor.FirstName)
	}
	if err := validation.ValidateTeamName(name); err != nil {
		return nil, err
	}

	team, err := s.store.CreateTeam(ctx, NewTeam{Name: name, Domain: domain, OwnerID: actor.AdminID})
	if err != nil {
		return nil, err
	}

	activity.RecordOrLog(ctx, s.journal, activity.TeamCreated(team.ID, actor.AdminID, team.Name))
	return team, nil
}

// Rename changes the team name. Owner only.
func (s *Service) Rename(ctx context.Context, actor policy.Actor, name string) (*Team, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateTeamName(name); err != nil {
		return nil, err
	}
	if err := s.require(actor, policy.UpdateTeam, policy.Resource{TeamID: teamOf(actor)}); err != nil {
		return nil, err
	}

	before, err := s.store.GetTeam(ctx, *actor.TeamID)
	if err != nil {
		return nil, err
	}
	team, err := s.store.RenameTeam(ctx, before.ID, name)
	if err != nil {
		return nil, err
	}

	activity.RecordOrLog(ctx, s.journal, activity.TeamRenamed(team.ID, actor.AdminID, before.Name, team.Name))
	return team, nil
}

// AllowedDomains lists the email domains that may create teams.
func (s *Service) AllowedDomains() []string {
	return s.domains.TeamDomains()
}

func teamOf(actor policy.Actor) uuid.UUID {
	if actor.TeamID == nil {
		return uuid.Nil
	}
	return *actor.TeamID
}

// Invite creates a pending invitation on the team domain and emails it. A
// failed send is reported in EmailSent and does not fail the invite.
func (s *Service) Invite(ctx context.Context, actor policy.Actor, rawEmail string, role policy.Role) (*InviteResult, error) {
	email := validation.NormalizeEmail(rawEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if !role.Invitable() {
		return nil, ErrInvalidRole
	}
	if err := s.require(actor, policy.InviteMember, policy.Resource{TeamID: teamOf(actor)}); err != nil {
		return nil, err
	}

	team, err := s.store.GetTeam(ctx, *actor.TeamID)
	if err != nil {
		return nil, err
	}
	if validation.EmailDomain(email) != team.Domain {
		return nil, &InviteDomainError{Domain: team.Domain}
	}
	if strings.EqualFold(email, actor.Email) {
		return nil, ErrSelfInvite
	}

	member, err := s.store.IsMemberEmail(ctx, team.ID, email)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	now := s.now()
	pending, err := s.store.HasPendingInvitation(ctx, team.ID, email, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrInvitePending
	}

	inv, token, err := s.store.CreateInvitation(ctx, NewInvitation{
		TeamID:    team.ID,
		Email:     email,
		Role:      role,
		InvitedBy: actor.AdminID,
		ExpiresAt: now.Add(s.inviteTTL),
	})
	if err != nil {
		return nil, err
	}

	del := s.mail.SendInvitation(ctx, mailer.Invitation{
		Email:       inv.Email,
		Token:       token,
		TeamID:      team.ID,
		TeamName:    team.Name,
		Role:        string(inv.Role),
		InviterName: actor.DisplayName(),
		ExpiresAt:   inv.ExpiresAt,
	})
	acceptURL, signupURL := s.mail.InvitationURLs(token, team.ID, team.Name)

	activity.RecordOrLog(ctx, s.journal, activity.MemberInvited(team.ID, actor.AdminID, inv.ID, inv.Email, string(inv.Role)))

	return &InviteResult{
		Invitation: *inv,
		EmailSent:  del.Sent(),
		AcceptURL:  acceptURL,
		SignupURL:  signupURL,
	}, nil
}

// ListInvitations returns the team's pending, unexpired invitations.
func (s *Service) ListInvitations(ctx context.Context, actor policy.Actor) ([]Invitation, error) {
	if err := s.require(actor, policy.ViewTeam, policy.Resource{TeamID: teamOf(actor)}); err != nil {
		return nil, err
	}
	return s.store.ListPendingInvitations(ctx, *actor.TeamID, s.now())
}

// Cancel revokes a pending invitation.
func (s *Service) Cancel(ctx context.Context, actor policy.Actor, invitationID uuid.UUID) error {
	if err := s.require(actor, policy.CancelInvitation, policy.Resource{TeamID: teamOf(actor)}); err != nil {
		return err
	}
	return s.store.RevokeInvitation(ctx, *actor.TeamID, invitationID)
}

func (s *Service) lookup(ctx context.Context, raw string) (*InvitationDetails, error) {
	token, ok := ParseInviteToken(raw)
	if !ok {
		return nil, ErrInvitationNotFound
	}
	return s.store.InvitationByTokenHash(ctx, token.Hash())
}

// Preview resolves a token for the public accept page.
func (s *Service) Preview(ctx context.Context, token string) (*Preview, error) {
	d, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if d.Status != InvitationPending {
		return nil, &InactiveInvitationError{Status: d.Status}
	}
	if !d.Actionable(s.now()) {
		return nil, ErrInvitationExpired
	}

	return &Preview{
		ID:        d.ID,
		Email:     d.Email,
		Role:      d.Role,
		ExpiresAt: d.ExpiresAt,
		Team:      d.TeamName,
		Inviter:   d.InviterName(),
	}, nil
}

// Accept joins the actor to the invited team.
func (s *Service) Accept(ctx context.Context, actor policy.Actor, raw string) (*Joined, error) {
	token, ok := ParseInviteToken(raw)
	if !ok {
		return nil, ErrInvitationInvalid
	}
	if actor.HasTeam() {
		if d, err := s.store.InvitationByTokenHash(ctx, token.Hash()); err == nil && d.TeamID == *actor.TeamID {
			return nil, ErrAlreadyMember
		}
		return nil, ErrAlreadyInTeam
	}

	inv, team, err := s.store.AcceptInvitation(ctx, token.Hash(), actor.AdminID, actor.Email, s.now())
	if err != nil {
		return nil, err
	}

	activity.RecordOrLog(ctx, s.journal, activity.MemberJoined(team.ID, actor.AdminID, inv.ID, actor.Email, string(inv.Role)))
	return &Joined{Team: *team, Role: inv.Role}, nil
}

// ListMembers returns the team roster.
func (s *Service) ListMembers(ctx context.Context, actor policy.Actor) ([]Member, error) {
	if err := s.require(actor, policy.ViewTeam, policy.Resource{TeamID: teamOf(actor)}); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, *actor.TeamID)
}

// target loads a member for a role change or removal and checks that the
// actor may act on them.
func (s *Service) target(ctx context.Context, actor policy.Actor, action policy.Action, memberID uuid.UUID) (*Member, error) {
	teamID := teamOf(actor)
	if !actor.HasTeam() {
		return nil, ErrTeamNotFound
	}
	if !policy.Can(actor, action, policy.Resource{TeamID: teamID, TargetRole: policy.RoleMember}) {
		return nil, ErrForbidden
	}

	m, err := s.store.GetMember(ctx, teamID, memberID)
	if err != nil {
		return nil, err
	}
	if m.Role == policy.RoleOwner {
		return nil, ErrCannotChangeOwner
	}
	return m, nil
}

// ChangeRole sets a non-owner member's role to admin or member. Owner only.
func (s *Service) ChangeRole(ctx context.Context, actor policy.Actor, memberID uuid.UUID, role policy.Role) error {
	if !role.Invitable() {
		return ErrInvalidRole
	}
	m, err := s.target(ctx, actor, policy.ChangeMemberRole, memberID)
	if err != nil {
		return err
	}
	if m.Role == role {
		return nil
	}

	if err := s.store.UpdateMemberRole(ctx, m.TeamID, m.ID, role); err != nil {
		return err
	}

	activity.RecordOrLog(ctx, s.journal, activity.MemberRoleChanged(m.TeamID, actor.AdminID, m.ID, m.Email, string(m.Role), string(role)))
	return nil
}

// RemoveMember deletes a non-owner membership. Owner only. The member's
// licenses stay with the team.
func (s *Service) RemoveMember(ctx context.Context, actor policy.Actor, memberID uuid.UUID) error {
	m, err := s.target(ctx, actor, policy.RemoveMember, memberID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMember(ctx, m.TeamID, m.ID); err != nil {
		return err
	}

	activity.RecordOrLog(ctx, s.journal, activity.MemberRemoved(m.TeamID, actor.AdminID, m.ID, m.Email, string(m.Role)))
	return nil
}

// SweepInvitations deletes invitations that expired or were revoked more
// than retention ago.
func (s *Service) SweepInvitations(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.SweepInvitations(ctx, s.now().Add(-retention))
}
