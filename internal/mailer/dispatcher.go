package mailer

import (
	"context"
	"net/url"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/partners"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Delivery is the outcome of one send. Status is StatusSent or StatusFailed.
type Delivery struct {
	MessageID string
	Status    string
}

func (d Delivery) Sent() bool { return d.Status == StatusSent }

// Activation is one license activation email to send.
type Activation struct {
	LicenseID uuid.UUID
	Email     string
}

// Sponsor is the admin on whose behalf emails go out. Their email selects
// the partner program used for branding.
type Sponsor struct {
	Name  string
	Email string
}

// Invitation is one team invitation email to send.
type Invitation struct {
	Email       string
	Token       string
	TeamID      uuid.UUID
	TeamName    string
	Role        string
	InviterName string
	ExpiresAt   time.Time
}

// DispatcherConfig holds the link bases used in emails.
type DispatcherConfig struct {
	ConsumerAppURL string
	InviteURL      string
}

// Dispatcher renders and sends notification emails. Send failures are
// logged and reported as failed deliveries, never returned as errors.
type Dispatcher struct {
	sender    Sender
	templates *Templates
	programs  *partners.Registry
	queue     *Queue
	cfg       DispatcherConfig
}

func NewDispatcher(sender Sender, templates *Templates, programs *partners.Registry, queue *Queue, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		templates: templates,
		programs:  programs,
		queue:     queue,
		cfg:       cfg,
	}
}

// Program returns the partner program for an admin email.
func (d *Dispatcher) Program(adminEmail string) partners.Program {
	return d.programs.ForEmail(adminEmail)
}

// ActivationURL is the consumer app link that activates a license.
func (d *Dispatcher) ActivationURL(p partners.Program, licenseID uuid.UUID) string {
	q := url.Values{}
	q.Set("licenseId", licenseID.String())
	q.Set("ref", p.Ref)
	q.Set("org", p.Slug)
	return d.cfg.ConsumerAppURL + "/register?" + encodeOrdered(q, "licenseId", "ref", "org")
}

// InvitationURLs returns the accept link for existing accounts and the
// signup link for new ones.
func (d *Dispatcher) InvitationURLs(token string, teamID uuid.UUID, teamName string) (acceptURL, signupURL string) {
	acceptURL = d.cfg.InviteURL + "/invite/accept?token=" + url.QueryEscape(token)

	q := url.Values{}
	q.Set("invite", token)
	q.Set("team", teamID.String())
	q.Set("teamName", teamName)
	signupURL = d.cfg.InviteURL + "/signup?" + encodeOrdered(q, "invite", "team", "teamName")
	return acceptURL, signupURL
}

// SendActivation sends one activation email.
func (d *Dispatcher) SendActivation(ctx context.Context, sponsor Sponsor, a Activation) Delivery {
	return d.sendActivation(ctx, sponsor, d.Program(sponsor.Email), a)
}

// SendActivations sends activation emails chunk by chunk. Within a chunk
// the sends run in parallel; the next chunk starts once the current one
// has finished. The result is indexed like items.
func (d *Dispatcher) SendActivations(ctx context.Context, sponsor Sponsor, items []Activation) []Delivery {
	out := make([]Delivery, len(items))
	program := d.Program(sponsor.Email)

	offset := 0
	for _, chunk := range Chunk(items, BatchSize) {
		var g errgroup.Group
		for i, a := range chunk {
			idx := offset + i
			g.Go(func() error {
				out[idx] = d.sendActivation(ctx, sponsor, program, a)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(chunk)
	}

	sent := 0
	for _, del := range out {
		if del.Sent() {
			sent++
		}
	}
	log.Info().
		Int("sent", sent).
		Int("failed", len(out)-sent).
		Msg("Activation batch dispatched")

	return out
}

func (d *Dispatcher) sendActivation(ctx context.Context, sponsor Sponsor, p partners.Program, a Activation) Delivery {
	msg, err := d.templates.Activation(ActivationData{
		Program:       p,
		Email:         a.Email,
		AdminName:     sponsor.Name,
		ActivationURL: d.ActivationURL(p, a.LicenseID),
	})
	if err != nil {
		log.Error().Err(err).Str("license_id", a.LicenseID.String()).Msg("Failed to render activation email")
		return Delivery{Status: StatusFailed}
	}

	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		log.Warn().
			Err(err).
			Str("license_id", a.LicenseID.String()).
			Str("email", a.Email).
			Msg("Failed to send activation email")
		return Delivery{Status: StatusFailed}
	}
	return Delivery{MessageID: id, Status: StatusSent}
}

// SendInvitation sends one team invitation email.
func (d *Dispatcher) SendInvitation(ctx context.Context, inv Invitation) Delivery {
	p := d.Program(inv.Email)
	acceptURL, signupURL := d.InvitationURLs(inv.Token, inv.TeamID, inv.TeamName)

	msg, err := d.templates.Invitation(InvitationData{
		Program:     p,
		Email:       inv.Email,
		InviterName: inv.InviterName,
		TeamName:    inv.TeamName,
		Role:        inv.Role,
		AcceptURL:   acceptURL,
		SignupURL:   signupURL,
		ExpiresAt:   inv.ExpiresAt.UTC().Format("January 2, 2006"),
	})
	if err != nil {
		log.Error().Err(err).Str("team_id", inv.TeamID.String()).Msg("Failed to render invitation email")
		return Delivery{Status: StatusFailed}
	}

	id, err := d.sender.Send(ctx, msg)
	if err != nil {
		log.Warn().
			Err(err).
			Str("team_id", inv.TeamID.String()).
			Str("email", inv.Email).
			Msg("Failed to send invitation email")
		return Delivery{Status: StatusFailed}
	}
	return Delivery{MessageID: id, Status: StatusSent}
}

// FetchStatuses looks up delivery statuses one at a time through the paced
// queue. A failed lookup maps to StatusUnknown. Ids skipped because ctx
// ended are absent from the result.
func (d *Dispatcher) FetchStatuses(ctx context.Context, messageIDs []string) map[string]string {
	out := make(map[string]string, len(messageIDs))
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}

		var status string
		err := d.queue.Do(ctx, func(ctx context.Context) {
			st, err := d.sender.Status(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("message_id", id).Msg("Failed to fetch email status")
				st = StatusUnknown
			}
			status = st
		})
		if err != nil {
			log.Warn().Err(err).Int("remaining", len(messageIDs)-len(out)).Msg("Email status lookup interrupted")
			break
		}
		out[id] = status
	}
	return out
}

// encodeOrdered encodes q with keys in the given order instead of sorted.
func encodeOrdered(q url.Values, keys ...string) string {
	var buf []byte
	for _, k := range keys {
		for _, v := range q[k] {
			if len(buf) > 0 {
				buf = append(buf, '&')
			}
			buf = append(buf, url.QueryEscape(k)...)
			buf = append(buf, '=')
			buf = append(buf, url.QueryEscape(v)...)
		}
	}
	return string(buf)
}
