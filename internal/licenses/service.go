package licenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/mailer"
	"github.com/aliuyar1234/seatdesk/internal/partners"
	"github.com/aliuyar1234/seatdesk/internal/policy"
	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/aliuyar1234/seatdesk/internal/seats"
	"github.com/aliuyar1234/seatdesk/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// insertConcurrency bounds the parallel inserts of one batch.
const insertConcurrency = 8

var (
	// ErrEmptyBatch is returned when a batch has no rows
	ErrEmptyBatch = errors.New("no email addresses provided")

	// ErrForbidden is returned when the actor may not manage the license
	ErrForbidden = errors.New("not allowed to manage this license")

	// ErrSendFailed is returned when a resend could not be delivered
	ErrSendFailed = errors.New("failed to send activation email")
)

// SeatCounter reports seat counters for a scope.
type SeatCounter interface {
	Stats(ctx context.Context, sc scope.Scope) (seats.Stats, error)
}

// Mailer sends activation emails and looks up their delivery status.
type Mailer interface {
	Program(adminEmail string) partners.Program
	SendActivation(ctx context.Context, sponsor mailer.Sponsor, a mailer.Activation) mailer.Delivery
	SendActivations(ctx context.Context, sponsor mailer.Sponsor, items []mailer.Activation) []mailer.Delivery
	FetchStatuses(ctx context.Context, messageIDs []string) map[string]string
}

// Service implements the license ledger for an actor's scope.
type Service struct {
	store   Store
	seats   SeatCounter
	mail    Mailer
	journal activity.Recorder
}

func NewService(store Store, seats SeatCounter, mail Mailer, journal activity.Recorder) *Service {
	return &Service{
		store:   store,
		seats:   seats,
		mail:    mail,
		journal: journal,
	}
}

func sponsorOf(actor policy.Actor) mailer.Sponsor {
	return mailer.Sponsor{Name: actor.DisplayName(), Email: actor.Email}
}

// List returns the actor's licenses, newest first, with their seat counters.
func (s *Service) List(ctx context.Context, actor policy.Actor) (*ListResult, error) {
	sc := actor.Scope()

	licenses, err := s.store.List(ctx, sc)
	if err != nil {
		return nil, err
	}
	stats, err := s.seats.Stats(ctx, sc)
	if err != nil {
		return nil, err
	}
	return &ListResult{Licenses: licenses, Stats: stats}, nil
}

// Add assigns one license and sends its activation email. A failed send
// does not fail the add.
func (s *Service) Add(ctx context.Context, actor policy.Actor, rawEmail string) (*AddResult, error) {
	email := validation.NormalizeEmail(rawEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	sc := actor.Scope()
	existing, err := s.store.ExistingEmails(ctx, sc, []string{email})
	if err != nil {
		return nil, err
	}
	if existing[email] {
		return nil, ErrDuplicateEmail
	}

	stats, err := s.seats.Stats(ctx, sc)
	if err != nil {
		return nil, err
	}
	if err := stats.Reserve(1); err != nil {
		return nil, err
	}

	l, err := s.store.Insert(ctx, NewLicense{
		Email:       email,
		Scope:       sc,
		AdminID:     actor.AdminID,
		PerformedBy: actor.AdminID,
	})
	if err != nil {
		return nil, err
	}

	del := s.mail.SendActivation(ctx, sponsorOf(actor), mailer.Activation{LicenseID: l.ID, Email: l.Email})
	s.recordDelivery(ctx, l, del)

	log.Info().
		Str("license_id", l.ID.String()).
		Str("scope", sc.String()).
		Bool("email_sent", del.Sent()).
		Msg("License added")

	activity.RecordOrLog(ctx, s.journal, activity.LicenseAdded(sc, actor.AdminID, l.ID, l.Email))

	return &AddResult{License: *l, EmailSent: del.Sent()}, nil
}

// AddBatch runs the batch pipeline used by add-multiple and import. Rows
// are screened for format and in-batch duplicates, then for existing
// licenses, and the survivors must all fit in the available seats or the
// whole batch is rejected before anything is written.
func (s *Service) AddBatch(ctx context.Context, actor policy.Actor, rows []string, imported bool) (*BatchResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	sc := actor.Scope()
	plan := screenBatch(rows)

	existing, err := s.store.ExistingEmails(ctx, sc, plan.emails)
	if err != nil {
		return nil, err
	}
	plan = plan.withoutExisting(existing)

	if len(plan.emails) > 0 {
		stats, err := s.seats.Stats(ctx, sc)
		if err != nil {
			return nil, err
		}
		if err := stats.Reserve(len(plan.emails)); err != nil {
			return nil, err
		}
	}

	inserted, insertErrors := s.insertAll(ctx, actor, sc, plan.emails)

	res := &BatchResult{
		Errors:   append(plan.errors, insertErrors...),
		Licenses: make([]Summary, 0, len(inserted)),
	}

	if len(inserted) > 0 {
		items := make([]mailer.Activation, len(inserted))
		for i, l := range inserted {
			items[i] = mailer.Activation{LicenseID: l.ID, Email: l.Email}
		}
		deliveries := s.mail.SendActivations(ctx, sponsorOf(actor), items)
		for i, l := range inserted {
			s.recordDelivery(ctx, l, deliveries[i])
			if deliveries[i].Sent() {
				res.EmailsSent++
			} else {
				res.EmailsFailed++
			}
			res.Licenses = append(res.Licenses, l.Summary())
		}
	}

	res.Success = len(inserted)
	res.Failed = len(res.Errors)

	log.Info().
		Str("scope", sc.String()).
		Int("rows", len(rows)).
		Int("added", res.Success).
		Int("failed", res.Failed).
		Int("emails_sent", res.EmailsSent).
		Bool("import", imported).
		Msg("License batch processed")

	if res.Success > 0 {
		entry := activity.LicensesAdded(sc, actor.AdminID, res.Success, res.Failed)
		if imported {
			entry = activity.LicensesImported(sc, actor.AdminID, res.Success, res.Failed)
		}
		activity.RecordOrLog(ctx, s.journal, entry)
	}

	return res, nil
}

// insertAll inserts emails with bounded fan-out. Inserted licenses keep
// the order of emails; rows that failed are reported as messages.
func (s *Service) insertAll(ctx context.Context, actor policy.Actor, sc scope.Scope, emails []string) ([]*License, []string) {
	results := make([]*License, len(emails))
	failures := make([]error, len(emails))

	var g errgroup.Group
	g.SetLimit(insertConcurrency)
	for i, email := range emails {
		g.Go(func() error {
			l, err := s.store.Insert(ctx, NewLicense{
				Email:       email,
				Scope:       sc,
				AdminID:     actor.AdminID,
				PerformedBy: actor.AdminID,
			})
			results[i] = l
			failures[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var inserted []*License
	var messages []string
	for i, email := range emails {
		switch err := failures[i]; {
		case err == nil:
			inserted = append(inserted, results[i])
		case errors.Is(err, ErrDuplicateEmail):
			messages = append(messages, existsMessage(email))
		default:
			log.Error().Err(err).Str("email", email).Msg("Failed to insert license")
			messages = append(messages, fmt.Sprintf("Failed to add license for: %s", email))
		}
	}
	return inserted, messages
}

// recordDelivery stores the outcome of a send on l. Failures are logged.
func (s *Service) recordDelivery(ctx context.Context, l *License, del mailer.Delivery) {
	if err := s.store.RecordDelivery(ctx, l.ID, del.MessageID, del.Status); err != nil {
		log.Warn().Err(err).Str("license_id", l.ID.String()).Msg("Failed to record email delivery")
		return
	}
	status := del.Status
	l.EmailStatus = &status
	l.MessageID = nil
	if del.MessageID != "" {
		mid := del.MessageID
		l.MessageID = &mid
	}
}

// Remove deletes a license the actor manages.
func (s *Service) Remove(ctx context.Context, actor policy.Actor, id uuid.UUID) error {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !policy.Can(actor, policy.ManageLicense, policy.Resource{Scope: l.Scope()}) {
		return ErrForbidden
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("license_id", id.String()).Str("admin_id", actor.AdminID.String()).Msg("License removed")
	activity.RecordOrLog(ctx, s.journal, activity.LicenseRemoved(l.Scope(), actor.AdminID, l.ID, l.Email))
	return nil
}

// managed loads a license the actor manages. Licenses outside the actor's
// scope are reported as not found.
func (s *Service) managed(ctx context.Context, actor policy.Actor, id uuid.UUID) (*License, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, policy.ManageLicense, policy.Resource{Scope: l.Scope()}) {
		return nil, ErrNotFound
	}
	return l, nil
}

// Resend sends the activation email of an unactivated license again.
func (s *Service) Resend(ctx context.Context, actor policy.Actor, id uuid.UUID) error {
	l, err := s.managed(ctx, actor, id)
	if err != nil {
		return err
	}
	if l.IsActivated {
		return ErrAlreadyActivated
	}

	del := s.mail.SendActivation(ctx, sponsorOf(actor), mailer.Activation{LicenseID: l.ID, Email: l.Email})
	if !del.Sent() {
		if err := s.store.SetEmailStatus(ctx, l.ID, EmailStatusFailed); err != nil {
			log.Warn().Err(err).Str("license_id", l.ID.String()).Msg("Failed to record email delivery")
		}
		return ErrSendFailed
	}
	s.recordDelivery(ctx, l, del)

	activity.RecordOrLog(ctx, s.journal, activity.LicenseResent(l.Scope(), actor.AdminID, l.ID, l.Email))
	return nil
}

// UpdateEmail moves an unactivated license to a new email and sends the
// activation email to it.
func (s *Service) UpdateEmail(ctx context.Context, actor policy.Actor, id uuid.UUID, rawEmail string) (*AddResult, error) {
	email := validation.NormalizeEmail(rawEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	l, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if l.IsActivated {
		return nil, ErrAlreadyActivated
	}

	sc := l.Scope()
	if email != l.Email {
		existing, err := s.store.ExistingEmails(ctx, sc, []string{email})
		if err != nil {
			return nil, err
		}
		if existing[email] {
			return nil, ErrDuplicateEmail
		}
	}

	updated, err := s.store.UpdateEmail(ctx, id, email)
	if err != nil {
		return nil, err
	}

	del := s.mail.SendActivation(ctx, sponsorOf(actor), mailer.Activation{LicenseID: updated.ID, Email: updated.Email})
	s.recordDelivery(ctx, updated, del)

	activity.RecordOrLog(ctx, s.journal, activity.LicenseEmailUpdated(sc, actor.AdminID, l.ID, l.Email, email))

	return &AddResult{License: *updated, EmailSent: del.Sent()}, nil
}

// Activate marks a license activated with the end user's business
// details. It needs no session: the license id is the credential.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, b Business) (*License, error) {
	if err := validation.ValidateBusinessField(b.Name); err != nil {
		return nil, fmt.Errorf("business name: %w", err)
	}
	if err := validation.ValidateBusinessField(b.Type); err != nil {
		return nil, fmt.Errorf("business type: %w", err)
	}

	l, err := s.store.Activate(ctx, id, b)
	if err != nil {
		return nil, err
	}

	log.Info().Str("license_id", l.ID.String()).Msg("License activated")
	return l, nil
}

// Verify reports whether the license exists and is activated.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) (bool, error) {
	l, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return l.IsActivated, nil
}

// Export returns the actor's licenses and the program slug used to name
// the download.
func (s *Service) Export(ctx context.Context, actor policy.Actor) ([]License, string, error) {
	licenses, err := s.store.List(ctx, actor.Scope())
	if err != nil {
		return nil, "", err
	}
	return licenses, s.mail.Program(actor.Email).Slug, nil
}

// SyncEmailStatuses refreshes the delivery status of every emailed license
// in the actor's scope.
func (s *Service) SyncEmailStatuses(ctx context.Context, actor policy.Actor) (*SyncResult, error) {
	licenses, err := s.store.WithMessageID(ctx, actor.Scope())
	if err != nil {
		return nil, err
	}
	return s.syncStatuses(ctx, licenses), nil
}

// SyncAwaitingDelivery refreshes up to limit licenses across all scopes
// whose last known status is "sent".
func (s *Service) SyncAwaitingDelivery(ctx context.Context, limit int) (*SyncResult, error) {
	licenses, err := s.store.AwaitingDelivery(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.syncStatuses(ctx, licenses), nil
}

func (s *Service) syncStatuses(ctx context.Context, licenses []License) *SyncResult {
	res := &SyncResult{Statuses: []StatusEntry{}}
	if len(licenses) == 0 {
		return res
	}

	ids := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l.MessageID != nil {
			ids = append(ids, *l.MessageID)
		}
	}
	statuses := s.mail.FetchStatuses(ctx, ids)

	for _, l := range licenses {
		if l.MessageID == nil {
			continue
		}
		status, ok := statuses[*l.MessageID]
		if !ok {
			continue
		}
		res.Statuses = append(res.Statuses, StatusEntry{LicenseID: l.ID, Email: l.Email, Status: status})
		res.Synced++

		if status == mailer.StatusUnknown || (l.EmailStatus != nil && *l.EmailStatus == status) {
			continue
		}
		if err := s.store.SetEmailStatus(ctx, l.ID, status); err != nil {
			log.Warn().Err(err).Str("license_id", l.ID.String()).Msg("Failed to update email status")
		}
	}

	log.Info().Int("licenses", len(licenses)).Int("synced", res.Synced).Msg("Email statuses synced")
	return res
}
