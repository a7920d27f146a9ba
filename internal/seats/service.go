package seats

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/seatdesk/internal/activity"
	"github.com/aliuyar1234/seatdesk/internal/scope"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const MaxPurchase = 10000

// Purchase sources recorded on seat_purchases.
const (
	SourcePaymentRedirect = "payment_redirect"
	SourceServiceKey      = "service_key"
	SourceAdminCLI        = "admin_cli"
)

var ErrInvalidCount = errors.New("invalid license count")

// Purchase is a request to credit seats to a scope. AdminID is the admin
// the purchase is attributed to, when known.
type Purchase struct {
	Scope     scope.Scope
	AdminID   uuid.UUID
	Count     int
	Reference string
	Source    string
}

type Service struct {
	store   Store
	journal activity.Recorder
}

func NewService(store Store, journal activity.Recorder) *Service {
	return &Service{store: store, journal: journal}
}

// Stats returns the seat counters for sc.
func (s *Service) Stats(ctx context.Context, sc scope.Scope) (Stats, error) {
	purchased, err := s.store.Purchased(ctx, sc)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.store.Counts(ctx, sc)
	if err != nil {
		return Stats{}, err
	}
	return Compute(purchased, counts), nil
}

// Purchase credits p.Count seats to p.Scope. A purchase whose Reference was
// already recorded is reported as a duplicate and credits nothing.
func (s *Service) Purchase(ctx context.Context, p Purchase) (CreditResult, error) {
	if p.Count < 1 || p.Count > MaxPurchase {
		return CreditResult{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidCount, MaxPurchase)
	}
	if !p.Scope.Valid() {
		return CreditResult{}, ErrOwnerNotFound
	}

	if p.Reference == "" {
		log.Warn().
			Str("scope", p.Scope.String()).
			Str("source", p.Source).
			Int("count", p.Count).
			Msg("Seat purchase without reference cannot be deduplicated")
	}

	res, err := s.store.Credit(ctx, Credit{
		Scope:     p.Scope,
		AdminID:   p.AdminID,
		Count:     p.Count,
		Reference: p.Reference,
		Source:    p.Source,
	})
	if err != nil {
		return CreditResult{}, err
	}

	if res.Duplicate {
		log.Info().
			Str("scope", p.Scope.String()).
			Str("reference", p.Reference).
			Msg("Duplicate seat purchase ignored")
		return res, nil
	}

	log.Info().
		Str("scope", p.Scope.String()).
		Str("source", p.Source).
		Int("count", p.Count).
		Int("total", res.Total).
		Msg("Seats purchased")

	activity.RecordOrLog(ctx, s.journal, activity.LicensesPurchased(p.Scope, p.AdminID, p.Count, p.Source))
	return res, nil
}

// ScopeForAdmin is the scope an admin's purchases land in: their team if
// they have one, else their solo counter.
func (s *Service) ScopeForAdmin(ctx context.Context, adminID uuid.UUID) (scope.Scope, error) {
	teamID, ok, err := s.store.TeamOf(ctx, adminID)
	if err != nil {
		return scope.Scope{}, err
	}
	if ok {
		return scope.Team(teamID), nil
	}
	return scope.Solo(adminID), nil
}
