package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/aliuyar1234/seatdesk/internal/licenses"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	SweepSchedule    = "0 3 * * *"
	DevSweepSchedule = "* * * * *"
	SyncSchedule     = "*/15 * * * *"

	// SyncBatchSize caps how many licenses a single sync run refreshes.
	SyncBatchSize = 200

	jobTimeout = 10 * time.Minute
)

type InvitationSweeper interface {
	SweepInvitations(ctx context.Context, retention time.Duration) (int64, error)
}

type DeliverySyncer interface {
	SyncAwaitingDelivery(ctx context.Context, limit int) (*licenses.SyncResult, error)
}

// Options configures the scheduled jobs.
type Options struct {
	Dev             bool
	InviteRetention time.Duration
}

// RunInvitationSweep removes invitations that stopped being actionable more
// than retention ago.
func RunInvitationSweep(ctx context.Context, sweeper InvitationSweeper, retention time.Duration) error {
	log.Info().
		Dur("retention", retention).
		Msg("Starting invitation sweep job")

	start := time.Now()
	deleted, err := sweeper.SweepInvitations(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to sweep invitations: %w", err)
	}

	log.Info().
		Int64("invitations_deleted", deleted).
		Dur("duration", time.Since(start)).
		Msg("Invitation sweep job completed")
	return nil
}

// RunDeliverySync refreshes the provider delivery status of licenses whose
// activation email is still marked as sent.
func RunDeliverySync(ctx context.Context, syncer DeliverySyncer, limit int) error {
	log.Info().
		Int("limit", limit).
		Msg("Starting delivery status sync job")

	start := time.Now()
	res, err := syncer.SyncAwaitingDelivery(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to sync delivery statuses: %w", err)
	}

	log.Info().
		Int("checked", len(res.Statuses)).
		Int("synced", res.Synced).
		Dur("duration", time.Since(start)).
		Msg("Delivery status sync job completed")
	return nil
}

// NewScheduler registers both jobs on a UTC cron. The caller starts and
// stops it.
func NewScheduler(opts Options, sweeper InvitationSweeper, syncer DeliverySyncer) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	sweepSchedule := SweepSchedule
	if opts.Dev {
		sweepSchedule = DevSweepSchedule
	}

	if _, err := c.AddFunc(sweepSchedule, guarded("Invitation sweep", func(ctx context.Context) error {
		return RunInvitationSweep(ctx, sweeper, opts.InviteRetention)
	})); err != nil {
		return nil, fmt.Errorf("failed to schedule invitation sweep: %w", err)
	}

	if _, err := c.AddFunc(SyncSchedule, guarded("Delivery status sync", func(ctx context.Context) error {
		return RunDeliverySync(ctx, syncer, SyncBatchSize)
	})); err != nil {
		return nil, fmt.Errorf("failed to schedule delivery status sync: %w", err)
	}

	return c, nil
}

func guarded(name string, job func(ctx context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msgf("%s job panicked", name)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Msgf("%s job failed", name)
		}
	}
}
