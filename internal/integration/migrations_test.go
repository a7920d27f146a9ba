package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/seatdesk/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	for _, table := range []string{"admins", "teams", "team_members", "team_invitations", "licenses", "seat_purchases", "activity_logs"} {
		var count int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s", table)
	}

	status, err := db.Status(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, status.Pending)
	require.Len(t, status.Applied, 3)

	// A second run is a no-op.
	require.NoError(t, db.RunMigrations(ctx, pool))
}
