package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankityadav/uptimed/internal/storage"
	"github.com/ankityadav/uptimed/internal/storage/storagetest"
)

func TestListActiveTargets(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()

	active := storagetest.Seed(t, db, storage.Target{Name: "api", URL: "https://api.example.com", IsActive: true}, "")
	storagetest.Seed(t, db, storage.Target{Name: "old", URL: "https://old.example.com", IsActive: false}, "")

	targets, err := db.ListActiveTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, active.ID, targets[0].ID)

	stamps, err := db.ListTargetStamps(ctx)
	require.NoError(t, err)
	assert.Len(t, stamps, 2)
}

func TestFetchTargetByIDNotFound(t *testing.T) {
	db := storagetest.New(t)

	_, err := db.FetchTargetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindOpenIncidentsFiltersByKind(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()
	target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")

	now := time.Now()
	timeout := &storage.Incident{MonitorID: target.ID, Type: storage.OutcomeTimeout, Status: storage.IncidentActive, StartedAt: now.Add(-time.Minute)}
	status := &storage.Incident{MonitorID: target.ID, Type: storage.OutcomeStatusCodeError, Status: storage.IncidentActive, StartedAt: now}
	require.NoError(t, db.InsertIncident(ctx, timeout))
	require.NoError(t, db.InsertIncident(ctx, status))

	all, err := db.FindOpenIncidents(ctx, target.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, status.ID, all[0].ID, "newest first")

	onlyTimeout, err := db.FindOpenIncidents(ctx, target.ID, storage.OutcomeTimeout)
	require.NoError(t, err)
	require.Len(t, onlyTimeout, 1)
	assert.Equal(t, timeout.ID, onlyTimeout[0].ID)
}

func TestUpdateIncidentResolvesOnce(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()
	target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")

	inc := &storage.Incident{MonitorID: target.ID, Type: storage.OutcomeOffline, Status: storage.IncidentActive, StartedAt: time.Now().Add(-10 * time.Minute)}
	require.NoError(t, db.InsertIncident(ctx, inc))

	resolvedAt := time.Now()
	require.NoError(t, db.UpdateIncident(ctx, inc.ID, storage.Resolution(resolvedAt, 10)))

	err := db.UpdateIncident(ctx, inc.ID, storage.Resolution(resolvedAt.Add(time.Minute), 11))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IncidentResolved, got.Status)
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 10, *got.DurationMinutes)
	require.NotNil(t, got.ResolvedAt)

	open, err := db.FindOpenIncidents(ctx, target.ID, "")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestUpdateIncidentLastNotifiedOnlyMovesForward(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()
	target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")

	inc := &storage.Incident{MonitorID: target.ID, Type: storage.OutcomeTimeout, Status: storage.IncidentActive, StartedAt: time.Now()}
	require.NoError(t, db.InsertIncident(ctx, inc))

	later := time.Now()
	earlier := later.Add(-time.Hour)
	require.NoError(t, db.UpdateIncident(ctx, inc.ID, storage.IncidentUpdate{LastNotifiedAt: &later}))

	err := db.UpdateIncident(ctx, inc.ID, storage.IncidentUpdate{LastNotifiedAt: &earlier})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastNotifiedAt)
	assert.WithinDuration(t, later, *got.LastNotifiedAt, time.Millisecond)
}

func TestFetchOwnerEmail(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()
	target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "owner@example.com")

	email, err := db.FetchOwnerEmail(ctx, target.UserID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", email)

	_, err = db.FetchOwnerEmail(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = db.FetchOwnerEmail(ctx, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertCheckResultIsAppendOnly(t *testing.T) {
	db := storagetest.New(t)
	ctx := context.Background()
	target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")

	for i := 0; i < 3; i++ {
		require.NoError(t, db.InsertCheckResult(ctx, &storage.CheckResult{
			MonitorID: target.ID,
			Status:    storage.OutcomeOnline,
			CheckedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	results, err := db.RecentCheckResults(ctx, target.ID, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.True(t, results[0].CheckedAt.After(results[2].CheckedAt))
}
