package prefs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// TestReconcilePushesOfflineSave walks the offline-save scenario end to
// end: a filter saved while the backend is down is pushed upstream on the
// next reconciliation and keeps its locally generated id.
func TestReconcilePushesOfflineSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.failAllRemotes(true)
	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{
		Target:   models.TargetCompany,
		Name:     "EU Family Offices",
		Criteria: models.Criteria{"country": "Germany"},
	})
	require.NoError(t, err)
	require.True(t, saved.Pending)
	require.Len(t, f.svc.Filters.List(ctx), 1)

	// Connectivity returns, next session start reconciles.
	f.failAllRemotes(false)
	rep, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushed)
	assert.Equal(t, 0, rep.Failed)

	assert.Equal(t, 1, f.filters.Len())
	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, saved.ID, listed[0].ID, "the pushed record keeps its id")
	assert.False(t, listed[0].Pending)
}

// TestReconcileDedup covers the concurrent-insert case: the mirror holds a
// pending favorite whose entity was already favorited through another
// path. Reconciliation must not create a second remote record.
func TestReconcileDedup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.failAllRemotes(true)
	_, _, err := f.svc.FavoritePersons.Ensure(ctx, &models.FavoritePerson{ID: "person-1", Name: "Ada"})
	require.NoError(t, err)

	f.failAllRemotes(false)
	f.persons.Seed(&models.FavoritePerson{ID: "person-1", Owner: testOwner, Name: "Ada", AddedAt: time.Now()})
	inserts := f.persons.Inserts

	rep, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Pushed)
	assert.Equal(t, 1, rep.Skipped)

	assert.Equal(t, 1, f.persons.Len(), "exactly one remote record for the entity")
	assert.Equal(t, inserts, f.persons.Inserts, "no duplicate insert was issued")

	listed := f.svc.FavoritePersons.List(ctx)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Pending)
}

func TestReconcileRemoteDownKeepsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.failAllRemotes(true)
	_, _, err := f.svc.FavoriteCompanies.Ensure(ctx, &models.FavoriteCompany{ID: "company-1", Name: "Acme"})
	require.NoError(t, err)

	rep, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Pushed)
	assert.Equal(t, 1, rep.Failed)

	listed := f.svc.FavoriteCompanies.List(ctx)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Pending, "unreconciled records stay pending for the next run")
}

func TestReconcileRequiresOwner(t *testing.T) {
	f := newFixture("")
	_, err := f.svc.Reconcile(context.Background())
	require.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestReconcilePullsUnseenRemoteRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.filters.Seed(&models.SavedFilter{
		ID:        models.NewFilterID(),
		Owner:     testOwner,
		Target:    models.TargetPerson,
		Name:      "From Another Device",
		CreatedAt: time.Now(),
	})

	_, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)

	// Mirror now serves the record even with the remote gone.
	f.failAllRemotes(true)
	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, "From Another Device", listed[0].Name)
}

func TestReconcileTwiceIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.failAllRemotes(true)
	_, _, err := f.svc.FavoritePersons.Ensure(ctx, &models.FavoritePerson{ID: "person-1", Name: "Ada"})
	require.NoError(t, err)
	f.failAllRemotes(false)

	_, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	rep, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Pushed, "a second run has nothing left to push")
	assert.Equal(t, 1, f.persons.Len())
}
