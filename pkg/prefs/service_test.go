package prefs

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgbook/prefsync/pkg/bus"
	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
	"github.com/orgbook/prefsync/pkg/store/storetest"
)

const testOwner = models.UserID("user-1")

type fixture struct {
	svc       *Service
	filters   *storetest.FakeRemote[*models.SavedFilter]
	persons   *storetest.FakeRemote[*models.FavoritePerson]
	companies *storetest.FakeRemote[*models.FavoriteCompany]
	kv        *storetest.MemoryKV
	bus       *bus.Bus
}

func newFixture(owner models.UserID) *fixture {
	f := &fixture{
		filters:   storetest.NewFakeRemote[*models.SavedFilter](),
		persons:   storetest.NewFakeRemote[*models.FavoritePerson](),
		companies: storetest.NewFakeRemote[*models.FavoriteCompany](),
		kv:        storetest.NewMemoryKV(),
		bus:       bus.New(),
	}
	f.svc = New(store.StaticIdentity(owner), f.kv, Remotes{
		Filters:           f.filters,
		FavoritePersons:   f.persons,
		FavoriteCompanies: f.companies,
	}, f.bus, zerolog.Nop())
	return f
}

// failAllRemotes simulates the backend becoming unreachable.
func (f *fixture) failAllRemotes(fail bool) {
	f.filters.SetFail(fail)
	f.persons.SetFail(fail)
	f.companies.SetFail(fail)
}

func TestSaveFilterRemoteFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	events := 0
	f.bus.Subscribe(bus.SavedFiltersChanged, func() { events++ })

	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{
		Target:   models.TargetCompany,
		Name:     "EU Family Offices",
		Criteria: models.Criteria{"country": "Germany"},
	})
	require.NoError(t, err)
	require.False(t, saved.Pending)
	require.False(t, saved.ID.IsZero())
	assert.Equal(t, testOwner, saved.Owner)
	assert.False(t, saved.CreatedAt.IsZero())

	_, ok := f.filters.Get(saved.Key())
	assert.True(t, ok, "record must reach the remote store")
	assert.Equal(t, 1, events)

	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, saved.ID, listed[0].ID)
}

func TestSaveFilterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	cases := []struct {
		name   string
		filter *models.SavedFilter
	}{
		{"empty name", &models.SavedFilter{Target: models.TargetCompany, Name: "  "}},
		{"unknown kind", &models.SavedFilter{Target: "unknown", Name: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Filters.Save(ctx, tc.filter)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	assert.Equal(t, 0, f.filters.Len(), "invalid record must not reach the remote store")
	assert.Empty(t, f.svc.Filters.List(ctx), "invalid record must not reach the mirror")
}

func TestSaveFilterOfflineKeepsIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)
	f.failAllRemotes(true)

	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{
		Target: models.TargetPerson,
		Name:   "Berlin CTOs",
	})
	require.NoError(t, err, "a degraded save still succeeds")
	assert.True(t, saved.Pending)
	assert.False(t, saved.ID.IsZero(), "offline saves carry a locally generated id")
	assert.Equal(t, 0, f.filters.Len())

	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, saved.ID, listed[0].ID)
	assert.True(t, listed[0].Pending)
}

func TestSaveRejectedWithoutOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture("")

	_, err := f.svc.Filters.Save(ctx, &models.SavedFilter{Target: models.TargetCompany, Name: "x"})
	require.ErrorIs(t, err, store.ErrUnauthenticated)
	assert.Equal(t, 0, f.filters.Len())
}

func TestEnsureFavoriteIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	fav := &models.FavoritePerson{ID: "person-7", Name: "Ada Kowalski", Position: "CTO"}
	first, created, err := f.svc.FavoritePersons.Ensure(ctx, fav)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.FavoritePersons.Ensure(ctx, &models.FavoritePerson{ID: "person-7", Name: "Ada Kowalski", Position: "CTO"})
	require.NoError(t, err)
	assert.False(t, created, "second add must be a no-op")
	assert.Equal(t, first, second, "second call returns the first call's record")
	assert.Equal(t, 1, f.persons.Inserts, "the store must be written exactly once")
	assert.Equal(t, 1, f.persons.Len())
}

func TestEnsureAllReportsNewlyAdded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.persons.Seed(&models.FavoritePerson{ID: "person-1", Owner: testOwner, Name: "Existing", AddedAt: time.Now()})

	added, err := f.svc.FavoritePersons.EnsureAll(ctx, []*models.FavoritePerson{
		{ID: "person-1", Name: "Existing"},
		{ID: "person-2", Name: "New One"},
		{ID: "person-3", Name: "New Two"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added, "already-favorited entries do not count")
	assert.Equal(t, 3, f.persons.Len())
}

func TestEnsureAllSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	added, err := f.svc.FavoriteCompanies.EnsureAll(ctx, []*models.FavoriteCompany{
		{ID: "", Name: "missing id"},
		{ID: "company-9", Name: "Valid GmbH"},
	})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, f.companies.Len())
}

func TestDeleteIsUnconditionalLocally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{Target: models.TargetCompany, Name: "To Delete"})
	require.NoError(t, err)

	f.failAllRemotes(true)
	removed := f.svc.Filters.Delete(ctx, saved.Key())
	assert.True(t, removed, "local removal counts even when the remote call fails")
	assert.Empty(t, f.svc.Filters.List(ctx))
}

func TestDeleteRemovesRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	fav, _, err := f.svc.FavoriteCompanies.Ensure(ctx, &models.FavoriteCompany{ID: "company-1", Name: "Acme"})
	require.NoError(t, err)

	events := 0
	f.bus.Subscribe(bus.FavoritesChanged, func() { events++ })

	assert.True(t, f.svc.FavoriteCompanies.Delete(ctx, fav.Key()))
	assert.Equal(t, 0, f.companies.Len())
	assert.Empty(t, f.svc.FavoriteCompanies.List(ctx))
	assert.Equal(t, 1, events)

	assert.False(t, f.svc.FavoriteCompanies.Delete(ctx, fav.Key()), "deleting twice reports nothing removed")
	assert.Equal(t, 1, events, "a no-op delete publishes nothing")
}

func TestListServesMirrorWhenRemoteDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{Target: models.TargetPerson, Name: "Investors"})
	require.NoError(t, err)

	f.failAllRemotes(true)
	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, saved.ID, listed[0].ID)
}

func TestListMergesPendingWithRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	// One record reaches the remote through a concurrent path, one is
	// stuck pending on this device.
	f.persons.Seed(&models.FavoritePerson{ID: "person-a", Owner: testOwner, Name: "Remote Only", AddedAt: time.Now().Add(-time.Hour)})

	f.failAllRemotes(true)
	_, _, err := f.svc.FavoritePersons.Ensure(ctx, &models.FavoritePerson{ID: "person-b", Name: "Local Pending"})
	require.NoError(t, err)
	f.failAllRemotes(false)

	listed := f.svc.FavoritePersons.List(ctx)
	require.Len(t, listed, 2)
	assert.Equal(t, "person-b", listed[0].ID, "newest first")
	assert.True(t, listed[0].Pending)
	assert.Equal(t, "person-a", listed[1].ID)
	assert.False(t, listed[1].Pending)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	older := &models.SavedFilter{Target: models.TargetCompany, Name: "older", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.SavedFilter{Target: models.TargetCompany, Name: "newer", CreatedAt: time.Now()}
	_, err := f.svc.Filters.Save(ctx, older)
	require.NoError(t, err)
	_, err = f.svc.Filters.Save(ctx, newer)
	require.NoError(t, err)

	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 2)
	assert.Equal(t, "newer", listed[0].Name)
	assert.Equal(t, "older", listed[1].Name)
}

func TestExistsFallsBackToMirror(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	f.failAllRemotes(true)
	_, _, err := f.svc.FavoritePersons.Ensure(ctx, &models.FavoritePerson{ID: "person-x", Name: "Offline Add"})
	require.NoError(t, err)

	assert.True(t, f.svc.FavoritePersons.Exists(ctx, "person-x"))
	assert.False(t, f.svc.FavoritePersons.Exists(ctx, "person-y"))
}

func TestMirrorCorruptionDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(testOwner)

	key := string(models.KindSavedFilters) + "/" + testOwner.String()
	require.NoError(t, f.kv.Set(ctx, key, []byte("{not json")))

	f.failAllRemotes(true)
	assert.Empty(t, f.svc.Filters.List(ctx), "corrupt mirror data reads as empty, not as a crash")

	// A save overwrites the corrupt value and the mirror works again.
	saved, err := f.svc.Filters.Save(ctx, &models.SavedFilter{Target: models.TargetCompany, Name: "fresh"})
	require.NoError(t, err)
	listed := f.svc.Filters.List(ctx)
	require.Len(t, listed, 1)
	assert.Equal(t, saved.ID, listed[0].ID)
}
