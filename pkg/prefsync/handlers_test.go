package prefsync

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgbook/prefsync/pkg/bus"
	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/prefs"
	"github.com/orgbook/prefsync/pkg/store/storetest"
)

type testServer struct {
	srv       *httptest.Server
	filters   *storetest.FakeRemote[*models.SavedFilter]
	persons   *storetest.FakeRemote[*models.FavoritePerson]
	companies *storetest.FakeRemote[*models.FavoriteCompany]
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		filters:   storetest.NewFakeRemote[*models.SavedFilter](),
		persons:   storetest.NewFakeRemote[*models.FavoritePerson](),
		companies: storetest.NewFakeRemote[*models.FavoriteCompany](),
	}
	b := bus.New()
	svc := prefs.New(RequestIdentity(""), storetest.NewMemoryKV(), prefs.Remotes{
		Filters:           ts.filters,
		FavoritePersons:   ts.persons,
		FavoriteCompanies: ts.companies,
	}, b, zerolog.Nop())

	app := NewWithService(DefaultConfig(), svc, b, zerolog.Nop())
	ts.srv = httptest.NewServer(app.Router())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, owner string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestSaveFilterEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/filters", "user-1", map[string]any{
		"kind":     "company",
		"name":     "EU Family Offices",
		"criteria": map[string]any{"country": "Germany"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	saved := decode[models.SavedFilter](t, resp)
	assert.False(t, saved.ID.IsZero())
	assert.Equal(t, models.UserID("user-1"), saved.Owner)
	assert.False(t, saved.Pending)
	assert.Equal(t, 1, ts.filters.Len())
}

func TestSaveFilterRequiresOwner(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/filters", "", map[string]any{
		"kind": "company",
		"name": "x",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, ts.filters.Len())
}

func TestSaveFilterRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/filters", "user-1", map[string]any{
		"kind": "company",
		"name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body["error"], "name")
}

func TestSaveFilterOffline(t *testing.T) {
	ts := newTestServer(t)
	ts.filters.SetFail(true)

	resp := ts.do(t, http.MethodPost, "/api/filters", "user-1", map[string]any{
		"kind": "person",
		"name": "Berlin CTOs",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "a degraded save is still a success")

	saved := decode[models.SavedFilter](t, resp)
	assert.True(t, saved.Pending)
	assert.Equal(t, 0, ts.filters.Len())
}

func TestDeleteFilterEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/filters", "user-1", map[string]any{
		"kind": "company",
		"name": "To Delete",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved := decode[models.SavedFilter](t, resp)

	resp = ts.do(t, http.MethodDelete, "/api/filters/"+saved.ID.String(), "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[map[string]bool](t, resp)["removed"])

	resp = ts.do(t, http.MethodDelete, "/api/filters/"+saved.ID.String(), "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[map[string]bool](t, resp)["removed"])
}

func TestAddFavoritePersonIdempotent(t *testing.T) {
	ts := newTestServer(t)
	fav := map[string]any{"id": "person-1", "name": "Ada Kowalski", "position": "CTO"}

	resp := ts.do(t, http.MethodPost, "/api/favorites/people", "user-1", fav)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/favorites/people", "user-1", fav)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "an existing favorite is returned, not recreated")
	assert.Equal(t, 1, ts.persons.Len())
}

func TestFavoriteCompanyBatch(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/favorites/companies/batch", "user-1", []map[string]any{
		{"id": "company-1", "name": "Acme"},
		{"id": "company-2", "name": "Globex"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[map[string]int](t, resp)["added"])

	// Re-adding the same batch adds nothing.
	resp = ts.do(t, http.MethodPost, "/api/favorites/companies/batch", "user-1", []map[string]any{
		{"id": "company-1", "name": "Acme"},
		{"id": "company-2", "name": "Globex"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[map[string]int](t, resp)["added"])
}

func TestFavoriteExistsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/favorites/people", "user-1", map[string]any{"id": "person-1", "name": "Ada"})

	resp := ts.do(t, http.MethodGet, "/api/favorites/people/person-1/exists", "user-1", nil)
	assert.True(t, decode[map[string]bool](t, resp)["exists"])

	resp = ts.do(t, http.MethodGet, "/api/favorites/people/person-2/exists", "user-1", nil)
	assert.False(t, decode[map[string]bool](t, resp)["exists"])
}

func TestListIsOwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/favorites/companies", "user-1", map[string]any{"id": "company-1", "name": "Acme"})
	ts.do(t, http.MethodPost, "/api/favorites/companies", "user-2", map[string]any{"id": "company-2", "name": "Globex"})

	resp := ts.do(t, http.MethodGet, "/api/favorites/companies", "user-1", nil)
	listed := decode[[]models.FavoriteCompany](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, "company-1", listed[0].ID)
}

func TestReconcileEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.persons.SetFail(true)
	resp := ts.do(t, http.MethodPost, "/api/favorites/people", "user-1", map[string]any{"id": "person-1", "name": "Ada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ts.persons.SetFail(false)

	resp = ts.do(t, http.MethodPost, "/api/reconcile", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[prefs.Report](t, resp)
	assert.Equal(t, 1, rep.Pushed)
	assert.Equal(t, 1, ts.persons.Len())
}

func TestReconcileRequiresOwner(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/reconcile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	httpResp := ts.do(t, http.MethodPost, "/api/filters", "user-1", map[string]any{
		"kind": "company",
		"name": "Watched",
	})
	require.Equal(t, http.StatusCreated, httpResp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]string
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, string(bus.SavedFiltersChanged), event["topic"])
}
