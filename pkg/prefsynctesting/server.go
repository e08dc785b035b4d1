// Package prefsynctesting provides an in-memory preference API server
// for testing API clients and integrations without SurrealDB or a SQLite
// file. The server runs the real HTTP layer and preference service over
// the fakes from [github.com/orgbook/prefsync/pkg/store/storetest], so
// remote outages can be simulated per collection with SetFail.
package prefsynctesting

import (
	"net/http/httptest"

	"github.com/rs/zerolog"

	"github.com/orgbook/prefsync/pkg/bus"
	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/prefs"
	"github.com/orgbook/prefsync/pkg/prefsync"
	"github.com/orgbook/prefsync/pkg/store/storetest"
)

// Server is a live in-memory preference API with direct access to its
// fake remote stores.
type Server struct {
	// URL is the server's base URL, suitable for client.NewClient.
	URL string

	// The fake remote stores behind the API.
	Filters   *storetest.FakeRemote[*models.SavedFilter]
	Persons   *storetest.FakeRemote[*models.FavoritePerson]
	Companies *storetest.FakeRemote[*models.FavoriteCompany]

	// Bus is the change-notification bus the API publishes to.
	Bus *bus.Bus

	srv *httptest.Server
}

// NewServer starts an in-memory preference API. The caller must Close it.
func NewServer() *Server {
	s := &Server{
		Filters:   storetest.NewFakeRemote[*models.SavedFilter](),
		Persons:   storetest.NewFakeRemote[*models.FavoritePerson](),
		Companies: storetest.NewFakeRemote[*models.FavoriteCompany](),
		Bus:       bus.New(),
	}

	svc := prefs.New(prefsync.RequestIdentity(""), storetest.NewMemoryKV(), prefs.Remotes{
		Filters:           s.Filters,
		FavoritePersons:   s.Persons,
		FavoriteCompanies: s.Companies,
	}, s.Bus, zerolog.Nop())

	app := prefsync.NewWithService(prefsync.DefaultConfig(), svc, s.Bus, zerolog.Nop())
	s.srv = httptest.NewServer(app.Router())
	s.URL = s.srv.URL
	return s
}

// FailRemotes toggles simulated remote-store outage across all three
// collections.
func (s *Server) FailRemotes(fail bool) {
	s.Filters.SetFail(fail)
	s.Persons.SetFail(fail)
	s.Companies.SetFail(fail)
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}
