package prefsync

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router builds the HTTP API.
//
// Health check:
//
//	GET  /health                               - Liveness, never touches the stores
//
// Saved filters:
//
//	GET    /api/filters                        - List the owner's saved filters, newest first
//	POST   /api/filters                        - Save a filter (degrades to local-pending offline)
//	DELETE /api/filters/{id}                   - Delete a filter
//
// Favorites:
//
//	GET    /api/favorites/people               - List favorite persons
//	POST   /api/favorites/people               - Favorite a person (idempotent)
//	POST   /api/favorites/people/batch         - Favorite many, returns {"added": N}
//	GET    /api/favorites/people/{id}/exists   - Membership check
//	DELETE /api/favorites/people/{id}          - Unfavorite
//	...and the same five under /api/favorites/companies
//
// Sync and operations:
//
//	POST /api/reconcile                        - Push pending records upstream, returns the report
//	GET  /api/events                           - Websocket change-notification stream
//	GET  /metrics                              - Prometheus metrics
//
// Every /api route resolves its owner from the X-Owner-ID header, falling
// back to the configured device owner.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.ownerMiddleware)

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/filters", a.handleListFilters).Methods("GET")
	api.HandleFunc("/filters", a.handleSaveFilter).Methods("POST")
	api.HandleFunc("/filters/{id}", a.handleDeleteFilter).Methods("DELETE")

	api.HandleFunc("/favorites/people", a.handleListFavoritePersons).Methods("GET")
	api.HandleFunc("/favorites/people", a.handleAddFavoritePerson).Methods("POST")
	api.HandleFunc("/favorites/people/batch", a.handleAddFavoritePersonsBatch).Methods("POST")
	api.HandleFunc("/favorites/people/{id}/exists", a.handleFavoritePersonExists).Methods("GET")
	api.HandleFunc("/favorites/people/{id}", a.handleDeleteFavoritePerson).Methods("DELETE")

	api.HandleFunc("/favorites/companies", a.handleListFavoriteCompanies).Methods("GET")
	api.HandleFunc("/favorites/companies", a.handleAddFavoriteCompany).Methods("POST")
	api.HandleFunc("/favorites/companies/batch", a.handleAddFavoriteCompaniesBatch).Methods("POST")
	api.HandleFunc("/favorites/companies/{id}/exists", a.handleFavoriteCompanyExists).Methods("GET")
	api.HandleFunc("/favorites/companies/{id}", a.handleDeleteFavoriteCompany).Methods("DELETE")

	api.HandleFunc("/reconcile", a.handleReconcile).Methods("POST")
	api.HandleFunc("/events", a.handleEvents).Methods("GET")

	router.HandleFunc("/health", a.handleHealth).Methods("GET")
	router.Handle("/metrics", a.metrics.handler()).Methods("GET")

	return router
}

// Run serves the HTTP API until ctx is cancelled, then shuts down
// gracefully with a 5 second drain window.
//
// When a device owner is configured, Run also reconciles once at startup
// and then every ReconcileEvery, so records saved while the previous
// session was offline reach the remote store without anyone asking.
func (a *App) Run(ctx context.Context) error {
	if !a.cfg.owner().IsZero() {
		go a.reconcileLoop(ctx)
	}

	server := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: a.Router(),
	}

	a.log.Info().Str("addr", a.cfg.ListenAddr).Msg("starting preference API server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (a *App) reconcileLoop(ctx context.Context) {
	a.reconcileOnce(ctx)

	if a.cfg.ReconcileEvery <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.ReconcileEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reconcileOnce(ctx)
		}
	}
}

func (a *App) reconcileOnce(ctx context.Context) {
	ctx = withOwner(ctx, a.cfg.owner())
	rep, err := a.svc.Reconcile(ctx)
	if err != nil {
		// Only a missing owner reaches here, which the owner check above
		// rules out; log it rather than crash the loop.
		a.log.Error().Err(err).Msg("background reconciliation failed")
		return
	}
	a.metrics.observeReconcile(rep)
}
