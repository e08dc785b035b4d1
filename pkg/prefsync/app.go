package prefsync

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/orgbook/prefsync/pkg/bus"
	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/prefs"
	"github.com/orgbook/prefsync/pkg/store"
	"github.com/orgbook/prefsync/pkg/store/sqlitemirror"
	"github.com/orgbook/prefsync/pkg/store/surreal"
)

// ownerHeader carries the caller's identity on API requests. The daemon
// trusts it as-is; the authenticated identity provider sits in front of
// this service and is out of scope here.
const ownerHeader = "X-Owner-ID"

type ownerContextKey struct{}

func withOwner(ctx context.Context, owner models.UserID) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

func ownerFromContext(ctx context.Context) models.UserID {
	owner, _ := ctx.Value(ownerContextKey{}).(models.UserID)
	return owner
}

// RequestIdentity resolves the owner from the request context first (set
// by the owner middleware from the X-Owner-ID header) and falls back to
// the given device owner. With neither, the operation is unauthenticated
// and the preference service applies its degraded-path rules.
func RequestIdentity(fallback models.UserID) store.Identity {
	return store.IdentityFunc(func(ctx context.Context) (models.UserID, error) {
		if owner := ownerFromContext(ctx); !owner.IsZero() {
			return owner, nil
		}
		if !fallback.IsZero() {
			return fallback, nil
		}
		return "", store.ErrUnauthenticated
	})
}

// App wires the preference service to its production stores and exposes
// the HTTP API.
type App struct {
	cfg     Config
	log     zerolog.Logger
	bus     *bus.Bus
	svc     *prefs.Service
	metrics *metrics

	remote *surreal.Store
	mirror store.KV
}

// New connects to SurrealDB and opens the local mirror, then wires the
// preference service over both. Close must be called to release the
// stores.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*App, error) {
	remote, err := surreal.Open(ctx, cfg.surrealConfig())
	if err != nil {
		return nil, fmt.Errorf("connect remote preference store: %w", err)
	}
	log.Info().Str("url", cfg.SurrealURL).Msg("connected to remote preference store")

	mirror, err := sqlitemirror.Open(cfg.MirrorPath)
	if err != nil {
		_ = remote.Close(ctx)
		return nil, fmt.Errorf("open local mirror: %w", err)
	}
	log.Info().Str("path", cfg.MirrorPath).Msg("local mirror opened")

	b := bus.New()
	svc := prefs.New(RequestIdentity(cfg.owner()), mirror, prefs.Remotes{
		Filters:           remote.Filters(),
		FavoritePersons:   remote.FavoritePersons(),
		FavoriteCompanies: remote.FavoriteCompanies(),
	}, b, log)

	return &App{
		cfg:     cfg,
		log:     log,
		bus:     b,
		svc:     svc,
		metrics: newMetrics(),
		remote:  remote,
		mirror:  mirror,
	}, nil
}

// NewWithService wires an App over an already-built service and bus,
// bypassing the store setup of [New]. It exists for tests and embedders
// that bring their own stores; Close is a no-op on such an App.
func NewWithService(cfg Config, svc *prefs.Service, b *bus.Bus, log zerolog.Logger) *App {
	return &App{cfg: cfg, log: log, bus: b, svc: svc, metrics: newMetrics()}
}

// Service returns the underlying preference service.
func (a *App) Service() *prefs.Service {
	return a.svc
}

// Close releases the remote connection and the mirror.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.remote != nil {
		if err := a.remote.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ownerMiddleware copies the X-Owner-ID header into the request context
// so every downstream operation is scoped to the caller.
func (a *App) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if owner := r.Header.Get(ownerHeader); owner != "" {
			r = r.WithContext(withOwner(r.Context(), models.UserID(owner)))
		}
		next.ServeHTTP(w, r)
	})
}
