// Package store defines the persistence contracts of the preference layer:
// the remote preference store reachable over the network, the device-local
// mirror, and the identity boundary that scopes every operation to one
// owner.
//
// The preference service depends only on these interfaces. Production
// implementations live in the sub-packages
// [github.com/orgbook/prefsync/pkg/store/surreal] (remote, SurrealDB) and
// [github.com/orgbook/prefsync/pkg/store/sqlitemirror] (local mirror,
// SQLite); in-memory fakes for tests live in
// [github.com/orgbook/prefsync/pkg/store/storetest].
package store

import (
	"context"
	"errors"

	"github.com/orgbook/prefsync/pkg/models"
)

// ErrRemoteUnavailable is the single condition every remote transport
// failure collapses into. The preference service never distinguishes a
// timeout from an auth failure from a server error; all of them degrade to
// the local-only fallback path. Remote implementations must wrap transport
// errors so that errors.Is reports this sentinel.
var ErrRemoteUnavailable = errors.New("remote preference store unavailable")

// ErrUnauthenticated is returned when no owner identity can be resolved.
// Without an owner no remote call may be issued and no record may be
// created.
var ErrUnauthenticated = errors.New("no authenticated owner")

// Remote is the per-kind contract against the remote preference store.
// Every call is scoped by the owner id; implementations must filter on it
// server-side and never return records belonging to another owner.
type Remote[T models.Record] interface {
	// List returns every record owned by owner, in store order.
	List(ctx context.Context, owner models.UserID) ([]T, error)

	// Insert stores rec if no record with its key exists yet and returns
	// the stored record. When a record with the same key already exists it
	// is returned unchanged and created is false. The check and the write
	// are a single atomic operation at the store, so two concurrent
	// inserts for the same key yield exactly one record.
	Insert(ctx context.Context, rec T) (stored T, created bool, err error)

	// Remove deletes the record with the given key and reports whether a
	// record was deleted.
	Remove(ctx context.Context, owner models.UserID, key string) (bool, error)

	// Exists reports whether a record with the given key exists for owner.
	Exists(ctx context.Context, owner models.UserID, key string) (bool, error)
}

// KV is the local mirror's storage contract: a device-scoped, durable
// key-value store. Values are opaque byte slices (JSON arrays of records,
// one value per preference kind and owner). Get returns nil for a missing
// key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Identity resolves the owner of the current operation. The authenticated
// identity provider itself is outside this system; implementations return
// an error wrapping [ErrUnauthenticated] when no identity is available.
type Identity interface {
	CurrentOwner(ctx context.Context) (models.UserID, error)
}

// IdentityFunc adapts a function to the [Identity] interface.
type IdentityFunc func(ctx context.Context) (models.UserID, error)

func (f IdentityFunc) CurrentOwner(ctx context.Context) (models.UserID, error) {
	return f(ctx)
}

// StaticIdentity returns an [Identity] that always resolves to owner, as a
// single-user device deployment does. A zero owner resolves to
// [ErrUnauthenticated].
func StaticIdentity(owner models.UserID) Identity {
	return IdentityFunc(func(context.Context) (models.UserID, error) {
		if owner.IsZero() {
			return "", ErrUnauthenticated
		}
		return owner, nil
	})
}
