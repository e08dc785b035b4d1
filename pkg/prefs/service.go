// Package prefs implements the preference service: the orchestration layer
// between the record-browsing UI, the remote preference store, and the
// device-local mirror.
//
// The service follows a remote-first dual-write policy. Every mutation is
// attempted against the remote store; on success the confirmed record is
// mirrored locally and an event is published. When the remote is
// unreachable the mutation still succeeds from the caller's point of view:
// the record is kept in the mirror with Pending set, to be pushed upstream
// by the next reconciliation run (see [Service.Reconcile]). Within one call
// the remote write always happens before the mirror write, so the mirror
// never gets ahead of the remote except for pending records.
//
// Only two failures cross the service boundary as errors: malformed input
// ([models.ValidationError], rejected before any write) and a save with no
// resolvable owner ([store.ErrUnauthenticated]). Everything else degrades
// to a pending record or a mirror-served read, because preference
// management must never block the primary browsing workflow.
package prefs

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/orgbook/prefsync/pkg/bus"
	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// Remotes bundles the per-kind remote collections the service writes
// through.
type Remotes struct {
	Filters           store.Remote[*models.SavedFilter]
	FavoritePersons   store.Remote[*models.FavoritePerson]
	FavoriteCompanies store.Remote[*models.FavoriteCompany]
}

// Service exposes one identically-shaped [Collection] per preference kind.
// All operations resolve the current owner through the injected
// [store.Identity] and scope every read and write to it.
type Service struct {
	identity store.Identity
	bus      *bus.Bus
	log      zerolog.Logger

	Filters           *Collection[*models.SavedFilter]
	FavoritePersons   *Collection[*models.FavoritePerson]
	FavoriteCompanies *Collection[*models.FavoriteCompany]
}

// New wires a service over the given stores. The bus may be nil when no
// UI surface subscribes (one-shot CLI runs).
func New(identity store.Identity, kv store.KV, remotes Remotes, b *bus.Bus, log zerolog.Logger) *Service {
	s := &Service{identity: identity, bus: b, log: log}

	s.Filters = &Collection[*models.SavedFilter]{
		svc:    s,
		remote: remotes.Filters,
		mirror: mirrorCollection[*models.SavedFilter]{kv: kv, kind: models.KindSavedFilters, log: log},
		topic:  bus.SavedFiltersChanged,
		prepare: func(f *models.SavedFilter) {
			if f.ID.IsZero() {
				f.ID = models.NewFilterID()
			}
			if f.CreatedAt.IsZero() {
				f.CreatedAt = time.Now().UTC()
			}
		},
	}
	s.FavoritePersons = &Collection[*models.FavoritePerson]{
		svc:    s,
		remote: remotes.FavoritePersons,
		mirror: mirrorCollection[*models.FavoritePerson]{kv: kv, kind: models.KindFavoritePersons, log: log},
		topic:  bus.FavoritesChanged,
		prepare: func(p *models.FavoritePerson) {
			if p.AddedAt.IsZero() {
				p.AddedAt = time.Now().UTC()
			}
		},
	}
	s.FavoriteCompanies = &Collection[*models.FavoriteCompany]{
		svc:    s,
		remote: remotes.FavoriteCompanies,
		mirror: mirrorCollection[*models.FavoriteCompany]{kv: kv, kind: models.KindFavoriteCompanies, log: log},
		topic:  bus.FavoritesChanged,
		prepare: func(c *models.FavoriteCompany) {
			if c.AddedAt.IsZero() {
				c.AddedAt = time.Now().UTC()
			}
		},
	}
	return s
}

func (s *Service) owner(ctx context.Context) (models.UserID, error) {
	if s.identity == nil {
		return "", store.ErrUnauthenticated
	}
	owner, err := s.identity.CurrentOwner(ctx)
	if err != nil {
		return "", err
	}
	if owner.IsZero() {
		return "", store.ErrUnauthenticated
	}
	return owner, nil
}

func (s *Service) publish(topic bus.Topic) {
	if s.bus != nil {
		s.bus.Publish(topic)
	}
}

// Collection is the preference service API for one record kind.
type Collection[T models.Record] struct {
	svc    *Service
	remote store.Remote[T]
	mirror mirrorCollection[T]
	topic  bus.Topic

	// prepare stamps missing server-independent fields (id, timestamps)
	// before the remote attempt, so an offline save already carries the
	// identity it will keep once pushed upstream.
	prepare func(T)
}

// List returns the owner's records, newest first. It never fails: when the
// remote store is unreachable (or no owner is resolvable) it serves the
// local mirror's copy. On a successful remote read the mirror is refreshed
// with the remote state, keeping any local records that are still pending
// sync.
func (c *Collection[T]) List(ctx context.Context) []T {
	owner, err := c.svc.owner(ctx)
	if err != nil {
		return sortNewest(c.mirror.readAll(ctx, owner))
	}

	remote, err := c.remote.List(ctx, owner)
	if err != nil {
		c.svc.log.Warn().Err(err).Str("kind", string(c.mirror.kind)).
			Msg("remote list failed, serving mirror")
		return sortNewest(c.mirror.readAll(ctx, owner))
	}

	byKey := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		byKey[rec.Key()] = struct{}{}
	}
	merged := remote
	for _, rec := range c.mirror.readAll(ctx, owner) {
		if _, ok := byKey[rec.Key()]; !ok && rec.PendingSync() {
			merged = append(merged, rec)
		}
	}
	c.mirror.writeAll(ctx, owner, merged)
	return sortNewest(merged)
}

// Save validates rec and writes it remote-first. On success the confirmed
// record is mirrored and returned with Pending cleared. When the remote is
// unreachable the record is kept in the mirror with Pending set and
// returned without error; the caller cannot distinguish a degraded save
// from a full one except through the Pending flag, so the UI never blocks
// on connectivity.
//
// A validation failure or a missing owner rejects the save before anything
// is written anywhere.
func (c *Collection[T]) Save(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	owner, err := c.svc.owner(ctx)
	if err != nil {
		return zero, err
	}
	rec.SetRecordOwner(owner)
	c.prepare(rec)

	stored, _, rerr := c.remote.Insert(ctx, rec)
	if rerr != nil {
		c.svc.log.Warn().Err(rerr).Str("kind", string(c.mirror.kind)).Str("key", rec.Key()).
			Msg("remote save failed, keeping record pending locally")
		rec.SetPendingSync(true)
		c.mirror.upsert(ctx, owner, rec)
		c.svc.publish(c.topic)
		return rec, nil
	}

	stored.SetPendingSync(false)
	c.mirror.upsert(ctx, owner, stored)
	c.svc.publish(c.topic)
	return stored, nil
}

// Delete removes the record with the given key. The local removal is
// unconditional so the UI reflects intent immediately even when the remote
// call fails; a remote copy that survives an outage is not resurrected
// locally until a remote read confirms it. Reports whether a record was
// removed from either store.
func (c *Collection[T]) Delete(ctx context.Context, key string) bool {
	owner, err := c.svc.owner(ctx)
	removedRemote := false
	if err == nil {
		ok, rerr := c.remote.Remove(ctx, owner, key)
		if rerr != nil {
			c.svc.log.Warn().Err(rerr).Str("kind", string(c.mirror.kind)).Str("key", key).
				Msg("remote delete failed, removing locally only")
		} else {
			removedRemote = ok
		}
	}
	removedLocal := c.mirror.removeByKey(ctx, owner, key)
	if removedLocal || removedRemote {
		c.svc.publish(c.topic)
	}
	return removedLocal || removedRemote
}

// Exists reports whether a record with the given key exists, asking the
// remote store first and falling back to the mirror when it is
// unreachable.
func (c *Collection[T]) Exists(ctx context.Context, key string) bool {
	owner, err := c.svc.owner(ctx)
	if err != nil {
		_, ok := c.mirror.find(ctx, owner, key)
		return ok
	}
	ok, rerr := c.remote.Exists(ctx, owner, key)
	if rerr != nil {
		_, found := c.mirror.find(ctx, owner, key)
		return found
	}
	return ok
}

// Ensure makes rec a member of the collection and reports whether it was
// newly added. Membership is decided by the remote store's atomic
// insert-or-return-existing primitive, so two concurrent Ensure calls for
// the same key yield exactly one record and the loser receives the
// winner's copy unchanged. When the remote is unreachable, membership falls
// back to the mirror: an already-mirrored record is returned as-is, a new
// one is kept pending.
func (c *Collection[T]) Ensure(ctx context.Context, rec T) (T, bool, error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, false, err
	}
	owner, err := c.svc.owner(ctx)
	if err != nil {
		return zero, false, err
	}
	rec.SetRecordOwner(owner)
	c.prepare(rec)

	stored, created, rerr := c.remote.Insert(ctx, rec)
	if rerr != nil {
		if existing, ok := c.mirror.find(ctx, owner, rec.Key()); ok {
			return existing, false, nil
		}
		c.svc.log.Warn().Err(rerr).Str("kind", string(c.mirror.kind)).Str("key", rec.Key()).
			Msg("remote add failed, keeping record pending locally")
		rec.SetPendingSync(true)
		c.mirror.upsert(ctx, owner, rec)
		c.svc.publish(c.topic)
		return rec, true, nil
	}

	stored.SetPendingSync(false)
	c.mirror.upsert(ctx, owner, stored)
	if created {
		c.svc.publish(c.topic)
	}
	return stored, created, nil
}

// EnsureAll applies [Collection.Ensure] to each record independently and
// returns how many were newly added, for "N items added" feedback.
// Records that fail validation are skipped; the first such error is
// returned alongside the count of the rest.
func (c *Collection[T]) EnsureAll(ctx context.Context, recs []T) (int, error) {
	added := 0
	var firstErr error
	for _, rec := range recs {
		_, created, err := c.Ensure(ctx, rec)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if created {
			added++
		}
	}
	return added, firstErr
}

func sortNewest[T models.Record](recs []T) []T {
	slices.SortStableFunc(recs, func(a, b T) int {
		return b.SortTime().Compare(a.SortTime())
	})
	return recs
}
