package prefs

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// mirrorCollection is the typed view of one preference kind inside the
// local mirror. Each (kind, owner) pair maps to a single KV entry holding a
// JSON array of records; all writes are whole-collection replacements.
//
// Mirror failures never propagate: a read that fails or does not parse
// degrades to an empty collection, a failed write is logged and dropped.
// The mirror is a cache of last resort and must not interrupt the caller.
type mirrorCollection[T models.Record] struct {
	kv   store.KV
	kind models.Kind
	log  zerolog.Logger
}

func (m mirrorCollection[T]) key(owner models.UserID) string {
	return string(m.kind) + "/" + owner.String()
}

func (m mirrorCollection[T]) readAll(ctx context.Context, owner models.UserID) []T {
	data, err := m.kv.Get(ctx, m.key(owner))
	if err != nil {
		m.log.Warn().Err(err).Str("kind", string(m.kind)).Msg("mirror read failed, treating as empty")
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		m.log.Warn().Err(err).Str("kind", string(m.kind)).Msg("mirror data corrupt, treating as empty")
		return nil
	}
	return recs
}

func (m mirrorCollection[T]) writeAll(ctx context.Context, owner models.UserID, recs []T) {
	if recs == nil {
		recs = []T{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		m.log.Warn().Err(err).Str("kind", string(m.kind)).Msg("mirror encode failed, dropping write")
		return
	}
	if err := m.kv.Set(ctx, m.key(owner), data); err != nil {
		m.log.Warn().Err(err).Str("kind", string(m.kind)).Msg("mirror write failed, dropping write")
	}
}

func (m mirrorCollection[T]) upsert(ctx context.Context, owner models.UserID, rec T) {
	recs := m.readAll(ctx, owner)
	replaced := false
	for i, existing := range recs {
		if existing.Key() == rec.Key() {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}
	m.writeAll(ctx, owner, recs)
}

func (m mirrorCollection[T]) removeByKey(ctx context.Context, owner models.UserID, key string) bool {
	recs := m.readAll(ctx, owner)
	kept := recs[:0]
	removed := false
	for _, rec := range recs {
		if rec.Key() == key {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	if removed {
		m.writeAll(ctx, owner, kept)
	}
	return removed
}

func (m mirrorCollection[T]) find(ctx context.Context, owner models.UserID, key string) (T, bool) {
	for _, rec := range m.readAll(ctx, owner) {
		if rec.Key() == key {
			return rec, true
		}
	}
	var zero T
	return zero, false
}
