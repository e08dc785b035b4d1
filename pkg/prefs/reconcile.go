package prefs

import (
	"context"

	"github.com/orgbook/prefsync/pkg/models"
)

// Report summarizes one reconciliation run across all preference kinds.
type Report struct {
	// Pushed counts local records inserted upstream.
	Pushed int `json:"pushed"`
	// Skipped counts pending records that turned out to already exist
	// upstream (inserted by a concurrent path); their pending flag is
	// cleared without a write.
	Skipped int `json:"skipped"`
	// Failed counts records that could not be confirmed or pushed; they
	// stay pending and are retried on the next run.
	Failed int `json:"failed"`
}

func (r *Report) merge(o Report) {
	r.Pushed += o.Pushed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Changed reports whether the run altered any store.
func (r Report) Changed() bool {
	return r.Pushed > 0 || r.Skipped > 0
}

// Reconcile pushes local-only records upstream for the current owner, one
// kind at a time. For every mirrored record absent from the remote listing
// it re-confirms remote non-existence (a record inserted between the
// listing and the push must not be doubled) and then inserts it, clearing
// the pending flag on success. Records already present upstream only get
// their pending flag cleared. Nothing is ever deleted: reconciliation
// pushes forward, it never pulls destructive state.
//
// Individual failures are logged and counted; the affected records remain
// pending for the next run. The only error returned is a missing owner,
// since without one no remote call may be made.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return Report{}, err
	}

	var total Report
	total.merge(reconcileCollection(ctx, s.Filters, owner))
	total.merge(reconcileCollection(ctx, s.FavoritePersons, owner))
	total.merge(reconcileCollection(ctx, s.FavoriteCompanies, owner))

	s.log.Info().
		Str("owner", owner.String()).
		Int("pushed", total.Pushed).
		Int("skipped", total.Skipped).
		Int("failed", total.Failed).
		Msg("reconciliation finished")
	return total, nil
}

func reconcileCollection[T models.Record](ctx context.Context, c *Collection[T], owner models.UserID) Report {
	var rep Report
	log := c.svc.log.With().Str("kind", string(c.mirror.kind)).Logger()

	local := c.mirror.readAll(ctx, owner)
	remote, err := c.remote.List(ctx, owner)
	if err != nil {
		log.Warn().Err(err).Msg("reconciliation skipped, remote unavailable")
		for _, rec := range local {
			if rec.PendingSync() {
				rep.Failed++
			}
		}
		return rep
	}

	byKey := make(map[string]T, len(remote))
	for _, rec := range remote {
		byKey[rec.Key()] = rec
	}
	localKeys := make(map[string]struct{}, len(local))
	merged := make([]T, 0, len(local)+len(remote))

	for _, rec := range local {
		localKeys[rec.Key()] = struct{}{}

		if remoteRec, ok := byKey[rec.Key()]; ok {
			if rec.PendingSync() {
				rep.Skipped++
			}
			merged = append(merged, remoteRec)
			continue
		}

		exists, err := c.remote.Exists(ctx, owner, rec.Key())
		if err != nil {
			rep.Failed++
			merged = append(merged, rec)
			continue
		}
		if exists {
			rec.SetPendingSync(false)
			rep.Skipped++
			merged = append(merged, rec)
			continue
		}

		stored, _, err := c.remote.Insert(ctx, rec)
		if err != nil {
			log.Warn().Err(err).Str("key", rec.Key()).Msg("push failed, record stays pending")
			rep.Failed++
			merged = append(merged, rec)
			continue
		}
		stored.SetPendingSync(false)
		merged = append(merged, stored)
		rep.Pushed++
	}

	// Remote records this device has never seen belong in the mirror too.
	pulled := false
	for _, rec := range remote {
		if _, ok := localKeys[rec.Key()]; !ok {
			merged = append(merged, rec)
			pulled = true
		}
	}

	if rep.Changed() || pulled {
		c.mirror.writeAll(ctx, owner, merged)
		c.svc.publish(c.topic)
	}
	return rep
}
