// Package prefsync implements user-preference persistence and sync for a
// record-browsing application: saved search filters and favorite
// person/company entries, stored remotely per authenticated user and
// mirrored on the device for offline operation.
//
// # Architecture
//
// The module is built around one policy, applied uniformly to every
// preference kind: write remote-first, degrade to local, reconcile later.
//
//   - The remote preference store is SurrealDB, one table per kind,
//     every record scoped to its owner
//     ([github.com/orgbook/prefsync/pkg/store/surreal]).
//   - The local mirror is a single-file SQLite key-value store holding
//     each owner's records per kind as one JSON document
//     ([github.com/orgbook/prefsync/pkg/store/sqlitemirror]).
//   - The preference service orchestrates the two: saves go to the
//     remote store first and are mirrored on success; when the remote is
//     unreachable the record is kept locally with a pending flag and the
//     save still succeeds ([github.com/orgbook/prefsync/pkg/prefs]).
//   - Reconciliation pushes pending records upstream on session start
//     and on demand, re-confirming non-existence before each push so a
//     record that reached the store through another path is not doubled.
//   - Favoriting is idempotent end to end: favorites use the referenced
//     entity's id as their key together with the store's atomic
//     insert-or-return-existing primitive, so concurrent adds of the
//     same entity yield exactly one record.
//
// Change notifications fan out in-process through
// [github.com/orgbook/prefsync/pkg/bus] and over a websocket to UI
// clients, carrying only the topic that changed; subscribers re-read
// through the service.
//
// # Surfaces
//
// The daemon (cmd/prefsyncd) serves the HTTP API defined in
// [github.com/orgbook/prefsync/pkg/prefsync], with Prometheus metrics
// and the websocket event stream.
// [github.com/orgbook/prefsync/pkg/client] is the typed Go client for
// that API, and [github.com/orgbook/prefsync/pkg/prefsynctesting] runs
// the whole stack in memory for tests.
//
// # Failure semantics
//
// Preference management must never block the browsing workflow. Only two
// errors cross the service boundary: malformed input and a write with no
// authenticated owner. Remote outages are absorbed: reads fall back to
// the mirror, writes become pending records, and mirror corruption
// degrades to an empty list rather than an error.
package prefsync
