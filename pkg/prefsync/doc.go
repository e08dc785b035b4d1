// Package prefsync is the application layer of the preference daemon: it
// wires the preference service to its production stores and serves the
// HTTP API the record-browsing UI talks to.
//
// The daemon composes four pieces:
//
//   - the remote preference store on SurrealDB
//     ([github.com/orgbook/prefsync/pkg/store/surreal]),
//   - the device-local SQLite mirror
//     ([github.com/orgbook/prefsync/pkg/store/sqlitemirror]),
//   - the preference service that orchestrates the remote-first
//     dual-write policy between them
//     ([github.com/orgbook/prefsync/pkg/prefs]),
//   - and the change-notification bus feeding the websocket event stream
//     ([github.com/orgbook/prefsync/pkg/bus]).
//
// Identity arrives on each request in the X-Owner-ID header, placed there
// by the authenticated identity layer in front of this service. A
// single-user deployment can instead configure a static device owner,
// which also enables background reconciliation: once at startup and then
// periodically, pending records saved while offline are pushed upstream.
//
// See [App.Router] for the full endpoint listing and [LoadConfig] for the
// configuration layers.
package prefsync
