// Package domain defines the core types shared across the monitor:
// sessions, request records, snapshots, and aggregate statistics.
//
// Types mirror the proxy server's JSON wire format (snake_case fields).
// The Snapshot is owned by the sync coordinator and the Session by the
// session manager; every other package only reads them through those
// owners' contracts.
package domain
