// Package sync merges two independent update sources into one
// authoritative snapshot of the monitored server's state.
//
// A persistent websocket stream pushes updates as they happen; a
// periodic poller fetches the same state as a backstop. Whichever
// delivery arrives last wins; a partial delivery touches only the
// fields it carries. All reconciliation runs in a single owner
// goroutine fed by a command channel, so consumers always observe a
// fully-formed snapshot.
//
// The stream reconnects forever on a fixed backoff with at most one
// outstanding attempt; the poller runs regardless of stream health.
package sync
