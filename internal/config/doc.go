// Package config implements the persisted local configuration store.
//
// A single TOML record holds the session credentials, the monitored
// server's base URL, and logging preferences. It is the sole source of
// truth on cold start. The session manager is the only writer of the
// session section; writes are atomic (temp file + rename, 0600).
package config
