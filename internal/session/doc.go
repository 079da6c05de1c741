// Package session owns the operator's authenticated session: login,
// registration, validation, refresh, and logout.
//
// The manager is the single writer of the Session object and of the
// session section in the persisted config store. Passwords are turned
// into a salted, username-bound SHA-256 digest before any network call;
// the plaintext never leaves this package.
package session
