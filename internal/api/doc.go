// Package api implements the HTTP client for the monitored proxy server
// and the identity service.
//
// Every call carries a bounded timeout and classifies failures through
// the internal/errors taxonomy. The client holds the bearer token for
// monitored-server calls; the session manager is the only writer of it.
package api
