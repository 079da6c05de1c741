package domain

// Reachability is the last known availability of the monitored server.
type Reachability string

const (
	ReachabilityUnknown     Reachability = "unknown"
	ReachabilityReachable   Reachability = "reachable"
	ReachabilityUnreachable Reachability = "unreachable"
)

// ServerEndpoint identifies the monitored proxy server. LastKnownStatus
// is written only by the status monitor and the coordinator's connection
// callbacks.
type ServerEndpoint struct {
	BaseURL         string
	LastKnownStatus Reachability
}
