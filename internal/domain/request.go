package domain

import "time"

// RequestStatus is the lifecycle state of a proxied request. States move
// strictly forward: queued -> processing -> completed|failed|killed.
type RequestStatus string

const (
	StatusQueued     RequestStatus = "queued"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusKilled     RequestStatus = "killed"
)

// Terminal reports whether the status is a final state.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusKilled:
		return true
	}
	return false
}

// RequestRecord is one request as reported by the proxy. Identity is the
// ID; everything except Status is immutable once created.
type RequestRecord struct {
	ID          string         `json:"id"`
	Service     string         `json:"service"`
	Model       string         `json:"model"`
	Prompt      string         `json:"prompt"`
	Status      RequestStatus  `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Response    string         `json:"response,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ServiceStatus is one monitored backend service as reported by
// GET /api/services.
type ServiceStatus struct {
	Name   string `json:"name"`
	Port   int    `json:"port"`
	Status string `json:"status"`
}
