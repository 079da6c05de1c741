package domain

// AggregateStats is the server's rollup of request counts. It may be
// supplied directly by the server or recomputed locally as a fallback.
type AggregateStats struct {
	QueueCount      int `json:"queue_count"`
	ProcessingCount int `json:"processing_count"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
	KilledCount     int `json:"killed_count"`
}

// Active is the number of requests that are queued or executing.
func (a AggregateStats) Active() int {
	return a.QueueCount + a.ProcessingCount
}

// Snapshot is the coordinator's materialized view of remote state.
// It is replaced wholesale on every accepted update; consumers never
// observe a half-applied snapshot.
type Snapshot struct {
	Queue      []RequestRecord `json:"queue"`
	Processing []RequestRecord `json:"processing"`
	History    []RequestRecord `json:"history"`
	Stats      AggregateStats  `json:"stats"`
}

// Record looks up a request by ID across all three lists.
func (s Snapshot) Record(id string) (RequestRecord, bool) {
	for _, list := range [][]RequestRecord{s.Processing, s.Queue, s.History} {
		for _, r := range list {
			if r.ID == id {
				return r, true
			}
		}
	}
	return RequestRecord{}, false
}

// ComputeStats derives aggregate counts from the snapshot's own lists.
// Used when a delivery carries lists but no stats block.
func ComputeStats(queue, processing, history []RequestRecord) AggregateStats {
	stats := AggregateStats{
		QueueCount:      len(queue),
		ProcessingCount: len(processing),
	}
	for _, r := range history {
		switch r.Status {
		case StatusCompleted:
			stats.CompletedCount++
		case StatusFailed:
			stats.FailedCount++
		case StatusKilled:
			stats.KilledCount++
		}
	}
	return stats
}
