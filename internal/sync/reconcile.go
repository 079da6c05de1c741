package sync

import (
	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/metrics"
)

// update is one delivery from either channel. A field is applied only
// when its has-flag is set (or stats is non-nil); unset fields keep
// their previous value.
type update struct {
	source string // "push" or "pull"

	queue    []domain.RequestRecord
	hasQueue bool

	processing    []domain.RequestRecord
	hasProcessing bool

	history    []domain.RequestRecord
	hasHistory bool

	stats *domain.AggregateStats
}

func (u update) empty() bool {
	return !u.hasQueue && !u.hasProcessing && !u.hasHistory && u.stats == nil
}

func (u update) full() bool {
	return u.hasQueue && u.hasProcessing && u.hasHistory
}

// apply reconciles one delivery into the snapshot. Last arrival wins;
// there is no field-level merging across sources. Runs only in the
// owner goroutine.
func (c *Coordinator) apply(u update) {
	if u.empty() {
		return
	}

	next := c.snapshot

	if u.hasQueue {
		next.Queue = c.guard(dedup(u.queue))
	}
	if u.hasProcessing {
		next.Processing = c.guard(dedup(u.processing))
	}
	if u.hasHistory {
		history := c.guard(dedup(u.history))
		if len(history) > HistoryDepth {
			history = history[:HistoryDepth]
		}
		next.History = history
	}

	switch {
	case u.stats != nil:
		next.Stats = *u.stats
	case u.full():
		// Full tuple without a stats block: derive the rollup locally.
		next.Stats = domain.ComputeStats(next.Queue, next.Processing, next.History)
	}

	c.snapshot = next

	completeness := "partial"
	if u.full() && u.stats != nil {
		completeness = "full"
	}
	metrics.SnapshotsApplied.WithLabelValues(u.source, completeness).Inc()

	for _, fn := range c.subscribers {
		fn(next)
	}
}

// guard enforces per-record status monotonicity: once a record was seen
// in a terminal state, a stale delivery cannot revert it. Records are
// kept in server order, never resorted.
func (c *Coordinator) guard(records []domain.RequestRecord) []domain.RequestRecord {
	for i, r := range records {
		if final, ok := c.terminal[r.ID]; ok && !r.Status.Terminal() {
			records[i].Status = final
			continue
		}
		if r.Status.Terminal() {
			c.terminal[r.ID] = r.Status
		}
	}
	return records
}

// dedup drops duplicate IDs, keeping the first occurrence.
func dedup(records []domain.RequestRecord) []domain.RequestRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
