package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/metrics"
)

const (
	// ProbePeriod is the fixed cadence of the recurring health probe.
	ProbePeriod = 30 * time.Second
	// ProbeTimeout bounds each probe; shorter than ProbePeriod so
	// probes never overlap.
	ProbeTimeout = 5 * time.Second
	// QueueThreshold is the queue depth above which the one-shot
	// advisory fires.
	QueueThreshold = 50
)

// BadgeState is the coarse signal derived from each probe.
type BadgeState int

const (
	// BadgeEmpty means the server is reachable and idle.
	BadgeEmpty BadgeState = iota
	// BadgeActive means the server is reachable with work in flight.
	BadgeActive
	// BadgeAlert means the last probe failed.
	BadgeAlert
)

// Badge is the signal surfaced after every probe.
type Badge struct {
	State BadgeState
	Count int
}

// Text renders the badge the way a compact surface would show it.
func (b Badge) Text() string {
	switch b.State {
	case BadgeActive:
		return strconv.Itoa(b.Count)
	case BadgeAlert:
		return "!"
	}
	return ""
}

// statsClient is the subset of the API client the monitor needs.
type statsClient interface {
	Stats(ctx context.Context) (*domain.AggregateStats, error)
}

// Monitor runs the recurring probe loop.
type Monitor struct {
	client statsClient
	clock  clockwork.Clock

	onBadge  func(Badge)
	onNotify func(queueCount int)

	mu            sync.Mutex
	stopCh        chan struct{}
	stopped       bool
	overThreshold bool
	lastStatus    domain.Reachability
}

// New creates a status monitor over the given stats source.
// onBadge receives the badge after every probe; onNotify receives the
// edge-triggered queue-depth advisory. Either may be nil.
func New(client statsClient, clock clockwork.Clock, onBadge func(Badge), onNotify func(queueCount int)) *Monitor {
	return &Monitor{
		client:     client,
		clock:      clock,
		onBadge:    onBadge,
		onNotify:   onNotify,
		stopCh:     make(chan struct{}),
		lastStatus: domain.ReachabilityUnknown,
	}
}

// LastKnownStatus reports the reachability derived from the last probe.
func (m *Monitor) LastKnownStatus() domain.Reachability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastStatus
}

// Start runs the probe loop until Stop is called or ctx is cancelled.
// It probes once immediately so the badge is live before the first
// period elapses.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := m.clock.NewTicker(ProbePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.probe(ctx)
		case <-m.stopCh:
			slog.Debug("Status monitor stopped")
			return
		case <-ctx.Done():
			slog.Debug("Status monitor context cancelled")
			return
		}
	}
}

// Stop terminates the probe loop. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
}

// probe runs one health check. Failures degrade the badge and never
// propagate; the schedule continues regardless.
func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	stats, err := m.client.Stats(probeCtx)
	if err != nil {
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		slog.Warn("Health probe failed", "error", err)

		m.mu.Lock()
		m.lastStatus = domain.ReachabilityUnreachable
		m.mu.Unlock()

		m.emitBadge(Badge{State: BadgeAlert})
		return
	}

	metrics.ProbesTotal.WithLabelValues("ok").Inc()
	metrics.QueueDepth.Set(float64(stats.QueueCount))

	m.mu.Lock()
	m.lastStatus = domain.ReachabilityReachable
	wasOver := m.overThreshold
	isOver := stats.QueueCount > QueueThreshold
	m.overThreshold = isOver
	m.mu.Unlock()

	if active := stats.Active(); active > 0 {
		m.emitBadge(Badge{State: BadgeActive, Count: active})
	} else {
		m.emitBadge(Badge{State: BadgeEmpty})
	}

	// Edge-triggered: fire only on the crossing, re-arm on the way down.
	if isOver && !wasOver {
		metrics.ThresholdAlerts.Inc()
		slog.Info("Queue depth above threshold", "queue_count", stats.QueueCount, "threshold", QueueThreshold)
		if m.onNotify != nil {
			m.onNotify(stats.QueueCount)
		}
	}
}

func (m *Monitor) emitBadge(b Badge) {
	if m.onBadge != nil {
		m.onBadge(b)
	}
}
