package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/metrics"
)

// GracePeriod bounds how long a kill waits for server confirmation
// before it is treated as a soft failure.
const GracePeriod = 10 * time.Second

// ErrKillPending is returned for a duplicate kill while the first one
// still awaits confirmation.
var ErrKillPending = fmt.Errorf("cancellation already in flight for this request")

// killClient is the subset of the API client the dispatcher needs.
type killClient interface {
	Kill(ctx context.Context, requestID string) error
}

// snapshotSource is the coordinator contract the dispatcher consumes.
type snapshotSource interface {
	Subscribe(fn func(domain.Snapshot)) func()
}

// Dispatcher issues kills and tracks their confirmation.
type Dispatcher struct {
	client        killClient
	clock         clockwork.Clock
	onSoftFailure func(requestID string)

	mu      sync.Mutex
	pending map[string]clockwork.Timer
}

// New creates a dispatcher. onSoftFailure is invoked when a kill's
// grace period expires without an observed status change; it may be nil.
func New(client killClient, clock clockwork.Clock, onSoftFailure func(requestID string)) *Dispatcher {
	return &Dispatcher{
		client:        client,
		clock:         clock,
		onSoftFailure: onSoftFailure,
		pending:       make(map[string]clockwork.Timer),
	}
}

// Attach subscribes the dispatcher to a snapshot source and returns the
// unsubscribe function.
func (d *Dispatcher) Attach(source snapshotSource) func() {
	return source.Subscribe(d.observe)
}

// Pending reports whether a kill for the given request awaits
// confirmation; the UI keeps the affordance disabled while true.
func (d *Dispatcher) Pending(requestID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[requestID]
	return ok
}

// Kill issues a cancellation. The snapshot is left untouched; the next
// coordinator delivery is the single source of truth for the outcome.
// Errors are non-fatal to the session and never stop the sync channels.
func (d *Dispatcher) Kill(ctx context.Context, requestID string) error {
	d.mu.Lock()
	if _, ok := d.pending[requestID]; ok {
		d.mu.Unlock()
		return ErrKillPending
	}
	d.pending[requestID] = d.clock.AfterFunc(GracePeriod, func() { d.expire(requestID) })
	d.mu.Unlock()

	if err := d.client.Kill(ctx, requestID); err != nil {
		d.release(requestID)
		metrics.KillsIssued.WithLabelValues("error").Inc()
		slog.Warn("Kill command failed", "request_id", requestID, "error", err)
		return fmt.Errorf("kill %s: %w", requestID, err)
	}

	metrics.KillsIssued.WithLabelValues("ok").Inc()
	slog.Info("Kill issued, awaiting confirmation", "request_id", requestID)
	return nil
}

// observe checks each coordinator delivery for confirmations.
func (d *Dispatcher) observe(snapshot domain.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, timer := range d.pending {
		record, ok := snapshot.Record(id)
		if !ok || !record.Status.Terminal() {
			continue
		}
		timer.Stop()
		delete(d.pending, id)
		slog.Info("Kill confirmed", "request_id", id, "status", record.Status)
	}
}

// expire handles a grace period running out with no confirmation.
func (d *Dispatcher) expire(requestID string) {
	d.mu.Lock()
	_, ok := d.pending[requestID]
	if ok {
		delete(d.pending, requestID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	metrics.KillsIssued.WithLabelValues("soft_failure").Inc()
	slog.Warn("Kill unconfirmed within grace period", "request_id", requestID)
	if d.onSoftFailure != nil {
		d.onSoftFailure(requestID)
	}
}

func (d *Dispatcher) release(requestID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.pending[requestID]; ok {
		timer.Stop()
		delete(d.pending, requestID)
	}
}
