package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pscheid92/llmwatch/internal/domain"
)

const maxHistory = 1000

// QueueManager holds the simulated request state: pending queue,
// processing set, and bounded history, with push notification to
// stream subscribers on every mutation.
type QueueManager struct {
	mu          sync.Mutex
	queue       []domain.RequestRecord
	processing  map[string]domain.RequestRecord
	history     []domain.RequestRecord
	subscribers map[int]chan domain.Snapshot
	nextSubID   int
}

// NewQueueManager creates an empty queue manager.
func NewQueueManager() *QueueManager {
	return &QueueManager{
		processing:  make(map[string]domain.RequestRecord),
		subscribers: make(map[int]chan domain.Snapshot),
	}
}

// Add enqueues a new request and returns it.
func (q *QueueManager) Add(service, model, prompt string) domain.RequestRecord {
	record := domain.RequestRecord{
		ID:        uuid.NewString(),
		Service:   service,
		Model:     model,
		Prompt:    prompt,
		Status:    domain.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.queue = append(q.queue, record)
	q.notifyLocked()
	q.mu.Unlock()
	return record
}

// StartProcessing moves a queued request into the processing set.
func (q *QueueManager) StartProcessing(id string) (domain.RequestRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, record := range q.queue {
		if record.ID != id {
			continue
		}
		q.queue = append(q.queue[:i], q.queue[i+1:]...)
		now := time.Now().UTC()
		record.Status = domain.StatusProcessing
		record.StartedAt = &now
		q.processing[id] = record
		q.notifyLocked()
		return record, true
	}
	return domain.RequestRecord{}, false
}

// Complete finishes a processing request, as completed or failed.
func (q *QueueManager) Complete(id, response, errMsg string) (domain.RequestRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	record, ok := q.processing[id]
	if !ok {
		return domain.RequestRecord{}, false
	}
	delete(q.processing, id)

	now := time.Now().UTC()
	record.CompletedAt = &now
	record.Response = response
	record.Error = errMsg
	if errMsg != "" {
		record.Status = domain.StatusFailed
	} else {
		record.Status = domain.StatusCompleted
	}
	q.pushHistoryLocked(record)
	q.notifyLocked()
	return record, true
}

// Kill cancels a request in the queue or the processing set.
func (q *QueueManager) Kill(id string) (domain.RequestRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()

	for i, record := range q.queue {
		if record.ID != id {
			continue
		}
		q.queue = append(q.queue[:i], q.queue[i+1:]...)
		record.Status = domain.StatusKilled
		record.CompletedAt = &now
		q.pushHistoryLocked(record)
		q.notifyLocked()
		return record, true
	}

	if record, ok := q.processing[id]; ok {
		delete(q.processing, id)
		record.Status = domain.StatusKilled
		record.CompletedAt = &now
		q.pushHistoryLocked(record)
		q.notifyLocked()
		return record, true
	}
	return domain.RequestRecord{}, false
}

// Queue returns the queued requests in order.
func (q *QueueManager) Queue() []domain.RequestRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.RequestRecord(nil), q.queue...)
}

// Processing returns the executing requests.
func (q *QueueManager) Processing() []domain.RequestRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.RequestRecord, 0, len(q.processing))
	for _, record := range q.processing {
		out = append(out, record)
	}
	return out
}

// History returns up to limit finished requests, most recent first.
func (q *QueueManager) History(limit int) []domain.RequestRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.history) {
		limit = len(q.history)
	}
	return append([]domain.RequestRecord(nil), q.history[:limit]...)
}

// Stats derives the aggregate counters.
func (q *QueueManager) Stats() domain.AggregateStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return domain.ComputeStats(q.queue, q.processingLocked(), q.history)
}

// Subscribe registers a stream subscriber and returns its channel and
// unsubscribe function. The channel is buffered; a slow subscriber
// drops updates rather than blocking mutations.
func (q *QueueManager) Subscribe() (<-chan domain.Snapshot, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextSubID
	q.nextSubID++
	ch := make(chan domain.Snapshot, 16)
	q.subscribers[id] = ch

	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subscribers, id)
	}
}

// Snapshot builds the full tuple pushed over the stream.
func (q *QueueManager) Snapshot() domain.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *QueueManager) snapshotLocked() domain.Snapshot {
	history := q.history
	if len(history) > 50 {
		history = history[:50]
	}
	queue := append([]domain.RequestRecord(nil), q.queue...)
	processing := q.processingLocked()
	return domain.Snapshot{
		Queue:      queue,
		Processing: processing,
		History:    append([]domain.RequestRecord(nil), history...),
		Stats:      domain.ComputeStats(q.queue, processing, q.history),
	}
}

func (q *QueueManager) processingLocked() []domain.RequestRecord {
	out := make([]domain.RequestRecord, 0, len(q.processing))
	for _, record := range q.processing {
		out = append(out, record)
	}
	return out
}

func (q *QueueManager) pushHistoryLocked(record domain.RequestRecord) {
	q.history = append([]domain.RequestRecord{record}, q.history...)
	if len(q.history) > maxHistory {
		q.history = q.history[:maxHistory]
	}
}

func (q *QueueManager) notifyLocked() {
	snapshot := q.snapshotLocked()
	for _, ch := range q.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
