package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/llmwatch/internal/domain"
)

// bareCoordinator builds a coordinator without its owner goroutine, so
// apply can be driven synchronously.
func bareCoordinator() *Coordinator {
	return &Coordinator{
		terminal:    make(map[string]domain.RequestStatus),
		subscribers: make(map[int]func(domain.Snapshot)),
	}
}

func rec(id string, status domain.RequestStatus) domain.RequestRecord {
	return domain.RequestRecord{ID: id, Status: status, Service: "ollama", Model: "llama3"}
}

func fullUpdate(source string, queue, processing, history []domain.RequestRecord, stats *domain.AggregateStats) update {
	return update{
		source: source,
		queue:  queue, hasQueue: true,
		processing: processing, hasProcessing: true,
		history: history, hasHistory: true,
		stats: stats,
	}
}

func TestLastArrivalWinsAcrossSources(t *testing.T) {
	c := bareCoordinator()

	c.apply(fullUpdate("push",
		[]domain.RequestRecord{rec("a", domain.StatusQueued)},
		nil, nil,
		&domain.AggregateStats{QueueCount: 1},
	))
	assert.Equal(t, "a", c.snapshot.Queue[0].ID)

	c.apply(fullUpdate("pull",
		[]domain.RequestRecord{rec("b", domain.StatusQueued), rec("c", domain.StatusQueued)},
		nil, nil,
		&domain.AggregateStats{QueueCount: 2},
	))

	// The later delivery replaced the earlier one outright; no merging.
	require.Len(t, c.snapshot.Queue, 2)
	assert.Equal(t, "b", c.snapshot.Queue[0].ID)
	assert.Equal(t, 2, c.snapshot.Stats.QueueCount)
}

func TestPartialDeliveryTouchesOnlyItsFields(t *testing.T) {
	c := bareCoordinator()

	c.apply(fullUpdate("pull",
		[]domain.RequestRecord{rec("a", domain.StatusQueued)},
		[]domain.RequestRecord{rec("b", domain.StatusProcessing)},
		[]domain.RequestRecord{rec("c", domain.StatusCompleted)},
		&domain.AggregateStats{QueueCount: 1, ProcessingCount: 1, CompletedCount: 1},
	))

	// A stats-only delivery leaves the lists alone.
	c.apply(update{source: "push", stats: &domain.AggregateStats{QueueCount: 7}})
	assert.Equal(t, 7, c.snapshot.Stats.QueueCount)
	assert.Len(t, c.snapshot.Queue, 1)
	assert.Len(t, c.snapshot.Processing, 1)
	assert.Len(t, c.snapshot.History, 1)

	// A queue-only delivery leaves stats and the other lists alone.
	c.apply(update{source: "pull", queue: nil, hasQueue: true})
	assert.Empty(t, c.snapshot.Queue)
	assert.Equal(t, 7, c.snapshot.Stats.QueueCount)
	assert.Len(t, c.snapshot.Processing, 1)
}

func TestEmptyUpdateIsIgnored(t *testing.T) {
	c := bareCoordinator()
	notified := 0
	c.subscribers[0] = func(domain.Snapshot) { notified++ }

	c.apply(update{source: "pull"})
	assert.Zero(t, notified)
}

func TestStatusMonotonicPerID(t *testing.T) {
	c := bareCoordinator()

	c.apply(fullUpdate("push",
		nil, nil,
		[]domain.RequestRecord{rec("r42", domain.StatusKilled)},
		nil,
	))

	// A stale delivery still lists r42 as queued; the terminal status
	// must not revert.
	c.apply(update{
		source: "pull",
		queue:  []domain.RequestRecord{rec("r42", domain.StatusQueued)}, hasQueue: true,
	})

	got, ok := c.snapshot.Record("r42")
	require.True(t, ok)
	assert.Equal(t, domain.StatusKilled, got.Status)
}

func TestForwardTransitionsAreAccepted(t *testing.T) {
	c := bareCoordinator()

	c.apply(update{source: "pull", queue: []domain.RequestRecord{rec("a", domain.StatusQueued)}, hasQueue: true})
	c.apply(update{source: "pull", processing: []domain.RequestRecord{rec("a", domain.StatusProcessing)}, hasProcessing: true})

	got, ok := c.snapshot.Record("a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	c.apply(update{source: "push", history: []domain.RequestRecord{rec("a", domain.StatusCompleted)}, hasHistory: true})
	got, _ = c.snapshot.Record("a")
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestDedupKeepsFirstOccurrenceInServerOrder(t *testing.T) {
	c := bareCoordinator()

	c.apply(update{
		source: "pull",
		queue: []domain.RequestRecord{
			rec("a", domain.StatusQueued),
			rec("b", domain.StatusQueued),
			rec("a", domain.StatusQueued),
		},
		hasQueue: true,
	})

	require.Len(t, c.snapshot.Queue, 2)
	assert.Equal(t, "a", c.snapshot.Queue[0].ID)
	assert.Equal(t, "b", c.snapshot.Queue[1].ID)
}

func TestHistoryCappedWithoutResorting(t *testing.T) {
	c := bareCoordinator()

	history := make([]domain.RequestRecord, 0, HistoryDepth+5)
	for i := 0; i < HistoryDepth+5; i++ {
		history = append(history, rec(string(rune('a'+i)), domain.StatusCompleted))
	}
	c.apply(update{source: "push", history: history, hasHistory: true})

	require.Len(t, c.snapshot.History, HistoryDepth)
	assert.Equal(t, "a", c.snapshot.History[0].ID, "server order preserved")
	assert.Equal(t, string(rune('a'+HistoryDepth-1)), c.snapshot.History[HistoryDepth-1].ID)
}

func TestStatsComputedLocallyWhenAbsentFromFullTuple(t *testing.T) {
	c := bareCoordinator()

	c.apply(fullUpdate("push",
		[]domain.RequestRecord{rec("a", domain.StatusQueued), rec("b", domain.StatusQueued)},
		[]domain.RequestRecord{rec("c", domain.StatusProcessing)},
		[]domain.RequestRecord{
			rec("d", domain.StatusCompleted),
			rec("e", domain.StatusFailed),
			rec("f", domain.StatusKilled),
		},
		nil,
	))

	assert.Equal(t, domain.AggregateStats{
		QueueCount:      2,
		ProcessingCount: 1,
		CompletedCount:  1,
		FailedCount:     1,
		KilledCount:     1,
	}, c.snapshot.Stats)
}

func TestSubscribersObserveApplicationOrder(t *testing.T) {
	c := bareCoordinator()
	var counts []int
	c.subscribers[0] = func(s domain.Snapshot) { counts = append(counts, s.Stats.QueueCount) }

	for i := 1; i <= 3; i++ {
		c.apply(update{source: "pull", stats: &domain.AggregateStats{QueueCount: i}})
	}
	assert.Equal(t, []int{1, 2, 3}, counts)
}

func TestStreamFrameToUpdate(t *testing.T) {
	queue := []domain.RequestRecord{rec("a", domain.StatusQueued)}
	frame := streamFrame{Queue: &queue}
	u := frame.toUpdate()

	assert.Equal(t, "push", u.source)
	assert.True(t, u.hasQueue)
	assert.False(t, u.hasProcessing)
	assert.False(t, u.hasHistory)
	assert.Nil(t, u.stats)
	assert.False(t, u.full())
	assert.False(t, u.empty())
}
