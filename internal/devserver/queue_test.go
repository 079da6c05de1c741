package devserver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/llmwatch/internal/domain"
)

func TestQueueLifecycle(t *testing.T) {
	q := NewQueueManager()

	record := q.Add("ollama", "llama3", "hello")
	require.NotEmpty(t, record.ID)
	assert.Equal(t, domain.StatusQueued, record.Status)
	assert.Len(t, q.Queue(), 1)

	processing, ok := q.StartProcessing(record.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusProcessing, processing.Status)
	assert.NotNil(t, processing.StartedAt)
	assert.Empty(t, q.Queue())
	assert.Len(t, q.Processing(), 1)

	done, ok := q.Complete(record.ID, "world", "")
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, q.Processing())
	require.Len(t, q.History(10), 1)

	stats := q.Stats()
	assert.Equal(t, 0, stats.QueueCount)
	assert.Equal(t, 1, stats.CompletedCount)
}

func TestQueueCompleteWithError(t *testing.T) {
	q := NewQueueManager()
	record := q.Add("ollama", "llama3", "boom")
	_, ok := q.StartProcessing(record.ID)
	require.True(t, ok)

	done, ok := q.Complete(record.ID, "", "model exploded")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, done.Status)
	assert.Equal(t, "model exploded", done.Error)
	assert.Equal(t, 1, q.Stats().FailedCount)
}

func TestQueueKillFromBothStages(t *testing.T) {
	q := NewQueueManager()

	queued := q.Add("ollama", "llama3", "a")
	killed, ok := q.Kill(queued.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusKilled, killed.Status)
	assert.Empty(t, q.Queue())

	running := q.Add("qdrant", "search", "b")
	_, ok = q.StartProcessing(running.ID)
	require.True(t, ok)
	killed, ok = q.Kill(running.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusKilled, killed.Status)
	assert.Empty(t, q.Processing())

	_, ok = q.Kill("missing")
	assert.False(t, ok)

	assert.Equal(t, 2, q.Stats().KilledCount)
}

func TestHistoryNewestFirst(t *testing.T) {
	q := NewQueueManager()
	for i := 0; i < 3; i++ {
		record := q.Add("ollama", "llama3", fmt.Sprintf("p%d", i))
		_, _ = q.StartProcessing(record.ID)
		_, _ = q.Complete(record.ID, "ok", "")
	}

	history := q.History(10)
	require.Len(t, history, 3)
	assert.Equal(t, "p2", history[0].Prompt)
	assert.Equal(t, "p0", history[2].Prompt)

	assert.Len(t, q.History(2), 2)
}

func TestSubscribeSeesMutations(t *testing.T) {
	q := NewQueueManager()
	updates, unsubscribe := q.Subscribe()
	defer unsubscribe()

	record := q.Add("ollama", "llama3", "x")

	snapshot := <-updates
	require.Len(t, snapshot.Queue, 1)
	assert.Equal(t, record.ID, snapshot.Queue[0].ID)
	assert.Equal(t, 1, snapshot.Stats.QueueCount)
}
