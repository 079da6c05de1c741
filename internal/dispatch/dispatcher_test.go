package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/llmwatch/internal/domain"
)

type mockKiller struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockKiller) Kill(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, requestID)
	return m.err
}

func (m *mockKiller) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fakeSource struct {
	fn func(domain.Snapshot)
}

func (f *fakeSource) Subscribe(fn func(domain.Snapshot)) func() {
	f.fn = fn
	return func() { f.fn = nil }
}

func (f *fakeSource) deliver(s domain.Snapshot) { f.fn(s) }

func snapshotWith(records ...domain.RequestRecord) domain.Snapshot {
	return domain.Snapshot{History: records}
}

func TestKillConfirmedBySnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	killer := &mockKiller{}
	softFailures := make(chan string, 4)

	d := New(killer, clock, func(id string) { softFailures <- id })
	source := &fakeSource{}
	d.Attach(source)

	require.NoError(t, d.Kill(context.Background(), "r42"))
	assert.True(t, d.Pending("r42"), "affordance disabled while awaiting confirmation")
	assert.Equal(t, []string{"r42"}, killer.calls)

	// The next delivery shows the record killed: confirmed.
	source.deliver(snapshotWith(domain.RequestRecord{ID: "r42", Status: domain.StatusKilled}))
	assert.False(t, d.Pending("r42"))

	// The grace timer was cancelled; no soft failure fires later.
	clock.Advance(GracePeriod + time.Second)
	select {
	case id := <-softFailures:
		t.Fatalf("unexpected soft failure for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestKillSoftFailsAfterGracePeriod(t *testing.T) {
	clock := clockwork.NewFakeClock()
	killer := &mockKiller{}
	softFailures := make(chan string, 4)

	d := New(killer, clock, func(id string) { softFailures <- id })

	require.NoError(t, d.Kill(context.Background(), "r42"))

	// Deliveries that do not show a status change keep it pending.
	d.observe(snapshotWith(domain.RequestRecord{ID: "r42", Status: domain.StatusProcessing}))
	assert.True(t, d.Pending("r42"))

	clock.Advance(GracePeriod)
	select {
	case id := <-softFailures:
		assert.Equal(t, "r42", id)
	case <-time.After(2 * time.Second):
		t.Fatal("expected soft failure")
	}
	assert.False(t, d.Pending("r42"), "affordance re-enabled after soft failure")
}

func TestKillErrorReleasesImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	killer := &mockKiller{err: fmt.Errorf("boom")}

	d := New(killer, clock, nil)

	err := d.Kill(context.Background(), "r42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r42")
	assert.False(t, d.Pending("r42"))
}

func TestDuplicateKillRejectedWhilePending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	killer := &mockKiller{}

	d := New(killer, clock, nil)

	require.NoError(t, d.Kill(context.Background(), "r42"))
	assert.ErrorIs(t, d.Kill(context.Background(), "r42"), ErrKillPending)
	assert.Equal(t, 1, killer.callCount(), "server sees a single kill")
}

func TestRecordVanishingDoesNotConfirm(t *testing.T) {
	clock := clockwork.NewFakeClock()
	killer := &mockKiller{}
	softFailures := make(chan string, 4)

	d := New(killer, clock, func(id string) { softFailures <- id })

	require.NoError(t, d.Kill(context.Background(), "r42"))

	// A snapshot without the record is not a confirmation; the record
	// may simply have fallen off the capped history.
	d.observe(snapshotWith())
	assert.True(t, d.Pending("r42"))

	clock.Advance(GracePeriod)
	select {
	case <-softFailures:
	case <-time.After(2 * time.Second):
		t.Fatal("expected soft failure")
	}
}
