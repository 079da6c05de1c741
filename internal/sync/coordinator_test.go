package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/llmwatch/internal/domain"
)

// --- Mock fetcher ---

type mockFetcher struct {
	mu         stdsync.Mutex
	queue      []domain.RequestRecord
	processing []domain.RequestRecord
	history    []domain.RequestRecord
	stats      domain.AggregateStats
	err        error
}

func (m *mockFetcher) get() (*mockFetcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m, nil
}

func (m *mockFetcher) Queue(_ context.Context) ([]domain.RequestRecord, error) {
	if _, err := m.get(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RequestRecord(nil), m.queue...), nil
}

func (m *mockFetcher) Processing(_ context.Context) ([]domain.RequestRecord, error) {
	if _, err := m.get(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RequestRecord(nil), m.processing...), nil
}

func (m *mockFetcher) History(_ context.Context) ([]domain.RequestRecord, error) {
	if _, err := m.get(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RequestRecord(nil), m.history...), nil
}

func (m *mockFetcher) Stats(_ context.Context) (*domain.AggregateStats, error) {
	if _, err := m.get(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	return &stats, nil
}

func (m *mockFetcher) setQueue(queue []domain.RequestRecord, queueCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = queue
	m.stats = domain.AggregateStats{QueueCount: queueCount}
}

func (m *mockFetcher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func failingDial(counter *atomic.Int32) dialFunc {
	return func(_ context.Context, _ string, _ http.Header) (*ws.Conn, error) {
		counter.Add(1)
		return nil, fmt.Errorf("connection refused")
	}
}

func testEndpoint(baseURL string) domain.ServerEndpoint {
	return domain.ServerEndpoint{BaseURL: baseURL, LastKnownStatus: domain.ReachabilityUnknown}
}

func waitSnapshot(t *testing.T, snapshots <-chan domain.Snapshot) domain.Snapshot {
	t.Helper()
	select {
	case s := <-snapshots:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return domain.Snapshot{}
	}
}

// --- Tests ---

func TestPullKeepsViewLiveWhileStreamIsDown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.setQueue([]domain.RequestRecord{rec("a", domain.StatusQueued)}, 1)

	var dials atomic.Int32
	c := NewCoordinator(fetcher, clock)
	c.dial = failingDial(&dials)
	t.Cleanup(c.Shutdown)

	snapshots := make(chan domain.Snapshot, 16)
	c.Subscribe(func(s domain.Snapshot) { snapshots <- s })

	c.Start(testEndpoint("http://example.invalid"), domain.Session{AccessToken: "t1"})

	// The immediate pull fills the view before any stream exists.
	first := waitSnapshot(t, snapshots)
	require.Len(t, first.Queue, 1)
	assert.Equal(t, "a", first.Queue[0].ID)
	assert.Equal(t, 1, first.Stats.QueueCount)
	assert.False(t, c.Connected())

	// Pull ticker plus reconnect timer are both waiting on the clock.
	clock.BlockUntil(2)

	fetcher.setQueue([]domain.RequestRecord{rec("a", domain.StatusQueued), rec("b", domain.StatusQueued)}, 2)
	clock.Advance(PullPeriod)

	second := waitSnapshot(t, snapshots)
	require.Len(t, second.Queue, 2)
	assert.Equal(t, 2, second.Stats.QueueCount)
}

func TestReconnectAttemptsDoNotAccumulate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.setErr(fmt.Errorf("down"))

	var dials atomic.Int32
	c := NewCoordinator(fetcher, clock)
	c.dial = failingDial(&dials)
	t.Cleanup(c.Shutdown)

	c.Start(testEndpoint("http://example.invalid"), domain.Session{})

	assert.Eventually(t, func() bool {
		return c.CurrentState() == StateReconnecting && dials.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Each backoff expiry triggers exactly one new attempt.
	for want := int32(2); want <= 3; want++ {
		clock.BlockUntil(2)
		clock.Advance(ReconnectBackoff)
		assert.Eventually(t, func() bool { return dials.Load() == want },
			2*time.Second, 10*time.Millisecond)
		assert.Equal(t, StateReconnecting, c.CurrentState())
	}
	assert.Equal(t, int32(3), dials.Load())
}

func TestStopDiscardsLateDeliveries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.setQueue([]domain.RequestRecord{rec("a", domain.StatusQueued)}, 1)

	var dials atomic.Int32
	c := NewCoordinator(fetcher, clock)
	c.dial = failingDial(&dials)
	t.Cleanup(c.Shutdown)

	snapshots := make(chan domain.Snapshot, 16)
	c.Subscribe(func(s domain.Snapshot) { snapshots <- s })

	c.Start(testEndpoint("http://example.invalid"), domain.Session{})
	waitSnapshot(t, snapshots)

	staleGen := c.inspect().gen
	c.Stop()
	c.Stop() // idempotent

	assert.Equal(t, StateDisconnected, c.CurrentState())
	assert.Empty(t, c.CurrentSnapshot().Queue, "snapshot discarded on stop")

	// A delivery that was in flight when Stop ran arrives late and is
	// dropped, not applied.
	c.cmdCh <- cmdApply{gen: staleGen, update: update{
		source: "pull",
		queue:  []domain.RequestRecord{rec("late", domain.StatusQueued)}, hasQueue: true,
	}}

	select {
	case s := <-snapshots:
		t.Fatalf("unexpected snapshot after stop: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, c.CurrentSnapshot().Queue)
}

func TestRestartResetsSnapshotAndGeneration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.setQueue([]domain.RequestRecord{rec("a", domain.StatusQueued)}, 1)

	var dials atomic.Int32
	c := NewCoordinator(fetcher, clock)
	c.dial = failingDial(&dials)
	t.Cleanup(c.Shutdown)

	snapshots := make(chan domain.Snapshot, 16)
	c.Subscribe(func(s domain.Snapshot) { snapshots <- s })

	c.Start(testEndpoint("http://example.invalid"), domain.Session{})
	waitSnapshot(t, snapshots)
	c.Stop()

	fetcher.setQueue([]domain.RequestRecord{rec("b", domain.StatusQueued)}, 1)
	c.Start(testEndpoint("http://example.invalid"), domain.Session{})

	fresh := waitSnapshot(t, snapshots)
	require.Len(t, fresh.Queue, 1)
	assert.Equal(t, "b", fresh.Queue[0].ID)
}

// streamServer is an httptest websocket endpoint that pushes queued
// frames to each connecting client.
type streamServer struct {
	t       *testing.T
	server  *httptest.Server
	frames  chan any
	clients chan *ws.Conn
}

func newStreamServer(t *testing.T) *streamServer {
	t.Helper()
	s := &streamServer{t: t, frames: make(chan any, 16), clients: make(chan *ws.Conn, 4)}
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(s.t, "t1", r.URL.Query().Get("token"))
		assert.Equal(s.t, "Bearer t1", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.clients <- conn
		go func() {
			for frame := range s.frames {
				payload, _ := json.Marshal(frame)
				if err := conn.WriteMessage(ws.TextMessage, payload); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(s.server.Close)
	return s
}

func TestStreamDeliveriesReachSubscribers(t *testing.T) {
	server := newStreamServer(t)

	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.setErr(fmt.Errorf("pull disabled for this test"))

	c := NewCoordinator(fetcher, clock)
	t.Cleanup(c.Shutdown)

	snapshots := make(chan domain.Snapshot, 16)
	c.Subscribe(func(s domain.Snapshot) { snapshots <- s })

	connChanges := make(chan bool, 8)
	c.OnConnectionChange(func(connected bool) { connChanges <- connected })

	c.Start(testEndpoint(server.server.URL), domain.Session{AccessToken: "t1"})

	select {
	case connected := <-connChanges:
		assert.True(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("stream never connected")
	}
	assert.Equal(t, StateConnected, c.CurrentState())

	server.frames <- map[string]any{
		"queue":      []domain.RequestRecord{rec("r1", domain.StatusQueued)},
		"processing": []domain.RequestRecord{},
		"history":    []domain.RequestRecord{},
		"stats":      domain.AggregateStats{QueueCount: 1},
	}

	got := waitSnapshot(t, snapshots)
	require.Len(t, got.Queue, 1)
	assert.Equal(t, "r1", got.Queue[0].ID)
	assert.Equal(t, 1, got.Stats.QueueCount)

	// Dropping the connection flips connectivity and schedules a
	// reconnect; the coordinator keeps running.
	conn := <-server.clients
	conn.Close()

	select {
	case connected := <-connChanges:
		assert.False(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect never observed")
	}
	assert.Eventually(t, func() bool { return c.CurrentState() == StateReconnecting },
		2*time.Second, 10*time.Millisecond)
}

func TestStreamURL(t *testing.T) {
	url, err := streamURL("http://gpu-box:8000", "t1")
	require.NoError(t, err)
	assert.Equal(t, "ws://gpu-box:8000/ws?token=t1", url)

	url, err = streamURL("https://gpu-box:8000/", "")
	require.NoError(t, err)
	assert.Equal(t, "wss://gpu-box:8000/ws", url)
	assert.False(t, strings.Contains(url, "token"))
}
