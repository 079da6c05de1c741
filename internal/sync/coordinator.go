package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/metrics"
)

const (
	// PullPeriod is the fixed cadence of the polling backstop.
	PullPeriod = 2 * time.Second
	// ReconnectBackoff is the fixed delay before a stream reconnect
	// attempt. The stream retries forever until Stop.
	ReconnectBackoff = 3 * time.Second
	// HistoryDepth caps the history kept in the snapshot. The server
	// holds the full history; this bound is for compact surfaces.
	HistoryDepth = 10
)

// State is the stream connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

// fetcher is the subset of the API client the poller needs.
type fetcher interface {
	Stats(ctx context.Context) (*domain.AggregateStats, error)
	Queue(ctx context.Context) ([]domain.RequestRecord, error)
	Processing(ctx context.Context) ([]domain.RequestRecord, error)
	History(ctx context.Context) ([]domain.RequestRecord, error)
}

// --- Command types ---

type coordCmd interface{ coordCmd() }

type cmdStart struct {
	endpoint domain.ServerEndpoint
	session  domain.Session
}

func (cmdStart) coordCmd() {}

type cmdStop struct{ done chan struct{} }

func (cmdStop) coordCmd() {}

type cmdShutdown struct{ done chan struct{} }

func (cmdShutdown) coordCmd() {}

type cmdSubscribe struct {
	fn    func(domain.Snapshot)
	reply chan int
}

func (cmdSubscribe) coordCmd() {}

type cmdUnsubscribe struct{ id int }

func (cmdUnsubscribe) coordCmd() {}

type cmdOnConnChange struct{ fn func(bool) }

func (cmdOnConnChange) coordCmd() {}

type cmdApply struct {
	gen    uint64
	update update
}

func (cmdApply) coordCmd() {}

type cmdStreamStatus struct {
	gen       uint64
	connected bool
}

func (cmdStreamStatus) coordCmd() {}

type cmdReconnect struct{ gen uint64 }

func (cmdReconnect) coordCmd() {}

type inspection struct {
	state     State
	connected bool
	snapshot  domain.Snapshot
	gen       uint64
}

type cmdInspect struct{ reply chan inspection }

func (cmdInspect) coordCmd() {}

// Coordinator owns the snapshot and the two update channels.
type Coordinator struct {
	client fetcher
	clock  clockwork.Clock
	dial   dialFunc
	cmdCh  chan coordCmd

	// Everything below is owned by the run goroutine.
	state           State
	gen             uint64
	snapshot        domain.Snapshot
	terminal        map[string]domain.RequestStatus
	subscribers     map[int]func(domain.Snapshot)
	nextSubID       int
	connCallbacks   []func(bool)
	streamConnected bool
	runtimeCtx      context.Context
	runtimeCancel   context.CancelFunc
	reconnectTimer  clockwork.Timer
	endpoint        domain.ServerEndpoint
	session         domain.Session
}

// NewCoordinator creates a coordinator and starts its owner goroutine.
// Call Start to open the channels and Shutdown to dispose of it.
func NewCoordinator(client fetcher, clock clockwork.Clock) *Coordinator {
	c := &Coordinator{
		client:      client,
		clock:       clock,
		dial:        gorillaDial,
		cmdCh:       make(chan coordCmd, 64),
		terminal:    make(map[string]domain.RequestStatus),
		subscribers: make(map[int]func(domain.Snapshot)),
	}
	go c.run()
	return c
}

// Subscribe registers a snapshot consumer and returns its unsubscribe
// function. Consumers are invoked from the owner goroutine, so they see
// snapshots in application order.
func (c *Coordinator) Subscribe(fn func(domain.Snapshot)) func() {
	reply := make(chan int, 1)
	c.cmdCh <- cmdSubscribe{fn: fn, reply: reply}
	id := <-reply
	return func() { c.cmdCh <- cmdUnsubscribe{id: id} }
}

// OnConnectionChange registers a callback for push channel connectivity
// transitions.
func (c *Coordinator) OnConnectionChange(fn func(bool)) {
	c.cmdCh <- cmdOnConnChange{fn: fn}
}

// Start opens both channels against the endpoint. If already started,
// the previous channels are torn down first.
func (c *Coordinator) Start(endpoint domain.ServerEndpoint, session domain.Session) {
	c.cmdCh <- cmdStart{endpoint: endpoint, session: session}
}

// Stop tears down both channels and discards the snapshot. Idempotent;
// any in-flight delivery arriving afterwards is dropped, not applied.
func (c *Coordinator) Stop() {
	done := make(chan struct{})
	c.cmdCh <- cmdStop{done: done}
	<-done
}

// Shutdown stops the channels and terminates the owner goroutine.
func (c *Coordinator) Shutdown() {
	done := make(chan struct{})
	c.cmdCh <- cmdShutdown{done: done}
	<-done
}

// Connected reports whether the push channel is currently established.
func (c *Coordinator) Connected() bool {
	return c.inspect().connected
}

// CurrentState returns the stream connection state.
func (c *Coordinator) CurrentState() State {
	return c.inspect().state
}

// CurrentSnapshot returns a copy of the live snapshot.
func (c *Coordinator) CurrentSnapshot() domain.Snapshot {
	return c.inspect().snapshot
}

func (c *Coordinator) inspect() inspection {
	reply := make(chan inspection, 1)
	c.cmdCh <- cmdInspect{reply: reply}
	return <-reply
}

// --- Owner goroutine ---

func (c *Coordinator) run() {
	for cmd := range c.cmdCh {
		switch cmd := cmd.(type) {
		case cmdStart:
			c.handleStart(cmd)
		case cmdStop:
			c.handleStop()
			close(cmd.done)
		case cmdShutdown:
			c.handleStop()
			close(cmd.done)
			return
		case cmdSubscribe:
			id := c.nextSubID
			c.nextSubID++
			c.subscribers[id] = cmd.fn
			cmd.reply <- id
		case cmdUnsubscribe:
			delete(c.subscribers, cmd.id)
		case cmdOnConnChange:
			c.connCallbacks = append(c.connCallbacks, cmd.fn)
		case cmdApply:
			if cmd.gen != c.gen || c.state == StateDisconnected {
				metrics.SnapshotsDiscarded.Inc()
				continue
			}
			c.apply(cmd.update)
		case cmdStreamStatus:
			if cmd.gen != c.gen {
				continue
			}
			c.handleStreamStatus(cmd.connected)
		case cmdReconnect:
			if cmd.gen != c.gen {
				continue
			}
			c.reconnectTimer = nil
			if c.state == StateReconnecting {
				metrics.StreamReconnects.Inc()
				c.state = StateConnecting
				c.spawnStream()
			}
		case cmdInspect:
			cmd.reply <- inspection{
				state:     c.state,
				connected: c.streamConnected,
				snapshot:  c.snapshot,
				gen:       c.gen,
			}
		}
	}
}

func (c *Coordinator) handleStart(cmd cmdStart) {
	if c.state != StateDisconnected {
		c.handleStop()
	}

	c.gen++
	c.endpoint = cmd.endpoint
	c.session = cmd.session
	c.snapshot = domain.Snapshot{}
	c.terminal = make(map[string]domain.RequestStatus)
	c.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	c.runtimeCtx = ctx
	c.runtimeCancel = cancel

	slog.Info("Sync coordinator starting", "endpoint", cmd.endpoint.BaseURL)
	c.spawnStream()
	go c.runPull(ctx, c.gen)
}

func (c *Coordinator) handleStop() {
	if c.state == StateDisconnected {
		return
	}

	c.gen++
	if c.runtimeCancel != nil {
		c.runtimeCancel()
		c.runtimeCancel = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.state = StateDisconnected
	c.snapshot = domain.Snapshot{}
	c.terminal = make(map[string]domain.RequestStatus)
	c.setStreamConnected(false)
	slog.Info("Sync coordinator stopped")
}

func (c *Coordinator) handleStreamStatus(connected bool) {
	if connected {
		c.state = StateConnected
		c.setStreamConnected(true)
		return
	}

	c.setStreamConnected(false)
	c.state = StateReconnecting

	// At most one outstanding reconnect attempt: the timer owns the
	// only transition out of Reconnecting.
	if c.reconnectTimer == nil {
		gen := c.gen
		c.reconnectTimer = c.clock.AfterFunc(ReconnectBackoff, func() {
			c.cmdCh <- cmdReconnect{gen: gen}
		})
	}
}

func (c *Coordinator) setStreamConnected(connected bool) {
	if c.streamConnected == connected {
		return
	}
	c.streamConnected = connected
	if connected {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
	for _, fn := range c.connCallbacks {
		fn(connected)
	}
}
