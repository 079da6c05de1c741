package sync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pscheid92/llmwatch/internal/metrics"
)

// runPull fetches the four state resources at a fixed cadence,
// independent of stream health. It is the backstop that keeps the view
// live while the stream is down or still establishing.
func (c *Coordinator) runPull(ctx context.Context, gen uint64) {
	// Fetch once right away so the view fills before the stream is up.
	c.pullOnce(ctx, gen)

	ticker := c.clock.NewTicker(PullPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.pullOnce(ctx, gen)
		case <-ctx.Done():
			return
		}
	}
}

// pullOnce fetches the four resources concurrently and delivers
// whatever subset succeeded as one partial update. Individual failures
// are absorbed; they never interrupt the schedule.
func (c *Coordinator) pullOnce(ctx context.Context, gen uint64) {
	u := update{source: "pull"}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		queue, err := c.client.Queue(ctx)
		if err != nil {
			c.pullError(ctx, "queue", err)
			return
		}
		u.queue, u.hasQueue = queue, true
	}()
	go func() {
		defer wg.Done()
		processing, err := c.client.Processing(ctx)
		if err != nil {
			c.pullError(ctx, "processing", err)
			return
		}
		u.processing, u.hasProcessing = processing, true
	}()
	go func() {
		defer wg.Done()
		history, err := c.client.History(ctx)
		if err != nil {
			c.pullError(ctx, "history", err)
			return
		}
		u.history, u.hasHistory = history, true
	}()
	go func() {
		defer wg.Done()
		stats, err := c.client.Stats(ctx)
		if err != nil {
			c.pullError(ctx, "stats", err)
			return
		}
		u.stats = stats
	}()

	wg.Wait()

	if ctx.Err() != nil || u.empty() {
		return
	}
	c.cmdCh <- cmdApply{gen: gen, update: u}
}

func (c *Coordinator) pullError(ctx context.Context, resource string, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.PullErrors.WithLabelValues(resource).Inc()
	slog.Debug("Pull fetch failed", "resource", resource, "error", err)
}
