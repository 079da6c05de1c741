package monitor

import (
	"context"
	"fmt"

	"github.com/pscheid92/llmwatch/internal/api"
)

// Result is the outcome of a one-shot connection test.
type Result struct {
	OK     bool
	Detail string
}

// TestConnection probes an endpoint once, for configuration-time
// validation. It builds its own client and never touches the recurring
// probe's cadence or last-known state.
func TestConnection(ctx context.Context, baseURL string) Result {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	stats, err := api.New(baseURL).Stats(ctx)
	if err != nil {
		return Result{OK: false, Detail: err.Error()}
	}
	return Result{
		OK:     true,
		Detail: fmt.Sprintf("reachable, %d queued, %d processing", stats.QueueCount, stats.ProcessingCount),
	}
}
