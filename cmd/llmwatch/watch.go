package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pscheid92/llmwatch/internal/dispatch"
	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/monitor"
	syncer "github.com/pscheid92/llmwatch/internal/sync"
)

func watchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the server's request queue live",
		Long: `Open the push and pull channels against the server and print every
state change: queue depth, requests entering and leaving processing,
and completions. The status line degrades to '!' while the server is
unreachable and recovers on its own.

Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			validateCtx, cancel := context.WithTimeout(ctx, authTimeout)
			ok := a.sessions.Validate(validateCtx)
			cancel()
			if !ok {
				return fmt.Errorf("no valid session, run 'llmwatch login' first")
			}

			if metricsAddr != "" {
				startMetricsListener(metricsAddr)
			}

			printer := newSnapshotPrinter()

			coordinator := syncer.NewCoordinator(a.client, a.clock)
			defer coordinator.Shutdown()
			unsubscribe := coordinator.Subscribe(printer.print)
			defer unsubscribe()
			coordinator.OnConnectionChange(func(connected bool) {
				if connected {
					color.Green("● push channel connected")
				} else {
					color.Yellow("● push channel lost, falling back to polling")
				}
			})

			mon := monitor.New(a.client, a.clock, printer.badge, func(queueCount int) {
				color.Yellow("⚠ queue depth %d exceeds %d", queueCount, monitor.QueueThreshold)
			})

			dispatcher := dispatch.New(a.client, a.clock, func(requestID string) {
				color.Red("✗ kill of %s unconfirmed after %s", requestID, dispatch.GracePeriod)
			})
			detach := dispatcher.Attach(coordinator)
			defer detach()

			a.sessions.OnLogout(func() {
				coordinator.Stop()
				mon.Stop()
			})

			go mon.Start(ctx)
			defer mon.Stop()

			coordinator.Start(
				domain.ServerEndpoint{BaseURL: a.serverURL(), LastKnownStatus: mon.LastKnownStatus()},
				a.sessions.Current(),
			)

			fmt.Printf("Watching %s (Ctrl-C to stop)\n", a.serverURL())
			<-ctx.Done()
			fmt.Println("\nStopping...")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// startMetricsListener serves /metrics in the background. Failures are
// logged, not fatal; the watch session works without metrics.
func startMetricsListener(addr string) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		if err := e.Start(addr); err != nil {
			slog.Warn("Metrics listener stopped", "addr", addr, "error", err)
		}
	}()
}

// snapshotPrinter renders coordinator deliveries and monitor badges as
// compact terminal lines, skipping no-op deliveries.
type snapshotPrinter struct {
	lastStats domain.AggregateStats
	lastBadge monitor.Badge
	seen      bool
}

func newSnapshotPrinter() *snapshotPrinter {
	return &snapshotPrinter{}
}

func (p *snapshotPrinter) print(s domain.Snapshot) {
	if p.seen && s.Stats == p.lastStats {
		return
	}
	p.seen = true
	p.lastStats = s.Stats

	ts := time.Now().Format("15:04:05")
	fmt.Printf("%s  queued %s  processing %s  done %s  failed %s  killed %s\n",
		color.WhiteString(ts),
		color.CyanString("%d", s.Stats.QueueCount),
		color.BlueString("%d", s.Stats.ProcessingCount),
		color.GreenString("%d", s.Stats.CompletedCount),
		color.RedString("%d", s.Stats.FailedCount),
		color.YellowString("%d", s.Stats.KilledCount),
	)
}

func (p *snapshotPrinter) badge(b monitor.Badge) {
	if b == p.lastBadge {
		return
	}
	p.lastBadge = b

	switch b.State {
	case monitor.BadgeAlert:
		color.Red("status: server unreachable")
	case monitor.BadgeActive:
		color.Cyan("status: %d active", b.Count)
	default:
		fmt.Println("status: idle")
	}
}
