package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pscheid92/llmwatch/internal/dispatch"
	"github.com/pscheid92/llmwatch/internal/domain"
	syncer "github.com/pscheid92/llmwatch/internal/sync"
)

func killCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "kill <request-id>",
		Short: "Cancel a queued or processing request",
		Long: `Issue a kill for the given request. The server decides the outcome;
with --wait the command watches the sync channels until the request
reaches a terminal state or the grace period runs out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID := args[0]

			a, err := buildApp()
			if err != nil {
				return err
			}

			if !wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
				defer cancel()
				if err := a.client.Kill(ctx, requestID); err != nil {
					return err
				}
				color.Green("✓ Kill issued for %s", requestID)
				return nil
			}

			return killAndWait(cmd.Context(), a, requestID)
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the server to confirm the kill")
	return cmd
}

// killAndWait issues the kill through the dispatcher and follows sync
// deliveries until confirmation or soft failure.
func killAndWait(ctx context.Context, a *app, requestID string) error {
	outcome := make(chan string, 1)

	coordinator := syncer.NewCoordinator(a.client, a.clock)
	defer coordinator.Shutdown()

	dispatcher := dispatch.New(a.client, a.clock, func(string) {
		select {
		case outcome <- "":
		default:
		}
	})
	detach := dispatcher.Attach(coordinator)
	defer detach()

	unsubscribe := coordinator.Subscribe(func(s domain.Snapshot) {
		record, ok := s.Record(requestID)
		if !ok || !record.Status.Terminal() {
			return
		}
		select {
		case outcome <- string(record.Status):
		default:
		}
	})
	defer unsubscribe()

	coordinator.Start(domain.ServerEndpoint{BaseURL: a.serverURL()}, a.sessions.Current())
	defer coordinator.Stop()

	if err := dispatcher.Kill(ctx, requestID); err != nil {
		return err
	}
	fmt.Printf("Kill issued for %s, awaiting confirmation...\n", requestID)

	select {
	case status := <-outcome:
		if status == "" {
			color.Red("✗ No confirmation within %s; the request may still be running", dispatch.GracePeriod)
			return nil
		}
		color.Green("✓ Request %s is now %s", requestID, status)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dispatch.GracePeriod + 5*time.Second):
		color.Red("✗ Timed out waiting for confirmation")
		return nil
	}
}
