package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pscheid92/llmwatch/internal/monitor"
)

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [url]",
		Short: "Probe a server once and report reachability",
		Long: `Run a single connection test against the configured server, or the
URL given as argument. This never touches the recurring probe or the
stored configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			target := a.serverURL()
			if len(args) > 0 {
				target = args[0]
			}

			result := monitor.TestConnection(cmd.Context(), target)
			if result.OK {
				color.Green("✓ %s: %s", target, result.Detail)
			} else {
				color.Red("✗ %s: %s", target, result.Detail)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the stored configuration",
	}

	var authURL string
	setServerCmd := &cobra.Command{
		Use:   "set-server <url>",
		Short: "Set the server base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			a.file.Server.BaseURL = args[0]
			if authURL != "" {
				a.file.Server.AuthURL = authURL
			}
			if err := a.store.Save(a.file); err != nil {
				return err
			}

			color.Green("✓ Server set to %s", args[0])
			return nil
		},
	}
	setServerCmd.Flags().StringVar(&authURL, "auth-url", "", "Separate identity service URL")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}

			fmt.Printf("Config file: %s\n", a.store.Path())
			fmt.Printf("Server:      %s\n", a.serverURL())
			if a.file.Server.AuthURL != "" {
				fmt.Printf("Auth URL:    %s\n", a.file.Server.AuthURL)
			}
			if a.sessions.Authenticated() {
				fmt.Printf("Session:     %s\n", a.sessions.Current().Username)
			} else {
				fmt.Println("Session:     none")
			}
			return nil
		},
	}

	cmd.AddCommand(setServerCmd, showCmd)
	return cmd
}
