// Package main provides the llmwatch CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pscheid92/llmwatch/internal/api"
	"github.com/pscheid92/llmwatch/internal/config"
	"github.com/pscheid92/llmwatch/internal/logging"
	"github.com/pscheid92/llmwatch/internal/session"
	"github.com/pscheid92/llmwatch/internal/version"
)

const defaultServerURL = "http://localhost:8000"

var (
	flagConfig    string
	flagServer    string
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "llmwatch",
		Short: "Monitor and control an LLM proxy server from the terminal",
		Long: `llmwatch keeps a live view of the request queue of a local LLM /
vector-DB proxy: what is queued, what is processing, and what finished.
It can kill stuck requests and alerts when the queue backs up.

Start with 'llmwatch config set-server' and 'llmwatch login', then run
'llmwatch watch' for the live view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default ~/.llmwatch/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Server base URL (overrides configured value)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		loginCmd(),
		registerCmd(),
		logoutCmd(),
		whoamiCmd(),
		watchCmd(),
		killCmd(),
		testCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired dependencies every command needs.
type app struct {
	store    *config.Store
	file     *config.File
	client   *api.Client
	sessions *session.Manager
	clock    clockwork.Clock
}

// buildApp loads the config file, initializes logging, and wires the
// API client and session manager. The persisted session is restored so
// commands start authenticated when a prior login exists.
func buildApp() (*app, error) {
	v := viper.New()
	if flagConfig != "" {
		v.Set("config.path", flagConfig)
	}

	store, err := config.NewStore(v)
	if err != nil {
		return nil, err
	}

	file, err := store.Load()
	if err != nil {
		return nil, err
	}

	level := file.Log.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	format := file.Log.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	logging.Init(level, format)

	baseURL := file.Server.BaseURL
	if flagServer != "" {
		baseURL = flagServer
	}
	if baseURL == "" {
		baseURL = defaultServerURL
	}

	var opts []api.Option
	if file.Server.AuthURL != "" {
		opts = append(opts, api.WithAuthURL(file.Server.AuthURL))
	}
	client := api.New(baseURL, opts...)

	sessions := session.NewManager(client, store, clockwork.NewRealClock())
	if err := sessions.LoadPersisted(); err != nil {
		return nil, err
	}

	return &app{
		store:    store,
		file:     file,
		client:   client,
		sessions: sessions,
		clock:    clockwork.NewRealClock(),
	}, nil
}

// serverURL is the effective base URL after flag and config resolution.
func (a *app) serverURL() string {
	return a.client.BaseURL()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("llmwatch %s (%s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		},
	}
}
