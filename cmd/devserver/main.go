// Command devserver runs the in-memory stand-in for the proxy backend.
// It serves the full REST and websocket surface llmwatch talks to, with
// /api/test routes for driving request lifecycles by hand.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/pscheid92/llmwatch/internal/devserver"
	"github.com/pscheid92/llmwatch/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	seed := flag.Int("seed", 0, "number of sample requests to pre-populate")
	flag.Parse()

	logging.Init(*logLevel, "text")

	srv := devserver.New()
	for i := 0; i < *seed; i++ {
		srv.Queue().Add("ollama", "llama3", "seed request")
	}

	slog.Info("Dev server listening", "addr", *addr)
	if err := srv.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Dev server failed", "error", err)
		os.Exit(1)
	}
}
