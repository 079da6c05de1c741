package sync

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/llmwatch/internal/domain"
)

// streamFrame is the wire shape of a push message: the same tuple the
// pull channel fetches, with absent fields left nil.
type streamFrame struct {
	Queue      *[]domain.RequestRecord `json:"queue"`
	Processing *[]domain.RequestRecord `json:"processing"`
	History    *[]domain.RequestRecord `json:"history"`
	Stats      *domain.AggregateStats  `json:"stats"`
}

func (f streamFrame) toUpdate() update {
	u := update{source: "push", stats: f.Stats}
	if f.Queue != nil {
		u.queue, u.hasQueue = *f.Queue, true
	}
	if f.Processing != nil {
		u.processing, u.hasProcessing = *f.Processing, true
	}
	if f.History != nil {
		u.history, u.hasHistory = *f.History, true
	}
	return u
}

type dialFunc func(ctx context.Context, wsURL string, header http.Header) (*websocket.Conn, error)

func gorillaDial(ctx context.Context, wsURL string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// streamURL derives the websocket endpoint from the HTTP base URL.
func streamURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// spawnStream launches one connection attempt under the current
// generation. Runs only in the owner goroutine.
func (c *Coordinator) spawnStream() {
	go c.runStream(c.runtimeCtx, c.gen, c.endpoint.BaseURL, c.session.AccessToken)
}

// runStream dials the push channel and pumps frames into the owner
// goroutine until the connection drops or the runtime is cancelled.
// Every outcome is reported as a stream status event; the owner decides
// whether to schedule a reconnect.
func (c *Coordinator) runStream(ctx context.Context, gen uint64, baseURL, token string) {
	wsURL, err := streamURL(baseURL, token)
	if err != nil {
		slog.Error("Invalid stream URL", "base_url", baseURL, "error", err)
		c.cmdCh <- cmdStreamStatus{gen: gen, connected: false}
		return
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, err := c.dial(ctx, wsURL, header)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("Stream dial failed", "error", err)
			c.cmdCh <- cmdStreamStatus{gen: gen, connected: false}
		}
		return
	}

	c.cmdCh <- cmdStreamStatus{gen: gen, connected: true}

	// Unblock ReadJSON when the runtime is torn down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				slog.Debug("Stream closed", "error", err)
				c.cmdCh <- cmdStreamStatus{gen: gen, connected: false}
			}
			return
		}
		c.cmdCh <- cmdApply{gen: gen, update: frame.toUpdate()}
	}
}
