package devserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/llmwatch/internal/domain"
	"github.com/pscheid92/llmwatch/internal/version"
)

// Server is the echo application serving the simulated proxy.
type Server struct {
	echo     *echo.Echo
	queue    *QueueManager
	users    *userStore
	upgrader websocket.Upgrader
}

// New creates a dev server with an empty queue and user store.
func New() *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		queue:    NewQueueManager(),
		users:    newUserStore(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.registerRoutes()
	return s
}

// Queue exposes the queue manager so tests can drive lifecycles directly.
func (s *Server) Queue() *QueueManager { return s.queue }

// Handler returns the root HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on the given address until the process exits.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) registerRoutes() {
	s.echo.POST("/api/auth/register", s.handleRegister)
	s.echo.POST("/api/auth/login", s.handleLogin)
	s.echo.GET("/api/auth/me", s.handleMe)
	s.echo.POST("/api/auth/refresh", s.handleRefresh)
	s.echo.POST("/api/auth/logout", s.handleLogout)

	s.echo.GET("/api/health", s.handleHealth)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/api/queue", s.handleQueue)
	s.echo.GET("/api/processing", s.handleProcessing)
	s.echo.GET("/api/history", s.handleHistory)
	s.echo.GET("/api/services", s.handleServices)
	s.echo.POST("/api/kill/:id", s.handleKill)

	s.echo.POST("/api/test/add", s.handleTestAdd)
	s.echo.POST("/api/test/process/:id", s.handleTestProcess)
	s.echo.POST("/api/test/complete/:id", s.handleTestComplete)

	s.echo.GET("/ws", s.handleStream)
}

// --- Auth handlers ---

type authRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	RememberMe   bool   `json:"remember_me"`
}

type tokenReply struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	User         map[string]any `json:"user"`
}

func (s *Server) tokenReply(username string) tokenReply {
	access, refresh := s.users.issue(username)
	return tokenReply{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		User:         map[string]any{"username": username, "email": s.users.email(username)},
	}
}

func (s *Server) handleRegister(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid payload"})
	}
	req.Username = strings.ToLower(req.Username)

	if len(req.Username) < 3 || !isHexDigest(req.PasswordHash) {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid username or password hash"})
	}
	if !s.users.register(req.Username, req.Email, req.PasswordHash) {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "username already exists"})
	}
	return c.JSON(http.StatusOK, s.tokenReply(req.Username))
}

func (s *Server) handleLogin(c echo.Context) error {
	var req authRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid payload"})
	}
	req.Username = strings.ToLower(req.Username)

	if _, ok := s.users.verify(req.Username, req.PasswordHash); !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
	}
	return c.JSON(http.StatusOK, s.tokenReply(req.Username))
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func (s *Server) handleMe(c echo.Context) error {
	username, ok := s.users.lookupAccess(bearerToken(c))
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
	}
	return c.JSON(http.StatusOK, map[string]string{"username": username, "email": s.users.email(username)})
}

func (s *Server) handleRefresh(c echo.Context) error {
	access, refresh, ok := s.users.rotate(bearerToken(c))
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "invalid refresh token"})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (s *Server) handleLogout(c echo.Context) error {
	s.users.revoke(bearerToken(c))
	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

// --- State handlers ---

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Stats())
}

func (s *Server) handleQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Queue())
}

func (s *Server) handleProcessing(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Processing())
}

func (s *Server) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.History(100))
}

func (s *Server) handleServices(c echo.Context) error {
	return c.JSON(http.StatusOK, []domain.ServiceStatus{
		{Name: "ollama", Port: 11434, Status: "online"},
		{Name: "qdrant", Port: 6333, Status: "online"},
	})
}

func (s *Server) handleKill(c echo.Context) error {
	record, ok := s.queue.Kill(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "request not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "killed", "request": record})
}

// --- Test mutation handlers ---

func (s *Server) handleTestAdd(c echo.Context) error {
	service := c.QueryParam("service")
	if service == "" {
		service = "ollama"
	}
	model := c.QueryParam("model")
	if model == "" {
		model = "llama3"
	}
	prompt := c.QueryParam("prompt")
	if prompt == "" {
		prompt = "Test"
	}
	return c.JSON(http.StatusOK, s.queue.Add(service, model, prompt))
}

func (s *Server) handleTestProcess(c echo.Context) error {
	record, ok := s.queue.StartProcessing(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "request not found"})
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) handleTestComplete(c echo.Context) error {
	record, ok := s.queue.Complete(c.Param("id"), c.QueryParam("response"), c.QueryParam("error"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "request not found"})
	}
	return c.JSON(http.StatusOK, record)
}

// --- Stream handler ---

func (s *Server) handleStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	updates, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()

	// Initial full tuple, then push on every mutation.
	if err := conn.WriteJSON(s.queue.Snapshot()); err != nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot := <-updates:
			if err := conn.WriteJSON(snapshot); err != nil {
				return nil
			}
		case <-done:
			slog.Debug("Stream client disconnected")
			return nil
		}
	}
}
