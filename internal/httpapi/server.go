package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cloak/server/internal/auth"
	"cloak/server/internal/core"
	"cloak/server/internal/store"
	"cloak/server/internal/ws"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// bodyLimit caps HTTP request bodies; websocket frames are capped separately.
const bodyLimit = "12M"

// Server is the Echo application fronting the relay.
type Server struct {
	echo      *echo.Echo
	router    *core.Router
	auth      *auth.Service
	rootUsers map[string]struct{}
}

// New constructs an Echo app with websocket + REST routes. rootUsers are
// granted a root role claim at login.
func New(router *core.Router, authSvc *auth.Service, wsOpts ws.Options, rootUsers []string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit))

	roots := make(map[string]struct{}, len(rootUsers))
	for _, u := range rootUsers {
		roots[u] = struct{}{}
	}

	s := &Server{echo: e, router: router, auth: authSvc, rootUsers: roots}
	s.registerRoutes(wsOpts)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(wsOpts ws.Options) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/rooms", s.handleRooms)
	s.echo.POST("/api/register", s.handleRegister)
	s.echo.POST("/api/login", s.handleLogin)
	ws.NewHandler(s.router, s.auth, wsOpts).Register(s.echo)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.router.Registry().Count(),
		Rooms:   len(s.router.Rooms().Rooms()),
	})
}

type roomsResponse struct {
	Rooms []core.RoomInfo `json:"rooms"`
}

func (s *Server) handleRooms(c echo.Context) error {
	rooms := s.router.Rooms().Rooms()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	return c.JSON(http.StatusOK, roomsResponse{Rooms: rooms})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.auth.Register(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return echo.NewHTTPError(http.StatusConflict, "username already taken")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slog.Info("user registered", "username", req.Username)
	return c.NoContent(http.StatusCreated)
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if s.router.Moderation().IsBanned(req.Username) {
		return echo.NewHTTPError(http.StatusForbidden, "banned")
	}
	if !s.auth.IsRegistered(c.Request().Context(), req.Username, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	role := "member"
	if _, ok := s.rootUsers[req.Username]; ok {
		role = auth.RoleRoot
	}
	token, err := s.auth.Issue(req.Username, role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "issue token")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, Role: role})
}
