package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloak/server/internal/core"
	"cloak/server/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeTimeout = 5 * time.Second

// Authenticator is the external auth collaborator as seen by the transport.
type Authenticator interface {
	IsRegistered(ctx context.Context, username, credential string) bool
	IsPrivileged(token string) bool
}

// Options tunes the websocket transport.
type Options struct {
	// RequireRegistration rejects hellos whose credential does not match
	// a stored registration. When false any non-empty username connects.
	RequireRegistration bool
	// SendBuffer is the per-connection outbound channel capacity.
	SendBuffer int
}

// Handler owns websocket transport for the relay.
type Handler struct {
	router   *core.Router
	auth     Authenticator
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler bound to the router.
func NewHandler(router *core.Router, auth Authenticator, opts Options) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = core.DefaultSendBuffer
	}
	return &Handler{
		router: router,
		auth:   auth,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds websocket routes on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades one request and serves it until disconnect.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn)
	return nil
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Time{})
	conn.SetReadLimit(core.MaxPayloadBytes)

	var hello protocol.Message
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}
	if hello.Type != protocol.TypeHello {
		h.writeDirectError(conn, "first message must be hello")
		return
	}
	username := strings.TrimSpace(hello.User)
	if username == "" {
		h.writeDirectError(conn, "username is required")
		return
	}
	if h.router.Moderation().IsBanned(username) {
		h.writeDirectError(conn, "banned")
		return
	}
	if h.opts.RequireRegistration && !h.auth.IsRegistered(context.Background(), username, hello.Credential) {
		h.writeDirectError(conn, "invalid credentials")
		return
	}

	privileged := h.auth.IsPrivileged(hello.Token)
	connID := uuid.NewString()
	send := h.router.Registry().Register(connID, username, privileged, h.opts.SendBuffer)

	defer h.router.Disconnect(connID)

	// The writer closes the connection once the send channel is closed, so
	// a kick or ban force-disconnects the read loop as well.
	go func() {
		defer conn.Close()
		for out := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}()

	ctx := context.Background()
	for {
		var in protocol.Message
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		h.handleInbound(ctx, connID, in)
	}
}

func (h *Handler) handleInbound(ctx context.Context, connID string, in protocol.Message) {
	switch in.Type {
	case protocol.TypePing:
		h.router.Registry().SendTo(connID, protocol.Message{Type: protocol.TypePong, TS: in.TS})

	case protocol.TypeJoinRoom:
		h.router.JoinRoom(ctx, connID, in.User, in.Room, in.Protected)

	case protocol.TypeSendMessage:
		h.router.SendMessage(ctx, connID, in.Room, in.User, in.Payload, in.IV, in.IsFile)

	case protocol.TypeSeen:
		h.router.SendSeen(connID, in.Room, in.User)

	case protocol.TypeTyping:
		h.router.SendTyping(connID, in.Room, in.User)

	case protocol.TypeAdmin:
		h.router.AdminCommand(ctx, connID, in.Room, in.Action, in.Target, in.Token)

	default:
		h.router.Registry().SendTo(connID, protocol.Message{Type: protocol.TypeError, Error: "unsupported message type"})
	}
}

func (h *Handler) writeDirectError(conn *websocket.Conn, errMsg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(protocol.Message{Type: protocol.TypeError, Error: errMsg})
}
