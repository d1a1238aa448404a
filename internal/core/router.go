package core

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cloak/server/internal/audit"
	"cloak/server/internal/history"
	"cloak/server/internal/protocol"
	"cloak/server/internal/relaystats"
)

// TokenChecker validates per-call capability tokens. Implemented by the
// auth collaborator; the router never compares secret strings itself.
type TokenChecker interface {
	IsPrivileged(token string) bool
}

// Config tunes router policy.
type Config struct {
	// AnnounceJoins controls whether a join emits a system notice to the
	// room. The source family announces to all members including the
	// joiner; silent joins are a supported policy.
	AnnounceJoins bool
}

// Router is the orchestrating façade exposed to the transport. It validates
// and authorizes inbound calls, mutates the room/moderation/history stores,
// and fans events out to room subscribers.
type Router struct {
	rooms      *RoomDirectory
	registry   *Registry
	moderation *ModerationStore
	log        history.Log
	tokens     TokenChecker
	notifier   *audit.Notifier
	stats      *relaystats.Counters
	cfg        Config
}

// NewRouter wires the relay core together. notifier and stats may be nil.
func NewRouter(
	rooms *RoomDirectory,
	registry *Registry,
	moderation *ModerationStore,
	log history.Log,
	tokens TokenChecker,
	notifier *audit.Notifier,
	stats *relaystats.Counters,
	cfg Config,
) *Router {
	return &Router{
		rooms:      rooms,
		registry:   registry,
		moderation: moderation,
		log:        log,
		tokens:     tokens,
		notifier:   notifier,
		stats:      stats,
		cfg:        cfg,
	}
}

// Rooms exposes the room directory for listing endpoints.
func (rt *Router) Rooms() *RoomDirectory { return rt.rooms }

// Registry exposes the connection registry for the transport layer.
func (rt *Router) Registry() *Registry { return rt.registry }

// Moderation exposes the moderation store for pre-join ban checks.
func (rt *Router) Moderation() *ModerationStore { return rt.moderation }

func (rt *Router) audit(kind, room, actor, target string) {
	rt.notifier.Emit(audit.Event{Kind: kind, Room: room, Actor: actor, Target: target})
}

func (rt *Router) sendError(connID, text string) {
	rt.registry.SendTo(connID, protocol.Message{Type: protocol.TypeError, Error: text})
}

func (rt *Router) sendSystem(connID, text string) {
	rt.registry.SendTo(connID, protocol.Message{Type: protocol.TypeSystem, Text: text})
}

// JoinRoom subscribes a connection to a room, replaying recent history to
// the caller only. The room is created on first join; a later joiner's
// protection claim never overwrites the existing flag. A connection holds at
// most one room at a time, so joining implies leaving any previous room.
func (rt *Router) JoinRoom(ctx context.Context, connID, user, room string, protected bool) {
	user = strings.TrimSpace(user)
	room = strings.TrimSpace(room)
	if user == "" || room == "" {
		rt.sendError(connID, "room and user are required")
		return
	}
	if rt.moderation.IsBanned(user) {
		rt.sendSystem(connID, "you are banned from this server")
		rt.audit("join_rejected_banned", room, user, "")
		return
	}

	if prevUser, prevRoom, ok := rt.registry.ClearRoom(connID); ok && prevRoom != room {
		rt.registry.BroadcastRoom(prevRoom, protocol.Message{
			Type: protocol.TypeSystem,
			Text: prevUser + " left the room",
		}, "")
	}

	r := rt.rooms.Ensure(room, protected)
	r.ClaimOwner(user)
	if !rt.registry.Join(connID, room) {
		slog.Warn("join for unknown connection", "conn_id", connID, "room", room)
		return
	}

	// Replay is delivered to the caller only, as individual message events.
	msgs, err := rt.log.Replay(ctx, room)
	if err != nil {
		slog.Warn("history replay failed", "room", room, "err", err)
	}
	for _, m := range msgs {
		rt.registry.SendTo(connID, protocol.Message{
			Type:    protocol.TypeMessage,
			Room:    m.Room,
			User:    m.Sender,
			Payload: m.Payload,
			IV:      m.IV,
			IsFile:  m.IsFile,
			TS:      m.Timestamp.UnixMilli(),
		})
	}

	if rt.cfg.AnnounceJoins {
		rt.registry.BroadcastRoom(room, protocol.Message{
			Type: protocol.TypeSystem,
			Text: user + " joined the room",
		}, "")
	}
	rt.audit("join", room, user, "")
}

// SendMessage relays one opaque payload to a room. Banned and muted senders
// are suppressed without reaching history or the room; a history append
// failure degrades to live-only relay. Within one room, broadcast order
// matches history order.
func (rt *Router) SendMessage(ctx context.Context, connID, room, user, payload, iv string, isFile bool) {
	user = strings.TrimSpace(user)
	room = strings.TrimSpace(room)
	if user == "" || room == "" {
		rt.sendError(connID, "room and user are required")
		return
	}

	_, sessRoom, _, ok := rt.registry.Session(connID)
	if !ok || sessRoom != room {
		rt.sendError(connID, "not joined to room")
		return
	}
	if rt.moderation.IsBanned(user) {
		rt.audit("send_rejected_banned", room, user, "")
		return
	}
	if rt.moderation.IsMuted(room, user) {
		rt.sendSystem(connID, "you are muted in this room")
		rt.audit("send_rejected_muted", room, user, "")
		return
	}

	r, exists := rt.rooms.Get(room)
	if !exists {
		rt.sendError(connID, "room not found")
		return
	}

	msg := history.Message{
		Room:      room,
		Sender:    user,
		Payload:   payload,
		IV:        iv,
		IsFile:    isFile,
		Timestamp: time.Now().UTC(),
	}

	r.Sequenced(func() {
		if err := rt.log.Append(ctx, msg); err != nil {
			slog.Warn("history append failed", "room", room, "err", err)
		}
		rt.registry.BroadcastRoom(room, protocol.Message{
			Type:    protocol.TypeMessage,
			Room:    room,
			User:    user,
			Payload: payload,
			IV:      iv,
			IsFile:  isFile,
			TS:      msg.Timestamp.UnixMilli(),
		}, "")
	})

	rt.stats.Record(len(payload) + len(iv))
	rt.audit("send", room, user, "")
}

// SendSeen fans a read receipt out to every other member of the room. Pure
// ephemeral signal: never persisted.
func (rt *Router) SendSeen(connID, room, user string) {
	rt.ephemeral(connID, room, user, protocol.TypeSeen)
}

// SendTyping fans a typing indicator out to every other member of the room.
func (rt *Router) SendTyping(connID, room, user string) {
	rt.ephemeral(connID, room, user, protocol.TypeTyping)
}

func (rt *Router) ephemeral(connID, room, user, eventType string) {
	user = strings.TrimSpace(user)
	room = strings.TrimSpace(room)
	if user == "" || room == "" {
		return
	}
	_, sessRoom, _, ok := rt.registry.Session(connID)
	if !ok || sessRoom != room {
		return
	}
	rt.registry.BroadcastRoom(room, protocol.Message{
		Type: eventType,
		Room: room,
		User: user,
	}, connID)
}

// Disconnect tears a connection down, emitting exactly one "left" notice to
// its former room. Idempotent: a second call or an unknown connection is a
// no-op.
func (rt *Router) Disconnect(connID string) {
	user, room, ok := rt.registry.Remove(connID)
	if !ok {
		return
	}
	if room != "" {
		rt.registry.BroadcastRoom(room, protocol.Message{
			Type: protocol.TypeSystem,
			Text: user + " left the room",
		}, "")
	}
	rt.audit("disconnect", room, user, "")
}

// isRoot resolves root authority from the session's hello token or a
// per-call token.
func (rt *Router) isRoot(privileged bool, token string) bool {
	if privileged {
		return true
	}
	return rt.tokens != nil && rt.tokens.IsPrivileged(token)
}

// isRoomAdmin reports room-admin authority: root, global admin, or owner of
// the room.
func (rt *Router) isRoomAdmin(actor, room string, root bool) bool {
	if root || rt.moderation.IsGlobalAdmin(actor) {
		return true
	}
	if r, ok := rt.rooms.Get(room); ok {
		return r.Owner() == actor
	}
	return false
}

// AdminCommand dispatches one moderation command. The target argument names
// the affected username (or carries the announcement text for ANNOUNCE);
// token is the caller's capability token when the hello token did not
// already establish root. Unauthorized attempts change no state and leak no
// privileged data; the caller gets a private rejection notice.
func (rt *Router) AdminCommand(_ context.Context, connID, room, action, target, token string) {
	actor, sessRoom, privileged, ok := rt.registry.Session(connID)
	if !ok {
		return
	}
	if room == "" {
		room = sessRoom
	}
	action = strings.ToUpper(strings.TrimSpace(action))

	root := rt.isRoot(privileged, token)
	roomAdmin := root || rt.isRoomAdmin(actor, room, root)

	deny := func() {
		rt.sendSystem(connID, "not authorized")
		rt.audit("admin_denied", room, actor, target)
		slog.Debug("admin command denied", "action", action, "actor", actor, "room", room)
	}

	switch action {
	case protocol.ActionKick:
		if !roomAdmin {
			deny()
			return
		}
		rt.registry.BroadcastRoom(room, protocol.Message{Type: protocol.TypeKicked, Target: target}, "")
		for _, id := range rt.registry.ConnsInRoom(target, room) {
			rt.registry.Remove(id)
		}

	case protocol.ActionMute:
		if !roomAdmin {
			deny()
			return
		}
		rt.moderation.Mute(room, target)
		rt.registry.BroadcastRoom(room, protocol.Message{Type: protocol.TypeAdminAction, Action: action, Target: target}, "")

	case protocol.ActionUnmute:
		if !roomAdmin {
			deny()
			return
		}
		rt.moderation.Unmute(room, target)
		rt.registry.BroadcastRoom(room, protocol.Message{Type: protocol.TypeAdminAction, Action: action, Target: target}, "")

	case protocol.ActionBan:
		if !root {
			deny()
			return
		}
		rt.moderation.Ban(target)
		if targetRoom, conns, found := rt.registry.Lookup(target); found {
			if targetRoom != "" {
				rt.registry.BroadcastRoom(targetRoom, protocol.Message{Type: protocol.TypeAdminAction, Action: action, Target: target}, "")
			}
			for _, id := range conns {
				rt.registry.Remove(id)
			}
		}

	case protocol.ActionAnnounce:
		if !root {
			deny()
			return
		}
		rt.registry.Broadcast(protocol.Message{Type: protocol.TypeSystem, Text: target})

	case protocol.ActionPromote:
		if !root {
			deny()
			return
		}
		rt.moderation.Promote(target)
		rt.registry.BroadcastRoom(room, protocol.Message{Type: protocol.TypeAdminAction, Action: action, Target: target}, "")

	case protocol.ActionDemote:
		if !root {
			deny()
			return
		}
		rt.moderation.Demote(target)
		rt.registry.BroadcastRoom(room, protocol.Message{Type: protocol.TypeAdminAction, Action: action, Target: target}, "")

	case protocol.ActionWhois:
		if !roomAdmin {
			deny()
			return
		}
		targetRoom, _, _ := rt.registry.Lookup(target)
		rt.registry.SendTo(connID, protocol.Message{
			Type:    protocol.TypeWhois,
			Target:  target,
			Room:    targetRoom,
			IsAdmin: rt.isRoomAdmin(target, targetRoom, false),
		})

	case protocol.ActionPanel:
		if !roomAdmin {
			deny()
			return
		}
		rt.registry.SendTo(connID, protocol.Message{
			Type:    protocol.TypeAdminPanel,
			Entries: rt.panelEntries(rt.registry.RoomMembers(room)),
		})

	case protocol.ActionListAll:
		if !root {
			deny()
			return
		}
		rt.registry.SendTo(connID, protocol.Message{
			Type:    protocol.TypeSuperAdminPanel,
			Entries: rt.panelEntries(rt.registry.AllSessions()),
		})

	default:
		rt.sendError(connID, "unsupported admin action")
		return
	}

	rt.audit("admin_"+strings.ToLower(action), room, actor, target)
}

func (rt *Router) panelEntries(members []Member) []protocol.PanelEntry {
	out := make([]protocol.PanelEntry, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.PanelEntry{
			Username: m.Username,
			Room:     m.Room,
			Admin:    rt.isRoomAdmin(m.Username, m.Room, false),
		})
	}
	return out
}
