package core

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloak/server/internal/protocol"
)

// Member is the presence view of one connection.
type Member struct {
	ConnID   string
	Username string
	Room     string
}

type session struct {
	username   string
	room       string
	privileged bool
	send       chan protocol.Message
}

// Registry maps live connections to their authenticated username and the
// room they currently occupy, and owns all fan-out. Each connection has a
// buffered send channel drained by its transport writer; a slow or dead
// subscriber never blocks delivery to the rest of a room.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*session
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*session)}
}

// Register records a newly authenticated connection and returns its send
// channel. The connection is not in any room yet.
func (g *Registry) Register(connID, username string, privileged bool, sendBuf int) <-chan protocol.Message {
	if sendBuf <= 0 {
		sendBuf = DefaultSendBuffer
	}
	s := &session{
		username:   username,
		privileged: privileged,
		send:       make(chan protocol.Message, sendBuf),
	}

	g.mu.Lock()
	g.conns[connID] = s
	count := len(g.conns)
	g.mu.Unlock()

	slog.Info("connection registered", "conn_id", connID, "username", username, "total_conns", count)
	return s.send
}

// Join subscribes the connection to a room's broadcast group.
func (g *Registry) Join(connID, room string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.conns[connID]
	if !ok {
		return false
	}
	s.room = room
	return true
}

// ClearRoom vacates the connection's room without tearing the connection
// down, returning the vacated membership once. Used for implicit leaves
// when a connection switches rooms.
func (g *Registry) ClearRoom(connID string) (username, room string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.conns[connID]
	if !exists || s.room == "" {
		return "", "", false
	}
	room = s.room
	s.room = ""
	return s.username, room, true
}

// Remove unregisters a connection and closes its send channel so the
// transport writer exits. Idempotent: removing an unknown connection is a
// no-op, and the vacated membership is reported exactly once.
func (g *Registry) Remove(connID string) (username, room string, ok bool) {
	g.mu.Lock()
	s, exists := g.conns[connID]
	if exists {
		delete(g.conns, connID)
	}
	remaining := len(g.conns)
	g.mu.Unlock()

	if !exists {
		return "", "", false
	}
	close(s.send)
	slog.Info("connection removed", "conn_id", connID, "username", s.username, "room", s.room, "remaining_conns", remaining)
	return s.username, s.room, true
}

// Session returns the username, current room and privilege flag for a
// connection.
func (g *Registry) Session(connID string) (username, room string, privileged, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, exists := g.conns[connID]
	if !exists {
		return "", "", false, false
	}
	return s.username, s.room, s.privileged, true
}

// Lookup returns the room a username currently occupies and all of its
// connection IDs. With multiple connections the first non-empty room wins.
func (g *Registry) Lookup(username string) (room string, connIDs []string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, s := range g.conns {
		if s.username != username {
			continue
		}
		connIDs = append(connIDs, id)
		if room == "" {
			room = s.room
		}
	}
	sort.Strings(connIDs)
	return room, connIDs, len(connIDs) > 0
}

// ConnsInRoom returns the connection IDs a username holds inside one room.
func (g *Registry) ConnsInRoom(username, room string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for id, s := range g.conns {
		if s.username == username && s.room == room {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RoomMembers returns a snapshot of the connections subscribed to a room.
func (g *Registry) RoomMembers(room string) []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Member
	for id, s := range g.conns {
		if s.room == room {
			out = append(out, Member{ConnID: id, Username: s.username, Room: room})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// AllSessions returns a snapshot of every live connection.
func (g *Registry) AllSessions() []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Member, 0, len(g.conns))
	for id, s := range g.conns {
		out = append(out, Member{ConnID: id, Username: s.username, Room: s.room})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// Count returns the number of live connections.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// SendTo delivers one message to one connection.
func (g *Registry) SendTo(connID string, msg protocol.Message) bool {
	g.mu.RLock()
	s, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return trySend(s.send, msg)
}

// BroadcastRoom delivers a message to every connection in a room, skipping
// exceptConn when non-empty.
func (g *Registry) BroadcastRoom(room string, msg protocol.Message, exceptConn string) int {
	g.mu.RLock()
	targets := make([]chan protocol.Message, 0, len(g.conns))
	for id, s := range g.conns {
		if s.room != room {
			continue
		}
		if exceptConn != "" && id == exceptConn {
			continue
		}
		targets = append(targets, s.send)
	}
	g.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if trySend(ch, msg) {
			sent++
		}
	}
	slog.Debug("room broadcast", "type", msg.Type, "room", room, "recipients", sent, "targets", len(targets))
	return sent
}

// Broadcast delivers a message to every live connection.
func (g *Registry) Broadcast(msg protocol.Message) int {
	g.mu.RLock()
	targets := make([]chan protocol.Message, 0, len(g.conns))
	for _, s := range g.conns {
		targets = append(targets, s.send)
	}
	g.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if trySend(ch, msg) {
			sent++
		}
	}
	slog.Debug("global broadcast", "type", msg.Type, "recipients", sent, "targets", len(targets))
	return sent
}

func trySend(ch chan protocol.Message, msg protocol.Message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- msg:
		return true
	case <-time.After(SendTimeout):
		slog.Debug("trySend timeout", "type", msg.Type)
		return false
	}
}
