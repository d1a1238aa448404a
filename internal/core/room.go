package core

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Room is one named broadcast group. The protection flag is fixed at
// creation; the owner is claimed by the first joiner and only reassigned
// through moderation commands.
type Room struct {
	name      string
	protected bool

	mu    sync.Mutex
	owner string

	// seqMu serializes the append-then-broadcast step so that fan-out
	// order within this room matches history order. Unrelated rooms
	// never contend on it.
	seqMu sync.Mutex
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

// Protected reports the protection flag declared by the room's creator.
func (r *Room) Protected() bool { return r.protected }

// Owner returns the room's current owner, or "" if unclaimed.
func (r *Room) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// ClaimOwner sets the owner if the room has none yet and reports whether
// user is the owner afterwards.
func (r *Room) ClaimOwner(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == "" {
		r.owner = user
	}
	return r.owner == user
}

// Sequenced runs fn while holding the room's ordering lock.
func (r *Room) Sequenced(fn func()) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	fn()
}

// RoomInfo is the listing view of a room.
type RoomInfo struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// RoomDirectory maps room names to rooms. Creation is an idempotent,
// first-writer-wins upsert; rooms persist for the process lifetime.
type RoomDirectory struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRoomDirectory returns an empty directory.
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{rooms: make(map[string]*Room)}
}

// Ensure returns the room named name, creating it with the given protection
// flag if absent. An existing room's flag is never overwritten by a later
// joiner's claim.
func (d *RoomDirectory) Ensure(name string, protected bool) *Room {
	name = strings.TrimSpace(name)

	d.mu.RLock()
	room, ok := d.rooms[name]
	d.mu.RUnlock()
	if ok {
		return room
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[name]; ok {
		return room
	}
	room = &Room{name: name, protected: protected}
	d.rooms[name] = room
	slog.Info("room created", "room", name, "protected", protected)
	return room
}

// Get returns an existing room without creating one.
func (d *RoomDirectory) Get(name string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[name]
	return room, ok
}

// Rooms returns a name-ordered snapshot of all rooms.
func (d *RoomDirectory) Rooms() []RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]RoomInfo, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, RoomInfo{Name: r.name, Protected: r.protected})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
