package core

import (
	"log/slog"
	"sync"
)

// ModerationStore holds the global ban set, the global admin set, and the
// per-room mute sets. It is only mutated through the router's authorized
// command dispatch; the sole unprivileged read is the mute/ban check on the
// relay path.
type ModerationStore struct {
	mu     sync.RWMutex
	banned map[string]struct{}
	admins map[string]struct{}
	muted  map[string]map[string]struct{} // room → usernames
}

// NewModerationStore returns an empty moderation state.
func NewModerationStore() *ModerationStore {
	return &ModerationStore{
		banned: make(map[string]struct{}),
		admins: make(map[string]struct{}),
		muted:  make(map[string]map[string]struct{}),
	}
}

// Ban adds a username to the global ban set.
func (m *ModerationStore) Ban(user string) {
	m.mu.Lock()
	m.banned[user] = struct{}{}
	m.mu.Unlock()
	slog.Info("user banned", "username", user)
}

// IsBanned reports whether a username is globally banned.
func (m *ModerationStore) IsBanned(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.banned[user]
	return ok
}

// Mute adds a username to a room's mute set.
func (m *ModerationStore) Mute(room, user string) {
	m.mu.Lock()
	set, ok := m.muted[room]
	if !ok {
		set = make(map[string]struct{})
		m.muted[room] = set
	}
	set[user] = struct{}{}
	m.mu.Unlock()
	slog.Info("user muted", "room", room, "username", user)
}

// Unmute removes a username from a room's mute set.
func (m *ModerationStore) Unmute(room, user string) {
	m.mu.Lock()
	if set, ok := m.muted[room]; ok {
		delete(set, user)
	}
	m.mu.Unlock()
	slog.Info("user unmuted", "room", room, "username", user)
}

// IsMuted reports whether a username is muted in a room.
func (m *ModerationStore) IsMuted(room, user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.muted[room]
	if !ok {
		return false
	}
	_, muted := set[user]
	return muted
}

// Promote grants a username room-admin-equivalent authority everywhere.
func (m *ModerationStore) Promote(user string) {
	m.mu.Lock()
	m.admins[user] = struct{}{}
	m.mu.Unlock()
	slog.Info("user promoted", "username", user)
}

// Demote revokes a username's global admin authority.
func (m *ModerationStore) Demote(user string) {
	m.mu.Lock()
	delete(m.admins, user)
	m.mu.Unlock()
	slog.Info("user demoted", "username", user)
}

// IsGlobalAdmin reports whether a username holds global admin authority.
func (m *ModerationStore) IsGlobalAdmin(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[user]
	return ok
}
