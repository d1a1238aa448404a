package history

import (
	"context"
	"sync"
)

// MemoryLog is the volatile in-process backend: a bounded slice per room
// guarded by a per-room mutex, so appends to unrelated rooms never contend.
type MemoryLog struct {
	capacity int

	mu    sync.RWMutex
	rooms map[string]*roomLog
}

type roomLog struct {
	mu   sync.Mutex
	msgs []Message
}

// NewMemoryLog returns an in-memory log retaining up to capacity messages
// per room.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 50
	}
	return &MemoryLog{
		capacity: capacity,
		rooms:    make(map[string]*roomLog),
	}
}

func (l *MemoryLog) room(name string) *roomLog {
	l.mu.RLock()
	r, ok := l.rooms[name]
	l.mu.RUnlock()
	if ok {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rooms[name]; ok {
		return r
	}
	r = &roomLog{}
	l.rooms[name] = r
	return r
}

// Append pushes msg to the tail of its room's log, evicting from the head
// once the room is at capacity.
func (l *MemoryLog) Append(_ context.Context, msg Message) error {
	r := l.room(msg.Room)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, msg)
	if len(r.msgs) > l.capacity {
		overflow := len(r.msgs) - l.capacity
		r.msgs = append(r.msgs[:0], r.msgs[overflow:]...)
	}
	return nil
}

// Replay returns a copied snapshot of a room's log, oldest first.
func (l *MemoryLog) Replay(_ context.Context, room string) ([]Message, error) {
	l.mu.RLock()
	r, ok := l.rooms[room]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out, nil
}
