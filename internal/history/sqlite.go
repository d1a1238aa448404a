package history

import (
	"context"
	"time"

	"cloak/server/internal/store"
)

// SQLiteLog is the durable backend: messages survive process restarts while
// keeping the same bounded replay semantics as the in-memory log.
type SQLiteLog struct {
	store    *store.Store
	capacity int
}

// NewSQLiteLog wraps an open store as a history backend retaining up to
// capacity messages per room.
func NewSQLiteLog(st *store.Store, capacity int) *SQLiteLog {
	if capacity <= 0 {
		capacity = 50
	}
	return &SQLiteLog{store: st, capacity: capacity}
}

func (l *SQLiteLog) Append(ctx context.Context, msg Message) error {
	_, err := l.store.InsertMessage(ctx, store.MessageRow{
		Room:    msg.Room,
		Sender:  msg.Sender,
		Payload: msg.Payload,
		IV:      msg.IV,
		IsFile:  msg.IsFile,
		TS:      msg.Timestamp.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return l.store.PruneMessages(ctx, msg.Room, l.capacity)
}

func (l *SQLiteLog) Replay(ctx context.Context, room string) ([]Message, error) {
	rows, err := l.store.RecentMessages(ctx, room, l.capacity)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, Message{
			Room:      r.Room,
			Sender:    r.Sender,
			Payload:   r.Payload,
			IV:        r.IV,
			IsFile:    r.IsFile,
			Timestamp: time.UnixMilli(r.TS).UTC(),
		})
	}
	return out, nil
}
