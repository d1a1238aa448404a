// Package history provides the bounded per-room message log used to replay
// recent context to newly joined members. Backends share one contract so the
// relay can swap volatile memory for a durable store without changing
// semantics.
package history

import (
	"context"
	"time"
)

// Message is one relayed room message. Payload and IV are opaque ciphertext
// material; the log never parses them.
type Message struct {
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Payload   string    `json:"payload"`
	IV        string    `json:"iv"`
	IsFile    bool      `json:"is_file"`
	Timestamp time.Time `json:"ts"`
}

// Log is the append/replay contract. Append keeps at most the configured
// capacity per room, evicting oldest-first; eviction is the designed
// response to capacity, never an error. Replay returns a snapshot in
// chronological (oldest-first) order; a room with no history yields an
// empty result.
type Log interface {
	Append(ctx context.Context, msg Message) error
	Replay(ctx context.Context, room string) ([]Message, error)
}
