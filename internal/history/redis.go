package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLog keeps each room's history in a Redis list, trimmed to capacity
// on every append so the bound holds structurally on the server side.
type RedisLog struct {
	client   *redis.Client
	prefix   string
	capacity int
}

// NewRedisLog wraps a Redis client as a history backend. Keys are
// "<prefix><room>".
func NewRedisLog(client *redis.Client, prefix string, capacity int) *RedisLog {
	if prefix == "" {
		prefix = "history:"
	}
	if capacity <= 0 {
		capacity = 50
	}
	return &RedisLog{client: client, prefix: prefix, capacity: capacity}
}

func (l *RedisLog) key(room string) string {
	return l.prefix + room
}

func (l *RedisLog) Append(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := l.key(msg.Room)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-l.capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (l *RedisLog) Replay(ctx context.Context, room string) ([]Message, error) {
	items, err := l.client.LRange(ctx, l.key(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("replay history: %w", err)
	}

	out := make([]Message, 0, len(items))
	for _, item := range items {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
