package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryLogBoundAndOrder(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(3)

	for i := 0; i < 5; i++ {
		err := l.Append(ctx, Message{
			Room:      "lobby",
			Sender:    "alice",
			Payload:   fmt.Sprintf("m%d", i),
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := l.Replay(ctx, "lobby")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("m%d", i+2); m.Payload != want {
			t.Fatalf("msgs[%d] = %q, want %q", i, m.Payload, want)
		}
	}
}

func TestMemoryLogEmptyRoomReplay(t *testing.T) {
	l := NewMemoryLog(50)
	msgs, err := l.Replay(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty replay, got %d messages", len(msgs))
	}
}

func TestMemoryLogReplayIsSnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(10)
	_ = l.Append(ctx, Message{Room: "lobby", Payload: "first"})

	msgs, _ := l.Replay(ctx, "lobby")
	_ = l.Append(ctx, Message{Room: "lobby", Payload: "second"})

	if len(msgs) != 1 || msgs[0].Payload != "first" {
		t.Fatalf("snapshot mutated by later append: %#v", msgs)
	}
}

func TestMemoryLogConcurrentRooms(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(100)

	var wg sync.WaitGroup
	for _, room := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(room string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = l.Append(ctx, Message{Room: room, Payload: fmt.Sprintf("%s-%d", room, i)})
			}
		}(room)
	}
	wg.Wait()

	for _, room := range []string{"a", "b", "c", "d"} {
		msgs, err := l.Replay(ctx, room)
		if err != nil {
			t.Fatalf("replay %s: %v", room, err)
		}
		if len(msgs) != 100 {
			t.Fatalf("room %s length = %d, want 100", room, len(msgs))
		}
		if last := msgs[len(msgs)-1].Payload; last != room+"-199" {
			t.Fatalf("room %s newest = %q", room, last)
		}
	}
}
