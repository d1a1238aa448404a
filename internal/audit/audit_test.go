package audit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	gate   chan struct{}
}

func (s *captureSink) Write(e Event) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNotifierDeliversToSink(t *testing.T) {
	sink := &captureSink{}
	n := NewNotifier(sink, 16)

	n.Emit(Event{Kind: "join", Room: "lobby", Actor: "alice"})
	n.Emit(Event{Kind: "send", Room: "lobby", Actor: "alice"})
	n.Close()

	if sink.count() != 2 {
		t.Fatalf("delivered = %d, want 2", sink.count())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.events[0].Kind != "join" || sink.events[1].Kind != "send" {
		t.Fatalf("unexpected order: %#v", sink.events)
	}
	if sink.events[0].At.IsZero() {
		t.Fatal("timestamp not stamped")
	}
}

func TestEmitNeverBlocksWhenQueueFull(t *testing.T) {
	gate := make(chan struct{})
	sink := &captureSink{gate: gate}
	n := NewNotifier(sink, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Emit(Event{Kind: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
	if n.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	close(gate)
	n.Close()
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	n := NewNotifier(sink, 4)

	n.Emit(Event{Kind: "join"})
	n.Emit(Event{Kind: "send"})
	n.Close()

	if sink.count() != 2 {
		t.Fatalf("delivered = %d, want 2 despite sink errors", sink.count())
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Emit(Event{Kind: "join"})
}
