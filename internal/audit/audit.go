// Package audit forwards relay events to an external sink on a best-effort
// basis. Emit never blocks and never fails the relay path: when the queue is
// full the event is dropped and counted.
package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one auditable relay action.
type Event struct {
	Kind   string
	Room   string
	Actor  string
	Target string
	At     time.Time
}

// Sink receives audit events. Errors are swallowed by the notifier.
type Sink interface {
	Write(Event) error
}

// SlogSink logs events through slog.
type SlogSink struct{}

func (SlogSink) Write(e Event) error {
	slog.Info("audit", "kind", e.Kind, "room", e.Room, "actor", e.Actor, "target", e.Target)
	return nil
}

// Notifier is the non-blocking dispatch queue in front of a sink.
type Notifier struct {
	ch      chan Event
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewNotifier starts a notifier with the given queue size draining into sink.
func NewNotifier(sink Sink, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	n := &Notifier{
		ch:   make(chan Event, queueSize),
		done: make(chan struct{}),
	}
	go n.run(sink)
	return n
}

func (n *Notifier) run(sink Sink) {
	defer close(n.done)
	for e := range n.ch {
		if err := sink.Write(e); err != nil {
			slog.Debug("audit sink write failed", "kind", e.Kind, "err", err)
		}
	}
}

// Emit queues an event without blocking. A full queue drops the event.
func (n *Notifier) Emit(e Event) {
	if n == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case n.ch <- e:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded due to a full queue.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Close stops the worker after draining queued events.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.ch)
	})
	<-n.done
}
