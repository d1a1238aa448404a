package core

import (
	"sync"
	"testing"
)

func TestEnsureRoomFirstWriterWins(t *testing.T) {
	d := NewRoomDirectory()

	first := d.Ensure("lobby", true)
	second := d.Ensure("lobby", false)

	if first != second {
		t.Fatal("expected one room record for the same name")
	}
	if !second.Protected() {
		t.Fatal("protection flag overwritten by a later joiner")
	}

	rooms := d.Rooms()
	if len(rooms) != 1 || rooms[0].Name != "lobby" || !rooms[0].Protected {
		t.Fatalf("unexpected listing: %#v", rooms)
	}
}

func TestEnsureRoomConcurrentFirstJoins(t *testing.T) {
	d := NewRoomDirectory()

	var wg sync.WaitGroup
	results := make([]*Room, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Ensure("lobby", i%2 == 0)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent Ensure produced distinct rooms")
		}
	}
	if got := len(d.Rooms()); got != 1 {
		t.Fatalf("expected 1 room, got %d", got)
	}
}

func TestClaimOwner(t *testing.T) {
	d := NewRoomDirectory()
	r := d.Ensure("lobby", false)

	if !r.ClaimOwner("alice") {
		t.Fatal("first claim should win")
	}
	if r.ClaimOwner("bob") {
		t.Fatal("second claim should not displace the owner")
	}
	if r.Owner() != "alice" {
		t.Fatalf("owner = %q, want alice", r.Owner())
	}
}

func TestRoomsSnapshotOrdered(t *testing.T) {
	d := NewRoomDirectory()
	d.Ensure("zeta", false)
	d.Ensure("alpha", true)
	d.Ensure("mid", false)

	rooms := d.Rooms()
	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	if rooms[0].Name != "alpha" || rooms[1].Name != "mid" || rooms[2].Name != "zeta" {
		t.Fatalf("unexpected order: %#v", rooms)
	}
}
