package chatclient

import (
	"testing"
	"time"

	"communitychat/internal/protocol"
)

func TestStoreKeepsInsertionOrder(t *testing.T) {
	s := NewStore()

	// Deliberately out-of-timestamp order: the store must not re-sort.
	t2 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t2.Add(-time.Hour)
	s.Load([]protocol.ChatMessage{
		{From: "bob", To: "alice", Body: "second", Timestamp: t2},
		{From: "bob", To: "alice", Body: "first", Timestamp: t1},
	})
	s.Append(protocol.ChatMessage{From: "alice", To: "bob", Body: "third", Timestamp: t2.Add(time.Hour)})

	got := s.All()
	want := []string{"second", "first", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, body := range want {
		if got[i].Body != body {
			t.Errorf("position %d: got %q, want %q", i, got[i].Body, body)
		}
	}
}

func TestStoreLoadReplaces(t *testing.T) {
	s := NewStore()
	s.Append(protocol.ChatMessage{Body: "stale"})
	s.Load([]protocol.ChatMessage{{Body: "fresh"}})

	if s.Len() != 1 {
		t.Fatalf("got %d messages, want 1", s.Len())
	}
	if s.All()[0].Body != "fresh" {
		t.Errorf("got %q, want %q", s.All()[0].Body, "fresh")
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Append(protocol.ChatMessage{Body: "x"})

	snapshot := s.All()
	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("store not empty after Clear: %d", s.Len())
	}
	// A snapshot taken before Clear stays valid.
	if len(snapshot) != 1 || snapshot[0].Body != "x" {
		t.Errorf("snapshot mutated by Clear")
	}
	// Clearing twice is harmless.
	s.Clear()
}

func TestStoreLoadCopiesInput(t *testing.T) {
	s := NewStore()
	history := []protocol.ChatMessage{{Body: "a"}}
	s.Load(history)
	history[0].Body = "mutated"

	if s.All()[0].Body != "a" {
		t.Errorf("store aliases the caller's slice")
	}
}
