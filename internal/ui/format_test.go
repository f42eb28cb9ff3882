package ui

import (
	"strings"
	"testing"
	"time"

	"communitychat/internal/protocol"
)

func TestFormatMessageSenderRelative(t *testing.T) {
	ts := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

	own := FormatMessage(protocol.ChatMessage{From: "alice", To: "bob", Body: "hello", Timestamp: ts}, "alice")
	if !strings.Contains(own, "You") {
		t.Errorf("own message not labelled: %q", own)
	}
	if !strings.Contains(own, "hello") {
		t.Errorf("body missing: %q", own)
	}

	theirs := FormatMessage(protocol.ChatMessage{From: "bob", To: "alice", Body: "hi", Timestamp: ts}, "alice")
	if !strings.Contains(theirs, "bob") {
		t.Errorf("sender missing: %q", theirs)
	}
	if strings.Contains(theirs, "You") {
		t.Errorf("peer message labelled as own: %q", theirs)
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "" {
		t.Errorf("zero time should render empty, got %q", got)
	}
	ts := time.Date(2025, 3, 1, 14, 5, 0, 0, time.Local)
	if got := FormatTime(ts); got != "14:05" {
		t.Errorf("got %q, want 14:05", got)
	}
}
