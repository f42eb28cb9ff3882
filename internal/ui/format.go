package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"communitychat/internal/protocol"
)

// FormatTime renders a message timestamp as a localized time of day.
func FormatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("15:04")
}

// FormatMessage renders one chat bubble line. The local user's messages are
// labelled "You" and colored differently so alignment reads at a glance.
func FormatMessage(m protocol.ChatMessage, currentUser string) string {
	sender := m.From
	color := "#5fafff"
	if m.From == currentUser {
		sender = "You"
		color = "#00d7af"
	}
	when := FormatTime(m.Timestamp)
	if when != "" {
		when = " [gray]" + when + "[-]"
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-]%s\n  %s\n", color, sender, when, tview.Escape(m.Body))
}
