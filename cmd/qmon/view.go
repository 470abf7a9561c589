package main

import (
	"fmt"
	"strings"
	"time"
)

// view renders a model to a plain text buffer, one screen's worth of
// rows joined by newlines. The App is responsible for blitting it onto
// the tcell screen.
type view struct{}

func newView() *view {
	return &view{}
}

func (v *view) Render(m *model) string {
	var b strings.Builder

	fmt.Fprintf(&b, " qmon — light client status\n\n")

	if !m.Connected {
		fmt.Fprintf(&b, " daemon: disconnected\n")
		if m.ErrorMessage != "" {
			fmt.Fprintf(&b, " error: %s\n", m.ErrorMessage)
		}
		fmt.Fprintf(&b, "\n press 'q' to quit, 'r' to refresh\n")
		return b.String()
	}

	fmt.Fprintf(&b, " sync level: %d\n", m.Status.SyncLevel)
	fmt.Fprintf(&b, " outbox size: %d\n", m.Status.OutboxSize)
	fmt.Fprintf(&b, " last refresh: %s\n\n", m.LastRefresh.Format(time.Kitchen))

	fmt.Fprintf(&b, " peers (%d):\n", m.Status.PeerCount)
	for _, p := range m.Status.Peers {
		fmt.Fprintf(&b, "   %-40s %s\n", p.Endpoint, p.State)
	}

	if m.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n error: %s\n", m.ErrorMessage)
	}

	fmt.Fprintf(&b, "\n press 'q' to quit, 'r' to refresh\n")
	return b.String()
}
