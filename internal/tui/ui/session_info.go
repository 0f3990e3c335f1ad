package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds daemon and identity information for display.
type SessionData struct {
	Workspace string
	Name      string
	Email     string
	Status    string
	Chat      string
	Friends   int
	Pending   int64
	Uptime    time.Duration
}

// SessionInfo displays identity and daemon metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := colorName(si.theme.FgColor)
	ct := colorName(si.theme.CounterColor)

	who := data.Name
	if who == "" {
		who = "-"
	} else if data.Email != "" {
		who = fmt.Sprintf("%s <%s>", data.Name, data.Email)
	}
	chat := data.Chat
	if chat == "" {
		chat = "-"
	}

	rows := []struct{ label, value string }{
		{"Workspace:", data.Workspace},
		{"User:", who},
		{"Status:", data.Status},
		{"Chat:", chat},
		{"Friends:", fmt.Sprint(data.Friends)},
		{"Pending:", fmt.Sprint(data.Pending)},
		{"Uptime:", formatDuration(data.Uptime)},
	}
	for i, r := range rows {
		if i > 0 {
			_, _ = fmt.Fprint(si, "\n")
		}
		_, _ = fmt.Fprintf(si, "[%s::b]%-10s[-:-:-] [%s]%s[-]", fg, r.label, ct, tview.Escape(r.value))
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
