package views

import (
	"fmt"

	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/rivo/tview"
)

// PeerInfo displays the profile of the open conversation's peer.
type PeerInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPeerInfo creates a new peer details view.
func NewPeerInfo(theme *ui.Theme) *PeerInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &PeerInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (pi *PeerInfo) Name() string { return "Details" }

// Hints implements Component.
func (pi *PeerInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders the peer's profile and message count.
func (pi *PeerInfo) Update(p *rpc.Profile, messages int) {
	pi.Clear()
	if p == nil {
		return
	}

	fg := ui.ColorTag(pi.theme.FgColor)
	ct := ui.ColorTag(pi.theme.CounterColor)

	email, avatar := p.Email, p.AvatarURL
	if email == "" {
		email = "-"
	}
	if avatar == "" {
		avatar = "-"
	}
	if p.Missing {
		email = "(profile unavailable)"
	}

	_, _ = fmt.Fprintf(pi,
		"\n [%s::b]Name:[-:-:-]     [%s]%s[-]\n"+
			" [%s::b]Identity:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Email:[-:-:-]    [%s]%s[-]\n"+
			" [%s::b]Avatar:[-:-:-]   [%s]%s[-]\n"+
			" [%s::b]Messages:[-:-:-] [%s]%d[-]",
		fg, ct, tview.Escape(p.DisplayName),
		fg, ct, p.Identity,
		fg, ct, tview.Escape(email),
		fg, ct, tview.Escape(avatar),
		fg, ct, messages,
	)
	pi.SetTitle(fmt.Sprintf(" %s ", tview.Escape(p.DisplayName)))
}
