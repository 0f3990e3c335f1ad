package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/rivo/tview"
)

// Thread displays the open conversation and a composer.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	peerName string
	onSend   func(text string)
}

// NewThread creates a new conversation view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, :attach <file>) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || t.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		t.onSend(text)
		composer.SetText("")
	})

	return t
}

// Name implements Component.
func (t *Thread) Name() string {
	if t.peerName != "" {
		return t.peerName
	}
	return "Messages"
}

// Hints implements Component.
func (t *Thread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetPeerName updates the peer name and title.
func (t *Thread) SetPeerName(name string) {
	t.peerName = name
	t.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
}

// SetOnSend sets the callback when text is submitted.
func (t *Thread) SetOnSend(fn func(text string)) {
	t.onSend = fn
}

// Update re-renders the conversation. Items arrive oldest first.
func (t *Thread) Update(items []*rpc.Message) {
	t.messages.Clear()
	for _, m := range items {
		_, _ = fmt.Fprint(t.messages, t.renderLine(m))
	}
	t.messages.ScrollToEnd()
}

func (t *Thread) renderLine(m *rpc.Message) string {
	sender, color := t.peerName, t.theme.PeerColor
	if m.Mine {
		sender, color = "You", t.theme.MineColor
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
		ui.ColorTag(color), tview.Escape(sanitizeForTerminal(sender)), formatTimestamp(m.CreatedAt),
		t.renderBody(m))
}

func (t *Thread) renderBody(m *rpc.Message) string {
	if !m.IsAttachment {
		return tview.Escape(sanitizeForTerminal(m.Text))
	}
	dim := ui.ColorTag(t.theme.PendingColor)
	switch {
	case m.Failed:
		return fmt.Sprintf("[%s]<attachment unavailable>[-]", dim)
	case m.Pending:
		return fmt.Sprintf("[%s]<loading %s>[-]", dim, m.Kind)
	case m.Unsupported:
		return fmt.Sprintf("[%s]<unsupported attachment>[-] %s", dim, tview.Escape(m.URL))
	default:
		return fmt.Sprintf("[::u]%s[::-] %s", m.Kind, tview.Escape(m.URL))
	}
}

// Messages returns the messages text view (for focus management).
func (t *Thread) Messages() *tview.TextView {
	return t.messages
}

// Composer returns the composer input field (for focus management).
func (t *Thread) Composer() *tview.InputField {
	return t.composer
}
