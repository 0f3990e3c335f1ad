package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// InvitePrefix starts the payload of an invite QR code.
const InvitePrefix = "chatter:add?email="

// InviteView shows a QR code that friends scan to find the signed-in user.
type InviteView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewInviteView creates a new invite view.
func NewInviteView(theme *ui.Theme) *InviteView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Invite ")
	tv.SetTitleColor(theme.TitleColor)

	return &InviteView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (iv *InviteView) Name() string { return "Invite" }

// Hints implements Component.
func (iv *InviteView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders the invite QR code for email.
func (iv *InviteView) Show(name, email string) {
	iv.Clear()
	ascii := renderQR(InvitePrefix + email)
	_, _ = fmt.Fprintf(iv, "\n  Scan to add %s:\n\n%s\n  [::d]%s[-:-:-]",
		tview.Escape(name), ascii, tview.Escape(email))
}

// renderQR converts a string to a compact ASCII QR code using Unicode
// half-block characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('\u2588') // █
			case top:
				sb.WriteRune('\u2580') // ▀
			case bot:
				sb.WriteRune('\u2584') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
