package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is the number of hints per column; it matches the header height.
const menuRows = 6

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint panel.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints top to bottom, then left to right. Duplicate keys keep
// the first description.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	seen := make(map[string]bool, len(hints))
	var cells []string
	for _, h := range hints {
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		color := colorName(m.theme.MenuKeyColor)
		if h.Numeric {
			color = colorName(m.theme.NumericKeyColor)
		}
		label := fmt.Sprintf("<%s>", h.Key)
		cells = append(cells, fmt.Sprintf("[%s::b]%-8s[-:-:-] %-14s", color, tview.Escape(label), h.Description))
	}

	var sb strings.Builder
	for row := 0; row < menuRows && row < len(cells); row++ {
		for i := row; i < len(cells); i += menuRows {
			sb.WriteString(cells[i])
		}
		sb.WriteByte('\n')
	}
	_, _ = fmt.Fprint(m, sb.String())
}
