package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatter/internal/tui/model"
	"github.com/matheus3301/chatter/internal/tui/ui"
	"github.com/rivo/tview"
)

// FriendList is the main view: friends with the last message of each conversation.
type FriendList struct {
	*tview.Table
	theme   *ui.Theme
	rows    []model.FriendRow
	visible []model.FriendRow
	self    string
	filter  string
}

// NewFriendList creates a new friend list table.
func NewFriendList(theme *ui.Theme) *FriendList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Friends ")
	table.SetTitleColor(theme.TitleColor)

	return &FriendList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (fl *FriendList) Name() string { return "Friends" }

// Hints implements Component.
func (fl *FriendList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "a", Description: "Add friend"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// SetSelf sets the signed-in identity so the list can mark incoming messages.
func (fl *FriendList) SetSelf(identity string) {
	fl.self = identity
}

// Update refreshes the list with new rows.
func (fl *FriendList) Update(rows []model.FriendRow) {
	selected := fl.SelectedFriend()
	fl.rows = rows
	fl.render()
	for i, r := range fl.visible {
		if r.Identity == selected {
			fl.Select(i+1, 0)
			break
		}
	}
}

// SetFilter sets the active filter text and re-renders.
func (fl *FriendList) SetFilter(filter string) {
	fl.filter = filter
	fl.render()
}

// ClearFilter clears the active filter.
func (fl *FriendList) ClearFilter() {
	fl.filter = ""
	fl.render()
}

func (fl *FriendList) matches(r model.FriendRow) bool {
	if fl.filter == "" {
		return true
	}
	f := strings.ToLower(fl.filter)
	return strings.Contains(strings.ToLower(r.Name), f) ||
		strings.Contains(strings.ToLower(r.Email), f) ||
		strings.Contains(strings.ToLower(r.Preview), f)
}

func (fl *FriendList) render() {
	fl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(fl.theme.TableHeaderFg).
			SetBackgroundColor(fl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		fl.SetCell(0, col, cell)
	}

	fl.visible = fl.visible[:0]
	for _, r := range fl.rows {
		if !fl.matches(r) {
			continue
		}
		fl.visible = append(fl.visible, r)
		row := len(fl.visible)

		preview := r.Preview
		color := fl.theme.FgColor
		switch {
		case !r.HasMessages:
			preview = "-"
		case r.Sender == fl.self:
			preview = "You: " + preview
		default:
			color = fl.theme.UnreadColor
		}

		fl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.Name))).SetExpansion(1).SetTextColor(fl.theme.FgColor))
		fl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview))).SetExpansion(2).SetTextColor(color))
		fl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(r.LastAt)).SetExpansion(0).SetTextColor(fl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if fl.filter != "" {
		fl.SetTitle(fmt.Sprintf(" Friends (%d/%d) filter: %s ", len(fl.visible), len(fl.rows), fl.filter))
	} else {
		fl.SetTitle(fmt.Sprintf(" Friends (%d) ", len(fl.rows)))
	}
}

// SelectedFriend returns the identity of the selected row, or empty.
func (fl *FriendList) SelectedFriend() string {
	row, _ := fl.GetSelection()
	idx := row - 1 // account for header
	if idx < 0 || idx >= len(fl.visible) {
		return ""
	}
	return fl.visible[idx].Identity
}

// FriendByIndex returns the identity of the Nth visible friend (1-based).
func (fl *FriendList) FriendByIndex(n int) string {
	if n < 1 || n > len(fl.visible) {
		return ""
	}
	return fl.visible[n-1].Identity
}

// NameOf returns the display name of a listed friend.
func (fl *FriendList) NameOf(identity string) string {
	for _, r := range fl.rows {
		if r.Identity == identity {
			return r.Name
		}
	}
	return identity
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
