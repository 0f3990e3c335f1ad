package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts render in their own color
}

// Component is a page the app can push: a primitive that names itself for
// the breadcrumbs and lists its own shortcuts.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
}
