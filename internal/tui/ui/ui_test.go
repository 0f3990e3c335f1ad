package ui

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFlashErrShowsStatusMessage(t *testing.T) {
	f := NewFlashModel()
	f.Err(status.Error(codes.NotFound, "no user with that email"))
	if got := f.Get(); got != "no user with that email" {
		t.Errorf("Get() = %q", got)
	}

	f.Err(errors.New("plain"))
	msg := f.GetMessage()
	if msg == nil || msg.Text != "plain" || msg.Level != FlashErr {
		t.Errorf("GetMessage() = %+v", msg)
	}

	select {
	case m := <-f.Watch():
		if m.Level != FlashErr {
			t.Errorf("watched level = %v", m.Level)
		}
	default:
		t.Error("expected watched flash")
	}
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"friends", "thread", "help"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("friends")
	p.Push("thread")
	p.Push("help")
	if p.Current() != "help" || p.Depth() != 3 {
		t.Fatalf("current = %s depth = %d", p.Current(), p.Depth())
	}
	if got := p.Pop(); got != "help" {
		t.Errorf("Pop() = %s, want help", got)
	}
	if !slices.Equal(p.Stack(), []string{"friends", "thread"}) {
		t.Errorf("stack = %v", p.Stack())
	}
	if len(seen) != 4 {
		t.Errorf("onChange calls = %d, want 4", len(seen))
	}

	p.Pop()
	p.Pop()
	if p.Pop() != "" {
		t.Error("Pop() on empty stack should return empty")
	}
}

func TestPromptModes(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptFilter)
	if p.Mode() != PromptFilter || p.GetLabel() != "/" {
		t.Errorf("filter mode label = %q", p.GetLabel())
	}
	p.Activate(PromptCommand)
	if p.Mode() != PromptCommand || p.GetLabel() != ":" {
		t.Errorf("command mode label = %q", p.GetLabel())
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var submitted []string
	p.SetOnSubmit(func(_ PromptMode, text string) { submitted = append(submitted, text) })

	p.Activate(PromptCommand)
	p.submit("  add bob@example.com ")
	p.Activate(PromptCommand)
	p.submit("invite")
	p.Activate(PromptCommand)
	p.submit("   ")

	if !slices.Equal(submitted, []string{"add bob@example.com", "invite"}) {
		t.Fatalf("submitted = %v", submitted)
	}

	p.Activate(PromptCommand)
	p.recall(-1)
	if p.GetText() != "invite" {
		t.Errorf("recall -1 = %q, want invite", p.GetText())
	}
	p.recall(-1)
	p.recall(-1)
	if p.GetText() != "add bob@example.com" {
		t.Errorf("recall past start = %q", p.GetText())
	}
	p.recall(1)
	p.recall(1)
	if p.GetText() != "" {
		t.Errorf("recall past end = %q, want empty", p.GetText())
	}

	p.Activate(PromptFilter)
	p.submit("bob")
	if len(p.History()) != 2 {
		t.Errorf("filters should not enter history: %v", p.History())
	}
}

func TestMenuDedupesKeys(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Update([]MenuHint{{Key: "q", Description: "Back"}, {Key: "q", Description: "Quit"}, {Key: "1-9", Description: "Jump", Numeric: true}})
	text := m.GetText(true)
	if !strings.Contains(text, "Back") || strings.Contains(text, "Quit") {
		t.Errorf("menu text = %q", text)
	}
}
