package views

import (
	"strings"
	"testing"

	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/tui/model"
	"github.com/matheus3301/chatter/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "hello", "hello"},
		{"skin tone", "\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"zwj", "a\u200Db", "ab"},
		{"variation selector", "\u2764\uFE0F", "\u2764"},
		{"escape sequence", "x\x1b[31my", "x[31my"},
		{"newline kept", "a\nb", "a\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeForTerminal(tc.in); got != tc.want {
				t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFriendListFilterAndSelection(t *testing.T) {
	fl := NewFriendList(ui.DefaultTheme())
	fl.Update([]model.FriendRow{
		{Identity: "b", Name: "Bob", Preview: "hi", HasMessages: true, LastAt: 2},
		{Identity: "c", Name: "Carol", Email: "carol@example.com"},
	})

	if got := fl.FriendByIndex(2); got != "c" {
		t.Errorf("FriendByIndex(2) = %q, want c", got)
	}

	fl.SetFilter("CAROL@")
	if got := fl.FriendByIndex(1); got != "c" {
		t.Errorf("filtered FriendByIndex(1) = %q, want c", got)
	}
	if got := fl.FriendByIndex(2); got != "" {
		t.Errorf("filtered FriendByIndex(2) = %q, want empty", got)
	}
	if !strings.Contains(fl.GetTitle(), "(1/2)") {
		t.Errorf("title = %q", fl.GetTitle())
	}

	fl.ClearFilter()
	fl.Select(1, 0)
	if got := fl.SelectedFriend(); got != "b" {
		t.Errorf("SelectedFriend() = %q, want b", got)
	}
	if got := fl.NameOf("c"); got != "Carol" {
		t.Errorf("NameOf(c) = %q", got)
	}
}

func TestThreadRendersAttachments(t *testing.T) {
	th := NewThread(ui.DefaultTheme())
	th.SetPeerName("Bob")
	th.Update([]*rpc.Message{
		{MsgID: "1", Text: "hello", Mine: true},
		{MsgID: "2", IsAttachment: true, Kind: "photo", URL: "file:///x.png"},
		{MsgID: "3", IsAttachment: true, Kind: "photo", Pending: true},
		{MsgID: "4", IsAttachment: true, Failed: true},
	})

	text := th.Messages().GetText(true)
	for _, want := range []string{"You", "hello", "Bob", "file:///x.png", "<loading photo>", "<attachment unavailable>"} {
		if !strings.Contains(text, want) {
			t.Errorf("thread text missing %q:\n%s", want, text)
		}
	}
}

func TestRenderQR(t *testing.T) {
	out := renderQR(InvitePrefix + "a@example.com")
	if strings.Contains(out, "failed") {
		t.Fatalf("renderQR failed: %s", out)
	}
	if !strings.ContainsRune(out, '\u2588') {
		t.Error("expected block characters in QR output")
	}
}
