package api

import (
	"github.com/matheus3301/chatter/internal/attachment"
	"github.com/matheus3301/chatter/internal/chat"
	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/rpc"
	"github.com/matheus3301/chatter/internal/summary"
)

func profileToRPC(p profile.Profile, avatarURL string) *rpc.Profile {
	return &rpc.Profile{
		Identity:    p.Identity,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		AvatarRef:   p.AvatarRef,
		AvatarURL:   avatarURL,
	}
}

func itemToRPC(it chat.Item) *rpc.Message {
	m := &rpc.Message{
		MsgID:        it.MsgID,
		Text:         it.Text,
		Sender:       it.Sender,
		CreatedAt:    it.CreatedAt,
		IsAttachment: it.IsAttachment,
		Mine:         it.Mine,
		URL:          it.URL,
		Pending:      it.Pending,
		Unsupported:  it.Unsupported,
		Failed:       it.Failed,
	}
	if it.IsAttachment {
		m.Kind = it.Kind.String()
	}
	return m
}

func itemsToRPC(items []chat.Item) []*rpc.Message {
	out := make([]*rpc.Message, len(items))
	for i, it := range items {
		out[i] = itemToRPC(it)
	}
	return out
}

// historyMessage renders a log entry outside of an open session. Attachment
// URLs are filled from the resolver cache only.
func historyMessage(m convlog.Message, viewer string, cached func(string) (string, bool)) *rpc.Message {
	out := &rpc.Message{
		MsgID:        m.MsgID,
		Text:         m.Text,
		Sender:       m.Sender,
		CreatedAt:    m.CreatedAt,
		IsAttachment: m.IsAttachment,
		Mine:         m.Sender == viewer,
	}
	if m.IsAttachment {
		kind := attachment.Classify(m.Text)
		out.Kind = kind.String()
		out.Unsupported = kind == attachment.KindUnknown
		if !out.Unsupported {
			out.URL, _ = cached(m.Text)
		}
	}
	return out
}

func headerToRPC(h chat.PeerHeader) *rpc.Profile {
	return &rpc.Profile{
		Identity:    h.Identity,
		DisplayName: h.DisplayName,
		AvatarRef:   h.AvatarRef,
		Missing:     h.Missing,
	}
}

func chatEventToRPC(evt chat.Event) *rpc.ChatEvent {
	out := &rpc.ChatEvent{Kind: string(evt.Kind)}
	switch evt.Kind {
	case chat.EventMessages:
		out.Messages = itemsToRPC(evt.Items)
	case chat.EventNotice:
		out.Notice = evt.Notice
	case chat.EventPeer:
		out.Peer = headerToRPC(evt.Peer)
	case chat.EventState:
		out.State = string(evt.State)
	}
	return out
}

func summaryToRPC(c summary.Change, displayName string) *rpc.SummaryEvent {
	if c.Removed {
		return &rpc.SummaryEvent{Peer: c.Peer, Removed: true}
	}
	return &rpc.SummaryEvent{
		Peer:         c.Peer,
		DisplayName:  displayName,
		DisplayText:  c.Summary.DisplayText,
		Sender:       c.Summary.Sender,
		CreatedAt:    c.Summary.CreatedAt,
		IsAttachment: c.Summary.IsAttachment,
	}
}
