package chat

import (
	"github.com/matheus3301/chatter/internal/attachment"
	"github.com/matheus3301/chatter/internal/convlog"
)

// Item is one rendered message of the open conversation.
type Item struct {
	convlog.Message
	Mine bool
	// Kind, URL, Pending and Unsupported only apply to attachments.
	Kind        attachment.Kind
	URL         string
	Pending     bool
	Unsupported bool
	Failed      bool
}

// PeerHeader describes the other side of the open conversation.
type PeerHeader struct {
	Identity    string
	DisplayName string
	AvatarRef   string
	// Missing is set when the peer has no profile document.
	Missing bool
}

// EventKind distinguishes session events.
type EventKind string

const (
	EventMessages EventKind = "messages"
	EventNotice   EventKind = "notice"
	EventPeer     EventKind = "peer"
	EventState    EventKind = "state"
)

// Event is delivered to session watchers. Messages events carry the full
// rendered list, so a watcher that missed one catches up on the next.
type Event struct {
	Kind   EventKind
	Peer   PeerHeader
	Items  []Item
	Notice string
	State  State
}

func newItem(m convlog.Message, viewer string) Item {
	it := Item{Message: m, Mine: m.Sender == viewer}
	if !m.IsAttachment {
		return it
	}
	it.Kind = attachment.Classify(m.Text)
	if it.Kind == attachment.KindUnknown {
		it.Unsupported = true
	} else {
		it.Pending = true
	}
	return it
}
