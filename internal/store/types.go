package store

// Account is an auth record. Identity is the opaque user handle.
type Account struct {
	Identity     string
	Email        string
	PasswordHash []byte
	CreatedAt    int64
}

// Profile is the public document of an identity.
type Profile struct {
	Identity    string
	DisplayName string
	Email       string
	AvatarRef   string
	UpdatedAt   int64
}

// Entry is one copy of a message, stored in the log owned by Owner for the
// conversation with Partner.
type Entry struct {
	Seq          int64
	Owner        string
	Partner      string
	MsgID        string
	Sender       string
	Text         string
	IsAttachment bool
	CreatedAt    int64
}

// Replica statuses.
const (
	ReplicaQueued = "queued"
	ReplicaDone   = "done"
	ReplicaFailed = "failed"
)

// Replica is an outbox intent: both copies of MsgID must exist.
type Replica struct {
	MsgID        string
	Sender       string
	Peer         string
	Text         string
	IsAttachment bool
	CreatedAt    int64
	Status       string
	Attempts     int
	ErrorMessage string
}

// Copies returns the two log entries a replica stands for: the sender's
// copy first, then the peer's.
func (r *Replica) Copies() [2]Entry {
	base := Entry{
		MsgID:        r.MsgID,
		Sender:       r.Sender,
		Text:         r.Text,
		IsAttachment: r.IsAttachment,
		CreatedAt:    r.CreatedAt,
	}
	own, peer := base, base
	own.Owner, own.Partner = r.Sender, r.Peer
	peer.Owner, peer.Partner = r.Peer, r.Sender
	return [2]Entry{own, peer}
}
