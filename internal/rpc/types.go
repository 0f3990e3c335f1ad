package rpc

// Empty is used by calls without parameters or results.
type Empty struct{}

// Account

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	AvatarName  string `json:"avatar_name,omitempty"`
	Avatar      []byte `json:"avatar,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type IdentityResponse struct {
	Identity string   `json:"identity"`
	SignedIn bool     `json:"signed_in"`
	Profile  *Profile `json:"profile,omitempty"`
}

type GetProfileRequest struct {
	// Identity defaults to the signed-in identity.
	Identity string `json:"identity,omitempty"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarName  string `json:"avatar_name,omitempty"`
	Avatar      []byte `json:"avatar,omitempty"`
}

type Profile struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Missing     bool   `json:"missing,omitempty"`
}

// Friends

type FindByContactRequest struct {
	Email string `json:"email"`
}

type AddFriendRequest struct {
	Identity string `json:"identity"`
}

type ListFriendsResponse struct {
	Friends []*Profile `json:"friends"`
}

type SummaryEvent struct {
	Peer         string `json:"peer"`
	DisplayName  string `json:"display_name,omitempty"`
	DisplayText  string `json:"display_text,omitempty"`
	Sender       string `json:"sender,omitempty"`
	CreatedAt    int64  `json:"created_at,omitempty"`
	IsAttachment bool   `json:"is_attachment,omitempty"`
	Removed      bool   `json:"removed,omitempty"`
}

// Chat

type OpenChatRequest struct {
	Peer string `json:"peer"`
}

type SendTextRequest struct {
	Text string `json:"text"`
}

type SendAttachmentRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type HistoryRequest struct {
	// Peer defaults to the open conversation.
	Peer  string `json:"peer,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Messages []*Message `json:"messages"`
}

type Message struct {
	MsgID        string `json:"msg_id"`
	Text         string `json:"text"`
	Sender       string `json:"sender"`
	CreatedAt    int64  `json:"created_at"`
	IsAttachment bool   `json:"is_attachment,omitempty"`
	Mine         bool   `json:"mine,omitempty"`
	Kind         string `json:"kind,omitempty"`
	URL          string `json:"url,omitempty"`
	Pending      bool   `json:"pending,omitempty"`
	Unsupported  bool   `json:"unsupported,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
	// Undelivered marks a sent message whose peer copy is still missing.
	Undelivered bool `json:"undelivered,omitempty"`
}

type FetchAttachmentRequest struct {
	Peer  string `json:"peer,omitempty"`
	MsgID string `json:"msg_id"`
}

type FetchAttachmentResponse struct {
	Ref  string `json:"ref"`
	Data []byte `json:"data"`
}

// Chat event kinds.
const (
	ChatEventMessages = "messages"
	ChatEventNotice   = "notice"
	ChatEventPeer     = "peer"
	ChatEventState    = "state"
)

type ChatEvent struct {
	Kind     string     `json:"kind"`
	State    string     `json:"state,omitempty"`
	Notice   string     `json:"notice,omitempty"`
	Peer     *Profile   `json:"peer,omitempty"`
	Messages []*Message `json:"messages,omitempty"`
}

// Status

type StatusResponse struct {
	Workspace       string `json:"workspace"`
	Status          string `json:"status"`
	Identity        string `json:"identity,omitempty"`
	ChatState       string `json:"chat_state"`
	OpenPeer        string `json:"open_peer,omitempty"`
	UptimeMs        int64  `json:"uptime_ms"`
	EntryCount      int64  `json:"entry_count"`
	PendingReplicas int64  `json:"pending_replicas"`
	FailedReplicas  int64  `json:"failed_replicas"`
	Repair          bool   `json:"repair"`
}
