package protocol

// Inbound message types delivered by the transport.
const (
	TypeHello       = "hello"
	TypeJoinRoom    = "join_room"
	TypeSendMessage = "send_message"
	TypeSeen        = "seen"
	TypeTyping      = "typing"
	TypeAdmin       = "admin"
	TypePing        = "ping"
)

// Outbound event types fanned out to subscribed connections.
const (
	TypeMessage         = "message"
	TypeSystem          = "system"
	TypeAdminAction     = "admin_action"
	TypeWhois           = "whois"
	TypeAdminPanel      = "admin_panel"
	TypeSuperAdminPanel = "super_admin_panel"
	TypeKicked          = "kicked"
	TypePong            = "pong"
	TypeError           = "error"
)

// Admin command actions accepted on TypeAdmin messages.
const (
	ActionKick     = "KICK"
	ActionMute     = "MUTE"
	ActionUnmute   = "UNMUTE"
	ActionBan      = "BAN"
	ActionAnnounce = "ANNOUNCE"
	ActionPromote  = "PROMOTE"
	ActionDemote   = "DEMOTE"
	ActionWhois    = "WHOIS"
	ActionPanel    = "PANEL"
	ActionListAll  = "LIST_ALL"
)

// Message is the JSON envelope exchanged over the websocket.
// Payload and IV carry opaque ciphertext material and are never inspected.
type Message struct {
	Type       string       `json:"type"`
	Room       string       `json:"room,omitempty"`
	User       string       `json:"user,omitempty"`
	Credential string       `json:"credential,omitempty"`
	Token      string       `json:"token,omitempty"`
	Protected  bool         `json:"protected,omitempty"`
	Payload    string       `json:"payload,omitempty"`
	IV         string       `json:"iv,omitempty"`
	IsFile     bool         `json:"is_file,omitempty"`
	TS         int64        `json:"ts,omitempty"`
	Text       string       `json:"text,omitempty"`
	Action     string       `json:"action,omitempty"`
	Target     string       `json:"target,omitempty"`
	IsAdmin    bool         `json:"is_admin,omitempty"`
	Entries    []PanelEntry `json:"entries,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// PanelEntry is one row of a presence table (WHOIS/PANEL/LIST_ALL replies).
type PanelEntry struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Admin    bool   `json:"admin"`
}
