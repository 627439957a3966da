package domain

// Action websocket request action
type Action string

const (
	// GetMailbox websocket action get_mailbox
	GetMailbox Action = "get_mailbox"
	// SelectConversation websocket action select_conversation
	SelectConversation Action = "select_conversation"
	// SendReply websocket action send_reply
	SendReply Action = "send_reply"
	// DeleteMessage websocket action delete_message
	DeleteMessage Action = "delete_message"
	// DeleteConversation websocket action delete_conversation
	DeleteConversation Action = "delete_conversation"

	// PushMailboxView server push after every recompute
	PushMailboxView Action = "mailbox_view"
	// PushNotification server push after a failed intent
	PushNotification Action = "notification"
)

// WSRequest websocket Request
type WSRequest struct {
	Action      string   `json:"action"`
	ContactID   string   `json:"contact_id"`
	RecipientID string   `json:"recipient_id"`
	Subject     string   `json:"subject"`
	Content     string   `json:"content"`
	MessageID   string   `json:"message_id"`
	MessageIDs  []string `json:"message_ids"`
}

// WSResponse websocket Response.
// A failed intent answers Success=false without Error; the reason arrives as a notification push.
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
