package domain

// Conversation all messages exchanged with one contact
type Conversation struct {
	Contact     Contact   `json:"contact"`
	Messages    []Message `json:"messages"`
	LastMessage Message   `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
}

// MessageIDs ids of every message in the conversation
func (c Conversation) MessageIDs() []string {
	ids := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// MailboxView read model handed to the presentation layer
type MailboxView struct {
	CurrentUserID string         `json:"current_user_id"`
	Conversations []Conversation `json:"conversations"`
	IsLoading     bool           `json:"is_loading"`
	IsSending     bool           `json:"is_sending"`
	// Pending in-flight mutation keys, used by the UI to disable duplicate actions
	Pending []string `json:"pending,omitempty"`
}

// Intent presentation intent name
type Intent string

const (
	// IntentSendReply send a message
	IntentSendReply Intent = "send_reply"
	// IntentMarkRead mark a conversation read
	IntentMarkRead Intent = "mark_read"
	// IntentDeleteMessage delete one message
	IntentDeleteMessage Intent = "delete_message"
	// IntentDeleteConversation delete a conversation snapshot
	IntentDeleteConversation Intent = "delete_conversation"
)

// Notification user-visible failure of one intent
type Notification struct {
	Intent  Intent `json:"intent"`
	Message string `json:"message"`
}
