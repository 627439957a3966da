package domain

import "time"

// Message directed message between two users
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`

	// 寄件人/收件人 profile, 可能為 nil
	Sender    Identity `json:"sender,omitempty"`
	Recipient Identity `json:"recipient,omitempty"`
}

// CounterpartID the participant that is not userID, ok=false when userID is neither party
func (m Message) CounterpartID(userID string) (string, bool) {
	switch userID {
	case m.SenderID:
		return m.RecipientID, true
	case m.RecipientID:
		return m.SenderID, true
	}
	return "", false
}

// Counterpart identity payload of the participant that is not userID
func (m Message) Counterpart(userID string) Identity {
	if m.SenderID == userID {
		return m.Recipient
	}
	return m.Sender
}

// IsUnreadFor report whether the message counts as unread for userID
func (m Message) IsUnreadFor(userID string) bool {
	return !m.Read && m.RecipientID == userID && m.SenderID != userID
}

// MessageDraft insert payload for a new message
type MessageDraft struct {
	SenderID    string
	RecipientID string
	Subject     string
	Content     string
}

// ChangeKind store change event kind
type ChangeKind string

const (
	// ChangeInsert message inserted
	ChangeInsert ChangeKind = "insert"
	// ChangeUpdate message updated (read flag)
	ChangeUpdate ChangeKind = "update"
	// ChangeDelete message deleted
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent realtime notification, receivers only use it as an invalidation signal
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	MessageIDs []string   `json:"message_ids,omitempty"`
	At         int64      `json:"at"`
}
