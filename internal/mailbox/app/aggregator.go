package app

import (
	"sort"

	"lifeguard_mailbox/internal/mailbox/domain"
)

// Aggregate group a flat message list into per-contact conversations for currentUserID.
// Messages inside a conversation are oldest first; conversations are most recently active first.
// Messages where currentUserID is neither party are ignored.
func Aggregate(messages []domain.Message, currentUserID string) []domain.Conversation {
	groups := make(map[string][]domain.Message)
	order := make([]string, 0)

	for _, m := range messages {
		contactID, ok := m.CounterpartID(currentUserID)
		if !ok {
			continue
		}
		if _, seen := groups[contactID]; !seen {
			order = append(order, contactID)
		}
		groups[contactID] = append(groups[contactID], m)
	}

	conversations := make([]domain.Conversation, 0, len(order))
	for _, contactID := range order {
		thread := groups[contactID]
		sort.SliceStable(thread, func(i, j int) bool {
			return thread[i].CreatedAt.Before(thread[j].CreatedAt)
		})

		unread := 0
		for _, m := range thread {
			if m.IsUnreadFor(currentUserID) {
				unread++
			}
		}

		conversations = append(conversations, domain.Conversation{
			Contact:     domain.ContactFrom(contactID, contactIdentity(thread, currentUserID)),
			Messages:    thread,
			LastMessage: thread[len(thread)-1],
			UnreadCount: unread,
		})
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessage.CreatedAt.After(conversations[j].LastMessage.CreatedAt)
	})

	return conversations
}

// contactIdentity 由新到舊找對方 payload, resolved 優先
func contactIdentity(thread []domain.Message, currentUserID string) domain.Identity {
	var fallback domain.Identity
	for i := len(thread) - 1; i >= 0; i-- {
		switch ident := thread[i].Counterpart(currentUserID).(type) {
		case domain.ResolvedIdentity:
			return ident
		case domain.UnresolvedIdentity:
			if fallback == nil {
				fallback = ident
			}
		}
	}
	return fallback
}
