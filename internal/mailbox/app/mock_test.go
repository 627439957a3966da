package app

import (
	"context"
	"sync"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg"

	"github.com/stretchr/testify/mock"
)

// === mock repository ===
type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) FetchMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	args := m.Called(ctx, userID)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockMessageStore) InsertMessage(ctx context.Context, draft domain.MessageDraft) error {
	args := m.Called(ctx, draft)
	return args.Error(0)
}

func (m *mockMessageStore) UpdateReadFlags(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockMessageStore) DeleteMessages(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *mockMessageStore) SubscribeToChanges(ctx context.Context, userID string, onChange func()) (func(), error) {
	args := m.Called(ctx, userID, onChange)
	unsubscribe, _ := args.Get(0).(func())
	return unsubscribe, args.Error(1)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ResolveOrganizationNames(ctx context.Context, ids []string) (map[string]domain.OrganizationIdentity, error) {
	args := m.Called(ctx, ids)
	names, _ := args.Get(0).(map[string]domain.OrganizationIdentity)
	return names, args.Error(1)
}

type mockSession struct {
	mock.Mock
}

func (m *mockSession) CurrentUser(ctx context.Context) (*domain.CurrentUser, error) {
	args := m.Called(ctx)
	u, _ := args.Get(0).(*domain.CurrentUser)
	return u, args.Error(1)
}

// staticSession always the same user
type staticSession struct {
	user *domain.CurrentUser
}

func (s staticSession) CurrentUser(context.Context) (*domain.CurrentUser, error) {
	return s.user, nil
}

// blockingSession never answers before ctx is done
type blockingSession struct{}

func (blockingSession) CurrentUser(ctx context.Context) (*domain.CurrentUser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// memStore in-memory MessageStore, fires subscribers synchronously on every write
type memStore struct {
	mu          sync.Mutex
	messages    []domain.Message
	subscribers map[string][]func()
	seq         int
	clock       time.Time
	calls       map[string]int

	insertErr error
	updateErr error
	deleteErr error
	fetchErr  error
}

func newMemStore(messages ...domain.Message) *memStore {
	return &memStore{
		messages:    append([]domain.Message{}, messages...),
		subscribers: make(map[string][]func()),
		clock:       at("13:00"),
		calls:       make(map[string]int),
	}
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func (s *memStore) FetchMessages(_ context.Context, userID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["fetch"]++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) InsertMessage(_ context.Context, draft domain.MessageDraft) error {
	s.mu.Lock()
	s.calls["insert"]++
	if s.insertErr != nil {
		s.mu.Unlock()
		return s.insertErr
	}
	s.seq++
	s.clock = s.clock.Add(time.Minute)
	m := domain.Message{
		ID:          "new-" + string(rune('a'+s.seq-1)),
		SenderID:    draft.SenderID,
		RecipientID: draft.RecipientID,
		Subject:     draft.Subject,
		Content:     draft.Content,
		CreatedAt:   s.clock,
		Sender:      person(draft.SenderID),
		Recipient:   person(draft.RecipientID),
	}
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.notify(m.SenderID, m.RecipientID)
	return nil
}

func (s *memStore) UpdateReadFlags(_ context.Context, ids []string) error {
	s.mu.Lock()
	s.calls["update"]++
	if s.updateErr != nil {
		s.mu.Unlock()
		return s.updateErr
	}
	var parties []string
	for i := range s.messages {
		if pkg.Contains(ids, s.messages[i].ID) {
			s.messages[i].Read = true
			parties = append(parties, s.messages[i].SenderID, s.messages[i].RecipientID)
		}
	}
	s.mu.Unlock()

	s.notify(parties...)
	return nil
}

func (s *memStore) DeleteMessages(_ context.Context, ids []string) error {
	s.mu.Lock()
	s.calls["delete"]++
	if s.deleteErr != nil {
		s.mu.Unlock()
		return s.deleteErr
	}
	var parties []string
	kept := s.messages[:0:0]
	for _, m := range s.messages {
		if pkg.Contains(ids, m.ID) {
			parties = append(parties, m.SenderID, m.RecipientID)
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.mu.Unlock()

	s.notify(parties...)
	return nil
}

func (s *memStore) SubscribeToChanges(_ context.Context, userID string, onChange func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[userID] = append(s.subscribers[userID], onChange)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, userID)
	}, nil
}

func (s *memStore) notify(parties ...string) {
	s.mu.Lock()
	var fns []func()
	seen := map[string]bool{}
	for _, p := range parties {
		if seen[p] {
			continue
		}
		seen[p] = true
		fns = append(fns, s.subscribers[p]...)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// === fixtures ===

// at 同一天的 HH:MM
func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Date(2024, 6, 1, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func person(id string) domain.Identity {
	return domain.ResolvedIdentity{ID: id, FirstName: "First " + id, LastName: "Last " + id, ProfileType: domain.ProfileTypeLifeguard}
}

func msg(id, from, to, hhmm string, read bool) domain.Message {
	return domain.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: to,
		Subject:     "subject " + id,
		Content:     "content " + id,
		Read:        read,
		CreatedAt:   at(hhmm),
		Sender:      person(from),
		Recipient:   person(to),
	}
}

// notificationRecorder Notifier that keeps every notification
type notificationRecorder struct {
	mu   sync.Mutex
	list []domain.Notification
}

func (r *notificationRecorder) Notify(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

func (r *notificationRecorder) all() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification{}, r.list...)
}
