package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	errprocess "lifeguard_mailbox/pkg/err"
	"lifeguard_mailbox/pkg/logger"

	"go.uber.org/zap"
)

// MessageStore authoritative message storage
type MessageStore interface {
	// FetchMessages every message where userID is sender or recipient, with embedded profiles
	FetchMessages(ctx context.Context, userID string) ([]domain.Message, error)
	InsertMessage(ctx context.Context, draft domain.MessageDraft) error
	UpdateReadFlags(ctx context.Context, ids []string) error
	DeleteMessages(ctx context.Context, ids []string) error
	// SubscribeToChanges call onChange on any change touching userID as sender or recipient
	SubscribeToChanges(ctx context.Context, userID string, onChange func()) (func(), error)
}

// SessionProvider look up the session owner.
// Implementations should honour ctx; Start stops waiting when ctx expires either way.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (*domain.CurrentUser, error)
}

// Notifier deliver user-visible failure notifications
type Notifier interface {
	Notify(n domain.Notification)
}

// NotifierFunc adapt a func to Notifier
type NotifierFunc func(n domain.Notification)

// Notify implement Notifier
func (f NotifierFunc) Notify(n domain.Notification) { f(n) }

var (
	// ErrEmptyRecipient send_reply without recipient
	ErrEmptyRecipient = errors.New("recipient is required")
	// ErrSelfRecipient send_reply addressed to the sender
	ErrSelfRecipient = errors.New("cannot send a message to yourself")
)

const (
	pendingSend               = "send_reply"
	pendingMarkRead           = "mark_read:"
	pendingDeleteMessage      = "delete_message:"
	pendingDeleteConversation = "delete_conversation"
)

// Synchronizer session view of one user's mailbox.
// Every confirmed mutation and every realtime change triggers a full refetch;
// conversations are always recomputed from one fetched snapshot.
type Synchronizer struct {
	store           MessageStore
	resolver        *IdentityResolver
	session         SessionProvider
	notifier        Notifier
	identityTimeout time.Duration

	// publishMu 讓 view 依序送出, 建立與送出都在鎖內
	publishMu sync.Mutex

	mu            sync.Mutex
	user          *domain.CurrentUser
	rawMessages   []domain.Message
	conversations []domain.Conversation
	loaded        bool
	fetching      int
	pending       map[string]int
	fetchSeq      uint64
	appliedSeq    uint64
	observers     []func(domain.MailboxView)

	lifeCtx     context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewSynchronizer create Synchronizer
func NewSynchronizer(
	store MessageStore,
	resolver *IdentityResolver,
	session SessionProvider,
	notifier Notifier,
	identityTimeout time.Duration,
) *Synchronizer {
	if notifier == nil {
		notifier = NotifierFunc(func(domain.Notification) {})
	}
	return &Synchronizer{
		store:           store,
		resolver:        resolver,
		session:         session,
		notifier:        notifier,
		identityTimeout: identityTimeout,
		pending:         make(map[string]int),
		conversations:   []domain.Conversation{},
	}
}

// OnChange register an observer called with every new view
func (s *Synchronizer) OnChange(fn func(domain.MailboxView)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Start look up the current user, subscribe to the change feeds and load the mailbox.
// Without a current user (lookup error or timeout) every intent becomes a no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	user, err := s.lookupUser(ctx)
	if err != nil || user == nil || user.ID == "" {
		logger.Log.Warn("mailbox started without current user", zap.Error(err))
		s.publish()
		return
	}

	s.mu.Lock()
	s.user = user
	s.lifeCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	lifeCtx := s.lifeCtx
	s.mu.Unlock()

	unsubscribe, err := s.store.SubscribeToChanges(lifeCtx, user.ID, s.onRemoteChange)
	if err != nil {
		logger.Log.Error("subscribe mailbox changes failed", zap.String("userID", user.ID), zap.Error(err))
	} else {
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	_ = s.Refresh(ctx)
}

// lookupUser bounded by identityTimeout even if the provider ignores ctx
func (s *Synchronizer) lookupUser(ctx context.Context) (*domain.CurrentUser, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.identityTimeout)
	defer cancel()

	type result struct {
		user *domain.CurrentUser
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		user, err := s.session.CurrentUser(lookupCtx)
		ch <- result{user: user, err: err}
	}()

	select {
	case r := <-ch:
		return r.user, r.err
	case <-lookupCtx.Done():
		return nil, lookupCtx.Err()
	}
}

// Close stop the realtime subscription
func (s *Synchronizer) Close() {
	s.mu.Lock()
	unsubscribe, cancel := s.unsubscribe, s.cancel
	s.unsubscribe, s.cancel = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Synchronizer) onRemoteChange() {
	s.mu.Lock()
	ctx := s.lifeCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	logger.Log.Debug("mailbox change received")
	_ = s.Refresh(ctx)
}

// Refresh refetch the message set, resolve identities and recompute conversations.
// A snapshot is dropped when a later-started fetch has already been applied.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil
	}
	userID := s.user.ID
	s.fetchSeq++
	seq := s.fetchSeq
	s.fetching++
	s.mu.Unlock()
	s.publish()

	messages, err := s.store.FetchMessages(ctx, userID)
	var conversations []domain.Conversation
	if err == nil {
		s.resolver.Resolve(ctx, messages)
		conversations = Aggregate(messages, userID)
	}

	s.mu.Lock()
	s.fetching--
	if err == nil {
		if seq > s.appliedSeq {
			s.appliedSeq = seq
			s.rawMessages = messages
			s.conversations = conversations
			s.loaded = true
		} else {
			logger.Log.Debug("drop stale mailbox snapshot", zap.Uint64("seq", seq), zap.Uint64("applied", s.appliedSeq))
		}
	}
	s.mu.Unlock()
	s.publish()

	if err != nil {
		logger.Log.Error("fetch mailbox failed", zap.String("userID", userID), zap.Error(err))
		return err
	}
	return nil
}

// View current read model
func (s *Synchronizer) View() domain.MailboxView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Messages copy of the last applied raw snapshot
func (s *Synchronizer) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.rawMessages...)
}

// viewLocked 回傳的 view 不共用內部 slice
func (s *Synchronizer) viewLocked() domain.MailboxView {
	view := domain.MailboxView{
		Conversations: cloneConversations(s.conversations),
		IsSending:     s.pending[pendingSend] > 0,
	}
	if s.user != nil {
		view.CurrentUserID = s.user.ID
		view.IsLoading = !s.loaded || s.fetching > 0
	}
	for key, n := range s.pending {
		if n > 0 {
			view.Pending = append(view.Pending, key)
		}
	}
	sort.Strings(view.Pending)
	return view
}

func cloneConversations(in []domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, len(in))
	for i, c := range in {
		c.Messages = append([]domain.Message(nil), c.Messages...)
		out[i] = c
	}
	return out
}

// publish build and deliver under publishMu, observers never see an older view after a newer one
func (s *Synchronizer) publish() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	view := s.viewLocked()
	observers := append([]func(domain.MailboxView){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(view)
	}
}

func (s *Synchronizer) currentUser() *domain.CurrentUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// begin mark key in flight, the returned func clears it
func (s *Synchronizer) begin(key string) func() {
	s.mu.Lock()
	s.pending[key]++
	s.mu.Unlock()
	s.publish()

	return func() {
		s.mu.Lock()
		s.pending[key]--
		if s.pending[key] <= 0 {
			delete(s.pending, key)
		}
		s.mu.Unlock()
		s.publish()
	}
}

func (s *Synchronizer) fail(intent domain.Intent, err error) error {
	s.notifier.Notify(domain.Notification{Intent: intent, Message: err.Error()})
	return errprocess.Wrap(string(intent), err)
}

// SendReply insert a new message from the current user, then refetch
func (s *Synchronizer) SendReply(ctx context.Context, recipientID, subject, content string) error {
	user := s.currentUser()
	if user == nil {
		logger.Log.Debug("send_reply ignored: no current user")
		return nil
	}
	if recipientID == "" {
		return s.fail(domain.IntentSendReply, ErrEmptyRecipient)
	}
	if recipientID == user.ID {
		return s.fail(domain.IntentSendReply, ErrSelfRecipient)
	}

	done := s.begin(pendingSend)
	err := s.store.InsertMessage(ctx, domain.MessageDraft{
		SenderID:    user.ID,
		RecipientID: recipientID,
		Subject:     subject,
		Content:     content,
	})
	done()
	if err != nil {
		return s.fail(domain.IntentSendReply, err)
	}

	_ = s.Refresh(ctx)
	return nil
}

// SelectConversation presentation selected the conversation with contactID
func (s *Synchronizer) SelectConversation(ctx context.Context, contactID string) error {
	return s.MarkConversationAsRead(ctx, contactID)
}

// MarkConversationAsRead flag every unread message received from contactID.
// No store call when nothing is unread.
func (s *Synchronizer) MarkConversationAsRead(ctx context.Context, contactID string) error {
	user := s.currentUser()
	if user == nil {
		return nil
	}

	ids := s.unreadIDs(contactID, user.ID)
	if len(ids) == 0 {
		return nil
	}

	done := s.begin(pendingMarkRead + contactID)
	err := s.store.UpdateReadFlags(ctx, ids)
	done()
	if err != nil {
		return s.fail(domain.IntentMarkRead, err)
	}

	_ = s.Refresh(ctx)
	return nil
}

func (s *Synchronizer) unreadIDs(contactID, userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Contact.ID != contactID {
			continue
		}
		ids := make([]string, 0, c.UnreadCount)
		for _, m := range c.Messages {
			if m.IsUnreadFor(userID) {
				ids = append(ids, m.ID)
			}
		}
		return ids
	}
	return nil
}

// DeleteMessage delete exactly one message, then refetch
func (s *Synchronizer) DeleteMessage(ctx context.Context, id string) error {
	if s.currentUser() == nil || id == "" {
		return nil
	}
	if len(s.ownedIDs([]string{id})) == 0 {
		logger.Log.Debug("delete_message ignored: not in mailbox", zap.String("messageID", id))
		return nil
	}

	done := s.begin(pendingDeleteMessage + id)
	err := s.store.DeleteMessages(ctx, []string{id})
	done()
	if err != nil {
		return s.fail(domain.IntentDeleteMessage, err)
	}

	_ = s.Refresh(ctx)
	return nil
}

// ConversationSnapshot ids of the messages currently in the conversation with contactID
func (s *Synchronizer) ConversationSnapshot(contactID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Contact.ID == contactID {
			return c.MessageIDs()
		}
	}
	return nil
}

// DeleteConversation delete exactly the given snapshot ids.
// Messages that arrived after the snapshot was taken are kept.
// Ids outside the user's mailbox are dropped.
func (s *Synchronizer) DeleteConversation(ctx context.Context, ids []string) error {
	if s.currentUser() == nil {
		return nil
	}
	ids = s.ownedIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	done := s.begin(pendingDeleteConversation)
	err := s.store.DeleteMessages(ctx, ids)
	done()
	if err != nil {
		return s.fail(domain.IntentDeleteConversation, err)
	}

	_ = s.Refresh(ctx)
	return nil
}

// DeleteConversationWithContact snapshot the conversation now and delete it
func (s *Synchronizer) DeleteConversationWithContact(ctx context.Context, contactID string) error {
	return s.DeleteConversation(ctx, s.ConversationSnapshot(contactID))
}

// ownedIDs keep ids present in the last applied snapshot
func (s *Synchronizer) ownedIDs(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]struct{}, len(s.rawMessages))
	for _, m := range s.rawMessages {
		known[m.ID] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
