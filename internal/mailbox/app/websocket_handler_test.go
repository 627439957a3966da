package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
)

// fakeConn 收集寫出的 frame
type fakeConn struct {
	mu     sync.Mutex
	frames []domain.WSResponse
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	var resp domain.WSResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, resp)
	return nil
}

func (f *fakeConn) byAction(action domain.Action) []domain.WSResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WSResponse
	for _, r := range f.frames {
		if r.Action == string(action) {
			out = append(out, r)
		}
	}
	return out
}

func newTestSession(t *testing.T, store MessageStore) (*mailboxSession, *fakeConn) {
	h := NewMailboxWebsocketHandler(store, NewIdentityResolver(nil), func(memberID string) SessionProvider {
		return staticSession{user: &domain.CurrentUser{ID: memberID}}
	}, time.Second)
	conn := &fakeConn{}
	s := h.newSession("me", conn)
	s.sync.Start(context.Background())
	t.Cleanup(s.sync.Close)
	return s, conn
}

func TestMailboxSession_PushesViewOnStart(t *testing.T) {
	_, conn := newTestSession(t, newMemStore(scenarioA()...))

	views := conn.byAction(domain.PushMailboxView)
	assert.NotEmpty(t, views)
	last := views[len(views)-1]
	mailbox := last.Payload["mailbox"].(map[string]interface{})
	assert.Equal(t, "me", mailbox["current_user_id"])
	assert.Equal(t, false, mailbox["is_loading"])
	assert.Len(t, mailbox["conversations"], 2)
}

func TestMailboxSession_HandleRequest(t *testing.T) {
	store := newMemStore(scenarioA()...)
	s, _ := newTestSession(t, store)
	ctx := context.Background()

	resp := s.handleRequest(ctx, domain.WSRequest{Action: string(domain.GetMailbox)})
	assert.True(t, resp.Success)
	assert.Len(t, resp.Payload["mailbox"].(domain.MailboxView).Conversations, 2)

	resp = s.handleRequest(ctx, domain.WSRequest{Action: string(domain.SelectConversation), ContactID: "contact-2"})
	assert.True(t, resp.Success)
	assert.Equal(t, 1, store.count("update"))

	resp = s.handleRequest(ctx, domain.WSRequest{
		Action: string(domain.SendReply), RecipientID: "contact-2", Subject: "Re", Content: "ok",
	})
	assert.True(t, resp.Success)
	assert.Equal(t, 1, store.count("insert"))

	resp = s.handleRequest(ctx, domain.WSRequest{Action: string(domain.DeleteMessage), MessageID: "m1"})
	assert.True(t, resp.Success)
	assert.NotContains(t, store.ids(), "m1")

	resp = s.handleRequest(ctx, domain.WSRequest{Action: string(domain.DeleteConversation), ContactID: "contact-2"})
	assert.True(t, resp.Success)
	for _, c := range s.sync.View().Conversations {
		assert.NotEqual(t, "contact-2", c.Contact.ID)
	}
}

func TestMailboxSession_DeleteConversationUsesSnapshotIDs(t *testing.T) {
	store := newMemStore(scenarioA()...)
	s, _ := newTestSession(t, store)

	resp := s.handleRequest(context.Background(), domain.WSRequest{
		Action:     string(domain.DeleteConversation),
		ContactID:  "contact-1",
		MessageIDs: []string{"m1"},
	})

	assert.True(t, resp.Success)
	assert.Equal(t, []string{"m2", "m3"}, store.ids())
}

func TestMailboxSession_FailurePushesNotification(t *testing.T) {
	store := newMemStore(scenarioA()...)
	store.insertErr = assert.AnError
	s, conn := newTestSession(t, store)

	resp := s.handleRequest(context.Background(), domain.WSRequest{
		Action: string(domain.SendReply), RecipientID: "contact-1", Content: "hi",
	})

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Error)
	notes := conn.byAction(domain.PushNotification)
	assert.Len(t, notes, 1)
	assert.Equal(t, string(domain.IntentSendReply), notes[0].Payload["intent"])
	assert.Contains(t, notes[0].Error, assert.AnError.Error())
}

func TestMailboxSession_UnknownAndInvalid(t *testing.T) {
	s, conn := newTestSession(t, newMemStore())

	resp := s.handleRequest(context.Background(), domain.WSRequest{Action: "subscribe_room"})
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown action", resp.Error)

	s.textMessageAction(context.Background(), []byte("{not json"))
	errs := conn.byAction("error")
	assert.Len(t, errs, 1)
	assert.Equal(t, "invalid request", errs[0].Error)
}
