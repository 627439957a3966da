package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg/logger"
	"lifeguard_mailbox/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// SessionFactory build the SessionProvider for an authenticated member
type SessionFactory func(memberID string) SessionProvider

// MailboxWebsocketHandler one Synchronizer per websocket connection
type MailboxWebsocketHandler struct {
	store           MessageStore
	resolver        *IdentityResolver
	sessions        SessionFactory
	identityTimeout time.Duration
	pingInterval    time.Duration
}

// NewMailboxWebsocketHandler create MailboxWebsocketHandler
func NewMailboxWebsocketHandler(
	store MessageStore,
	resolver *IdentityResolver,
	sessions SessionFactory,
	identityTimeout time.Duration,
) *MailboxWebsocketHandler {
	return &MailboxWebsocketHandler{
		store:           store,
		resolver:        resolver,
		sessions:        sessions,
		identityTimeout: identityTimeout,
		pingInterval:    10 * time.Minute,
	}
}

// wsWriter 寫入端, 方便測試替換
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// mailboxSession websocket 連線狀態
type mailboxSession struct {
	memberID string
	sync     *Synchronizer

	writeMu sync.Mutex
	conn    wsWriter
}

func (h *MailboxWebsocketHandler) newSession(memberID string, conn wsWriter) *mailboxSession {
	s := &mailboxSession{memberID: memberID, conn: conn}
	s.sync = NewSynchronizer(
		h.store,
		h.resolver,
		h.sessions(memberID),
		NotifierFunc(s.pushNotification),
		h.identityTimeout,
	)
	s.sync.OnChange(s.pushView)
	return s
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *MailboxWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	logger.Log.Info("websocket handle memberID", zap.String("userID", memberID))

	session := h.newSession(memberID, conn)
	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		session.sync.Close()
		cancel()
		conn.Close()
		logger.Log.Info("websocket close", zap.String("userID", memberID))
	}()

	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("Received PONG", zap.String("userID", memberID))
		return nil
	})

	session.sync.Start(ctxClose)

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := session.write(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Warn("ping error", zap.String("userID", memberID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("userID", memberID))
			} else {
				logger.Log.Warn("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			session.sendError("unsupported message type")
			continue
		}
		session.textMessageAction(ctxClose, message)
	}
}

func (s *mailboxSession) textMessageAction(ctx context.Context, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		s.sendError("invalid request")
		return
	}
	s.sendResponse(s.handleRequest(ctx, req))
}

func (s *mailboxSession) handleRequest(ctx context.Context, req domain.WSRequest) domain.WSResponse {
	resp := domain.WSResponse{Action: req.Action, Payload: map[string]interface{}{}}

	var err error
	switch domain.Action(req.Action) {
	case domain.GetMailbox:
		resp.Payload["mailbox"] = s.sync.View()

	case domain.SelectConversation:
		err = s.sync.SelectConversation(ctx, req.ContactID)
		resp.Payload["contact_id"] = req.ContactID

	case domain.SendReply:
		err = s.sync.SendReply(ctx, req.RecipientID, req.Subject, req.Content)

	case domain.DeleteMessage:
		err = s.sync.DeleteMessage(ctx, req.MessageID)
		resp.Payload["message_id"] = req.MessageID

	// message_ids 為使用者確認當下的快照, 沒帶時才用 contact_id 取當前快照
	case domain.DeleteConversation:
		if len(req.MessageIDs) > 0 {
			err = s.sync.DeleteConversation(ctx, req.MessageIDs)
		} else {
			err = s.sync.DeleteConversationWithContact(ctx, req.ContactID)
		}

	default:
		resp.Error = "unknown action"
		return resp
	}

	// 失敗原因只由 notification 推送一次, 這裡只回覆 ack
	if err != nil {
		logger.Log.Warn("websocket intent failed", zap.String("MemberID", s.memberID), zap.String("Action", req.Action), zap.Error(err))
		return resp
	}
	resp.Success = true
	return resp
}

func (s *mailboxSession) pushView(view domain.MailboxView) {
	s.sendResponse(domain.WSResponse{
		Action:  string(domain.PushMailboxView),
		Success: true,
		Payload: map[string]interface{}{"mailbox": view},
	})
}

func (s *mailboxSession) pushNotification(n domain.Notification) {
	s.sendResponse(domain.WSResponse{
		Action:  string(domain.PushNotification),
		Success: false,
		Payload: map[string]interface{}{"intent": n.Intent},
		Error:   n.Message,
	})
}

func (s *mailboxSession) sendResponse(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal websocket response", zap.Error(err))
		return
	}
	if err := s.write(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.String("userID", s.memberID), zap.Error(err))
	}
}

func (s *mailboxSession) sendError(errorMsg string) {
	s.sendResponse(domain.WSResponse{
		Action:  "error",
		Success: false,
		Error:   errorMsg,
	})
}

// write 同一條連線不可並行寫入
func (s *mailboxSession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}
