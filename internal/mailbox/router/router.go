package router

import (
	"context"

	"lifeguard_mailbox/internal/mailbox/app"
	"lifeguard_mailbox/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 mailbox 相关的路由
// @title Lifeguard Mailbox API
// @version 1.0
// @description Conversation threads and realtime mailbox sessions
// @BasePath /
func RegisterRoutes(r *fiber.App, conversations *app.ConversationHandler, mailboxWebsocket *app.MailboxWebsocketHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	jwt := middlewares.JWTMiddleware()
	r.Get("/conversations", jwt, conversations.ListConversations)
	r.Get("/ws", jwt, upgradeOnly, websocket.New(func(c *websocket.Conn) {
		mailboxWebsocket.HandleConnection(context.Background(), c)
	}))
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
