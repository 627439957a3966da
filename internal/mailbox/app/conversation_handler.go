package app

import (
	"fmt"
	"net/url"
	"strconv"

	"lifeguard_mailbox/pkg/logger"
	"lifeguard_mailbox/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConversationHandler REST read model of the mailbox
type ConversationHandler struct {
	store    MessageStore
	resolver *IdentityResolver
}

// NewConversationHandler create ConversationHandler
func NewConversationHandler(store MessageStore, resolver *IdentityResolver) *ConversationHandler {
	return &ConversationHandler{store: store, resolver: resolver}
}

// ListConversations one-shot aggregated mailbox of the caller
// @Summary List conversations
// @Description Fetch every message of the caller and group them by contact
// @Tags Mailbox
// @Produce json
// @Param auth query string false "JWT"
// @Success 200 {array} domain.Conversation
// @Failure 401 {object} string "missing token"
// @Failure 502 {object} string "store error"
// @Router /conversations [get]
func (h *ConversationHandler) ListConversations(c *fiber.Ctx) error {
	memberID := middlewares.MemberID(c)
	if memberID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing member"})
	}

	messages, err := h.store.FetchMessages(c.UserContext(), memberID)
	if err != nil {
		logger.Log.Error("list conversations", zap.String("userID", memberID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "mailbox unavailable"})
	}
	h.resolver.Resolve(c.UserContext(), messages)

	return c.JSON(Aggregate(messages, memberID))
}

// ConnectCheck check service start
// @Summary Check mailbox service status
// @Tags Shared
// @Success 200 {string} string "mailbox service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("mailbox service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	status, err := strconv.ParseBool(query.Get("status"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	logger.Log.Info("debug", zap.Bool("status", status))
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}
