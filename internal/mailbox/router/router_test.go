package router

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"lifeguard_mailbox/internal/mailbox/app"
	"lifeguard_mailbox/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *fiber.App {
	r := fiber.New()
	resolver := app.NewIdentityResolver(nil)
	RegisterRoutes(r,
		app.NewConversationHandler(nil, resolver),
		app.NewMailboxWebsocketHandler(nil, resolver, nil, time.Second),
	)
	return r
}

func TestRegisterRoutes_ConnectCheck(t *testing.T) {
	resp, err := newTestRouter().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "mailbox service start!", string(body))
}

func TestRegisterRoutes_WebsocketRequiresToken(t *testing.T) {
	resp, err := newTestRouter().Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterRoutes_WebsocketRequiresUpgrade(t *testing.T) {
	tokenStr, err := token.GenerateJWT("me", "lifeguard", "test")
	require.NoError(t, err)

	resp, err := newTestRouter().Test(httptest.NewRequest("GET", "/ws?auth="+tokenStr, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
