package main

import (
	"lifeguard_mailbox/internal/mailbox/router"

	"github.com/gofiber/fiber/v2"
)

// 此程式只用於 swag init
// swag init -g main.go --output ./docs
func main() {
	app := fiber.New()

	// handler 為 nil, 只註冊路由
	router.RegisterRoutes(app, nil, nil)
}
