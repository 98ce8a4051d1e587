package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	s.RegisterGameRoutes(api)

	ws := s.App.Group("/ws", requireUpgrade)
	ws.Get("/crash", websocket.New(s.crashSocketHandler))
	ws.Get("/plinko", websocket.New(s.plinkoSocketHandler))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals(localUserID, userIDFrom(c))
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"status": "ok",
		"game": fiber.Map{
			"crash_clients":  s.crashHub.GetClientCount(),
			"plinko_clients": s.plinkoHub.GetClientCount(),
		},
	}
	for name, check := range s.checks {
		health[name] = check.Health()
	}
	return c.JSON(health)
}
