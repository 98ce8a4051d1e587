package server

import "github.com/gofiber/fiber/v2"

// RegisterGameRoutes registers the HTTP routes of both games under router.
func (s *FiberServer) RegisterGameRoutes(router fiber.Router) {
	// Plinko
	router.Get("/fair/current", s.plinkoFairHandler)
	router.Get("/demo/balance", s.plinkoBalanceHandler)
	router.Get("/demo/stats", s.plinkoStatsHandler)

	bets := router.Group("/bets/plinko")
	bets.Post("/", s.plinkoBetHandler)
	bets.Get("/", s.plinkoBetsHandler)
	bets.Get("/:betId", s.plinkoBetHandlerByID)

	// Crash
	crash := router.Group("/crash")
	crash.Get("/fair", s.crashFairHandler)
	crash.Get("/stats", s.crashStatsHandler)
	crash.Get("/state", s.crashStateHandler)
	crash.Get("/balance", s.crashBalanceHandler)
	crash.Get("/history", s.crashHistoryHandler)
	crash.Get("/history/dedup", s.crashHistoryDedupHandler)
	crash.Get("/history/:roundId", s.crashRoundHandler)
}
