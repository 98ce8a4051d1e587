package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/game"
)

const (
	HEADER_USER_ID  = "x-user-id"
	DEFAULT_USER_ID = "1"

	DEFAULT_HISTORY_LIMIT = 30
	DEFAULT_DEDUP_LIMIT   = 20
	DEFAULT_BETS_LIMIT    = 20
	MAX_BETS_LIMIT        = 100
)

// userIDFrom reads the caller from the x-user-id header, falling back to the
// userId query parameter and then the demo user.
func userIDFrom(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Get(HEADER_USER_ID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("userId")); id != "" {
		return id
	}
	return DEFAULT_USER_ID
}

// statusFor maps a game error to its HTTP status.
func statusFor(err error) int {
	var gerr *game.GameError
	if !errors.As(err, &gerr) {
		return fiber.StatusInternalServerError
	}
	switch {
	case gerr.Kind == game.KindValidation:
		return fiber.StatusBadRequest
	case gerr.Kind == game.KindNotFound:
		return fiber.StatusNotFound
	case gerr.Kind == game.KindInternal:
		return fiber.StatusInternalServerError
	case gerr.Code == game.CodeInsufficientBalance:
		return fiber.StatusPaymentRequired
	case gerr.Code == game.CodeRoundLocked:
		return fiber.StatusConflict
	}
	return fiber.StatusBadRequest
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.WithField("path", c.Path()).Errorf("[SERVER] %v", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"statusCode": status,
		"code":       game.ErrorCode(err, game.CodeInternal),
		"message":    game.PublicMessage(err),
	})
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Plinko handlers

func (s *FiberServer) plinkoFairHandler(c *fiber.Ctx) error {
	return c.JSON(game.FairCommitment{ServerSeedHash: s.plinko.Commitment()})
}

func (s *FiberServer) plinkoBalanceHandler(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	return c.JSON(fiber.Map{
		"userId":  userID,
		"balance": s.plinko.Balance(userID),
		"fair":    s.plinko.FairState(userID),
	})
}

func (s *FiberServer) plinkoStatsHandler(c *fiber.Ctx) error {
	return c.JSON(s.plinko.Stats())
}

func (s *FiberServer) plinkoBetHandler(c *fiber.Ctx) error {
	var req game.PlinkoBetRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, game.ErrInvalidPayload)
	}
	req.UserID = userIDFrom(c)

	record, err := s.plinko.PlaceBet(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (s *FiberServer) plinkoBetHandlerByID(c *fiber.Ctx) error {
	record, err := s.plinko.Bet(c.Params("betId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(record)
}

func (s *FiberServer) plinkoBetsHandler(c *fiber.Ctx) error {
	limit := clamp(c.QueryInt("limit", DEFAULT_BETS_LIMIT), 1, MAX_BETS_LIMIT)
	return c.JSON(s.plinko.Bets(userIDFrom(c), limit))
}

// Crash handlers

func (s *FiberServer) crashFairHandler(c *fiber.Ctx) error {
	return c.JSON(game.FairCommitment{ServerSeedHash: s.crash.Commitment()})
}

func (s *FiberServer) crashStatsHandler(c *fiber.Ctx) error {
	return c.JSON(s.crash.Stats())
}

func (s *FiberServer) crashStateHandler(c *fiber.Ctx) error {
	round := s.crash.CurrentRound()
	if round == nil {
		return c.JSON(fiber.Map{"state": game.StatusIdle, "round": nil})
	}
	return c.JSON(fiber.Map{"state": round.State, "round": round})
}

func (s *FiberServer) crashBalanceHandler(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	return c.JSON(fiber.Map{
		"userId":  userID,
		"balance": s.crash.Balance(userID),
	})
}

func (s *FiberServer) crashHistoryHandler(c *fiber.Ctx) error {
	history := s.crash.History()
	limit := clamp(c.QueryInt("limit", DEFAULT_HISTORY_LIMIT), 1, history.Capacity())
	return c.JSON(history.List(limit))
}

func (s *FiberServer) crashHistoryDedupHandler(c *fiber.Ctx) error {
	history := s.crash.History()
	limit := clamp(c.QueryInt("limit", DEFAULT_DEDUP_LIMIT), 1, history.Capacity())
	return c.JSON(history.DedupByOutcome(limit))
}

func (s *FiberServer) crashRoundHandler(c *fiber.Ctx) error {
	item, err := s.crash.History().Get(c.Params("roundId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}
