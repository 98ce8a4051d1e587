package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/config"
	"fairhouse/internal/game"
)

// HealthChecker is implemented by the optional archive backends.
type HealthChecker interface {
	Health() map[string]string
}

// Games bundles the engines and channels the server exposes.
type Games struct {
	Crash        *game.Manager
	Plinko       *game.PlinkoEngine
	PlinkoRounds *game.PlinkoRounds
	CrashHub     *game.Hub
	PlinkoHub    *game.Hub
}

type FiberServer struct {
	*fiber.App

	crash        *game.Manager
	plinko       *game.PlinkoEngine
	plinkoRounds *game.PlinkoRounds
	crashHub     *game.Hub
	plinkoHub    *game.Hub
	checks       map[string]HealthChecker
}

// New builds the fiber app with its middleware stack. Routes are added by
// RegisterFiberRoutes.
func New(cfg config.Config, g Games, checks map[string]HealthChecker) *FiberServer {
	if checks == nil {
		checks = make(map[string]HealthChecker)
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "fairhouse",
			AppName:       "fairhouse",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
			ErrorHandler:  errorHandler,
		}),

		crash:        g.Crash,
		plinko:       g.Plinko,
		plinkoRounds: g.PlinkoRounds,
		crashHub:     g.CrashHub,
		plinkoHub:    g.PlinkoHub,
		checks:       checks,
	}

	server.App.Use(recover.New())
	if cfg.AppEnv != "test" {
		server.App.Use(logger.New(logger.Config{
			Format: "[HTTP] ${time} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	if cfg.RateLimitMax > 0 {
		server.App.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitMax,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				// Long-lived sockets are not counted.
				return c.Get(fiber.HeaderUpgrade) == "websocket"
			},
		}))
	}
	server.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type,X-User-Id",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	return server
}

// errorHandler renders every unhandled error as JSON without internals.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := game.ErrInternal.Message

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
		message = ferr.Message
	} else {
		log.WithField("path", c.Path()).Errorf("[SERVER] Unhandled error: %v", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"statusCode": code,
		"message":    message,
	})
}
