package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"fairhouse/internal/cache"
	"fairhouse/internal/config"
	"fairhouse/internal/database"
	"fairhouse/internal/game"
	"fairhouse/internal/server"
)

type backends struct {
	archivers []game.Archiver
	checks    map[string]server.HealthChecker
	closers   []func() error
}

// openBackends connects the optional archive stores. A store that cannot be
// reached is skipped so the games still run memory-only.
func openBackends(cfg config.Config) backends {
	b := backends{checks: make(map[string]server.HealthChecker)}

	if cfg.Redis.Enabled {
		rs, err := cache.New(cfg.Redis)
		if err != nil {
			log.Warnf("[CACHE] Redis archive disabled: %v", err)
		} else {
			b.archivers = append(b.archivers, rs)
			b.checks["cache"] = rs
			b.closers = append(b.closers, rs.Close)
		}
	}

	if cfg.Database.Enabled {
		db, err := database.New(cfg.Database)
		if err != nil {
			log.Warnf("[DB] Postgres archive disabled: %v", err)
		} else if err := database.RunMigrations(db.DB(), cfg.Database.MigrationsPath); err != nil {
			log.Warnf("[DB] Postgres archive disabled, migrations failed: %v", err)
			db.Close()
		} else {
			b.archivers = append(b.archivers, db)
			b.checks["database"] = db
			b.closers = append(b.closers, db.Close)
		}
	}

	return b
}

func gracefulShutdown(ctx context.Context, stop context.CancelFunc, srv *server.FiberServer, factory *game.GameFactory, closeHubs context.CancelFunc, done chan<- bool) {
	<-ctx.Done()
	// Restore default signal handling so a second Ctrl+C kills the process.
	stop()
	log.Info("[SERVER] Shutting down gracefully, press Ctrl+C again to force")

	if err := factory.StopAll(); err != nil {
		log.Errorf("[SERVER] Error stopping game engines: %v", err)
	}
	closeHubs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("[SERVER] Server forced to shutdown with error: %v", err)
	}

	log.Info("[SERVER] Server exiting")
	done <- true
}

func main() {
	cfg := config.GetConfig()
	if err := config.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := openBackends(cfg)
	archive := game.NewArchiveQueue(b.archivers...)
	archiveDone := make(chan struct{})
	go func() {
		defer close(archiveDone)
		archive.Run(context.Background())
	}()

	hubCtx, closeHubs := context.WithCancel(context.Background())
	crashHub := game.NewHub("crash")
	plinkoHub := game.NewHub("plinko")
	go crashHub.Run(hubCtx)
	go plinkoHub.Run(hubCtx)

	crash := game.NewManager(cfg.Game.Crash(), crashHub)
	plinko := game.NewPlinkoEngine(cfg.Game.Plinko())
	plinkoRounds := game.NewPlinkoRounds(cfg.Game.PlinkoRounds(), plinko, plinkoHub)
	if len(b.archivers) > 0 {
		crash.SetArchiver(archive)
		plinko.SetArchiver(archive)
	}

	factory := game.NewGameFactory()
	factory.RegisterEngine(crash)
	factory.RegisterEngine(plinko)
	factory.RegisterEngine(plinkoRounds)
	if err := factory.StartAll(ctx); err != nil {
		log.Fatalf("[SERVER] Failed to start game engines: %v", err)
	}
	for gameType, commitment := range factory.Commitments() {
		log.WithField("game", gameType).Infof("[SERVER] Server seed commitment %s", commitment)
	}

	srv := server.New(cfg, server.Games{
		Crash:        crash,
		Plinko:       plinko,
		PlinkoRounds: plinkoRounds,
		CrashHub:     crashHub,
		PlinkoHub:    plinkoHub,
	}, b.checks)
	srv.RegisterFiberRoutes()

	done := make(chan bool, 1)
	go gracefulShutdown(ctx, stop, srv, factory, closeHubs, done)

	if err := srv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Errorf("[SERVER] http server error: %v", err)
		stop()
	}

	<-done

	archive.Stop()
	<-archiveDone
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			log.Warnf("[SERVER] Close error: %v", err)
		}
	}
	log.Info("[SERVER] Graceful shutdown complete.")
}
