package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/config"
	"fairhouse/internal/game"
)

// Service is the postgres side of the audit archive.
type Service interface {
	game.Archiver
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string
	DB() *sql.DB
	// Close terminates the database connection.
	Close() error
}

type service struct {
	db     *sql.DB
	dbName string
}

func New(cfg config.DatabaseConfig) (Service, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Database, err)
	}

	log.Printf("[DB] Connected to database: %s", cfg.Database)
	return &service{db: db, dbName: cfg.Database}, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

const insertRound = `
INSERT INTO crash_rounds (round_id, result_multiplier, result_multiplier_raw, started_at,
	finished_at, server_seed_hash, public_seed, players)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (round_id) DO NOTHING`

func (s *service) ArchiveRound(ctx context.Context, item game.HistoryItem) error {
	players, err := json.Marshal(item.Players)
	if err != nil {
		return fmt.Errorf("marshal players of %s: %w", item.RoundID, err)
	}

	_, err = s.db.ExecContext(ctx, insertRound,
		item.RoundID,
		item.ResultMultiplier,
		item.ResultMultiplierRaw,
		time.UnixMilli(item.StartedAt).UTC(),
		time.UnixMilli(item.FinishedAt).UTC(),
		item.ServerSeedHash,
		item.PublicSeed,
		players,
	)
	if err != nil {
		return fmt.Errorf("insert round %s: %w", item.RoundID, err)
	}
	return nil
}

const insertBet = `
INSERT INTO plinko_bets (bet_id, user_id, bet, board_rows, risk, path, bin, multiplier, payout,
	result, server_seed_hash, client_seed, nonce, balance_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (bet_id) DO NOTHING`

func (s *service) ArchiveBet(ctx context.Context, bet game.BetRecord) error {
	path, err := json.Marshal(bet.Path)
	if err != nil {
		return fmt.Errorf("marshal path of %s: %w", bet.BetID, err)
	}

	_, err = s.db.ExecContext(ctx, insertBet,
		bet.BetID,
		bet.UserID,
		bet.Bet,
		bet.Rows,
		string(bet.Risk),
		path,
		bet.Bin,
		bet.Multiplier,
		bet.Payout,
		string(bet.Result),
		bet.Proof.ServerSeedHash,
		bet.Proof.ClientSeed,
		int64(bet.Proof.Nonce),
		bet.BalanceAfter,
		bet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet %s: %w", bet.BetID, err)
	}
	return nil
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Printf("[DB] %s is down: %v", s.dbName, err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	log.Printf("[DB] Disconnected from database: %s", s.dbName)
	return s.db.Close()
}

func newMigrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations from %s: %w", migrationsPath, err)
	}
	return m, nil
}

// RunMigrations applies every pending up migration.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func GetMigrationVersion(db *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return version, dirty, nil
}
