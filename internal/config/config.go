package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/game"
)

type Config struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	AppEnv       string `env:"APP_ENV" envDefault:"local"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	RateLimitMax int    `env:"RATE_LIMIT_MAX" envDefault:"120"`

	Game     GameConfig
	Redis    RedisConfig
	Database DatabaseConfig
}

type GameConfig struct {
	MaxBet              float64       `env:"MAX_BET" envDefault:"10"`
	StartingBalance     float64       `env:"STARTING_BALANCE" envDefault:"100"`
	CountdownDuration   time.Duration `env:"COUNTDOWN_DURATION" envDefault:"10s"`
	BroadcastInterval   time.Duration `env:"BROADCAST_INTERVAL" envDefault:"250ms"`
	TickInterval        time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	CrashPause          time.Duration `env:"CRASH_PAUSE" envDefault:"1s"`
	GrowthHalfLife      time.Duration `env:"GROWTH_HALF_LIFE" envDefault:"10s"`
	MinCrash            float64       `env:"MIN_CRASH" envDefault:"1.03"`
	MaxCrash            float64       `env:"MAX_CRASH" envDefault:"1000"`
	HouseEdge           float64       `env:"HOUSE_EDGE" envDefault:"0.99"`
	DisplayCap          float64       `env:"DISPLAY_CAP" envDefault:"100"`
	HistoryLimit        int           `env:"HISTORY_LIMIT" envDefault:"50"`
	PlinkoResultSpacing time.Duration `env:"PLINKO_RESULT_SPACING" envDefault:"300ms"`
	PlinkoSettlePause   time.Duration `env:"PLINKO_SETTLE_PAUSE" envDefault:"1500ms"`
	CrashServerSeed     string        `env:"CRASH_SERVER_SEED"`
	PlinkoServerSeed    string        `env:"PLINKO_SERVER_SEED"`
}

type RedisConfig struct {
	Enabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_ARCHIVE_TTL" envDefault:"24h"`
}

type DatabaseConfig struct {
	Enabled        bool   `env:"DB_ENABLED" envDefault:"false"`
	Host           string `env:"BLUEPRINT_DB_HOST" envDefault:"localhost"`
	Port           string `env:"BLUEPRINT_DB_PORT" envDefault:"5432"`
	Database       string `env:"BLUEPRINT_DB_DATABASE" envDefault:"crashdb"`
	Username       string `env:"BLUEPRINT_DB_USERNAME" envDefault:"postgres"`
	Password       string `env:"BLUEPRINT_DB_PASSWORD" envDefault:"postgres"`
	Schema         string `env:"BLUEPRINT_DB_SCHEMA" envDefault:"public"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`
}

// Load parses the environment. A .env file in the working directory is
// loaded first.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func GetConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal("Cannot parse initial ENV vars: ", err)
	}
	return cfg
}

func (c Config) Validate() error {
	g := c.Game
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT %d out of range", c.Port)
	case g.MaxBet <= 0:
		return errors.New("MAX_BET must be positive")
	case g.StartingBalance < 0:
		return errors.New("STARTING_BALANCE must not be negative")
	case g.CountdownDuration <= 0 || g.BroadcastInterval <= 0 || g.TickInterval <= 0 || g.GrowthHalfLife <= 0:
		return errors.New("durations must be positive")
	case g.MinCrash < 1 || g.MaxCrash < g.MinCrash:
		return fmt.Errorf("crash range [%v, %v] is invalid", g.MinCrash, g.MaxCrash)
	case g.HouseEdge <= 0 || g.HouseEdge > 1:
		return fmt.Errorf("HOUSE_EDGE %v out of (0, 1]", g.HouseEdge)
	case g.HistoryLimit <= 0:
		return errors.New("HISTORY_LIMIT must be positive")
	}
	return nil
}

func (g GameConfig) Curve() game.CrashCurve {
	return game.CrashCurve{
		HouseEdge:  g.HouseEdge,
		MinCrash:   g.MinCrash,
		MaxCrash:   g.MaxCrash,
		DisplayCap: g.DisplayCap,
	}
}

func (g GameConfig) Crash() game.CrashConfig {
	return game.CrashConfig{
		MaxBet:            g.MaxBet,
		StartingBalance:   g.StartingBalance,
		Countdown:         g.CountdownDuration,
		BroadcastInterval: g.BroadcastInterval,
		TickInterval:      g.TickInterval,
		CrashPause:        g.CrashPause,
		HalfLife:          g.GrowthHalfLife,
		HistoryLimit:      g.HistoryLimit,
		ServerSeed:        g.CrashServerSeed,
		Curve:             g.Curve(),
	}
}

func (g GameConfig) Plinko() game.PlinkoConfig {
	return game.PlinkoConfig{
		MaxBet:          g.MaxBet,
		StartingBalance: g.StartingBalance,
		ServerSeed:      g.PlinkoServerSeed,
	}
}

func (g GameConfig) PlinkoRounds() game.PlinkoRoundsConfig {
	return game.PlinkoRoundsConfig{
		Countdown:         g.CountdownDuration,
		BroadcastInterval: g.BroadcastInterval,
		ResultSpacing:     g.PlinkoResultSpacing,
		SettlePause:       g.PlinkoSettlePause,
	}
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func ConfigureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("LOG_FORMAT %q is not text or json", format)
	}
	return nil
}
