package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"fairhouse/internal/config"
	"fairhouse/internal/game"
)

const (
	REDIS_KEY_ROUND_PREFIX = "crash:round:"
	REDIS_KEY_BET_PREFIX   = "plinko:bet:"
	REDIS_KEY_USER_BETS    = "plinko:bets:"
	USER_BETS_LIMIT        = 100
)

// Service is the redis side of the audit archive.
type Service interface {
	game.Archiver
	GetClient() *redis.Client
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to redis and verifies the connection with a ping.
func New(cfg config.RedisConfig) (Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Println("[CACHE] Redis connected successfully")
	return NewWithClient(client, cfg.TTL), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration) Service {
	return &service{client: client, ttl: ttl}
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

// ArchiveRound stores a finished crash round under crash:round:<id>.
func (s *service) ArchiveRound(ctx context.Context, item game.HistoryItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal round %s: %w", item.RoundID, err)
	}
	if err := s.client.Set(ctx, REDIS_KEY_ROUND_PREFIX+item.RoundID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store round %s: %w", item.RoundID, err)
	}
	return nil
}

// ArchiveBet stores the bet record and pushes its id onto the user's capped
// recent-bets list.
func (s *service) ArchiveBet(ctx context.Context, bet game.BetRecord) error {
	data, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("marshal bet %s: %w", bet.BetID, err)
	}

	userKey := REDIS_KEY_USER_BETS + bet.UserID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, REDIS_KEY_BET_PREFIX+bet.BetID, data, s.ttl)
		pipe.LPush(ctx, userKey, bet.BetID)
		pipe.LTrim(ctx, userKey, 0, USER_BETS_LIMIT-1)
		pipe.Expire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store bet %s: %w", bet.BetID, err)
	}
	return nil
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	_, err := s.client.Ping(ctx).Result()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "Redis is healthy"

	poolStats := s.client.PoolStats()
	stats["hits"] = strconv.FormatUint(uint64(poolStats.Hits), 10)
	stats["misses"] = strconv.FormatUint(uint64(poolStats.Misses), 10)
	stats["timeouts"] = strconv.FormatUint(uint64(poolStats.Timeouts), 10)
	stats["total_conns"] = strconv.FormatUint(uint64(poolStats.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(poolStats.IdleConns), 10)
	stats["stale_conns"] = strconv.FormatUint(uint64(poolStats.StaleConns), 10)

	return stats
}

func (s *service) Close() error {
	log.Println("[CACHE] Disconnecting from Redis")
	return s.client.Close()
}
