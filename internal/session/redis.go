package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/internal/log"
)

const defaultPrefix = "ragline:session:"

// RedisConfig holds connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // idle timeout, refreshed on every append
}

// RedisStore keeps each session as a Redis list of JSON-encoded turns.
// RPUSH gives the atomic append the concurrency model requires, and the
// key TTL implements idle eviction without a sweeper.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger log.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(cfg RedisConfig, logger log.Logger) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = log.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Append pushes the turn and refreshes the idle timeout in one pipeline.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshaling turn: %w", err)
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// Recent reads the trailing n turns. A missing key is an empty history.
func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	raws, err := s.client.LRange(ctx, s.key(sessionID), -int64(n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session history: %w", err)
	}

	turns := make([]Turn, 0, len(raws))
	for _, raw := range raws {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			// A corrupt entry poisons continuity, not correctness.
			s.logger.Warn("skipping undecodable turn", "session", sessionID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
