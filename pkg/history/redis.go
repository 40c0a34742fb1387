package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quantora/simrun/pkg/run"
)

const defaultHistoryKey = "simrun:history"

// RedisStore keeps history as a capped Redis list: LPUSH then LTRIM, so the
// key can never grow past the limit even across processes.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	limit  int
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, db, limit int, logger *slog.Logger) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		key:    defaultHistoryKey,
		limit:  limit,
		logger: logger.With("module", "history_redis", "addr", addr),
	}, nil
}

func (s *RedisStore) Append(ctx context.Context, summary run.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, int64(s.limit-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]run.Summary, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, int64(s.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]run.Summary, 0, len(raw))

	for _, item := range raw {
		var summary run.Summary

		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			s.logger.Warn("Skipping undecodable history entry", "error", err)

			continue
		}

		entries = append(entries, summary)
	}

	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
