package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"freightcall-platform/internal/calls"

	"github.com/redis/go-redis/v9"
)

// ProgressSnapshot is the status-poll view of a call mid-run.
type ProgressSnapshot struct {
	Status       calls.CallStatus `json:"status"`
	Progress     int              `json:"processing_progress"`
	Message      string           `json:"processing_message"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// ProgressCache is a write-through cache for status polling. Misses fall
// back to Postgres; cache errors are logged and ignored.
type ProgressCache interface {
	SetProgress(ctx context.Context, callID string, snap ProgressSnapshot) error
	GetProgress(ctx context.Context, callID string) (ProgressSnapshot, bool, error)
}

// RedisProgressCache keeps one hash per call with a short TTL so polls
// during a run avoid the database.
type RedisProgressCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisProgressCache(rdb *redis.Client, ttl time.Duration) *RedisProgressCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisProgressCache{rdb: rdb, ttl: ttl}
}

func progressKey(callID string) string { return "call:progress:" + callID }

func (c *RedisProgressCache) SetProgress(ctx context.Context, callID string, snap ProgressSnapshot) error {
	key := progressKey(callID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"status":   string(snap.Status),
		"progress": snap.Progress,
		"message":  snap.Message,
		"error":    snap.ErrorMessage,
	})
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache progress: %w", err)
	}
	return nil
}

func (c *RedisProgressCache) GetProgress(ctx context.Context, callID string) (ProgressSnapshot, bool, error) {
	vals, err := c.rdb.HGetAll(ctx, progressKey(callID)).Result()
	if err != nil {
		return ProgressSnapshot{}, false, fmt.Errorf("read progress cache: %w", err)
	}
	if len(vals) == 0 {
		return ProgressSnapshot{}, false, nil
	}
	progress, _ := strconv.Atoi(vals["progress"])
	return ProgressSnapshot{
		Status:       calls.CallStatus(vals["status"]),
		Progress:     progress,
		Message:      vals["message"],
		ErrorMessage: vals["error"],
	}, true, nil
}
