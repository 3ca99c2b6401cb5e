package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/models"
)

// setProjectionScript writes one field of the account hash and refreshes
// the hash TTL in a single round trip.
var setProjectionScript = redis.NewScript(`
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// RedisCache shares projections between API replicas. Each account is one
// hash whose fields are cache keys; invalidation deletes the hash.
// Redis errors degrade to cache misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "projection"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, log: log}
}

var _ Cache = (*RedisCache)(nil)

type wireEntry struct {
	Date   string                  `json:"date"`
	Status models.ProjectionStatus `json:"status"`
}

func (c *RedisCache) hashKey(accountID uuid.UUID) string {
	return c.prefix + ":" + accountID.String()
}

func (c *RedisCache) Get(ctx context.Context, accountID uuid.UUID, key string) ([]models.ProjectionEntry, bool) {
	raw, err := c.client.HGet(ctx, c.hashKey(accountID), key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("projection cache read failed", "account_id", accountID, "error", err)
		}
		return nil, false
	}
	var wire []wireEntry
	if err := json.Unmarshal(raw, &wire); err != nil {
		c.log.Warn("projection cache entry corrupt", "account_id", accountID, "error", err)
		return nil, false
	}
	out := make([]models.ProjectionEntry, 0, len(wire))
	for _, w := range wire {
		d, err := calendar.Parse(w.Date)
		if err != nil {
			return nil, false
		}
		out = append(out, models.ProjectionEntry{Date: d, Status: w.Status})
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, accountID uuid.UUID, key string, entries []models.ProjectionEntry) {
	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		wire[i] = wireEntry{Date: calendar.Format(e.Date), Status: e.Status}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return
	}
	if err := setProjectionScript.Run(ctx, c.client, []string{c.hashKey(accountID)}, key, body, c.ttl.Milliseconds()).Err(); err != nil {
		c.log.Warn("projection cache write failed", "account_id", accountID, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, accountID uuid.UUID) {
	if err := c.client.Del(ctx, c.hashKey(accountID)).Err(); err != nil {
		c.log.Warn("projection cache invalidate failed", "account_id", accountID, "error", err)
	}
}
