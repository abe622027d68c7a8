package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// snapshotKeyPrefix namespaces cached snapshots in Redis.
const snapshotKeyPrefix = "candidate:snapshot:"

// DefaultSnapshotTTL is how long a cached snapshot is served before the
// underlying source is consulted again. Short enough that a login shows up
// well inside the seven day activity window.
const DefaultSnapshotTTL = 5 * time.Minute

// CachedSnapshotSource serves snapshots from Redis and falls through to the
// wrapped source for misses. Redis is an optimisation only: when it fails the
// wrapped source is queried for every ID. Errors from the wrapped source are
// returned to the caller unchanged.
type CachedSnapshotSource struct {
	source SnapshotSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSnapshotSource wraps source with a Redis cache.
// A zero ttl uses DefaultSnapshotTTL.
func NewCachedSnapshotSource(source SnapshotSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSnapshotSource {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSnapshotSource{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func snapshotKey(id string) string {
	return snapshotKeyPrefix + id
}

// Snapshots returns cached snapshots, loading and caching the misses.
func (c *CachedSnapshotSource) Snapshots(ctx context.Context, ids []string) (map[string]Snapshot, error) {
	result := make(map[string]Snapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	misses := c.readCached(ctx, ids, result)
	if len(misses) == 0 {
		return result, nil
	}

	loaded, err := c.source.Snapshots(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, s := range loaded {
		result[id] = s
	}

	c.writeCached(ctx, loaded)
	return result, nil
}

// readCached fills result from Redis and returns the IDs that were not found.
func (c *CachedSnapshotSource) readCached(ctx context.Context, ids []string, result map[string]Snapshot) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = snapshotKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "candidate snapshot cache read failed, using source",
			"error", err,
			"ids", len(ids))
		return ids
	}

	var misses []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var s Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		result[ids[i]] = s
	}
	return misses
}

// writeCached stores freshly loaded snapshots. Failures only cost a future miss.
func (c *CachedSnapshotSource) writeCached(ctx context.Context, loaded map[string]Snapshot) {
	if len(loaded) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for id, s := range loaded {
		data, err := json.Marshal(s)
		if err != nil {
			continue
		}
		pipe.Set(ctx, snapshotKey(id), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "candidate snapshot cache write failed",
			"error", fmt.Errorf("pipeline exec: %w", err),
			"count", len(loaded))
	}
}
