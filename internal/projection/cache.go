// Package projection keeps a rebuildable redis copy of each innovation's grouped
// status and round progress. The canonical tables stay the source of truth; a
// missing or expired entry is simply recomputed.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"innovation/engine/internal/lifecycle"
)

const (
	keyPrefix        = "engine:grouped-status:"
	generationPrefix = "engine:grouped-status-gen:"
)

type Entry struct {
	InnovationID  string                  `json:"innovation_id"`
	GroupedStatus lifecycle.GroupedStatus `json:"grouped_status"`
	Progress      lifecycle.Progress      `json:"progress"`
	ComputedAt    time.Time               `json:"computed_at"`
}

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// NewCacheFromURL dials redis and verifies the connection.
func NewCacheFromURL(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewCache(client, ttl), nil
}

func (c *Cache) key(innovationID string) string {
	return keyPrefix + innovationID
}

func (c *Cache) generationKey(innovationID string) string {
	return generationPrefix + innovationID
}

// Lookup is a cache read together with the innovation's generation at the time
// of the read. A writer that computed from older tables holds an older
// generation and cannot overwrite a newer invalidation.
type Lookup struct {
	Entry      Entry
	Found      bool
	Generation int64
}

// Get reads the entry and its generation in one MULTI.
func (c *Cache) Get(ctx context.Context, innovationID string) (Lookup, error) {
	var entryCmd, generationCmd *redis.StringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entryCmd = pipe.Get(ctx, c.key(innovationID))
		generationCmd = pipe.Get(ctx, c.generationKey(innovationID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lookup{}, fmt.Errorf("get projection: %w", err)
	}

	var lookup Lookup
	lookup.Generation, err = generationCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Lookup{}, fmt.Errorf("get projection generation: %w", err)
	}
	raw, err := entryCmd.Result()
	if errors.Is(err, redis.Nil) {
		return lookup, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("get projection: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &lookup.Entry); err != nil {
		return Lookup{}, fmt.Errorf("unmarshal projection: %w", err)
	}
	lookup.Found = true
	return lookup, nil
}

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Set stores entry if no invalidation happened since generation was read. It
// reports whether the entry was written.
func (c *Cache) Set(ctx context.Context, entry Entry, generation int64) (bool, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal projection: %w", err)
	}
	keys := []string{c.key(entry.InnovationID), c.generationKey(entry.InnovationID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), payload, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("save projection: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the entry and bumps the generation so that in-flight
// computations started before the change are discarded.
func (c *Cache) Invalidate(ctx context.Context, innovationID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(innovationID))
		pipe.Del(ctx, c.key(innovationID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate projection: %w", err)
	}
	return nil
}

// ComputeFunc derives a fresh entry from the canonical tables.
type ComputeFunc func(ctx context.Context, innovationID string) (Entry, error)

// Rebuild recomputes and stores the entry of every innovation with at most
// parallelism computations in flight. It stops at the first failure and returns
// how many entries were written; entries invalidated mid-flight are skipped.
func (c *Cache) Rebuild(ctx context.Context, innovationIDs []string, parallelism int, compute ComputeFunc) (int, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, id := range innovationIDs {
		g.Go(func() error {
			current, err := c.Get(gctx, id)
			if err != nil {
				return err
			}
			entry, err := compute(gctx, id)
			if err != nil {
				return fmt.Errorf("compute projection %s: %w", id, err)
			}
			stored, err := c.Set(gctx, entry, current.Generation)
			if err != nil {
				return err
			}
			if stored {
				written.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
