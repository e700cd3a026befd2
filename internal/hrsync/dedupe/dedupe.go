// Package dedupe tracks fingerprints of already-processed messages so a
// redelivered message is applied at most once, surviving process restarts when
// backed by Redis.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers whether a message fingerprint has been processed before and
// records new ones. Implementations are best-effort: a Deduper failure must
// never block message processing.
type Deduper interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Mark(ctx context.Context, fingerprint string) error
}

// Fingerprint derives a stable identity for a raw message body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

const redisKeyPrefix = "sellsync:processed:"

// RedisDeduper stores fingerprints as TTL-bound Redis keys.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, fingerprint string) (bool, error) {
	n, err := d.client.Exists(ctx, redisKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, fingerprint string) error {
	return d.client.Set(ctx, redisKeyPrefix+fingerprint, "1", d.ttl).Err()
}

// MemoryDeduper keeps fingerprints in a map for tests and single-process runs.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemory() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fingerprint]
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[fingerprint] = struct{}{}
	return nil
}
