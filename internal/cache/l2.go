package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/graphrag/orchestrator/domain"
)

// SharedStore is the L2 backing for the semantic cache, shared across
// process replicas. A nil SharedStore means no L2 is configured, and
// SemanticCache checks for it before every L2 call; RedisStore's methods
// need a non-nil receiver. Cross-replica
// invalidation broadcast is a separate concern, handled over pkg/pgnotify
// rather than Redis (see semantic.go).
type SharedStore interface {
	Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error)
	Set(ctx context.Context, entry *domain.CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// redisEntry is the wire shape stored in Redis: CacheEntry's NodeIDs set
// doesn't marshal directly, so it's flattened to a slice.
type redisEntry struct {
	KeyHash      string   `json:"key_hash"`
	Embedding    []float32 `json:"embedding"`
	Query        string   `json:"query"`
	Result       json.RawMessage `json:"result"`
	CreatedAtUnix int64   `json:"created_at_unix"`
	TTLSeconds   float64  `json:"ttl_seconds"`
	TenantID     string   `json:"tenant_id"`
	ACLKey       string   `json:"acl_key"`
	NodeIDs      []string `json:"node_ids"`
	TopologyHash string   `json:"topology_hash"`
	AccessCount  int64    `json:"access_count"`
	Quality      string   `json:"quality"`
}

// RedisStore is the go-redis-backed SharedStore implementation. Keys are
// namespaced under "semcache:" so the cache can share a Redis instance with
// other data.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client. The caller owns the
// client's lifecycle (construction from REDIS_URL, Close on shutdown).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "semcache:"}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, false, err
	}
	var result interface{}
	if len(re.Result) > 0 {
		if err := json.Unmarshal(re.Result, &result); err != nil {
			return nil, false, err
		}
	}
	nodeIDs := make(map[string]struct{}, len(re.NodeIDs))
	for _, id := range re.NodeIDs {
		nodeIDs[id] = struct{}{}
	}
	entry := &domain.CacheEntry{
		KeyHash:      re.KeyHash,
		Embedding:    re.Embedding,
		Query:        re.Query,
		Result:       result,
		CreatedAt:    time.Unix(re.CreatedAtUnix, 0),
		TTLSeconds:   re.TTLSeconds,
		TenantID:     re.TenantID,
		ACLKey:       re.ACLKey,
		NodeIDs:      nodeIDs,
		TopologyHash: re.TopologyHash,
		AccessCount:  re.AccessCount,
		Quality:      domain.CacheQuality(re.Quality),
	}
	return entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, entry *domain.CacheEntry) error {
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return err
	}
	nodeIDs := make([]string, 0, len(entry.NodeIDs))
	for id := range entry.NodeIDs {
		nodeIDs = append(nodeIDs, id)
	}
	re := redisEntry{
		KeyHash:       entry.KeyHash,
		Embedding:     entry.Embedding,
		Query:         entry.Query,
		Result:        resultJSON,
		CreatedAtUnix: entry.CreatedAt.Unix(),
		TTLSeconds:    entry.TTLSeconds,
		TenantID:      entry.TenantID,
		ACLKey:        entry.ACLKey,
		NodeIDs:       nodeIDs,
		TopologyHash:  entry.TopologyHash,
		AccessCount:   entry.AccessCount,
		Quality:       string(entry.Quality),
	}
	payload, err := json.Marshal(re)
	if err != nil {
		return err
	}
	ttl := time.Duration(entry.TTLSeconds * float64(time.Second))
	return r.client.Set(ctx, r.key(entry.KeyHash), payload, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	// UNLINK is the non-blocking counterpart to DEL, per section 4.3's note
	// that invalidation must not stall on a large key.
	return r.client.Unlink(ctx, r.key(key)).Err()
}
