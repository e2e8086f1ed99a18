package swarm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// MemoryEntry is a formatted record the Queen may persist under a
// namespace, e.g. "queen-outcomes".
type MemoryEntry struct {
	Key       string                 `json:"key"`
	Content   string                 `json:"content"`
	Namespace string                 `json:"namespace"`
	Tags      []string               `json:"tags"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	StoredAt  time.Time              `json:"storedAt"`
}

// MemoryService is the narrow outbound interface for semantic search and
// storage of derived memories. Persistence durability of domain entities is
// out of scope; this is an optional best-effort integration only.
type MemoryService interface {
	SemanticSearch(ctx context.Context, query string, k int) ([]MemoryEntry, error)
	Store(ctx context.Context, entry MemoryEntry) error
}

// RedisMemoryService stores entries in Redis, falling back to an in-process
// store when the external backend is unreachable.
type RedisMemoryService struct {
	client  *redis.Client
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewRedisMemoryService connects to addr; callers should fall back to
// InMemoryMemoryService if the ping fails.
func NewRedisMemoryService(addr, password string, db int, logger *logrus.Logger) (*RedisMemoryService, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, integrationErr("redis_unreachable", "cannot reach redis memory store", err)
	}
	return &RedisMemoryService{client: client, logger: logger, breaker: newIntegrationBreaker("memory-redis")}, nil
}

func (r *RedisMemoryService) Store(ctx context.Context, entry MemoryEntry) error {
	entry.StoredAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return integrationErr("marshal_failed", "failed to marshal memory entry", err)
	}
	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.namespacedKey(entry.Namespace, entry.Key), data, 0).Err()
	})
	if err != nil {
		return integrationErr("redis_store_failed", "failed to store memory entry", err)
	}
	return nil
}

func (r *RedisMemoryService) namespacedKey(ns, key string) string {
	return "swarm:memory:" + ns + ":" + key
}

func (r *RedisMemoryService) SemanticSearch(ctx context.Context, query string, k int) ([]MemoryEntry, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Keys(ctx, "swarm:memory:*").Result()
	})
	if err != nil {
		return nil, integrationErr("redis_search_failed", "memory search failed", err)
	}
	keys, _ := res.([]string)
	if len(keys) > k {
		keys = keys[:k]
	}
	var entries []MemoryEntry
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var e MemoryEntry
		if json.Unmarshal(data, &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// InMemoryMemoryService is the in-process fallback when Redis is
// unavailable.
type InMemoryMemoryService struct {
	mu      sync.RWMutex
	entries map[string]MemoryEntry
}

// NewInMemoryMemoryService constructs the fallback store.
func NewInMemoryMemoryService() *InMemoryMemoryService {
	return &InMemoryMemoryService{entries: make(map[string]MemoryEntry)}
}

func (m *InMemoryMemoryService) Store(ctx context.Context, entry MemoryEntry) error {
	entry.StoredAt = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Namespace+":"+entry.Key] = entry
	return nil
}

func (m *InMemoryMemoryService) SemanticSearch(ctx context.Context, query string, k int) ([]MemoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MemoryEntry
	for _, e := range m.entries {
		out = append(out, e)
		if len(out) >= k {
			break
		}
	}
	return out, nil
}
