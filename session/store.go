package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// Store keeps session values by ID. Get returns nil values for an unknown or
// expired ID.
type Store interface {
	Get(ctx context.Context, id string) (Values, error)
	Set(ctx context.Context, id string, values Values, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

type memoryEntry struct {
	values  Values
	expires time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expires) {
		delete(s.entries, id)
		return nil, nil
	}
	return copyValues(entry.values), nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, id string, values Values, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[id] = memoryEntry{values: copyValues(values), expires: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Destroy implements Store.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func copyValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// RedisStore keeps sessions in Redis as JSON documents with a TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (Values, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	values := Values{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, id string, values Values, ttl time.Duration) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+id, data, ttl).Err()
}

// Destroy implements Store.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}
