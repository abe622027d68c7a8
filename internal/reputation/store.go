package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists computed reputations.
type Store interface {
	Save(ctx context.Context, r Reputation) error
	// Get returns ErrReputationNotFound when nothing is stored.
	Get(ctx context.Context, referrerID string) (*Reputation, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu          sync.RWMutex
	reputations map[string]Reputation
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reputations: make(map[string]Reputation),
	}
}

// Save stores a reputation.
func (s *InMemoryStore) Save(_ context.Context, r Reputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reputations[r.ReferrerID] = r
	return nil
}

// Get retrieves a copy of a stored reputation.
func (s *InMemoryStore) Get(_ context.Context, referrerID string) (*Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reputations[referrerID]
	if !ok {
		return nil, ErrReputationNotFound
	}
	return &r, nil
}

const reputationKeyPrefix = "reputation:"

// RedisStore keeps reputations as JSON values in Redis so every API instance
// serves the same snapshot.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps values until
// they are overwritten.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func reputationKey(referrerID string) string {
	return reputationKeyPrefix + referrerID
}

// Save writes the reputation under reputation:<referrerID>.
func (s *RedisStore) Save(ctx context.Context, r Reputation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reputation: %w", err)
	}
	if err := s.client.Set(ctx, reputationKey(r.ReferrerID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save reputation: %w", err)
	}
	return nil
}

// Get reads a stored reputation.
func (s *RedisStore) Get(ctx context.Context, referrerID string) (*Reputation, error) {
	data, err := s.client.Get(ctx, reputationKey(referrerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReputationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reputation: %w", err)
	}

	var r Reputation
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode reputation: %w", err)
	}
	return &r, nil
}
