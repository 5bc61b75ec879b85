//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces profile keys in the shared keyspace.
const redisKeyPrefix = "authguard:profile:"

// RedisStore persists behavioral profiles as JSON values keyed by user id,
// layered over an in-process cache. The cache entry is authoritative for
// the process lifetime; redis provides warm starts across restarts.
//
// Per-user exclusivity is process-local: this store assumes a single
// decision-engine process owns a given user's profile at a time, which
// matches the deployment model of one engine per login gateway.
type RedisStore struct {
	client *redis.Client

	mu    sync.Mutex
	cache map[string]*Profile
}

// NewRedisStore creates a redis-backed profile store.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		cache:  make(map[string]*Profile),
	}
}

// Acquire implements Store. Initial absence in redis means create-new.
func (s *RedisStore) Acquire(ctx context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	p, ok := s.cache[userID]
	if !ok {
		loaded, err := s.load(ctx, userID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		p = loaded
		s.cache[userID] = p
	}
	s.mu.Unlock()

	p.mu.Lock()
	return p, nil
}

func (s *RedisStore) load(ctx context.Context, userID string) (*Profile, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return NewProfile(userID), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load profile %s", userID)
	}

	p := NewProfile(userID)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errors.Wrapf(err, "decode profile %s", userID)
	}
	p.rebuildCovariance()
	return p, nil
}

// Release persists the profile back to redis and releases the lock. The
// write happens while the lock is still held so released state is never
// older than what the next holder observes.
func (s *RedisStore) Release(ctx context.Context, p *Profile) error {
	defer p.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "encode profile %s", p.UserID)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+p.UserID, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "store profile %s", p.UserID)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
