//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"context"
	"sync"
)

// Store owns behavioral profiles keyed by user id. Profiles are created on
// first observation of a user; the per-user lock lives inside the profile
// record, so the store itself needs only a short-lived map lock.
type Store interface {
	// Acquire returns the user's profile, creating an empty one if the user
	// has not been seen, with the profile lock held. Callers must pair
	// every Acquire with Release.
	Acquire(ctx context.Context, userID string) (*Profile, error)

	// Release persists any mutation and releases the profile lock.
	Release(ctx context.Context, p *Profile) error

	// Close releases store resources.
	Close() error
}

// MemoryStore is the default in-process profile arena.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

// Acquire implements Store. The map lock is dropped before the profile
// lock is taken so different users never serialize on each other.
func (s *MemoryStore) Acquire(_ context.Context, userID string) (*Profile, error) {
	s.mu.Lock()
	p, ok := s.profiles[userID]
	if !ok {
		p = NewProfile(userID)
		s.profiles[userID] = p
	}
	s.mu.Unlock()

	p.mu.Lock()
	return p, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, p *Profile) error {
	p.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of tracked users.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
