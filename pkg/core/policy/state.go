//
//  Copyright © Trustline Inc. All rights reserved.
//

package policy

import (
	"hash/fnv"
	"sync"
	"time"
)

// stripeCount is the number of lock stripes over the per-user state map.
// User ids hash onto stripes, so contention is limited to hash collisions
// rather than a single global lock.
const stripeCount = 64

type userState struct {
	// highRisk holds timestamps of the current consecutive run of
	// high-risk observations, oldest first. A low-risk observation clears
	// it.
	highRisk []time.Time

	// actionDay is the UTC day the action counter applies to.
	actionDay string
	// actionCount counts automated actions taken for the user on actionDay.
	actionCount int
}

type stripe struct {
	mu    sync.Mutex
	users map[string]*userState
}

// stateTable is the striped per-user sliding-window state behind the
// policy rules.
type stateTable struct {
	stripes [stripeCount]stripe
	clock   func() time.Time
}

func newStateTable(clock func() time.Time) *stateTable {
	t := &stateTable{clock: clock}
	for i := range t.stripes {
		t.stripes[i].users = make(map[string]*userState)
	}
	return t
}

func (t *stateTable) stripeFor(userID string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.stripes[h.Sum32()%stripeCount]
}

func (t *stateTable) get(s *stripe, userID string) *userState {
	u := s.users[userID]
	if u == nil {
		u = &userState{}
		s.users[userID] = u
	}
	return u
}

// observeHighRisk records a high-risk observation and returns the length
// of the consecutive run within the window.
func (t *stateTable) observeHighRisk(userID string, window time.Duration) int {
	now := t.clock()
	s := t.stripeFor(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	u := t.get(s, userID)

	// Expire observations older than the window.
	cutoff := now.Add(-window)
	kept := u.highRisk[:0]
	for _, ts := range u.highRisk {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	u.highRisk = append(kept, now)

	return len(u.highRisk)
}

// clearHighRisk resets the consecutive run after a low-risk observation.
func (t *stateTable) clearHighRisk(userID string) {
	s := t.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.users[userID]; u != nil {
		u.highRisk = nil
	}
}

// countAction increments and returns the user's action count for the
// current UTC day.
func (t *stateTable) countAction(userID string) int {
	now := t.clock().UTC()
	day := now.Format("2006-01-02")

	s := t.stripeFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := t.get(s, userID)
	if u.actionDay != day {
		u.actionDay = day
		u.actionCount = 0
	}
	u.actionCount++
	return u.actionCount
}
