//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package index maintains an operational metadata index of audit activity
// in redis. The index exists for dashboards and queries; the file-backed
// ledger remains the canonical record, so index failures never fail the
// decision path.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/ledger"
)

var logger = logging.GetLogger("authguard.ledger.index")

const agent = "index"

const (
	keyPrefix      = "authguard:index:"
	entryTTL       = 30 * 24 * time.Hour
	requestTimeout = 500 * time.Millisecond
)

// Index mirrors decision and escalation metadata into redis.
type Index struct {
	client *redis.Client
}

// New connects an index to the redis instance at addr.
func New(addr string) *Index {
	return &Index{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewWithClient wraps an existing client (used by tests).
func NewWithClient(client *redis.Client) *Index {
	return &Index{client: client}
}

// Record indexes an entry's metadata. Errors are logged and swallowed;
// the caller has already committed the entry to the ledger.
func (ix *Index) Record(ctx context.Context, e *ledger.Entry) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	day := e.Partition()
	pipe := ix.client.Pipeline()

	userKey := keyPrefix + "user:" + e.UserID
	pipe.LPush(ctx, userKey, e.EntryID)
	pipe.LTrim(ctx, userKey, 0, 99)
	pipe.Expire(ctx, userKey, entryTTL)

	dayKey := keyPrefix + "day:" + day + ":" + string(e.EventType)
	pipe.Incr(ctx, dayKey)
	pipe.Expire(ctx, dayKey, entryTTL)

	if e.Action != "" {
		actionKey := fmt.Sprintf("%sday:%s:action:%s", keyPrefix, day, e.Action)
		pipe.Incr(ctx, actionKey)
		pipe.Expire(ctx, actionKey, entryTTL)
	}

	if e.EventType == ledger.EventEscalation {
		escKey := keyPrefix + "escalations:" + day
		pipe.LPush(ctx, escKey, e.EntryID)
		pipe.Expire(ctx, escKey, entryTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnf(agent, "record", "index write failed for entry %s: %v", e.EntryID, err)
	}
}

// RecentByUser returns the most recent indexed entry ids for a user,
// newest first, up to limit.
func (ix *Index) RecentByUser(ctx context.Context, userID string, limit int64) ([]string, error) {
	return ix.client.LRange(ctx, keyPrefix+"user:"+userID, 0, limit-1).Result()
}

// CountByDay returns the indexed count of an event type on a UTC day
// (formatted 2006-01-02).
func (ix *Index) CountByDay(ctx context.Context, day string, event ledger.EventType) (int64, error) {
	n, err := ix.client.Get(ctx, keyPrefix+"day:"+day+":"+string(event)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Escalations returns the indexed escalation entry ids for a UTC day.
func (ix *Index) Escalations(ctx context.Context, day string) ([]string, error) {
	return ix.client.LRange(ctx, keyPrefix+"escalations:"+day, 0, -1).Result()
}

// Close releases the redis connection.
func (ix *Index) Close() error {
	return ix.client.Close()
}
