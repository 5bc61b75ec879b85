//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

	store := NewRedisStore(mr.Addr())
	defer store.Close()

	p, err := store.Acquire(ctx, "user-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		p.Update(constantEmbedding(0.5), now)
	}
	require.NoError(t, store.Release(ctx, p))

	// A cold store against the same redis sees the persisted profile and
	// rebuilds the derived covariance.
	cold := NewRedisStore(mr.Addr())
	defer cold.Close()

	loaded, err := cold.Acquire(ctx, "user-1")
	require.NoError(t, err)
	defer cold.Release(ctx, loaded) //nolint:errcheck

	assert.Equal(t, 3, loaded.SessionCount)
	assert.InDelta(t, 0.5, loaded.Centroid[0], 1e-12)
	assert.Len(t, loaded.Recent, 3)
	assert.True(t, loaded.hasCovariance())
}

func TestRedisStoreUnknownUser(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := NewRedisStore(mr.Addr())
	defer store.Close()

	p, err := store.Acquire(ctx, "never-seen")
	require.NoError(t, err)
	assert.Equal(t, 0, p.SessionCount)
	assert.False(t, p.Valid(1))
	require.NoError(t, store.Release(ctx, p))
}
