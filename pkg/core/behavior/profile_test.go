//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantEmbedding(value float64) []float64 {
	v := make([]float64, EmbeddingDim)
	for i := range v {
		v[i] = value
	}
	return v
}

func TestCentroidEMA(t *testing.T) {
	p := NewProfile("user-1")
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// With n=0 the first update sets the centroid outright (alpha = 1).
	p.Update(constantEmbedding(1), now)
	assert.InDelta(t, 1.0, p.Centroid[0], 1e-12)
	assert.Equal(t, 1, p.SessionCount)

	// Second update: alpha = 1/2.
	p.Update(constantEmbedding(0), now)
	assert.InDelta(t, 0.5, p.Centroid[0], 1e-12)

	// Third update: alpha = 1/3.
	p.Update(constantEmbedding(0.5), now)
	assert.InDelta(t, 0.5, p.Centroid[0], 1e-12)
}

func TestCentroidEMASwitchover(t *testing.T) {
	p := NewProfile("user-1")
	now := time.Now()

	for i := 0; i < emaSwitchover; i++ {
		p.Update(constantEmbedding(0), now)
	}
	require.Equal(t, emaSwitchover, p.SessionCount)
	require.InDelta(t, 0.0, p.Centroid[0], 1e-12)

	// Past the switchover the smoothing factor is fixed.
	p.Update(constantEmbedding(1), now)
	assert.InDelta(t, emaFixedAlpha, p.Centroid[0], 1e-12)
}

func TestRingBufferCap(t *testing.T) {
	p := NewProfile("user-1")
	now := time.Now()

	for i := 0; i < ringCapacity+20; i++ {
		p.Update(constantEmbedding(float64(i)), now)
	}
	assert.Len(t, p.Recent, ringCapacity)
	// Oldest entries were evicted; the newest observation is last.
	assert.InDelta(t, float64(ringCapacity+19), p.Recent[ringCapacity-1][0], 1e-12)
	assert.InDelta(t, 20.0, p.Recent[0][0], 1e-12)
}

func TestCovarianceAvailability(t *testing.T) {
	p := NewProfile("user-1")
	now := time.Now()

	p.Update(constantEmbedding(1), now)
	assert.False(t, p.hasCovariance(), "one observation cannot support covariance")

	p.Update(constantEmbedding(2), now)
	assert.True(t, p.hasCovariance())
}

func TestValid(t *testing.T) {
	p := NewProfile("user-1")
	now := time.Now()

	assert.False(t, p.Valid(5))
	for i := 0; i < 5; i++ {
		p.Update(constantEmbedding(0), now)
	}
	assert.True(t, p.Valid(5))
}
