//
//  Copyright © Trustline Inc. All rights reserved.
//

package behavior

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ringCapacity bounds the per-user buffer of recent embeddings used for
// covariance re-estimation.
const ringCapacity = 50

// emaSwitchover is the session count at which the centroid EMA switches
// from 1/(n+1) to a fixed smoothing factor.
const emaSwitchover = 10

// emaFixedAlpha is the fixed smoothing factor after switchover.
const emaFixedAlpha = 0.1

// covDecay is the exponential time-decay factor applied per step of ring
// buffer age during covariance estimation.
const covDecay = 0.95

// covRegularizer is added along the diagonal before inversion.
const covRegularizer = 1e-4

// Profile is the rolling behavioral state for one user: the centroid and
// covariance of recent session embeddings.
//
// Only the behavior evaluator mutates a profile, under the profile's own
// lock; concurrent requests for the same user serialize on it while
// different users proceed fully in parallel.
type Profile struct {
	mu sync.Mutex

	UserID       string      `json:"user_id"`
	Centroid     []float64   `json:"centroid"`
	SessionCount int         `json:"session_count"`
	LastUpdated  time.Time   `json:"last_updated"`
	Recent       [][]float64 `json:"recent"` // ring of recent embeddings, oldest first

	// Derived, rebuilt on update; not serialized.
	cov    *mat.SymDense
	invCov *mat.Dense
}

// NewProfile creates an empty profile for a user.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:   userID,
		Centroid: make([]float64, EmbeddingDim),
	}
}

// Valid reports whether the profile has seen enough sessions to serve as a
// baseline.
func (p *Profile) Valid(minSessions int) bool {
	return p.SessionCount >= minSessions
}

// Update folds an embedding into the profile: EMA centroid, ring buffer
// append, and covariance re-estimation. Caller must hold the profile lock.
func (p *Profile) Update(embedding []float64, now time.Time) {
	n := p.SessionCount

	alpha := emaFixedAlpha
	if n < emaSwitchover {
		alpha = 1 / float64(n+1)
	}
	for i := range p.Centroid {
		p.Centroid[i] += alpha * (embedding[i] - p.Centroid[i])
	}

	recent := append(p.Recent, append([]float64(nil), embedding...))
	if len(recent) > ringCapacity {
		recent = recent[len(recent)-ringCapacity:]
	}
	p.Recent = recent

	p.SessionCount = n + 1
	p.LastUpdated = now

	p.rebuildCovariance()
}

// rebuildCovariance re-estimates the covariance from the ring buffer with
// exponential time decay, regularizes the diagonal, and caches the inverse.
// Estimation needs at least two observations; otherwise the covariance is
// cleared and distance scoring falls back to cosine.
func (p *Profile) rebuildCovariance() {
	p.cov, p.invCov = nil, nil

	m := len(p.Recent)
	if m < 2 {
		return
	}

	// Weighted mean with decay: newest observation carries weight 1.
	weights := make([]float64, m)
	var wsum float64
	for i := range p.Recent {
		w := 1.0
		for age := 0; age < m-1-i; age++ {
			w *= covDecay
		}
		weights[i] = w
		wsum += w
	}

	mean := make([]float64, EmbeddingDim)
	for i, row := range p.Recent {
		for j := range mean {
			mean[j] += weights[i] * row[j]
		}
	}
	for j := range mean {
		mean[j] /= wsum
	}

	cov := mat.NewSymDense(EmbeddingDim, nil)
	for i, row := range p.Recent {
		w := weights[i] / wsum
		for a := 0; a < EmbeddingDim; a++ {
			da := row[a] - mean[a]
			for b := a; b < EmbeddingDim; b++ {
				db := row[b] - mean[b]
				cov.SetSym(a, b, cov.At(a, b)+w*da*db)
			}
		}
	}
	for a := 0; a < EmbeddingDim; a++ {
		cov.SetSym(a, a, cov.At(a, a)+covRegularizer)
	}
	p.cov = cov

	inv := mat.NewDense(EmbeddingDim, EmbeddingDim, nil)
	if err := inv.Inverse(cov); err != nil {
		// Singular despite regularization; fall back to the Moore-Penrose
		// pseudoinverse built from the SVD factors.
		p.invCov = pseudoInverse(cov)
		return
	}
	p.invCov = inv
}

// pseudoInverse computes V * diag(1/s) * Uᵀ, zeroing reciprocal singular
// values below tolerance. Returns nil if the factorization fails.
func pseudoInverse(a mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	const tol = 1e-10
	sInv := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tol {
			sInv.Set(i, i, 1/s)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(&v, sInv)
	pinv.Mul(&tmp, u.T())
	return &pinv
}

// hasCovariance reports whether a cached inverse covariance is available
// for Mahalanobis scoring. Caller must hold the profile lock.
func (p *Profile) hasCovariance() bool {
	return p.invCov != nil
}
