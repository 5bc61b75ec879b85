//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package behavior scores how well a session matches a user's rolling
// behavioral baseline.
//
// Each login is embedded into a 16-dimensional space; the evaluator
// measures the distance of the embedding from the user's profile centroid,
// preferring Mahalanobis distance when a covariance estimate is available,
// then cosine, then Euclidean. Distance maps to an anomaly score in [0,1]
// through piecewise-linear normalization with method-specific cutoffs, and
// match score is its complement.
package behavior

import (
	"context"
	"math"
	"time"

	"github.com/trustline/authguard/internal/logging"
	"github.com/trustline/authguard/pkg/common"
	"github.com/trustline/authguard/pkg/core/model"
	"gonum.org/v1/gonum/mat"
)

var logger = logging.GetLogger("authguard.behavior")

const agent = "behavior"

// newUserMatchScore is returned while a user has no valid baseline: the
// benefit of the doubt, not a zero.
const newUserMatchScore = 0.90

// TagNewUser is the single deviation emitted for users without a baseline.
const TagNewUser = "new_user_no_baseline"

// Distance normalization cutoffs. Distances at or below low map to anomaly
// 0, at or above high to anomaly 1, linear in between.
const (
	mahalanobisLow  = 2.0
	mahalanobisHigh = 6.0
	cosineLow       = 0.10
	cosineHigh      = 0.60
	euclideanLow    = 0.50
	euclideanHigh   = 2.00
)

// Per-group deviation thresholds on the absolute difference between the
// session embedding and the profile centroid.
const (
	timeDeviation     = 0.8
	dayDeviation      = 0.8
	deviceDeviation   = 0.7
	authDeviation     = 0.7
	locationDeviation = 0.25
	vpnDeviation      = 0.5
	torDeviation      = 0.5
	gapDeviation      = 0.3
)

// Options configures the behavior evaluator.
type Options struct {
	// MinSessions is the number of observed sessions before a profile is a
	// valid baseline.
	MinSessions int
	// UpdateOnScore controls whether scoring a session also folds it into
	// the profile.
	UpdateOnScore bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{MinSessions: 5, UpdateOnScore: true}
}

// Evaluator scores sessions against per-user behavioral profiles. Shared
// state lives in the Store; the evaluator itself is stateless and safe for
// concurrent use.
type Evaluator struct {
	store Store
	opts  Options
	clock func() time.Time
}

// NewEvaluator creates a behavior evaluator over the given profile store.
func NewEvaluator(store Store, opts Options) *Evaluator {
	if opts.MinSessions <= 0 {
		opts.MinSessions = DefaultOptions().MinSessions
	}
	return &Evaluator{store: store, opts: opts, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// Evaluate scores the session against the user's profile. The per-user
// lock is held across read, score, and (when enabled) update, so
// concurrent requests for the same user serialize while different users
// run fully in parallel.
func (e *Evaluator) Evaluate(ctx context.Context, login *model.LoginEvent, session *model.Session, device *model.Device, user *model.User) (model.BehaviorEvaluation, error) {
	embedding := Embed(login, session, device)

	profile, err := e.store.Acquire(ctx, user.UserID)
	if err != nil {
		return model.BehaviorEvaluation{}, common.WrapError(common.CodeAgent, "behavioral profile unavailable", err)
	}

	var eval model.BehaviorEvaluation
	if !profile.Valid(e.opts.MinSessions) {
		eval = model.BehaviorEvaluation{
			MatchScore: newUserMatchScore,
			Deviations: []string{TagNewUser},
		}
	} else {
		eval = score(profile, embedding)
	}

	if e.opts.UpdateOnScore {
		profile.Update(embedding, e.clock())
	}

	if err := e.store.Release(ctx, profile); err != nil {
		// The score already stands; a persistence failure must not void it.
		logger.Warnf(agent, "evaluate", "profile release for %s failed: %+v", user.UserID, err)
	}

	return eval, nil
}

// score computes the anomaly of an embedding against a valid profile.
// Caller must hold the profile lock.
func score(p *Profile, embedding []float64) model.BehaviorEvaluation {
	var anomaly float64
	switch {
	case p.hasCovariance():
		anomaly = normalize(mahalanobis(p, embedding), mahalanobisLow, mahalanobisHigh)
	case norm(p.Centroid) > 0 && norm(embedding) > 0:
		anomaly = normalize(cosineDistance(p.Centroid, embedding), cosineLow, cosineHigh)
	default:
		anomaly = normalize(euclidean(p.Centroid, embedding), euclideanLow, euclideanHigh)
	}

	return model.BehaviorEvaluation{
		MatchScore: 1 - anomaly,
		Deviations: deviations(p.Centroid, embedding),
	}
}

// normalize maps a distance into [0,1] anomaly piecewise-linearly.
func normalize(distance, low, high float64) float64 {
	if distance <= low {
		return 0
	}
	if distance >= high {
		return 1
	}
	return (distance - low) / (high - low)
}

func mahalanobis(p *Profile, embedding []float64) float64 {
	diff := mat.NewVecDense(EmbeddingDim, nil)
	for i := range embedding {
		diff.SetVec(i, embedding[i]-p.Centroid[i])
	}

	var tmp mat.VecDense
	tmp.MulVec(p.invCov, diff)
	d2 := mat.Dot(diff, &tmp)
	if d2 < 0 {
		// Numerical noise from the pseudoinverse path.
		d2 = 0
	}
	return math.Sqrt(d2)
}

func cosineDistance(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot/(norm(a)*norm(b))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

type deviationGroup struct {
	tag       string
	dims      []int
	threshold float64
}

// deviationGroups fixes the stable emission order:
// time → day → device → auth → location → vpn → tor → gap.
var deviationGroups = []deviationGroup{
	{"unusual_login_time", []int{dimHourSin, dimHourCos}, timeDeviation},
	{"unusual_login_day", []int{dimDaySin, dimDayCos}, dayDeviation},
	{"unusual_device_type", []int{dimDeviceDesktop, dimDeviceMobile, dimDeviceTablet}, deviceDeviation},
	{"unusual_auth_method", []int{dimAuthPassword, dimAuthMFA, dimAuthSSO, dimAuthBiometric}, authDeviation},
	{"unusual_location", []int{dimLatitude, dimLongitude}, locationDeviation},
	{"vpn_usage_change", []int{dimVPN}, vpnDeviation},
	{"tor_usage_change", []int{dimTor}, torDeviation},
	{"unusual_login_gap", []int{dimLoginGap}, gapDeviation},
}

// deviations inspects per-feature-group absolute differences between the
// embedding and the centroid against fixed thresholds.
func deviations(centroid, embedding []float64) []string {
	var tags []string
	for _, g := range deviationGroups {
		var maxDiff float64
		for _, d := range g.dims {
			if diff := math.Abs(embedding[d] - centroid[d]); diff > maxDiff {
				maxDiff = diff
			}
		}
		if maxDiff > g.threshold {
			tags = append(tags, g.tag)
		}
	}
	return tags
}
