// Package mood reduces aggregated wearable metrics to a feature vector and classifies it
// into one of four mood labels.
package mood

import (
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

// restingHRBaseline turns resting heart rate into a "higher is better" signal.
const restingHRBaseline = 80

// featureSpec describes how one feature is read from [models.Metrics].
type featureSpec struct {
	source   func(models.Metrics) *float64
	lo, hi   float64
	fallback float64
}

var (
	readinessSpec = featureSpec{source: func(m models.Metrics) *float64 { return m.Readiness }, lo: 0, hi: 100, fallback: 0.5}
	recoverySpec  = featureSpec{source: func(m models.Metrics) *float64 { return m.HRV }, lo: 20, hi: 150, fallback: 0.5}
	sleepSpec     = featureSpec{source: func(m models.Metrics) *float64 { return m.SleepQuality }, lo: 0, hi: 100, fallback: 0.5}
	strainSpec    = featureSpec{source: func(m models.Metrics) *float64 { return m.Strain }, lo: 0, hi: 21, fallback: 0.3}
	restingHRSpec = featureSpec{source: restingHRDelta, lo: -10, hi: 50, fallback: 0.5}
)

func restingHRDelta(m models.Metrics) *float64 {
	if m.RestingHeartRate == nil {
		return nil
	}
	return shared.Float(restingHRBaseline - *m.RestingHeartRate)
}

func (f featureSpec) score(m models.Metrics) float64 {
	if v := Scale(f.source(m), f.lo, f.hi); v != nil {
		return *v
	}
	return f.fallback
}

// Scale maps x linearly from [lo,hi] onto [0,1], clamps, and rounds to 2 decimals.
//
// A nil x yields nil; the caller decides the default.
func Scale(x *float64, lo, hi float64) *float64 {
	if x == nil || hi == lo {
		return nil
	}
	v := (*x - lo) / (hi - lo)
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return shared.Float(shared.Round2(v))
}

// BuildFeatures derives the [models.FeatureVector] for m, substituting defaults for
// unknown metrics.
func BuildFeatures(m models.Metrics) models.FeatureVector {
	return models.FeatureVector{
		ReadinessScore: readinessSpec.score(m),
		RecoveryScore:  recoverySpec.score(m),
		SleepScore:     sleepSpec.score(m),
		StrainScore:    strainSpec.score(m),
		RestingHRScore: restingHRSpec.score(m),
	}
}

// Score is the weighted mood score of fv, rounded to 2 decimals.
func Score(fv models.FeatureVector) float64 {
	return shared.Round2(0.25*fv.ReadinessScore +
		0.20*fv.SleepScore +
		0.20*fv.RecoveryScore +
		0.15*fv.RestingHRScore -
		0.15*fv.StrainScore)
}
