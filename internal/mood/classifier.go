package mood

import (
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

// Rule pairs a predicate over the feature vector with the label it selects.
type Rule struct {
	Label models.MoodLabel
	Match func(models.FeatureVector) bool
}

// Rules is the ordered classification table. The first matching rule wins and the final
// rule always matches.
var Rules = []Rule{
	{Label: models.MoodFlow, Match: func(fv models.FeatureVector) bool {
		return fv.ReadinessScore > 0.70 && fv.SleepScore > 0.70
	}},
	{Label: models.MoodAmped, Match: func(fv models.FeatureVector) bool {
		return fv.StrainScore > 0.60 && fv.ReadinessScore > 0.55
	}},
	{Label: models.MoodRecovery, Match: func(fv models.FeatureVector) bool {
		return fv.ReadinessScore < 0.45 || fv.SleepScore < 0.45
	}},
	{Label: models.MoodReset, Match: func(models.FeatureVector) bool { return true }},
}

// Label returns the label of the first rule in rules matching fv.
func Label(rules []Rule, fv models.FeatureVector) models.MoodLabel {
	for _, r := range rules {
		if r.Match(fv) {
			return r.Label
		}
	}
	return models.MoodReset
}

// Classifier builds [models.MoodSnapshot] values from aggregated metrics.
type Classifier struct {
	rules []Rule
	now   func() time.Time
}

// NewClassifier creates a [Classifier] using [Rules]. A nil clock uses [time.Now].
func NewClassifier(now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{rules: Rules, now: now}
}

// Classify returns the heuristic snapshot for agg.
//
// Fails with [shared.ErrNoMetrics] when agg is nil.
func (c *Classifier) Classify(agg *models.AggregatedMetrics) (*models.MoodSnapshot, error) {
	if agg == nil {
		return nil, shared.ErrNoMetrics
	}

	fv := BuildFeatures(agg.Metrics)
	profile := ProfileFor(Label(c.rules, fv))

	return &models.MoodSnapshot{
		Label:           profile.Label,
		Score:           Score(fv),
		Summary:         profile.Summary,
		Recommendations: append([]string(nil), profile.Recommendations...),
		PlaylistHints: models.PlaylistHints{
			TargetEnergy:  profile.Energy,
			TargetValence: profile.Valence,
			TargetTempo:   profile.Tempo,
		},
		FeatureVector: fv,
		Source:        models.SourceHeuristic,
		UpdatedAt:     c.now(),
	}, nil
}
