// Package wearable turns provider payloads into canonical samples and keeps the latest
// sample per provider for aggregation.
package wearable

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

const (
	ProviderWhoop  models.ProviderID = "whoop"
	ProviderOura   models.ProviderID = "oura"
	ProviderGarmin models.ProviderID = "garmin"
	ProviderManual models.ProviderID = "manual"
)

// Mapping lists, per canonical metric, the dotted source paths to try in order.
type Mapping map[models.MetricKey][]string

// DefaultMappings returns the built-in provider mappings.
func DefaultMappings() map[models.ProviderID]Mapping {
	return map[models.ProviderID]Mapping{
		ProviderWhoop: {
			models.MetricHRV:              {"recovery.score.hrv_rmssd_milli", "recovery.hrv_rmssd_milli", "recovery.hrv"},
			models.MetricSleepQuality:     {"sleep.score.sleep_performance_percentage", "sleep.sleep_performance_percentage", "sleep.score"},
			models.MetricStrain:           {"strain.score.strain", "strain.score", "strain.strain", "strain"},
			models.MetricReadiness:        {"recovery.score.recovery_score", "recovery.recovery_score", "recovery.score"},
			models.MetricRestingHeartRate: {"recovery.score.resting_heart_rate", "recovery.resting_heart_rate"},
		},
		ProviderOura: {
			models.MetricHRV:              {"readiness.hrv", "readiness.contributors.hrv_balance", "sleep.average_hrv"},
			models.MetricSleepQuality:     {"sleep.score"},
			models.MetricStrain:           {"activity.strain"},
			models.MetricReadiness:        {"readiness.score"},
			models.MetricRestingHeartRate: {"readiness.resting_heart_rate", "sleep.lowest_heart_rate"},
		},
		ProviderGarmin: {
			models.MetricHRV:              {"hrv.lastNightAvg", "hrv.weeklyAvg"},
			models.MetricSleepQuality:     {"sleep.sleepScores.overall.value", "sleep.overallScore"},
			models.MetricStrain:           {"trainingLoad.strain", "strain"},
			models.MetricReadiness:        {"trainingReadiness.score", "bodyBattery.highest"},
			models.MetricRestingHeartRate: {"heartRate.restingHeartRate", "restingHeartRate"},
		},
		ProviderManual: {
			models.MetricHRV:              {"hrv"},
			models.MetricSleepQuality:     {"sleepQuality"},
			models.MetricStrain:           {"strain"},
			models.MetricReadiness:        {"readiness"},
			models.MetricRestingHeartRate: {"restingHeartRate"},
		},
	}
}

// Normalizer maps provider payloads onto [models.CanonicalSample].
type Normalizer struct {
	mappings map[models.ProviderID]Mapping
	now      func() time.Time
}

// NewNormalizer creates a [Normalizer]. A nil mappings table uses [DefaultMappings] and a nil
// clock uses [time.Now].
func NewNormalizer(mappings map[models.ProviderID]Mapping, now func() time.Time) *Normalizer {
	if mappings == nil {
		mappings = DefaultMappings()
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{mappings: mappings, now: now}
}

// Providers returns the registered provider ids, sorted.
func (n *Normalizer) Providers() []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(n.mappings))
	for id := range n.mappings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Supports reports whether provider has a registered mapping.
func (n *Normalizer) Supports(provider models.ProviderID) bool {
	_, ok := n.mappings[provider]
	return ok
}

// Normalize builds a canonical sample for provider from payload.
//
// Only an unknown provider is an error; absent or malformed fields become null.
func (n *Normalizer) Normalize(provider models.ProviderID, payload map[string]any) (models.CanonicalSample, error) {
	mapping, ok := n.mappings[provider]
	if !ok {
		return models.CanonicalSample{}, &shared.UnsupportedProviderError{Provider: string(provider)}
	}

	var metrics models.Metrics
	for _, key := range models.MetricKeys {
		for _, path := range mapping[key] {
			if v := toNumber(lookup(payload, path)); v != nil {
				metrics.Set(key, v)
				break
			}
		}
	}

	return models.CanonicalSample{
		Provider:   provider,
		Timestamp:  n.now(),
		Metrics:    metrics,
		RawPayload: payload,
	}, nil
}

// lookup walks a dotted path through nested maps and slices. Missing segments yield nil.
func lookup(root any, path string) any {
	current := root
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}

// toNumber coerces v to a finite float or returns nil.
func toNumber(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
