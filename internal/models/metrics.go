package models

import "time"

// ProviderID names a wearable data provider (e.g. "whoop", "oura").
type ProviderID string

// MetricKey names one of the five canonical metrics.
type MetricKey string

const (
	MetricHRV              MetricKey = "hrv"
	MetricSleepQuality     MetricKey = "sleepQuality"
	MetricStrain           MetricKey = "strain"
	MetricReadiness        MetricKey = "readiness"
	MetricRestingHeartRate MetricKey = "restingHeartRate"
)

// MetricKeys lists the canonical metrics in schema order.
var MetricKeys = []MetricKey{MetricHRV, MetricSleepQuality, MetricStrain, MetricReadiness, MetricRestingHeartRate}

// Metrics holds the canonical metric values. A nil field means the value is unknown.
type Metrics struct {
	HRV              *float64 `json:"hrv"`
	SleepQuality     *float64 `json:"sleepQuality"`
	Strain           *float64 `json:"strain"`
	Readiness        *float64 `json:"readiness"`
	RestingHeartRate *float64 `json:"restingHeartRate"`
}

// Get returns the value stored under key.
func (m Metrics) Get(key MetricKey) *float64 {
	switch key {
	case MetricHRV:
		return m.HRV
	case MetricSleepQuality:
		return m.SleepQuality
	case MetricStrain:
		return m.Strain
	case MetricReadiness:
		return m.Readiness
	case MetricRestingHeartRate:
		return m.RestingHeartRate
	default:
		return nil
	}
}

// Set stores v under key. Unknown keys are ignored.
func (m *Metrics) Set(key MetricKey, v *float64) {
	switch key {
	case MetricHRV:
		m.HRV = v
	case MetricSleepQuality:
		m.SleepQuality = v
	case MetricStrain:
		m.Strain = v
	case MetricReadiness:
		m.Readiness = v
	case MetricRestingHeartRate:
		m.RestingHeartRate = v
	}
}

// CanonicalSample is a single provider reading normalized to the canonical schema.
//
// Samples are immutable once built; a newer sample for the same provider replaces the old one.
type CanonicalSample struct {
	Provider   ProviderID     `json:"provider"`
	Timestamp  time.Time      `json:"timestamp"`
	Metrics    Metrics        `json:"metrics"`
	RawPayload map[string]any `json:"rawPayload,omitempty"`
}

// AggregatedMetrics is the per-metric average across the latest sample of every provider.
type AggregatedMetrics struct {
	SampleCount int          `json:"sampleCount"`
	Providers   []ProviderID `json:"providers"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Metrics     Metrics      `json:"metrics"`
}
