package wearable

import (
	"sync"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

// Store keeps the latest [models.CanonicalSample] per provider key.
//
// Keys keep the position of their first insertion so aggregation order is stable.
type Store struct {
	mu      sync.RWMutex
	order   []models.ProviderID
	samples map[models.ProviderID]models.CanonicalSample
}

// NewStore creates an empty [Store].
func NewStore() *Store {
	return &Store{samples: make(map[models.ProviderID]models.CanonicalSample)}
}

// Record overwrites the entry for provider with sample.
func (s *Store) Record(provider models.ProviderID, sample models.CanonicalSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.samples[provider]; !ok {
		s.order = append(s.order, provider)
	}
	s.samples[provider] = sample
}

// Latest returns a copy of the provider to sample map.
func (s *Store) Latest() map[models.ProviderID]models.CanonicalSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.ProviderID]models.CanonicalSample, len(s.samples))
	for k, v := range s.samples {
		out[k] = v
	}
	return out
}

// Len returns the number of providers with a sample.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Aggregate averages each metric across the current samples.
//
// Returns nil when the store is empty. A metric averages only over samples where it is
// non-null and stays null when no sample supplies it.
func (s *Store) Aggregate() *models.AggregatedMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return nil
	}

	agg := &models.AggregatedMetrics{
		SampleCount: len(s.samples),
		Providers:   make([]models.ProviderID, 0, len(s.samples)),
	}

	sums := make(map[models.MetricKey]float64, len(models.MetricKeys))
	counts := make(map[models.MetricKey]int, len(models.MetricKeys))
	var lastUpdated time.Time

	for _, key := range s.order {
		sample := s.samples[key]
		agg.Providers = append(agg.Providers, sample.Provider)
		if sample.Timestamp.After(lastUpdated) {
			lastUpdated = sample.Timestamp
		}
		for _, metric := range models.MetricKeys {
			if v := sample.Metrics.Get(metric); v != nil {
				sums[metric] += *v
				counts[metric]++
			}
		}
	}

	for _, metric := range models.MetricKeys {
		if counts[metric] > 0 {
			agg.Metrics.Set(metric, shared.Float(shared.Round2(sums[metric]/float64(counts[metric]))))
		}
	}
	agg.LastUpdated = lastUpdated

	return agg
}

// Reset drops every sample.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.samples = make(map[models.ProviderID]models.CanonicalSample)
}
