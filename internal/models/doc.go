// Package models defines the records that flow through the pulsemix pipeline.
//
// Wearable side:
//   - [CanonicalSample] : one provider reading in the canonical metric schema
//   - [AggregatedMetrics] : cross-provider averages derived from the latest samples
//
// Decision side:
//   - [FeatureVector] : five normalized [0,1] scores
//   - [MoodSnapshot] : a mood label with score, copy, and playlist hints
//   - [EnrichmentHint] : structured output of the optional language model step
//
// Resolution side:
//   - [RawTrack] : a catalog search hit as returned by the search collaborator
//   - [TrackResult] : the ranked track shape handed back to callers
//
// Auth:
//   - [TokenRecord] : OAuth credentials for the metric provider, keyed by user id
package models
