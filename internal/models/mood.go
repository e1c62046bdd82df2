package models

import "time"

// MoodLabel is one of the four mood classifications.
type MoodLabel string

const (
	MoodFlow     MoodLabel = "flow"
	MoodAmped    MoodLabel = "amped"
	MoodRecovery MoodLabel = "recovery"
	MoodReset    MoodLabel = "reset"
)

// MoodLabels lists every label in rule order.
var MoodLabels = []MoodLabel{MoodFlow, MoodAmped, MoodRecovery, MoodReset}

// Valid reports whether l is a known label.
func (l MoodLabel) Valid() bool {
	switch l {
	case MoodFlow, MoodAmped, MoodRecovery, MoodReset:
		return true
	}
	return false
}

// Snapshot provenance values.
const (
	SourceHeuristic = "heuristic"
	SourceEnriched  = "enriched"
)

// FeatureVector holds the five normalized scores used by the classifier.
type FeatureVector struct {
	ReadinessScore float64 `json:"readinessScore"`
	RecoveryScore  float64 `json:"recoveryScore"`
	SleepScore     float64 `json:"sleepScore"`
	StrainScore    float64 `json:"strainScore"`
	RestingHRScore float64 `json:"restingHrScore"`
}

// PlaylistHints steer track selection for a mood.
//
// SearchQuery and SeedGenres are only set by enrichment.
type PlaylistHints struct {
	TargetEnergy  float64  `json:"targetEnergy"`
	TargetValence float64  `json:"targetValence"`
	TargetTempo   float64  `json:"targetTempo"`
	SearchQuery   string   `json:"searchQuery,omitempty"`
	SeedGenres    []string `json:"seedGenres,omitempty"`
}

// MoodSnapshot is the result of one classification run.
type MoodSnapshot struct {
	Label           MoodLabel     `json:"label"`
	Score           float64       `json:"score"`
	Summary         string        `json:"summary"`
	Recommendations []string      `json:"recommendations"`
	PlaylistHints   PlaylistHints `json:"playlistHints"`
	FeatureVector   FeatureVector `json:"featureVector"`
	Source          string        `json:"source"`
	Reasoning       string        `json:"reasoning,omitempty"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Enriched reports whether an enrichment hint has been applied.
func (m *MoodSnapshot) Enriched() bool {
	return m != nil && m.Source == SourceEnriched
}

// Clone returns a deep copy so callers can overlay hints without touching shared state.
func (m *MoodSnapshot) Clone() *MoodSnapshot {
	if m == nil {
		return nil
	}
	c := *m
	c.Recommendations = append([]string(nil), m.Recommendations...)
	c.PlaylistHints.SeedGenres = append([]string(nil), m.PlaylistHints.SeedGenres...)
	return &c
}

// ApplyHint overlays the search query and genres from an enrichment hint and marks the
// snapshot as enriched. The label and score stay heuristic.
func (m *MoodSnapshot) ApplyHint(h EnrichmentHint) {
	m.PlaylistHints.SearchQuery = h.SearchQuery
	m.PlaylistHints.SeedGenres = append([]string(nil), h.Genres...)
	m.Reasoning = h.Reasoning
	m.Source = SourceEnriched
}

// EnrichmentHint is the structured answer of the enrichment collaborator.
type EnrichmentHint struct {
	Mood        string   `json:"mood"`
	Energy      float64  `json:"energy"`
	Valence     float64  `json:"valence"`
	Tempo       float64  `json:"tempo"`
	Genres      []string `json:"genres"`
	SearchQuery string   `json:"searchQuery"`
	Reasoning   string   `json:"reasoning"`
}

// EnrichmentContext is optional free text appended to the enrichment prompt.
type EnrichmentContext struct {
	Calendar   string `json:"calendar,omitempty"`
	Weather    string `json:"weather,omitempty"`
	Preference string `json:"preference,omitempty"`
}
